package vouchercode

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateLayout(t *testing.T) {
	g := New()
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 14 {
			t.Fatalf("expected 14 characters, got %q", code)
		}
		if !WellFormed(code) {
			t.Fatalf("expected well formed code, got %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 499 {
		t.Errorf("expected distinct codes, got %d unique of 500", len(seen))
	}
}

func TestGenerateDeterministicSource(t *testing.T) {
	src := bytes.NewReader([]byte{0, 1, 2, 3, 31, 30, 29, 28, 32, 33, 34, 35})
	code, err := NewFromReader(src).Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if code != "ABCD-9876-ABCD" {
		t.Errorf("expected ABCD-9876-ABCD, got %s", code)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateSourceError(t *testing.T) {
	if _, err := NewFromReader(failingReader{}).Generate(); err == nil {
		t.Error("expected error from failing source")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  wifi1-abcd-efgh \n"); got != "WIFI1-ABCD-EFGH" {
		t.Errorf("expected WIFI1-ABCD-EFGH, got %q", got)
	}
}

func TestWellFormed(t *testing.T) {
	cases := map[string]bool{
		"ABCD-EFGH-JKLM": true,
		"ABCD-EFGH-JKL":  false,
		"ABCD-EFGH-JKLO": false,
		"WIFI1-ABCD-EFG": false,
		"ABCDEFGHJKLM":   false,
	}
	for code, want := range cases {
		if got := WellFormed(code); got != want {
			t.Errorf("WellFormed(%q): expected %v, got %v", code, want, got)
		}
	}
}
