// Package vouchercode generates and normalises printable voucher codes.
package vouchercode

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

// Alphabet leaves out I, O, 0 and 1, which are easy to misread on a printed card.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	BlockSize = 4
	Blocks    = 3
	Separator = "-"
)

type Generator interface {
	Generate() (string, error)
}

// Random draws codes of the form XXXX-XXXX-XXXX from a byte source.
type Random struct {
	source io.Reader
}

func New() Random {
	return Random{source: rand.Reader}
}

func NewFromReader(r io.Reader) Random {
	return Random{source: r}
}

func (g Random) Generate() (string, error) {
	buf := make([]byte, BlockSize*Blocks)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}

	var b strings.Builder
	b.Grow(len(buf) + Blocks - 1)
	for i, c := range buf {
		if i > 0 && i%BlockSize == 0 {
			b.WriteString(Separator)
		}
		// len(Alphabet) is 32, so masking keeps the draw uniform.
		b.WriteByte(Alphabet[c&31])
	}
	return b.String(), nil
}

// Normalize trims and upper-cases user input. Matching is case-insensitive.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// WellFormed reports whether code has the generated layout. Seeded or imported
// codes may not, so redemption never depends on it.
func WellFormed(code string) bool {
	parts := strings.Split(code, Separator)
	if len(parts) != Blocks {
		return false
	}
	for _, part := range parts {
		if len(part) != BlockSize {
			return false
		}
		for _, r := range part {
			if !strings.ContainsRune(Alphabet, r) {
				return false
			}
		}
	}
	return true
}
