package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"wifiportal/internal/models"
)

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryObjects) Bucket() string { return "portal-exports" }

func (m *memoryObjects) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryObjects) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://objects.example/" + key + "?ttl=" + ttl.String(), nil
}

type recordingEnqueuer struct {
	tasks []map[string]any
	err   error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, taskType string, fields map[string]any) error {
	if r.err != nil {
		return r.err
	}
	task := map[string]any{"type": taskType}
	for k, v := range fields {
		task[k] = v
	}
	r.tasks = append(r.tasks, task)
	return nil
}

func TestRenderVoucherSheet(t *testing.T) {
	usedAt := t0.Add(-time.Hour)
	vouchers := []models.Voucher{
		{Code: "AAAA-AAAA-AAAA", DurationMinutes: 60, ExpiresAt: t0.Add(time.Hour)},
		{Code: "BBBB-BBBB-BBBB", DurationMinutes: 60, ExpiresAt: t0.Add(time.Hour), Used: true, UsedAt: &usedAt},
		{Code: "CCCC-CCCC-CCCC", DurationMinutes: 60, ExpiresAt: t0},
	}

	buf, err := RenderVoucherSheet(vouchers, t0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "code" || rows[0][3] != "status" {
		t.Errorf("unexpected header %v", rows[0])
	}
	wantStatus := []string{"unused", "used", "expired"}
	for i, want := range wantStatus {
		if rows[i+1][0] != vouchers[i].Code || rows[i+1][3] != want {
			t.Errorf("row %d: expected %s %s, got %v", i+1, vouchers[i].Code, want, rows[i+1])
		}
	}
	if len(rows[2]) < 5 || rows[2][4] != usedAt.Format(time.RFC3339) {
		t.Errorf("expected used_at on the used row, got %v", rows[2])
	}
}

func TestExportInlineWhenNoQueue(t *testing.T) {
	f := newFixture(t)
	batch, err := f.svc.GenerateVoucherBatch(f.ctx, admin(), BatchInput{Quantity: 5, DurationMinutes: 60, ValidityDays: 7})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	objects := newMemoryObjects()
	svc := NewExportService(f.store, objects, nil, time.Hour, zerolog.Nop())

	req, err := svc.RequestExport(f.ctx, admin(), batch.ID)
	if err != nil {
		t.Fatalf("request export: %v", err)
	}
	if req.Queued || req.Export == nil || req.Export.Rows != 5 {
		t.Fatalf("expected inline export of 5 rows, got %+v", req)
	}
	key := "batches/" + batch.ID + ".xlsx"
	if _, ok := objects.objects[key]; !ok || objects.types[key] != xlsxContentType {
		t.Errorf("expected workbook at %s", key)
	}

	url, export, err := svc.DownloadURL(f.ctx, admin(), batch.ID)
	if err != nil {
		t.Fatalf("download url: %v", err)
	}
	if export.ObjectKey != key || url != "https://objects.example/"+key+"?ttl=1h0m0s" {
		t.Errorf("unexpected download %s %+v", url, export)
	}
}

func TestExportQueued(t *testing.T) {
	f := newFixture(t)
	batch, err := f.svc.GenerateVoucherBatch(f.ctx, admin(), BatchInput{Quantity: 2, DurationMinutes: 60, ValidityDays: 7})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	objects := newMemoryObjects()
	queue := &recordingEnqueuer{}
	svc := NewExportService(f.store, objects, queue, time.Hour, zerolog.Nop())

	req, err := svc.RequestExport(f.ctx, admin(), batch.ID)
	if err != nil || !req.Queued {
		t.Fatalf("expected queued export, got %+v (%v)", req, err)
	}
	if len(queue.tasks) != 1 || queue.tasks[0]["type"] != "voucher_export" || queue.tasks[0]["batch_id"] != batch.ID {
		t.Errorf("unexpected tasks %v", queue.tasks)
	}
	if len(objects.objects) != 0 {
		t.Error("expected nothing written before the worker runs")
	}

	if _, _, err := svc.DownloadURL(f.ctx, admin(), batch.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound before the export exists, got %v", err)
	}
	if _, err := svc.Export(f.ctx, batch.ID); err != nil {
		t.Fatalf("worker export: %v", err)
	}
	if _, _, err := svc.DownloadURL(f.ctx, admin(), batch.ID); err != nil {
		t.Errorf("expected download after export, got %v", err)
	}

	queue.err = errors.New("redis down")
	req, err = svc.RequestExport(f.ctx, admin(), batch.ID)
	if err != nil || req.Queued || req.Export == nil {
		t.Errorf("expected inline fallback when enqueue fails, got %+v (%v)", req, err)
	}
}

func TestExportGuards(t *testing.T) {
	f := newFixture(t)
	disabled := NewExportService(f.store, nil, nil, 0, zerolog.Nop())
	if _, err := disabled.RequestExport(f.ctx, admin(), "b"); !errors.Is(err, ErrExportDisabled) {
		t.Errorf("expected ErrExportDisabled, got %v", err)
	}

	svc := NewExportService(f.store, newMemoryObjects(), nil, 0, zerolog.Nop())
	if _, err := svc.RequestExport(f.ctx, Guest(), "b"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.RequestExport(f.ctx, admin(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown batch, got %v", err)
	}
}
