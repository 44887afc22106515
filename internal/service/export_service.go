package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"wifiportal/internal/models"
	"wifiportal/internal/queue"
	"wifiportal/internal/repository"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ErrExportDisabled = errors.New("voucher export storage is not configured")

type ObjectStorage interface {
	Bucket() string
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, fields map[string]any) error
}

// ExportService renders voucher batches as spreadsheets for printing.
type ExportService struct {
	store      repository.Store
	objects    ObjectStorage
	queue      Enqueuer
	presignTTL time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewExportService accepts nil objects (exports disabled) and a nil queue
// (exports rendered inline).
func NewExportService(store repository.Store, objects ObjectStorage, enqueuer Enqueuer, presignTTL time.Duration, log zerolog.Logger) *ExportService {
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	return &ExportService{
		store:      store,
		objects:    objects,
		queue:      enqueuer,
		presignTTL: presignTTL,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type ExportRequest struct {
	BatchID string
	Queued  bool
	Export  *models.VoucherExport
}

func (s *ExportService) RequestExport(ctx context.Context, actor Actor, batchID string) (ExportRequest, error) {
	if !actor.IsAdmin() {
		return ExportRequest{}, ErrUnauthorized
	}
	if s.objects == nil {
		return ExportRequest{}, ErrExportDisabled
	}
	vouchers, err := s.store.Repos().Vouchers.ListByBatch(ctx, batchID)
	if err != nil {
		return ExportRequest{}, unavailable(err)
	}
	if len(vouchers) == 0 {
		return ExportRequest{}, fmt.Errorf("%w: batch %s", ErrNotFound, batchID)
	}

	if s.queue != nil {
		err := s.queue.Enqueue(ctx, queue.TaskVoucherExport, map[string]any{"batch_id": batchID})
		if err == nil {
			s.log.Info().Str("batch_id", batchID).Msg("voucher export queued")
			return ExportRequest{BatchID: batchID, Queued: true}, nil
		}
		s.log.Warn().Err(err).Str("batch_id", batchID).Msg("enqueue export failed, rendering inline")
	}

	export, err := s.write(ctx, batchID, vouchers)
	if err != nil {
		return ExportRequest{}, err
	}
	return ExportRequest{BatchID: batchID, Export: &export}, nil
}

// Export renders and uploads a batch. The worker calls it for queued requests.
func (s *ExportService) Export(ctx context.Context, batchID string) (models.VoucherExport, error) {
	if s.objects == nil {
		return models.VoucherExport{}, ErrExportDisabled
	}
	vouchers, err := s.store.Repos().Vouchers.ListByBatch(ctx, batchID)
	if err != nil {
		return models.VoucherExport{}, unavailable(err)
	}
	if len(vouchers) == 0 {
		return models.VoucherExport{}, fmt.Errorf("%w: batch %s", ErrNotFound, batchID)
	}
	return s.write(ctx, batchID, vouchers)
}

func (s *ExportService) write(ctx context.Context, batchID string, vouchers []models.Voucher) (models.VoucherExport, error) {
	buf, err := RenderVoucherSheet(vouchers, s.now())
	if err != nil {
		return models.VoucherExport{}, err
	}

	key := path.Join("batches", batchID+".xlsx")
	if err := s.objects.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), xlsxContentType); err != nil {
		return models.VoucherExport{}, err
	}

	export := models.VoucherExport{
		BatchID:   batchID,
		Bucket:    s.objects.Bucket(),
		ObjectKey: key,
		Rows:      len(vouchers),
		CreatedAt: s.now(),
	}
	if err := s.store.Repos().Exports.Upsert(ctx, export); err != nil {
		return models.VoucherExport{}, unavailable(err)
	}

	s.log.Info().Str("batch_id", batchID).Int("rows", export.Rows).Str("object", key).Msg("voucher export written")
	return export, nil
}

func (s *ExportService) DownloadURL(ctx context.Context, actor Actor, batchID string) (string, models.VoucherExport, error) {
	if !actor.IsAdmin() {
		return "", models.VoucherExport{}, ErrUnauthorized
	}
	if s.objects == nil {
		return "", models.VoucherExport{}, ErrExportDisabled
	}
	export, err := s.store.Repos().Exports.Get(ctx, batchID)
	if errors.Is(err, repository.ErrExportNotFound) {
		return "", models.VoucherExport{}, fmt.Errorf("%w: export for batch %s", ErrNotFound, batchID)
	}
	if err != nil {
		return "", models.VoucherExport{}, unavailable(err)
	}

	url, err := s.objects.PresignGet(ctx, export.ObjectKey, s.presignTTL)
	if err != nil {
		return "", models.VoucherExport{}, err
	}
	return url, export, nil
}

var voucherSheetHeader = []interface{}{"code", "duration_minutes", "expires_at", "status", "used_at"}

// RenderVoucherSheet writes one row per voucher on the first sheet.
func RenderVoucherSheet(vouchers []models.Voucher, now time.Time) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetRow(sheet, "A1", &voucherSheetHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, v := range vouchers {
		status := "unused"
		switch {
		case v.Used:
			status = "used"
		case !now.Before(v.ExpiresAt):
			status = "expired"
		}
		usedAt := ""
		if v.UsedAt != nil {
			usedAt = v.UsedAt.UTC().Format(time.RFC3339)
		}

		row := []interface{}{
			v.Code,
			v.DurationMinutes,
			v.ExpiresAt.UTC().Format(time.RFC3339),
			status,
			usedAt,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 18); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}
