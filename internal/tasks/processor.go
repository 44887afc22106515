package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wifiportal/internal/models"
	"wifiportal/internal/queue"
	"wifiportal/internal/service"
)

type Sweeper interface {
	ExpireSessions(ctx context.Context) (int64, error)
}

type Exporter interface {
	Export(ctx context.Context, batchID string) (models.VoucherExport, error)
}

// Processor dispatches stream messages to the services. A returned error
// leaves the message pending so another consumer can claim it.
type Processor struct {
	sweeper  Sweeper
	exporter Exporter
	logger   zerolog.Logger
}

type TaskPayload struct {
	Type    string `json:"type"`
	BatchID string `json:"batch_id"`
}

func NewProcessor(sweeper Sweeper, exporter Exporter, logger zerolog.Logger) *Processor {
	return &Processor{
		sweeper:  sweeper,
		exporter: exporter,
		logger:   logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		// malformed messages would never succeed, ack them
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("decode payload failed")
		return nil
	}

	switch payload.Type {
	case queue.TaskExpireSessions:
		return p.handleExpire(ctx)
	case queue.TaskVoucherExport:
		return p.handleExport(ctx, payload)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleExpire(ctx context.Context) error {
	n, err := p.sweeper.ExpireSessions(ctx)
	if err != nil {
		return fmt.Errorf("expire sessions: %w", err)
	}
	p.logger.Debug().Int64("count", n).Msg("expiry sweep done")
	return nil
}

func (p *Processor) handleExport(ctx context.Context, payload TaskPayload) error {
	if payload.BatchID == "" {
		p.logger.Warn().Msg("voucher export task without batch id")
		return nil
	}
	export, err := p.exporter.Export(ctx, payload.BatchID)
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrExportDisabled):
		p.logger.Warn().Err(err).Str("batch_id", payload.BatchID).Msg("voucher export dropped")
		return nil
	case err != nil:
		return fmt.Errorf("export batch %s: %w", payload.BatchID, err)
	}
	p.logger.Info().Str("batch_id", export.BatchID).Int("rows", export.Rows).Msg("voucher export task done")
	return nil
}
