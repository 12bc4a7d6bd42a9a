package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dukapos/dukapos/internal/inventory"
)

// expiryHorizon is how far ahead the scan looks for expiring batches.
const expiryHorizon = 30 * 24 * time.Hour

// BatchSource lists stock batches expiring before a cutoff.
type BatchSource interface {
	ExpiringBatches(ctx context.Context, channelID int64, before time.Time) ([]inventory.Batch, error)
}

// ExpiryScanner reports stock batches approaching their expiry date.
type ExpiryScanner struct {
	batches  BatchSource
	logger   *slog.Logger
	recorder JobRecorder
	now      func() time.Time
}

// NewExpiryScanner builds the scanner.
func NewExpiryScanner(batches BatchSource, logger *slog.Logger, recorder JobRecorder) *ExpiryScanner {
	return &ExpiryScanner{batches: batches, logger: logger, recorder: recorder, now: time.Now}
}

// Handler returns the Asynq handler for TaskExpiryScan.
func (s *ExpiryScanner) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := decodeChannelPayload(t)
		if err != nil {
			return asynq.SkipRetry
		}
		err = s.Run(ctx, payload.ChannelID)
		if s.recorder != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			s.recorder.JobRan(TaskExpiryScan, outcome)
		}
		return err
	}
}

// Run logs every batch with remaining stock that expires inside the
// horizon so staff can discount or write it off in time.
func (s *ExpiryScanner) Run(ctx context.Context, channelID int64) error {
	cutoff := s.now().UTC().Add(expiryHorizon)
	batches, err := s.batches.ExpiringBatches(ctx, channelID, cutoff)
	if err != nil {
		return err
	}
	for _, b := range batches {
		s.logger.Warn("stock batch nearing expiry",
			slog.Int64("batch_id", b.ID),
			slog.Int64("channel_id", b.ChannelID),
			slog.Int64("variant_id", b.VariantID),
			slog.String("quantity_remaining", b.QuantityRemaining.String()),
			slog.Time("expiry_date", *b.ExpiryDate))
	}
	if len(batches) == 0 {
		s.logger.Info("expiry scan clean", slog.Int64("channel_id", channelID))
	}
	return nil
}
