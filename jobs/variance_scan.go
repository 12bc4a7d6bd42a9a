package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	platformdb "github.com/dukapos/dukapos/internal/platform/db"
)

// staleReviewAge is how long a drawer count may sit unreviewed before
// the scan starts nagging about it.
const staleReviewAge = 24 * time.Hour

// VarianceScanner surfaces drawer counts stuck waiting for review.
type VarianceScanner struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	recorder JobRecorder
}

// NewVarianceScanner builds the scanner.
func NewVarianceScanner(pool *pgxpool.Pool, logger *slog.Logger, recorder JobRecorder) *VarianceScanner {
	return &VarianceScanner{pool: pool, logger: logger, recorder: recorder}
}

// Handler returns the Asynq handler for TaskVarianceScan.
func (s *VarianceScanner) Handler() asynq.HandlerFunc {
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
			s.recorder.JobRan(TaskVarianceScan, outcome)
		}
		return err
	}
}

// Run logs every count still pending review past the stale age. The
// scan never mutates; supervisors act through the review endpoint.
func (s *VarianceScanner) Run(ctx context.Context, channelID int64) error {
	cutoff := time.Now().UTC().Add(-staleReviewAge)
	rows, err := s.pool.Query(ctx, `SELECT id, channel_id, session_id, variance, counted_at
		FROM cash_drawer_counts
		WHERE ($1 = 0 OR channel_id = $1) AND status = 'PENDING_REVIEW' AND counted_at < $2
		ORDER BY counted_at`, channelID, cutoff)
	if err != nil {
		return err
	}
	defer rows.Close()
	stale := 0
	for rows.Next() {
		var (
			id, channel int64
			sessionID   string
			variance    pgtype.Numeric
			countedAt   time.Time
		)
		if err := rows.Scan(&id, &channel, &sessionID, &variance, &countedAt); err != nil {
			return err
		}
		stale++
		s.logger.Warn("drawer count awaiting review",
			slog.Int64("count_id", id),
			slog.Int64("channel_id", channel),
			slog.String("session_id", sessionID),
			slog.String("variance", platformdb.NumericToDecimal(variance).String()),
			slog.Time("counted_at", countedAt))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if stale == 0 {
		s.logger.Info("variance scan clean", slog.Int64("channel_id", channelID))
	}
	return nil
}
