package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRetention prunes raw money events past the retention window.
// Journal entries and lines are permanent; only the ingestion records
// are pruned, and only when the journal entry they produced exists.
type EventRetention struct {
	pool      *pgxpool.Pool
	retention time.Duration
	logger    *slog.Logger
	recorder  JobRecorder
}

// NewEventRetention builds the retention job.
func NewEventRetention(pool *pgxpool.Pool, retention time.Duration, logger *slog.Logger, recorder JobRecorder) *EventRetention {
	return &EventRetention{pool: pool, retention: retention, logger: logger, recorder: recorder}
}

// Handler returns the Asynq handler for TaskEventRetention.
func (j *EventRetention) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := decodeChannelPayload(t)
		if err != nil {
			return asynq.SkipRetry
		}
		err = j.Run(ctx, payload.ChannelID)
		if j.recorder != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			j.recorder.JobRan(TaskEventRetention, outcome)
		}
		return err
	}
}

// Run deletes old money events that are confirmed posted.
func (j *EventRetention) Run(ctx context.Context, channelID int64) error {
	if j.retention <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-j.retention)
	tag, err := j.pool.Exec(ctx, `DELETE FROM money_events me
		WHERE ($1 = 0 OR me.channel_id = $1) AND me.created_at < $2
		AND EXISTS (
			SELECT 1 FROM journal_entries e
			WHERE e.channel_id = me.channel_id
			AND e.source_type = me.source_type
			AND e.source_id = me.source_id)`, channelID, cutoff)
	if err != nil {
		return err
	}
	j.logger.Info("money event retention run",
		slog.Int64("channel_id", channelID),
		slog.Int64("deleted", tag.RowsAffected()))
	return nil
}
