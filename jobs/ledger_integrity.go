package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRecorder observes job runs, e.g. for metrics.
type JobRecorder interface {
	JobRan(task, outcome string)
}

// IntegrityChecker verifies ledger invariants across posted entries.
type IntegrityChecker struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	recorder JobRecorder
}

// NewIntegrityChecker builds the checker.
func NewIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger, recorder JobRecorder) *IntegrityChecker {
	return &IntegrityChecker{pool: pool, logger: logger, recorder: recorder}
}

// Handler returns the Asynq handler for TaskLedgerIntegrity.
func (c *IntegrityChecker) Handler() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := decodeChannelPayload(t)
		if err != nil {
			return asynq.SkipRetry
		}
		err = c.Run(ctx, payload.ChannelID)
		c.record(err)
		return err
	}
}

func (c *IntegrityChecker) record(err error) {
	if c.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.recorder.JobRan(TaskLedgerIntegrity, outcome)
}

// Run checks that every journal entry balances and that no entry lost
// its lines. A non-empty result is a data corruption signal, not a
// user error, so it fails the job loudly.
func (c *IntegrityChecker) Run(ctx context.Context, channelID int64) error {
	imbalanced, err := c.imbalancedEntries(ctx, channelID)
	if err != nil {
		return err
	}
	orphaned, err := c.entriesWithoutLines(ctx, channelID)
	if err != nil {
		return err
	}
	if len(imbalanced) == 0 && len(orphaned) == 0 {
		c.logger.Info("ledger integrity check passed", slog.Int64("channel_id", channelID))
		return nil
	}
	c.logger.Error("ledger integrity check failed",
		slog.Int64("channel_id", channelID),
		slog.Any("imbalanced_entry_ids", imbalanced),
		slog.Any("entries_without_lines", orphaned))
	return fmt.Errorf("ledger integrity: %d imbalanced, %d without lines", len(imbalanced), len(orphaned))
}

func (c *IntegrityChecker) imbalancedEntries(ctx context.Context, channelID int64) ([]int64, error) {
	sql := `SELECT l.entry_id FROM journal_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE ($1 = 0 OR e.channel_id = $1)
		GROUP BY l.entry_id
		HAVING SUM(l.debit) <> SUM(l.credit)`
	rows, err := c.pool.Query(ctx, sql, channelID)
	if err != nil {
		return nil, fmt.Errorf("integrity: imbalanced query: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (c *IntegrityChecker) entriesWithoutLines(ctx context.Context, channelID int64) ([]int64, error) {
	sql := `SELECT e.id FROM journal_entries e
		LEFT JOIN journal_lines l ON l.entry_id = e.id
		WHERE ($1 = 0 OR e.channel_id = $1) AND l.id IS NULL`
	rows, err := c.pool.Query(ctx, sql, channelID)
	if err != nil {
		return nil, fmt.Errorf("integrity: orphan query: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
