package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	platformdb "github.com/dukapos/dukapos/internal/platform/db"
)

// Repository encapsulates DB operations for periods and the channel lock.
type Repository interface {
	GetLock(ctx context.Context, channelID int64) (Lock, bool, error)
	LastClosed(ctx context.Context, channelID int64) (Period, bool, error)
	List(ctx context.Context, channelID int64) ([]Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes operations inside the close transaction.
type TxRepository interface {
	InsertClosedPeriod(ctx context.Context, in CloseInput, closedAt time.Time) (Period, error)
	UpsertLock(ctx context.Context, lock Lock) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetLock(ctx context.Context, channelID int64) (Lock, bool, error) {
	var lock Lock
	err := r.pool.QueryRow(ctx, `SELECT channel_id, lock_end_date, locked_by, locked_at FROM period_locks WHERE channel_id=$1`, channelID).
		Scan(&lock.ChannelID, &lock.LockEndDate, &lock.LockedBy, &lock.LockedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lock{}, false, nil
		}
		return Lock{}, false, err
	}
	return lock, true, nil
}

func (r *repository) LastClosed(ctx context.Context, channelID int64) (Period, bool, error) {
	var p Period
	err := r.pool.QueryRow(ctx, `SELECT id, channel_id, start_date, end_date, status, closed_by, closed_at, created_at
FROM accounting_periods WHERE channel_id=$1 AND status='CLOSED' ORDER BY end_date DESC LIMIT 1`, channelID).
		Scan(&p.ID, &p.ChannelID, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, false, nil
		}
		return Period{}, false, err
	}
	return p, true, nil
}

func (r *repository) List(ctx context.Context, channelID int64) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, channel_id, start_date, end_date, status, closed_by, closed_at, created_at
FROM accounting_periods WHERE channel_id=$1 ORDER BY end_date DESC`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.ChannelID, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return platformdb.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertClosedPeriod(ctx context.Context, in CloseInput, closedAt time.Time) (Period, error) {
	var p Period
	err := r.tx.QueryRow(ctx, `INSERT INTO accounting_periods (channel_id, start_date, end_date, status, closed_by, closed_at)
VALUES ($1,$2,$3,'CLOSED',$4,$5)
RETURNING id, channel_id, start_date, end_date, status, closed_by, closed_at, created_at`,
		in.ChannelID, in.StartDate, in.EndDate, in.ActorID, closedAt).
		Scan(&p.ID, &p.ChannelID, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt)
	if err != nil {
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) UpsertLock(ctx context.Context, lock Lock) error {
	// GREATEST keeps the cutoff forward-only under concurrent closes.
	_, err := r.tx.Exec(ctx, `INSERT INTO period_locks (channel_id, lock_end_date, locked_by, locked_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (channel_id) DO UPDATE
SET lock_end_date = GREATEST(period_locks.lock_end_date, EXCLUDED.lock_end_date),
    locked_by = EXCLUDED.locked_by,
    locked_at = EXCLUDED.locked_at`,
		lock.ChannelID, lock.LockEndDate, lock.LockedBy, lock.LockedAt)
	return err
}
