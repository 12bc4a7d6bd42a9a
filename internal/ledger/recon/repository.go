package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	platformdb "github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/ledger/shared"
)

// Repository persists reconciliations.
type Repository interface {
	Insert(ctx context.Context, r Reconciliation) (Reconciliation, error)
	GetByID(ctx context.Context, id int64) (Reconciliation, error)
	MarkVerified(ctx context.Context, r Reconciliation) error
	ListByChannel(ctx context.Context, channelID int64, limit, offset int) ([]Reconciliation, error)
	// HasVerifiedCovering reports whether a verified reconciliation for
	// the account fully covers [start, end].
	HasVerifiedCovering(ctx context.Context, channelID int64, accountCode string, start, end time.Time) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const reconColumns = `id, channel_id, account_code, range_start, range_end, status,
	expected_total, actual_total, variance, note, created_by, verified_by, created_at, verified_at`

func (r *repository) Insert(ctx context.Context, rec Reconciliation) (Reconciliation, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO reconciliations
		(channel_id, account_code, range_start, range_end, status, expected_total, note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		rec.ChannelID, rec.AccountCode, rec.RangeStart, rec.RangeEnd, rec.Status,
		platformdb.DecimalToNumeric(rec.ExpectedTotal), rec.Note, rec.CreatedBy)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return Reconciliation{}, fmt.Errorf("recon: insert: %w", err)
	}
	return rec, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (Reconciliation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reconColumns+` FROM reconciliations WHERE id = $1`, id)
	return scanRecon(row)
}

func (r *repository) MarkVerified(ctx context.Context, rec Reconciliation) error {
	tag, err := r.pool.Exec(ctx, `UPDATE reconciliations
		SET status = $2, actual_total = $3, variance = $4, note = $5, verified_by = $6, verified_at = $7
		WHERE id = $1 AND status = $8`,
		rec.ID, StatusVerified,
		nullableNumeric(rec.ActualTotal), nullableNumeric(rec.Variance),
		rec.Note, rec.VerifiedBy, rec.VerifiedAt, StatusDraft)
	if err != nil {
		return fmt.Errorf("recon: verify: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrReconciliationVerified
	}
	return nil
}

func (r *repository) ListByChannel(ctx context.Context, channelID int64, limit, offset int) ([]Reconciliation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reconColumns+` FROM reconciliations
		WHERE channel_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		channelID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("recon: list: %w", err)
	}
	defer rows.Close()
	var out []Reconciliation
	for rows.Next() {
		rec, err := scanRecon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repository) HasVerifiedCovering(ctx context.Context, channelID int64, accountCode string, start, end time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM reconciliations
		WHERE channel_id = $1 AND account_code = $2 AND status = $3
		AND range_start <= $4 AND range_end >= $5)`,
		channelID, accountCode, StatusVerified, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("recon: coverage check: %w", err)
	}
	return exists, nil
}

func scanRecon(row pgx.Row) (Reconciliation, error) {
	var (
		rec              Reconciliation
		expected         pgtype.Numeric
		actual, variance pgtype.Numeric
	)
	err := row.Scan(&rec.ID, &rec.ChannelID, &rec.AccountCode, &rec.RangeStart, &rec.RangeEnd,
		&rec.Status, &expected, &actual, &variance, &rec.Note,
		&rec.CreatedBy, &rec.VerifiedBy, &rec.CreatedAt, &rec.VerifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reconciliation{}, shared.ErrReconciliationNotFound
	}
	if err != nil {
		return Reconciliation{}, fmt.Errorf("recon: scan: %w", err)
	}
	rec.ExpectedTotal = platformdb.NumericToDecimal(expected)
	if actual.Valid {
		d := platformdb.NumericToDecimal(actual)
		rec.ActualTotal = &d
	}
	if variance.Valid {
		d := platformdb.NumericToDecimal(variance)
		rec.Variance = &d
	}
	return rec, nil
}

func nullableNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return platformdb.DecimalToNumeric(*d)
}
