package paymethod

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMethodNotFound indicates no payment method matches the lookup.
var ErrMethodNotFound = errors.New("payment method not found")

// Repository reads payment method configuration. Methods are managed
// through channel administration, so the financial core only reads.
type Repository interface {
	ListActive(ctx context.Context, channelID int64) ([]Method, error)
	GetByCode(ctx context.Context, channelID int64, code string) (Method, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const methodColumns = `id, channel_id, code, name, reconciliation_type, ledger_account_code,
	is_cashier_controlled, requires_reconciliation, is_active`

func (r *repository) ListActive(ctx context.Context, channelID int64) ([]Method, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+methodColumns+`
		FROM payment_methods WHERE channel_id = $1 AND is_active ORDER BY code`, channelID)
	if err != nil {
		return nil, fmt.Errorf("paymethod: list: %w", err)
	}
	defer rows.Close()
	var out []Method
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) GetByCode(ctx context.Context, channelID int64, code string) (Method, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+methodColumns+`
		FROM payment_methods WHERE channel_id = $1 AND code = $2`, channelID, code)
	m, err := scanMethod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Method{}, fmt.Errorf("%w: %s", ErrMethodNotFound, code)
	}
	return m, err
}

func scanMethod(row pgx.Row) (Method, error) {
	var m Method
	err := row.Scan(&m.ID, &m.ChannelID, &m.Code, &m.Name, &m.ReconciliationType,
		&m.LedgerAccountCode, &m.IsCashierControlled, &m.RequiresReconciliation, &m.IsActive)
	return m, err
}
