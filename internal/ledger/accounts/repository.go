package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukapos/dukapos/internal/platform/db"
	"github.com/dukapos/dukapos/internal/ledger/shared"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	Insert(ctx context.Context, account Account) (Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, channelID int64, code string) (Account, error)
	ListByChannel(ctx context.Context, channelID int64) ([]Account, error)
	ListByCodes(ctx context.Context, channelID int64, codes []string) ([]Account, error)
	Children(ctx context.Context, parentID int64) ([]Account, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const accountColumns = `id, channel_id, code, name, type, is_active, is_parent, parent_id, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.ChannelID, &a.Code, &a.Name, &a.Type, &a.IsActive, &a.IsParent, &a.ParentID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Insert(ctx context.Context, account Account) (Account, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO accounts (channel_id, code, name, type, is_active, is_parent, parent_id)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING `+accountColumns,
		account.ChannelID, account.Code, account.Name, account.Type, account.IsActive, account.IsParent, account.ParentID)
	inserted, err := scanAccount(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_channel_code") || db.IsUniqueViolation(err, "") {
			return Account{}, shared.ErrDuplicateAccountCode
		}
		return Account{}, err
	}
	return inserted, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) GetByCode(ctx context.Context, channelID int64, code string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE channel_id=$1 AND code=$2`, channelID, code))
}

func (r *repository) ListByChannel(ctx context.Context, channelID int64) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE channel_id=$1 ORDER BY code ASC`, channelID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) ListByCodes(ctx context.Context, channelID int64, codes []string) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE channel_id=$1 AND code = ANY($2) ORDER BY code ASC`, channelID, codes)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) Children(ctx context.Context, parentID int64) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE parent_id=$1 ORDER BY code ASC`, parentID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE accounts SET is_active=$2, updated_at=$3 WHERE id=$1`, id, active, time.Now().UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.ChannelID, &a.Code, &a.Name, &a.Type, &a.IsActive, &a.IsParent, &a.ParentID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
