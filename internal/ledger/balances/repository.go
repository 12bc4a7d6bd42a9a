package balances

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	platformdb "github.com/dukapos/dukapos/internal/platform/db"
)

// Query scopes a balance aggregation.
type Query struct {
	StartDate  *time.Time
	EndDate    *time.Time
	CustomerID string
	SupplierID string
	SessionID  string
}

// Repository aggregates journal lines.
type Repository interface {
	SumByAccountCodes(ctx context.Context, channelID int64, codes []string, q Query) (debit, credit decimal.Decimal, err error)
	CountLinesByAccountCodes(ctx context.Context, channelID int64, codes []string, q Query) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) SumByAccountCodes(ctx context.Context, channelID int64, codes []string, q Query) (decimal.Decimal, decimal.Decimal, error) {
	sql, args := buildAggregate(`COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)`, channelID, codes, q)
	var debit, credit pgtype.Numeric
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&debit, &credit); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return platformdb.NumericToDecimal(debit), platformdb.NumericToDecimal(credit), nil
}

func (r *repository) CountLinesByAccountCodes(ctx context.Context, channelID int64, codes []string, q Query) (int64, error) {
	sql, args := buildAggregate(`COUNT(*)`, channelID, codes, q)
	var count int64
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func buildAggregate(selectList string, channelID int64, codes []string, q Query) (string, []any) {
	sql := `SELECT ` + selectList + `
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN accounts a ON a.id = l.account_id
WHERE l.channel_id = $1 AND a.code = ANY($2)`
	args := []any{channelID, codes}
	idx := 3
	add := func(clause string, value any) {
		sql += fmt.Sprintf(clause, idx)
		args = append(args, value)
		idx++
	}
	if q.StartDate != nil {
		add(` AND e.entry_date >= $%d`, *q.StartDate)
	}
	if q.EndDate != nil {
		add(` AND e.entry_date <= $%d`, *q.EndDate)
	}
	if q.CustomerID != "" {
		add(` AND l.meta->>'customerId' = $%d`, q.CustomerID)
	}
	if q.SupplierID != "" {
		add(` AND l.meta->>'supplierId' = $%d`, q.SupplierID)
	}
	if q.SessionID != "" {
		add(` AND l.meta->>'sessionId' = $%d`, q.SessionID)
	}
	return sql, args
}
