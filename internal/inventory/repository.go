package inventory

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
)

// ErrSourceConflict signals another transaction recorded the same
// source first; the service resolves it by re-reading the winner.
var ErrSourceConflict = errors.New("inventory: source already recorded")

// Repository encapsulates DB operations for batches and movements.
type Repository interface {
	FindMovementsBySource(ctx context.Context, channelID int64, sourceType, sourceID string) ([]Movement, error)
	StockOnHand(ctx context.Context, channelID, locationID, variantID int64) (decimal.Decimal, error)
	Valuation(ctx context.Context, channelID int64) ([]ValuationLine, error)
	ExpiringBatches(ctx context.Context, channelID int64, before time.Time) ([]Batch, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within the movement transaction.
type TxRepository interface {
	InsertBatch(ctx context.Context, b Batch) (Batch, error)
	// LockOpenBatches returns batches with remaining quantity, oldest
	// first, with their rows locked. Returns ErrConcurrentAllocation
	// when another transaction already holds them.
	LockOpenBatches(ctx context.Context, channelID, locationID, variantID int64) ([]Batch, error)
	DecrementBatch(ctx context.Context, batchID int64, by decimal.Decimal) error
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const movementColumns = `id, channel_id, location_id, variant_id, batch_id, source_type, source_id,
	movement_type, quantity, unit_cost, cost_total, occurred_at, created_by, created_at`

func (r *repository) FindMovementsBySource(ctx context.Context, channelID int64, sourceType, sourceID string) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM inventory_movements
		WHERE channel_id = $1 AND source_type = $2 AND source_id = $3 ORDER BY id`,
		channelID, sourceType, sourceID)
	if err != nil {
		return nil, fmt.Errorf("inventory: find by source: %w", err)
	}
	defer rows.Close()
	return collectMovements(rows)
}

func (r *repository) StockOnHand(ctx context.Context, channelID, locationID, variantID int64) (decimal.Decimal, error) {
	var qty pgtype.Numeric
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_remaining), 0)
		FROM inventory_batches WHERE channel_id = $1 AND location_id = $2 AND variant_id = $3`,
		channelID, locationID, variantID).Scan(&qty)
	if err != nil {
		return decimal.Zero, fmt.Errorf("inventory: stock on hand: %w", err)
	}
	return platformdb.NumericToDecimal(qty), nil
}

func (r *repository) Valuation(ctx context.Context, channelID int64) ([]ValuationLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT variant_id, location_id,
		COALESCE(SUM(quantity_remaining), 0), COALESCE(SUM(quantity_remaining * unit_cost), 0)
		FROM inventory_batches WHERE channel_id = $1 AND quantity_remaining > 0
		GROUP BY variant_id, location_id ORDER BY variant_id, location_id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("inventory: valuation: %w", err)
	}
	defer rows.Close()
	var out []ValuationLine
	for rows.Next() {
		var (
			line       ValuationLine
			qty, value pgtype.Numeric
		)
		if err := rows.Scan(&line.VariantID, &line.LocationID, &qty, &value); err != nil {
			return nil, err
		}
		line.Quantity = platformdb.NumericToDecimal(qty)
		line.Value = platformdb.NumericToDecimal(value)
		out = append(out, line)
	}
	return out, rows.Err()
}

func (r *repository) ExpiringBatches(ctx context.Context, channelID int64, before time.Time) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM inventory_batches
		WHERE ($1 = 0 OR channel_id = $1) AND quantity_remaining > 0
		AND expiry_date IS NOT NULL AND expiry_date <= $2
		ORDER BY expiry_date, id`, channelID, before)
	if err != nil {
		return nil, fmt.Errorf("inventory: expiring batches: %w", err)
	}
	defer rows.Close()
	return collectBatches(rows)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return platformdb.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const batchColumns = `id, channel_id, location_id, variant_id, reference,
	quantity_received, quantity_remaining, unit_cost, expiry_date, created_at`

func (r *txRepository) InsertBatch(ctx context.Context, b Batch) (Batch, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO inventory_batches
		(channel_id, location_id, variant_id, reference, quantity_received, quantity_remaining, unit_cost, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		b.ChannelID, b.LocationID, b.VariantID, b.Reference,
		platformdb.DecimalToNumeric(b.QuantityReceived), platformdb.DecimalToNumeric(b.QuantityRemaining),
		platformdb.DecimalToNumeric(b.UnitCost), b.ExpiryDate)
	if err := row.Scan(&b.ID, &b.CreatedAt); err != nil {
		return Batch{}, fmt.Errorf("inventory: insert batch: %w", err)
	}
	return b, nil
}

func (r *txRepository) LockOpenBatches(ctx context.Context, channelID, locationID, variantID int64) ([]Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+` FROM inventory_batches
		WHERE channel_id = $1 AND location_id = $2 AND variant_id = $3 AND quantity_remaining > 0
		ORDER BY created_at, id
		FOR UPDATE NOWAIT`, channelID, locationID, variantID)
	if err != nil {
		if platformdb.IsLockNotAvailable(err) {
			return nil, ErrConcurrentAllocation
		}
		return nil, fmt.Errorf("inventory: lock batches: %w", err)
	}
	defer rows.Close()
	batches, err := collectBatches(rows)
	if err != nil && platformdb.IsLockNotAvailable(err) {
		return nil, ErrConcurrentAllocation
	}
	return batches, err
}

func (r *txRepository) DecrementBatch(ctx context.Context, batchID int64, by decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_batches
		SET quantity_remaining = quantity_remaining - $2
		WHERE id = $1 AND quantity_remaining >= $2`,
		batchID, platformdb.DecimalToNumeric(by))
	if err != nil {
		return fmt.Errorf("inventory: decrement batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentAllocation
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements
		(channel_id, location_id, variant_id, batch_id, source_type, source_id,
		 movement_type, quantity, unit_cost, cost_total, occurred_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		m.ChannelID, m.LocationID, m.VariantID, m.BatchID, m.SourceType, m.SourceID,
		m.Type, platformdb.DecimalToNumeric(m.Quantity), platformdb.DecimalToNumeric(m.UnitCost),
		platformdb.DecimalToNumeric(m.CostTotal), m.OccurredAt, m.CreatedBy)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		if platformdb.IsUniqueViolation(err, "uq_inventory_movements_source_batch") {
			return Movement{}, ErrSourceConflict
		}
		return Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	return m, nil
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	var out []Movement
	for rows.Next() {
		var (
			m                         Movement
			qty, unitCost, costTotal pgtype.Numeric
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.LocationID, &m.VariantID, &m.BatchID,
			&m.SourceType, &m.SourceID, &m.Type, &qty, &unitCost, &costTotal,
			&m.OccurredAt, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Quantity = platformdb.NumericToDecimal(qty)
		m.UnitCost = platformdb.NumericToDecimal(unitCost)
		m.CostTotal = platformdb.NumericToDecimal(costTotal)
		out = append(out, m)
	}
	return out, rows.Err()
}

func collectBatches(rows pgx.Rows) ([]Batch, error) {
	var out []Batch
	for rows.Next() {
		var (
			b                         Batch
			received, remaining, cost pgtype.Numeric
		)
		if err := rows.Scan(&b.ID, &b.ChannelID, &b.LocationID, &b.VariantID, &b.Reference,
			&received, &remaining, &cost, &b.ExpiryDate, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.QuantityReceived = platformdb.NumericToDecimal(received)
		b.QuantityRemaining = platformdb.NumericToDecimal(remaining)
		b.UnitCost = platformdb.NumericToDecimal(cost)
		out = append(out, b)
	}
	return out, rows.Err()
}
