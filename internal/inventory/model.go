package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientStock indicates open batches cannot cover an issue.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrConcurrentAllocation indicates another transaction holds the
	// batch rows for the same variant. Callers may retry.
	ErrConcurrentAllocation = errors.New("inventory: concurrent allocation, retry")
	// ErrMovementNotFound indicates a missing movement row.
	ErrMovementNotFound = errors.New("inventory: movement not found")
	// ErrInvalidMovement indicates malformed movement input.
	ErrInvalidMovement = errors.New("inventory: invalid movement")
	// ErrBatchNotFound indicates a missing batch row.
	ErrBatchNotFound = errors.New("inventory: batch not found")
)

// InsufficientStockError carries the shortfall detail for an issue that
// open batches cannot cover.
type InsufficientStockError struct {
	VariantID int64
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for variant %d: requested %s, available %s",
		e.VariantID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// MovementType classifies stock movements.
type MovementType string

const (
	MovementReceipt  MovementType = "RECEIPT"
	MovementIssue    MovementType = "ISSUE"
	MovementWriteOff MovementType = "WRITE_OFF"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementReceipt, MovementIssue, MovementWriteOff:
		return true
	}
	return false
}

// Batch is a received stock lot carrying its own unit cost. Issues
// consume batches oldest first, so QuantityRemaining drains toward zero
// while QuantityReceived stays fixed for audit.
type Batch struct {
	ID                int64           `json:"id"`
	ChannelID         int64           `json:"channelId"`
	LocationID        int64           `json:"locationId"`
	VariantID         int64           `json:"variantId"`
	Reference         string          `json:"reference,omitempty"`
	QuantityReceived  decimal.Decimal `json:"quantityReceived"`
	QuantityRemaining decimal.Decimal `json:"quantityRemaining"`
	UnitCost          decimal.Decimal `json:"unitCost"`
	ExpiryDate        *time.Time      `json:"expiryDate,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Movement is one batch-level stock change. A single business event
// (one sale line, one receipt) can fan out into several movements when
// the issue spans batches; they all share the same source identity.
type Movement struct {
	ID         int64           `json:"id"`
	ChannelID  int64           `json:"channelId"`
	LocationID int64           `json:"locationId"`
	VariantID  int64           `json:"variantId"`
	BatchID    int64           `json:"batchId"`
	SourceType string          `json:"sourceType"`
	SourceID   string          `json:"sourceId"`
	Type       MovementType    `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unitCost"`
	CostTotal  decimal.Decimal `json:"costTotal"`
	OccurredAt time.Time       `json:"occurredAt"`
	CreatedBy  int64           `json:"createdBy"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// MovementInput describes one stock event to record.
type MovementInput struct {
	ChannelID  int64           `json:"channelId" validate:"required"`
	LocationID int64           `json:"locationId" validate:"required"`
	VariantID  int64           `json:"variantId" validate:"required"`
	SourceType string          `json:"sourceType" validate:"required,max=64"`
	SourceID   string          `json:"sourceId" validate:"required,max=64"`
	Type       MovementType    `json:"type" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	// UnitCost applies to receipts only; issues derive cost from batches.
	UnitCost   decimal.Decimal `json:"unitCost"`
	Reference  string          `json:"reference,omitempty" validate:"max=128"`
	ExpiryDate *time.Time      `json:"expiryDate,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	ActorID    int64           `json:"-"`
}

func (in MovementInput) Validate() error {
	if in.ChannelID <= 0 || in.LocationID <= 0 || in.VariantID <= 0 {
		return ErrInvalidMovement
	}
	if in.SourceType == "" || in.SourceID == "" {
		return ErrInvalidMovement
	}
	if !in.Type.Valid() {
		return ErrInvalidMovement
	}
	if !in.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidMovement)
	}
	if in.Type == MovementReceipt && in.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost cannot be negative", ErrInvalidMovement)
	}
	return nil
}

// MovementResult reports what a recorded event did. Idempotent is true
// when the source was seen before and the stored movements are returned
// unchanged.
type MovementResult struct {
	Movements  []Movement      `json:"movements"`
	CostTotal  decimal.Decimal `json:"costTotal"`
	Idempotent bool            `json:"idempotent"`
}

// ValuationLine is one variant's position in a valuation snapshot.
type ValuationLine struct {
	VariantID  int64           `json:"variantId"`
	LocationID int64           `json:"locationId"`
	Quantity   decimal.Decimal `json:"quantity"`
	Value      decimal.Decimal `json:"value"`
}

// ValuationSnapshot totals remaining batch quantities at batch cost.
type ValuationSnapshot struct {
	ChannelID  int64           `json:"channelId"`
	TakenAt    time.Time       `json:"takenAt"`
	Lines      []ValuationLine `json:"lines"`
	TotalValue decimal.Decimal `json:"totalValue"`
}
