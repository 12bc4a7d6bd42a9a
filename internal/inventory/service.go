package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/ledger/accounts"
	"github.com/dukapos/dukapos/internal/ledger/posting"
	"github.com/dukapos/dukapos/internal/shared"
)

// LedgerPoster posts cost entries produced by stock movements.
type LedgerPoster interface {
	Post(ctx context.Context, in posting.Input) (posting.JournalEntry, error)
}

// PeriodGuard rejects movement dates that fall inside a closed period.
type PeriodGuard interface {
	EnsureOpen(ctx context.Context, channelID int64, entryDate time.Time) error
}

// MovementRecorder observes recorded movements, e.g. for metrics.
type MovementRecorder interface {
	MovementRecorded(movementType string)
}

const allocationRetries = 3

// Service records stock movements with FIFO batch costing. Receipts
// open a batch at the received unit cost; issues drain the oldest open
// batches first and carry the consumed cost to the ledger.
type Service struct {
	repo     Repository
	poster   LedgerPoster
	guard    PeriodGuard
	locker   *shared.Locker
	recorder MovementRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, poster LedgerPoster, guard PeriodGuard, locker *shared.Locker, logger *slog.Logger) *Service {
	return &Service{repo: repo, poster: poster, guard: guard, locker: locker, logger: logger, now: time.Now}
}

// WithRecorder attaches a movement observer.
func (s *Service) WithRecorder(rec MovementRecorder) *Service {
	s.recorder = rec
	return s
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Record applies one stock event. Replays of an already recorded
// (channel, sourceType, sourceId) return the stored movements without
// touching batches again, finishing the ledger posting if an earlier
// attempt failed after the movements committed.
func (s *Service) Record(ctx context.Context, in MovementInput) (MovementResult, error) {
	if err := in.Validate(); err != nil {
		return MovementResult{}, err
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = s.now().UTC()
	}
	if existing, err := s.repo.FindMovementsBySource(ctx, in.ChannelID, in.SourceType, in.SourceID); err != nil {
		return MovementResult{}, err
	} else if len(existing) > 0 {
		return s.replay(ctx, in, existing)
	}
	// The posting engine enforces the same cutoff, but checking here
	// keeps closed-period movements from ever reaching the stock tables.
	if s.guard != nil {
		if err := s.guard.EnsureOpen(ctx, in.ChannelID, in.OccurredAt); err != nil {
			return MovementResult{}, err
		}
	}

	var result MovementResult
	err := s.withAllocationLock(ctx, in, func(ctx context.Context) error {
		var err error
		switch in.Type {
		case MovementReceipt:
			result, err = s.recordReceipt(ctx, in)
		case MovementIssue:
			result, err = s.recordIssue(ctx, in, accounts.CodeCOGS)
		case MovementWriteOff:
			result, err = s.recordIssue(ctx, in, accounts.CodeExpenses)
		default:
			err = ErrInvalidMovement
		}
		return err
	})
	if errors.Is(err, ErrSourceConflict) {
		existing, findErr := s.repo.FindMovementsBySource(ctx, in.ChannelID, in.SourceType, in.SourceID)
		if findErr != nil {
			return MovementResult{}, findErr
		}
		return s.replay(ctx, in, existing)
	}
	if err != nil {
		return MovementResult{}, err
	}
	if s.recorder != nil {
		s.recorder.MovementRecorded(string(in.Type))
	}
	s.logger.Info("stock movement recorded",
		slog.Int64("channel_id", in.ChannelID),
		slog.Int64("variant_id", in.VariantID),
		slog.String("type", string(in.Type)),
		slog.String("quantity", in.Quantity.String()),
		slog.String("cost_total", result.CostTotal.String()))
	return result, nil
}

// withAllocationLock serialises movements per (channel, location,
// variant) and retries when row locking still collides.
func (s *Service) withAllocationLock(ctx context.Context, in MovementInput, fn func(context.Context) error) error {
	key := shared.AllocationLockKey(in.ChannelID, in.LocationID, in.VariantID)
	var err error
	for attempt := 0; attempt < allocationRetries; attempt++ {
		if s.locker != nil {
			err = s.locker.WithLock(ctx, key, fn)
		} else {
			err = fn(ctx)
		}
		if !errors.Is(err, ErrConcurrentAllocation) && !errors.Is(err, shared.ErrLockBusy) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
	return err
}

func (s *Service) recordReceipt(ctx context.Context, in MovementInput) (MovementResult, error) {
	var result MovementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.InsertBatch(ctx, Batch{
			ChannelID:         in.ChannelID,
			LocationID:        in.LocationID,
			VariantID:         in.VariantID,
			Reference:         in.Reference,
			QuantityReceived:  in.Quantity,
			QuantityRemaining: in.Quantity,
			UnitCost:          in.UnitCost,
			ExpiryDate:        in.ExpiryDate,
		})
		if err != nil {
			return err
		}
		movement, err := tx.InsertMovement(ctx, Movement{
			ChannelID:  in.ChannelID,
			LocationID: in.LocationID,
			VariantID:  in.VariantID,
			BatchID:    batch.ID,
			SourceType: in.SourceType,
			SourceID:   in.SourceID,
			Type:       MovementReceipt,
			Quantity:   in.Quantity,
			UnitCost:   in.UnitCost,
			CostTotal:  in.Quantity.Mul(in.UnitCost),
			OccurredAt: in.OccurredAt,
			CreatedBy:  in.ActorID,
		})
		if err != nil {
			return err
		}
		result = MovementResult{Movements: []Movement{movement}, CostTotal: movement.CostTotal}
		return nil
	})
	if err != nil {
		return MovementResult{}, err
	}
	if err := s.postReceipt(ctx, in, result.CostTotal); err != nil {
		return MovementResult{}, err
	}
	return result, nil
}

// recordIssue drains open batches oldest first. The cost account
// receives the consumed value: cost of goods sold for sales issues,
// operating expenses for write-offs.
func (s *Service) recordIssue(ctx context.Context, in MovementInput, costAccount string) (MovementResult, error) {
	var result MovementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batches, err := tx.LockOpenBatches(ctx, in.ChannelID, in.LocationID, in.VariantID)
		if err != nil {
			return err
		}
		// Sales never consume expired stock; write-offs may, that is how
		// expired batches leave the books.
		if in.Type == MovementIssue {
			now := s.now().UTC()
			usable := batches[:0]
			for _, b := range batches {
				if b.ExpiryDate != nil && b.ExpiryDate.Before(now) {
					continue
				}
				usable = append(usable, b)
			}
			batches = usable
		}
		available := decimal.Zero
		for _, b := range batches {
			available = available.Add(b.QuantityRemaining)
		}
		if available.LessThan(in.Quantity) {
			return &InsufficientStockError{VariantID: in.VariantID, Requested: in.Quantity, Available: available}
		}

		remaining := in.Quantity
		total := decimal.Zero
		var movements []Movement
		for _, batch := range batches {
			if remaining.IsZero() {
				break
			}
			take := decimal.Min(remaining, batch.QuantityRemaining)
			if err := tx.DecrementBatch(ctx, batch.ID, take); err != nil {
				return err
			}
			cost := take.Mul(batch.UnitCost)
			movement, err := tx.InsertMovement(ctx, Movement{
				ChannelID:  in.ChannelID,
				LocationID: in.LocationID,
				VariantID:  in.VariantID,
				BatchID:    batch.ID,
				SourceType: in.SourceType,
				SourceID:   in.SourceID,
				Type:       in.Type,
				Quantity:   take,
				UnitCost:   batch.UnitCost,
				CostTotal:  cost,
				OccurredAt: in.OccurredAt,
				CreatedBy:  in.ActorID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
			total = total.Add(cost)
			remaining = remaining.Sub(take)
		}
		result = MovementResult{Movements: movements, CostTotal: total}
		return nil
	})
	if err != nil {
		return MovementResult{}, err
	}
	if err := s.postIssue(ctx, in, costAccount, result.CostTotal); err != nil {
		return MovementResult{}, err
	}
	return result, nil
}

func (s *Service) postReceipt(ctx context.Context, in MovementInput, costTotal decimal.Decimal) error {
	if s.poster == nil || costTotal.IsZero() {
		return nil
	}
	_, err := s.poster.Post(ctx, posting.Input{
		ChannelID:  in.ChannelID,
		SourceType: "INVENTORY_" + string(MovementReceipt),
		SourceID:   in.SourceID,
		EntryDate:  in.OccurredAt,
		Memo:       fmt.Sprintf("stock receipt variant %d", in.VariantID),
		PostedBy:   in.ActorID,
		Lines: []posting.LineInput{
			{AccountCode: accounts.CodeInventory, Debit: costTotal},
			{AccountCode: accounts.CodeAccountsPayable, Credit: costTotal},
		},
	})
	return err
}

func (s *Service) postIssue(ctx context.Context, in MovementInput, costAccount string, costTotal decimal.Decimal) error {
	if s.poster == nil || costTotal.IsZero() {
		return nil
	}
	_, err := s.poster.Post(ctx, posting.Input{
		ChannelID:  in.ChannelID,
		SourceType: "INVENTORY_" + string(in.Type),
		SourceID:   in.SourceID,
		EntryDate:  in.OccurredAt,
		Memo:       fmt.Sprintf("stock %s variant %d", in.Type, in.VariantID),
		PostedBy:   in.ActorID,
		Lines: []posting.LineInput{
			{AccountCode: costAccount, Debit: costTotal},
			{AccountCode: accounts.CodeInventory, Credit: costTotal},
		},
	})
	return err
}

// MovementsBySource returns the movements recorded for a source event.
func (s *Service) MovementsBySource(ctx context.Context, channelID int64, sourceType, sourceID string) ([]Movement, error) {
	return s.repo.FindMovementsBySource(ctx, channelID, sourceType, sourceID)
}

// StockOnHand sums remaining batch quantity for a variant at a location.
func (s *Service) StockOnHand(ctx context.Context, channelID, locationID, variantID int64) (decimal.Decimal, error) {
	return s.repo.StockOnHand(ctx, channelID, locationID, variantID)
}

// Valuation snapshots remaining batch quantity at batch cost per variant.
func (s *Service) Valuation(ctx context.Context, channelID int64) (ValuationSnapshot, error) {
	lines, err := s.repo.Valuation(ctx, channelID)
	if err != nil {
		return ValuationSnapshot{}, err
	}
	snapshot := ValuationSnapshot{ChannelID: channelID, TakenAt: s.now().UTC(), Lines: lines, TotalValue: decimal.Zero}
	for _, line := range lines {
		snapshot.TotalValue = snapshot.TotalValue.Add(line.Value)
	}
	return snapshot, nil
}

// Expiring lists batches with stock left that expire within the window.
func (s *Service) Expiring(ctx context.Context, channelID int64, within time.Duration) ([]Batch, error) {
	return s.repo.ExpiringBatches(ctx, channelID, s.now().UTC().Add(within))
}

// replay returns the stored movements for a source and re-runs the
// ledger posting. Posting is idempotent by source, so a posting that
// failed after its movements committed converges on retry instead of
// leaving stock without a matching entry.
func (s *Service) replay(ctx context.Context, in MovementInput, movements []Movement) (MovementResult, error) {
	result := replayResult(movements)
	if len(movements) == 0 {
		return result, nil
	}
	in.OccurredAt = movements[0].OccurredAt
	in.Type = movements[0].Type
	var err error
	switch movements[0].Type {
	case MovementReceipt:
		err = s.postReceipt(ctx, in, result.CostTotal)
	case MovementIssue:
		err = s.postIssue(ctx, in, accounts.CodeCOGS, result.CostTotal)
	case MovementWriteOff:
		err = s.postIssue(ctx, in, accounts.CodeExpenses, result.CostTotal)
	}
	if err != nil {
		return MovementResult{}, err
	}
	return result, nil
}

func replayResult(movements []Movement) MovementResult {
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(m.CostTotal)
	}
	return MovementResult{Movements: movements, CostTotal: total, Idempotent: true}
}
