package periods

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukapos/dukapos/internal/ledger/shared"
	internalshared "github.com/dukapos/dukapos/internal/shared"
)

// CloseValidator checks reconciliation completeness for a close window.
// It returns the blocking payment methods / sessions, empty when clear.
type CloseValidator interface {
	ValidateClose(ctx context.Context, channelID int64, start, end time.Time) ([]string, error)
}

// Locker serialises the close critical section across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Service gates ledger and inventory writes by date and orchestrates
// period close.
type Service struct {
	repo      Repository
	validator CloseValidator
	locker    Locker
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the period service.
func NewService(repo Repository, validator CloseValidator, locker Locker, logger *slog.Logger) *Service {
	return &Service{repo: repo, validator: validator, locker: locker, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// EnsureOpen rejects dates at or before the channel's posting cutoff.
func (s *Service) EnsureOpen(ctx context.Context, channelID int64, entryDate time.Time) error {
	lock, found, err := s.repo.GetLock(ctx, channelID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	// Journal entries carry a DATE, so the cutoff compares calendar
	// days. An afternoon timestamp on the lock-end day is still inside
	// the closed range.
	if !dateOnly(entryDate).After(lock.LockEndDate) {
		return shared.ErrPeriodClosed
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Close validates reconciliation completeness and closes the period.
// Subsequent postings dated inside the range fail ErrPeriodClosed.
func (s *Service) Close(ctx context.Context, in CloseInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var period Period
	err := s.withCloseLock(ctx, in.ChannelID, func(ctx context.Context) error {
		now := s.now().UTC()
		if in.EndDate.After(endOfDay(now)) {
			return shared.ErrPeriodEndInFuture
		}
		last, found, err := s.repo.LastClosed(ctx, in.ChannelID)
		if err != nil {
			return err
		}
		if found && !in.EndDate.After(last.EndDate) {
			return shared.ErrPeriodNotSequential
		}
		if s.validator != nil {
			blocking, err := s.validator.ValidateClose(ctx, in.ChannelID, in.StartDate, in.EndDate)
			if err != nil {
				return err
			}
			if len(blocking) > 0 {
				return &UnreconciledError{Blocking: blocking}
			}
		}
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			p, err := tx.InsertClosedPeriod(ctx, in, now)
			if err != nil {
				return err
			}
			if err := tx.UpsertLock(ctx, Lock{
				ChannelID:   in.ChannelID,
				LockEndDate: in.EndDate,
				LockedBy:    in.ActorID,
				LockedAt:    now,
			}); err != nil {
				return err
			}
			period = p
			return nil
		})
	})
	if err != nil {
		return Period{}, err
	}
	if s.logger != nil {
		s.logger.Info("period closed",
			slog.Int64("channel_id", period.ChannelID),
			slog.Time("end_date", period.EndDate),
			slog.Int64("closed_by", in.ActorID))
	}
	return period, nil
}

// List returns the channel's periods, newest first.
func (s *Service) List(ctx context.Context, channelID int64) ([]Period, error) {
	return s.repo.List(ctx, channelID)
}

// LockEnd reports the current posting cutoff, if any.
func (s *Service) LockEnd(ctx context.Context, channelID int64) (time.Time, bool, error) {
	lock, found, err := s.repo.GetLock(ctx, channelID)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	return lock.LockEndDate, true, nil
}

func (s *Service) withCloseLock(ctx context.Context, channelID int64, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, internalshared.PeriodCloseLockKey(channelID), fn)
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
