package recon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/ledger/shared"
	"github.com/dukapos/dukapos/internal/paymethod"
)

// LedgerReader supplies posted totals for reconciliation windows.
type LedgerReader interface {
	WindowBalance(ctx context.Context, channelID int64, accountCode string, start, end time.Time) (decimal.Decimal, error)
	HasPostings(ctx context.Context, channelID int64, accountCode string, start, end time.Time) (bool, error)
}

// MethodRegistry lists the payment methods configured for a channel.
type MethodRegistry interface {
	ListActive(ctx context.Context, channelID int64) ([]paymethod.Method, error)
}

// SessionGuard reports cashier sessions that would block a period close.
type SessionGuard interface {
	// UnresolvedSessions counts sessions opened inside the window that
	// are still open, plus counts awaiting variance review.
	UnresolvedSessions(ctx context.Context, channelID int64, start, end time.Time) (open, unreviewed int, err error)
}

// Service manages reconciliations and gates period close on them.
type Service struct {
	repo     Repository
	ledger   LedgerReader
	methods  MethodRegistry
	sessions SessionGuard
	logger   *slog.Logger
}

func NewService(repo Repository, ledger LedgerReader, methods MethodRegistry, sessions SessionGuard, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ledger, methods: methods, sessions: sessions, logger: logger}
}

// Generate opens a draft reconciliation with the ledger's expected total
// for the window already filled in.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (Reconciliation, error) {
	if err := in.Validate(); err != nil {
		return Reconciliation{}, err
	}
	expected, err := s.ledger.WindowBalance(ctx, in.ChannelID, in.AccountCode, in.RangeStart, in.RangeEnd)
	if err != nil {
		return Reconciliation{}, err
	}
	rec, err := s.repo.Insert(ctx, Reconciliation{
		ChannelID:     in.ChannelID,
		AccountCode:   in.AccountCode,
		RangeStart:    in.RangeStart,
		RangeEnd:      in.RangeEnd,
		Status:        StatusDraft,
		ExpectedTotal: expected,
		CreatedBy:     in.CreatedBy,
	})
	if err != nil {
		return Reconciliation{}, err
	}
	s.logger.Info("reconciliation drafted",
		slog.Int64("channel_id", in.ChannelID),
		slog.String("account", in.AccountCode),
		slog.String("expected", expected.String()))
	return rec, nil
}

// Verify records the externally confirmed total against a draft and
// computes the variance. Verified rows are immutable.
func (s *Service) Verify(ctx context.Context, id int64, in VerifyInput) (Reconciliation, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Reconciliation{}, err
	}
	if rec.Status != StatusDraft {
		return Reconciliation{}, shared.ErrReconciliationVerified
	}
	actual := in.ActualTotal
	variance := actual.Sub(rec.ExpectedTotal)
	now := time.Now().UTC()
	rec.Status = StatusVerified
	rec.ActualTotal = &actual
	rec.Variance = &variance
	rec.Note = in.Note
	rec.VerifiedBy = &in.VerifiedBy
	rec.VerifiedAt = &now
	if err := s.repo.MarkVerified(ctx, rec); err != nil {
		return Reconciliation{}, err
	}
	if !variance.IsZero() {
		s.logger.Warn("reconciliation verified with variance",
			slog.Int64("reconciliation_id", rec.ID),
			slog.String("account", rec.AccountCode),
			slog.String("variance", variance.String()))
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Reconciliation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, channelID int64, limit, offset int) ([]Reconciliation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByChannel(ctx, channelID, limit, offset)
}

// ValidateClose returns the reasons a period close over [start, end]
// must be refused. An empty slice means the period can close.
//
// A payment method blocks the close when it requires reconciliation,
// saw postings inside the window, and no verified reconciliation covers
// the window for its ledger account. Open or unreviewed cashier
// sessions inside the window block only when the channel runs a
// cashier-controlled method that requires reconciliation; a channel
// with purely statement-matched tenders has no drawer to resolve.
func (s *Service) ValidateClose(ctx context.Context, channelID int64, start, end time.Time) ([]string, error) {
	var blocking []string

	methods, err := s.methods.ListActive(ctx, channelID)
	if err != nil {
		return nil, err
	}
	cashierControlled := false
	for _, m := range methods {
		if m.IsCashierControlled && m.RequiresReconciliation && m.ReconciliationType != paymethod.ReconNone {
			cashierControlled = true
			break
		}
	}
	if cashierControlled {
		open, unreviewed, err := s.sessions.UnresolvedSessions(ctx, channelID, start, end)
		if err != nil {
			return nil, err
		}
		if open > 0 {
			blocking = append(blocking, fmt.Sprintf("%d cashier session(s) still open in the period", open))
		}
		if unreviewed > 0 {
			blocking = append(blocking, fmt.Sprintf("%d cashier session(s) awaiting variance review", unreviewed))
		}
	}

	for _, m := range methods {
		if !m.RequiresReconciliation || m.ReconciliationType == paymethod.ReconNone {
			continue
		}
		active, err := s.ledger.HasPostings(ctx, channelID, m.LedgerAccountCode, start, end)
		if err != nil {
			return nil, err
		}
		if !active {
			continue
		}
		covered, err := s.repo.HasVerifiedCovering(ctx, channelID, m.LedgerAccountCode, start, end)
		if err != nil {
			return nil, err
		}
		if !covered {
			blocking = append(blocking, fmt.Sprintf("%s (%s): no verified reconciliation covering %s to %s",
				m.Name, m.LedgerAccountCode, start.Format("2006-01-02"), end.Format("2006-01-02")))
		}
	}
	return blocking, nil
}
