package cashier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/ledger/accounts"
	"github.com/dukapos/dukapos/internal/ledger/posting"
	"github.com/dukapos/dukapos/internal/paymethod"
)

// LedgerReader reads session-scoped totals out of the posted ledger.
type LedgerReader interface {
	SessionTotal(ctx context.Context, channelID int64, accountCode, sessionID string) (decimal.Decimal, error)
}

// LedgerPoster posts variance entries produced at count time.
type LedgerPoster interface {
	Post(ctx context.Context, in posting.Input) (posting.JournalEntry, error)
}

// MethodRegistry lists the channel's payment methods for summaries.
type MethodRegistry interface {
	ListActive(ctx context.Context, channelID int64) ([]paymethod.Method, error)
}

// VarianceRecorder observes count variances, e.g. for metrics.
type VarianceRecorder interface {
	VarianceObserved(amount float64)
}

// DefaultVarianceThreshold is the tolerance inside which a drawer count
// is accepted without supervisor review, in minor currency units.
var DefaultVarianceThreshold = decimal.NewFromInt(100)

// Service runs cashier sessions: open, blind count, variance review,
// processor verification, close.
type Service struct {
	repo      Repository
	ledger    LedgerReader
	poster    LedgerPoster
	methods   MethodRegistry
	threshold decimal.Decimal
	recorder  VarianceRecorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, ledger LedgerReader, poster LedgerPoster, methods MethodRegistry, threshold decimal.Decimal, logger *slog.Logger) *Service {
	if threshold.IsZero() {
		threshold = DefaultVarianceThreshold
	}
	return &Service{
		repo: repo, ledger: ledger, poster: poster, methods: methods,
		threshold: threshold, logger: logger, now: time.Now,
	}
}

// WithRecorder attaches a variance observer.
func (s *Service) WithRecorder(rec VarianceRecorder) *Service {
	s.recorder = rec
	return s
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Open starts a session on a register. A register carries at most one
// open session per channel.
func (s *Service) Open(ctx context.Context, in OpenInput) (Session, error) {
	if err := in.Validate(); err != nil {
		return Session{}, err
	}
	if _, found, err := s.repo.OpenSessionForRegister(ctx, in.ChannelID, in.RegisterID); err != nil {
		return Session{}, err
	} else if found {
		return Session{}, ErrSessionAlreadyOpen
	}
	session, err := s.repo.InsertSession(ctx, Session{
		ID:            uuid.NewString(),
		ChannelID:     in.ChannelID,
		LocationID:    in.LocationID,
		RegisterID:    in.RegisterID,
		CashierUserID: in.CashierUserID,
		OpeningFloat:  in.OpeningFloat,
		Status:        SessionOpen,
	})
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("cashier session opened",
		slog.String("session_id", session.ID),
		slog.Int64("channel_id", session.ChannelID),
		slog.String("register_id", session.RegisterID))
	return session, nil
}

func (s *Service) Get(ctx context.Context, sessionID string) (Session, error) {
	return s.repo.GetSession(ctx, sessionID)
}

// List returns the channel's sessions, newest first, optionally narrowed
// by status and open-time window.
func (s *Service) List(ctx context.Context, channelID int64, filter ListFilter) ([]Session, error) {
	return s.repo.ListSessions(ctx, channelID, filter)
}

// ExpectedCash is the drawer total the ledger predicts: opening float
// plus everything posted to the cash account under this session.
func (s *Service) ExpectedCash(ctx context.Context, session Session) (decimal.Decimal, error) {
	posted, err := s.ledger.SessionTotal(ctx, session.ChannelID, accounts.CodeCashOnHand, session.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return session.OpeningFloat.Add(posted), nil
}

// SubmitBlindCount records the cashier's declared drawer total against
// the ledger expectation. The declared figure is captured before the
// expectation is revealed. An opening count is measured against the
// float alone; a closing count against float plus session postings. A
// variance outside the tolerance parks the count for supervisor review;
// any non-zero variance posts to the cash short/over account so the
// books match the drawer. Resubmitting an identical declaration returns
// the stored count; a different declaration is refused.
func (s *Service) SubmitBlindCount(ctx context.Context, sessionID string, in BlindCountInput) (DrawerCount, error) {
	if in.DeclaredTotal.IsNegative() {
		return DrawerCount{}, ErrInvalidInput
	}
	countType := in.CountType
	if countType == "" {
		countType = CountClosing
	}
	if countType != CountOpening && countType != CountClosing && countType != CountSpot {
		return DrawerCount{}, fmt.Errorf("%w: count type %q", ErrInvalidInput, in.CountType)
	}
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return DrawerCount{}, err
	}
	if session.Status != SessionOpen {
		return DrawerCount{}, ErrSessionClosed
	}
	if existing, found, err := s.repo.CountForSession(ctx, sessionID, countType); err != nil {
		return DrawerCount{}, err
	} else if found {
		if !existing.DeclaredTotal.Equal(in.DeclaredTotal) {
			return DrawerCount{}, ErrCountAlreadySubmitted
		}
		// Same declaration again: the variance posting is idempotent by
		// (session, count type), so re-running it finishes an attempt
		// that failed after the count row was stored.
		if err := s.postVariance(ctx, session, countType, existing.Variance, in.CountedBy); err != nil {
			return DrawerCount{}, err
		}
		return existing, nil
	}

	expected := session.OpeningFloat
	if countType != CountOpening {
		expected, err = s.ExpectedCash(ctx, session)
		if err != nil {
			return DrawerCount{}, err
		}
	}
	variance := in.DeclaredTotal.Sub(expected)
	status := CountAccepted
	if variance.Abs().GreaterThan(s.threshold) {
		status = CountPendingReview
	}
	count, err := s.repo.InsertCount(ctx, DrawerCount{
		SessionID:     sessionID,
		ChannelID:     session.ChannelID,
		Type:          countType,
		DeclaredTotal: in.DeclaredTotal,
		ExpectedTotal: expected,
		Variance:      variance,
		Status:        status,
		CountedBy:     in.CountedBy,
	})
	if err != nil {
		return DrawerCount{}, err
	}
	if err := s.postVariance(ctx, session, countType, variance, in.CountedBy); err != nil {
		return DrawerCount{}, err
	}
	if s.recorder != nil && !variance.IsZero() {
		f, _ := variance.Float64()
		s.recorder.VarianceObserved(f)
	}
	level := slog.LevelInfo
	if status == CountPendingReview {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "drawer count submitted",
		slog.String("session_id", sessionID),
		slog.String("variance", variance.String()),
		slog.String("status", string(status)))
	return count, nil
}

// postVariance books the difference between drawer and ledger. A
// shortage credits cash; an overage debits it. The offset is the cash
// short/over expense account either way.
func (s *Service) postVariance(ctx context.Context, session Session, countType CountType, variance decimal.Decimal, actorID int64) error {
	if s.poster == nil || variance.IsZero() {
		return nil
	}
	meta := map[string]string{"sessionId": session.ID}
	lines := []posting.LineInput{
		{AccountCode: accounts.CodeCashShortOver, Debit: variance.Neg(), Meta: meta},
		{AccountCode: accounts.CodeCashOnHand, Credit: variance.Neg(), Meta: meta},
	}
	if variance.IsPositive() {
		lines = []posting.LineInput{
			{AccountCode: accounts.CodeCashOnHand, Debit: variance, Meta: meta},
			{AccountCode: accounts.CodeCashShortOver, Credit: variance, Meta: meta},
		}
	}
	_, err := s.poster.Post(ctx, posting.Input{
		ChannelID:  session.ChannelID,
		SourceType: "CASH_VARIANCE",
		SourceID:   session.ID + ":" + string(countType),
		EntryDate:  s.now().UTC(),
		Memo:       fmt.Sprintf("drawer variance for session %s", session.ID),
		PostedBy:   actorID,
		Lines:      lines,
	})
	return err
}

// ReviewVariance signs off a count that exceeded the tolerance.
func (s *Service) ReviewVariance(ctx context.Context, countID, reviewerID int64, note string) (DrawerCount, error) {
	count, err := s.repo.GetCount(ctx, countID)
	if err != nil {
		return DrawerCount{}, err
	}
	if count.Status != CountPendingReview {
		return DrawerCount{}, fmt.Errorf("%w: count %d is %s", ErrCountNotFound, countID, count.Status)
	}
	now := s.now().UTC()
	count.Status = CountReviewed
	count.ReviewedBy = &reviewerID
	count.ReviewedAt = &now
	if note != "" {
		count.Explanation = note
	}
	if err := s.repo.MarkCountReviewed(ctx, count); err != nil {
		return DrawerCount{}, err
	}
	s.logger.Info("drawer variance reviewed",
		slog.Int64("count_id", countID),
		slog.Int64("reviewer_id", reviewerID))
	return count, nil
}

// ExplainVariance attaches the cashier's explanation to a count.
func (s *Service) ExplainVariance(ctx context.Context, countID int64, explanation string) error {
	if explanation == "" {
		return ErrInvalidInput
	}
	return s.repo.SetCountExplanation(ctx, countID, explanation)
}

// SubmitMpesaVerification matches the processor-confirmed total for a
// session against the mobile money clearing account.
func (s *Service) SubmitMpesaVerification(ctx context.Context, sessionID string, in MpesaVerificationInput) (MpesaVerification, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return MpesaVerification{}, err
	}
	expected, err := s.ledger.SessionTotal(ctx, session.ChannelID, accounts.CodeClearingMpesa, session.ID)
	if err != nil {
		return MpesaVerification{}, err
	}
	allConfirmed := in.AllConfirmed && len(in.FlaggedTransactionIDs) == 0
	verification, err := s.repo.InsertVerification(ctx, MpesaVerification{
		SessionID:             sessionID,
		ChannelID:             session.ChannelID,
		ExpectedTotal:         expected,
		VerifiedTotal:         in.VerifiedTotal,
		Variance:              in.VerifiedTotal.Sub(expected),
		TransactionCount:      len(in.TransactionIDs),
		AllConfirmed:          allConfirmed,
		FlaggedTransactionIDs: in.FlaggedTransactionIDs,
		VerifiedBy:            in.VerifiedBy,
	})
	if err != nil {
		return MpesaVerification{}, err
	}
	if len(in.FlaggedTransactionIDs) > 0 {
		s.logger.Warn("mpesa verification flagged transactions",
			slog.String("session_id", sessionID),
			slog.Int("flagged", len(in.FlaggedTransactionIDs)))
	}
	return verification, nil
}

// Close ends a session. The closing blind count must exist and any
// out-of-tolerance variance, opening or closing, must be reviewed first.
func (s *Service) Close(ctx context.Context, sessionID string) (Summary, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	if session.Status != SessionOpen {
		return Summary{}, ErrSessionClosed
	}
	count, found, err := s.repo.CountForSession(ctx, sessionID, CountClosing)
	if err != nil {
		return Summary{}, err
	}
	if !found {
		return Summary{}, ErrCountMissing
	}
	if count.Status == CountPendingReview {
		return Summary{}, ErrVarianceUnreviewed
	}
	for _, typ := range []CountType{CountOpening, CountSpot} {
		if other, found, err := s.repo.CountForSession(ctx, sessionID, typ); err != nil {
			return Summary{}, err
		} else if found && other.Status == CountPendingReview {
			return Summary{}, ErrVarianceUnreviewed
		}
	}
	closedAt := s.now().UTC()
	if err := s.repo.CloseSession(ctx, sessionID, closedAt); err != nil {
		return Summary{}, err
	}
	session.Status = SessionClosed
	session.ClosedAt = &closedAt
	s.logger.Info("cashier session closed", slog.String("session_id", sessionID))
	return s.buildSummary(ctx, session)
}

// Summary reports per-method collections and attached checks.
func (s *Service) Summary(ctx context.Context, sessionID string) (Summary, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	return s.buildSummary(ctx, session)
}

func (s *Service) buildSummary(ctx context.Context, session Session) (Summary, error) {
	summary := Summary{Session: session, TotalCollected: decimal.Zero}
	methods, err := s.methods.ListActive(ctx, session.ChannelID)
	if err != nil {
		return Summary{}, err
	}
	for _, m := range methods {
		// The summary covers what the cashier handled. Tenders settled
		// outside the register, bank transfers for instance, are not
		// session funds.
		if !m.IsCashierControlled {
			continue
		}
		total, err := s.ledger.SessionTotal(ctx, session.ChannelID, m.LedgerAccountCode, session.ID)
		if err != nil {
			return Summary{}, err
		}
		summary.MethodTotals = append(summary.MethodTotals, MethodTotal{
			MethodCode:  m.Code,
			MethodName:  m.Name,
			AccountCode: m.LedgerAccountCode,
			Total:       total,
		})
		summary.TotalCollected = summary.TotalCollected.Add(total)
	}
	if opening, found, err := s.repo.CountForSession(ctx, session.ID, CountOpening); err != nil {
		return Summary{}, err
	} else if found {
		summary.OpeningCount = &opening
	}
	if count, found, err := s.repo.CountForSession(ctx, session.ID, CountClosing); err != nil {
		return Summary{}, err
	} else if found {
		summary.DrawerCount = &count
	}
	if verification, found, err := s.repo.VerificationForSession(ctx, session.ID); err != nil {
		return Summary{}, err
	} else if found {
		summary.Verification = &verification
	}
	return summary, nil
}

// PendingVarianceReviews lists counts awaiting a supervisor.
func (s *Service) PendingVarianceReviews(ctx context.Context, channelID int64) ([]DrawerCount, error) {
	return s.repo.ListPendingReviews(ctx, channelID)
}

// UnresolvedSessions reports sessions that would block a period close:
// still-open sessions opened inside the window and counts awaiting
// variance review.
func (s *Service) UnresolvedSessions(ctx context.Context, channelID int64, start, end time.Time) (int, int, error) {
	open, err := s.repo.CountSessionsOpenedBetween(ctx, channelID, start, end, SessionOpen)
	if err != nil {
		return 0, 0, err
	}
	unreviewed, err := s.repo.CountPendingReviewsBetween(ctx, channelID, start, end)
	if err != nil {
		return 0, 0, err
	}
	return open, unreviewed, nil
}
