package cashier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/ledger/accounts"
	"github.com/dukapos/dukapos/internal/ledger/posting"
	"github.com/dukapos/dukapos/internal/paymethod"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	sessions      map[string]*Session
	counts        map[int64]*DrawerCount
	verifications map[string]*MpesaVerification
	nextID        int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		sessions:      make(map[string]*Session),
		counts:        make(map[int64]*DrawerCount),
		verifications: make(map[string]*MpesaVerification),
		nextID:        1,
	}
}

func (m *mockRepository) InsertSession(ctx context.Context, s Session) (Session, error) {
	for _, existing := range m.sessions {
		if existing.ChannelID == s.ChannelID && existing.RegisterID == s.RegisterID &&
			existing.Status == SessionOpen {
			return Session{}, ErrSessionAlreadyOpen
		}
	}
	s.OpenedAt = time.Now()
	stored := s
	m.sessions[s.ID] = &stored
	return s, nil
}

func (m *mockRepository) GetSession(ctx context.Context, id string) (Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *s, nil
}

func (m *mockRepository) OpenSessionForRegister(ctx context.Context, channelID int64, registerID string) (Session, bool, error) {
	for _, s := range m.sessions {
		if s.ChannelID == channelID && s.RegisterID == registerID && s.Status == SessionOpen {
			return *s, true, nil
		}
	}
	return Session{}, false, nil
}

func (m *mockRepository) CloseSession(ctx context.Context, id string, closedAt time.Time) error {
	s, ok := m.sessions[id]
	if !ok || s.Status != SessionOpen {
		return ErrSessionClosed
	}
	s.Status = SessionClosed
	s.ClosedAt = &closedAt
	return nil
}

func (m *mockRepository) ListSessions(ctx context.Context, channelID int64, filter ListFilter) ([]Session, error) {
	var out []Session
	for _, s := range m.sessions {
		if s.ChannelID != channelID {
			continue
		}
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		if filter.From != nil && s.OpenedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && s.OpenedAt.After(*filter.To) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockRepository) CountSessionsOpenedBetween(ctx context.Context, channelID int64, start, end time.Time, status SessionStatus) (int, error) {
	count := 0
	for _, s := range m.sessions {
		if s.ChannelID == channelID && s.Status == status &&
			!s.OpenedAt.Before(start) && !s.OpenedAt.After(end) {
			count++
		}
	}
	return count, nil
}

func (m *mockRepository) InsertCount(ctx context.Context, c DrawerCount) (DrawerCount, error) {
	for _, existing := range m.counts {
		if existing.SessionID == c.SessionID && existing.Type == c.Type {
			return DrawerCount{}, ErrCountAlreadySubmitted
		}
	}
	c.ID = m.nextID
	c.CountedAt = time.Now()
	m.nextID++
	stored := c
	m.counts[c.ID] = &stored
	return c, nil
}

func (m *mockRepository) GetCount(ctx context.Context, id int64) (DrawerCount, error) {
	c, ok := m.counts[id]
	if !ok {
		return DrawerCount{}, ErrCountNotFound
	}
	return *c, nil
}

func (m *mockRepository) CountForSession(ctx context.Context, sessionID string, countType CountType) (DrawerCount, bool, error) {
	for _, c := range m.counts {
		if c.SessionID == sessionID && c.Type == countType {
			return *c, true, nil
		}
	}
	return DrawerCount{}, false, nil
}

func (m *mockRepository) MarkCountReviewed(ctx context.Context, c DrawerCount) error {
	stored, ok := m.counts[c.ID]
	if !ok || stored.Status != CountPendingReview {
		return ErrCountNotFound
	}
	*stored = c
	return nil
}

func (m *mockRepository) SetCountExplanation(ctx context.Context, id int64, explanation string) error {
	c, ok := m.counts[id]
	if !ok {
		return ErrCountNotFound
	}
	c.Explanation = explanation
	return nil
}

func (m *mockRepository) ListPendingReviews(ctx context.Context, channelID int64) ([]DrawerCount, error) {
	var out []DrawerCount
	for _, c := range m.counts {
		if c.ChannelID == channelID && c.Status == CountPendingReview {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockRepository) CountPendingReviewsBetween(ctx context.Context, channelID int64, start, end time.Time) (int, error) {
	count := 0
	for _, c := range m.counts {
		if c.ChannelID == channelID && c.Status == CountPendingReview {
			count++
		}
	}
	return count, nil
}

func (m *mockRepository) InsertVerification(ctx context.Context, v MpesaVerification) (MpesaVerification, error) {
	v.ID = m.nextID
	v.CreatedAt = time.Now()
	m.nextID++
	stored := v
	m.verifications[v.SessionID] = &stored
	return v, nil
}

func (m *mockRepository) VerificationForSession(ctx context.Context, sessionID string) (MpesaVerification, bool, error) {
	v, ok := m.verifications[sessionID]
	if !ok {
		return MpesaVerification{}, false, nil
	}
	return *v, true, nil
}

// ============================================================================
// MOCK PORTS
// ============================================================================

type mockLedger struct {
	// totals keyed by accountCode:sessionID
	totals map[string]decimal.Decimal
}

func (l *mockLedger) SessionTotal(ctx context.Context, channelID int64, accountCode, sessionID string) (decimal.Decimal, error) {
	return l.totals[accountCode+":"+sessionID], nil
}

type mockPoster struct {
	posted  []posting.Input
	failErr error
}

func (p *mockPoster) Post(ctx context.Context, in posting.Input) (posting.JournalEntry, error) {
	if p.failErr != nil {
		err := p.failErr
		p.failErr = nil
		return posting.JournalEntry{}, err
	}
	p.posted = append(p.posted, in)
	return posting.JournalEntry{ID: int64(len(p.posted))}, nil
}

type mockMethods struct{}

func (mockMethods) ListActive(ctx context.Context, channelID int64) ([]paymethod.Method, error) {
	return []paymethod.Method{
		{Code: "CASH", Name: "Cash", LedgerAccountCode: accounts.CodeCashOnHand,
			ReconciliationType: paymethod.ReconBlindCount, IsCashierControlled: true,
			RequiresReconciliation: true, IsActive: true},
		{Code: "MPESA", Name: "M-Pesa", LedgerAccountCode: accounts.CodeClearingMpesa,
			ReconciliationType: paymethod.ReconTransactionVerification, IsCashierControlled: true,
			RequiresReconciliation: true, IsActive: true},
		{Code: "BANK", Name: "Bank transfer", LedgerAccountCode: accounts.CodeBankMain,
			ReconciliationType: paymethod.ReconStatementMatch,
			RequiresReconciliation: true, IsActive: true},
	}, nil
}

type mockVarianceRecorder struct {
	observed []float64
}

func (r *mockVarianceRecorder) VarianceObserved(amount float64) {
	r.observed = append(r.observed, amount)
}

// ============================================================================
// HELPERS
// ============================================================================

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(ledger *mockLedger) (*Service, *mockRepository, *mockPoster) {
	repo := newMockRepository()
	poster := &mockPoster{}
	svc := NewService(repo, ledger, poster, mockMethods{}, DefaultVarianceThreshold, discardLogger())
	return svc, repo, poster
}

func openSession(t *testing.T, svc *Service) Session {
	t.Helper()
	session, err := svc.Open(context.Background(), OpenInput{
		ChannelID: 1, LocationID: 1, RegisterID: "REG-1",
		CashierUserID: 5, OpeningFloat: dec(200),
	})
	require.NoError(t, err)
	return session
}

// ============================================================================
// TESTS
// ============================================================================

func TestOpenSession(t *testing.T) {
	svc, _, _ := newTestService(&mockLedger{})

	session := openSession(t, svc)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, SessionOpen, session.Status)
	assert.True(t, session.OpeningFloat.Equal(dec(200)))
}

func TestOpenSecondSessionOnRegisterRejected(t *testing.T) {
	svc, _, _ := newTestService(&mockLedger{})

	openSession(t, svc)
	_, err := svc.Open(context.Background(), OpenInput{
		ChannelID: 1, LocationID: 1, RegisterID: "REG-1", CashierUserID: 6,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionAlreadyOpen))

	// A different register is fine.
	_, err = svc.Open(context.Background(), OpenInput{
		ChannelID: 1, LocationID: 1, RegisterID: "REG-2", CashierUserID: 6,
	})
	require.NoError(t, err)
}

func TestBlindCountWithinTolerance(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, poster := newTestService(ledger)
	session := openSession(t, svc)

	// 800 in posted cash, float 200: expected 1000. Declared 1020.
	ledger.totals[accounts.CodeCashOnHand+":"+session.ID] = dec(800)

	count, err := svc.SubmitBlindCount(context.Background(), session.ID, BlindCountInput{
		DeclaredTotal: dec(1020), CountedBy: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, CountAccepted, count.Status)
	assert.Equal(t, CountClosing, count.Type)
	assert.True(t, count.ExpectedTotal.Equal(dec(1000)))
	assert.True(t, count.Variance.Equal(dec(20)))

	// Overage books Dr CASH_ON_HAND / Cr CASH_SHORT_OVER.
	require.Len(t, poster.posted, 1)
	entry := poster.posted[0]
	assert.Equal(t, "CASH_VARIANCE", entry.SourceType)
	assert.Equal(t, session.ID+":CLOSING", entry.SourceID)
	assert.Equal(t, accounts.CodeCashOnHand, entry.Lines[0].AccountCode)
	assert.True(t, entry.Lines[0].Debit.Equal(dec(20)))
	assert.Equal(t, session.ID, entry.Lines[0].Meta["sessionId"])
}

func TestBlindCountShortageBeyondToleranceParksForReview(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, poster := newTestService(ledger)
	recorder := &mockVarianceRecorder{}
	svc.WithRecorder(recorder)
	session := openSession(t, svc)

	ledger.totals[accounts.CodeCashOnHand+":"+session.ID] = dec(800)

	// Expected 1000, declared 850: short 150, past the 100 tolerance.
	count, err := svc.SubmitBlindCount(context.Background(), session.ID, BlindCountInput{
		DeclaredTotal: dec(850), CountedBy: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, CountPendingReview, count.Status)
	assert.True(t, count.Variance.Equal(dec(-150)))

	// Shortage books Dr CASH_SHORT_OVER / Cr CASH_ON_HAND.
	require.Len(t, poster.posted, 1)
	entry := poster.posted[0]
	assert.Equal(t, accounts.CodeCashShortOver, entry.Lines[0].AccountCode)
	assert.True(t, entry.Lines[0].Debit.Equal(dec(150)))
	assert.Equal(t, accounts.CodeCashOnHand, entry.Lines[1].AccountCode)
	assert.True(t, entry.Lines[1].Credit.Equal(dec(150)))

	require.Len(t, recorder.observed, 1)
	assert.Equal(t, float64(-150), recorder.observed[0])
}

func TestBlindCountExactMatchPostsNothing(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, poster := newTestService(ledger)
	session := openSession(t, svc)

	ledger.totals[accounts.CodeCashOnHand+":"+session.ID] = dec(800)

	count, err := svc.SubmitBlindCount(context.Background(), session.ID, BlindCountInput{
		DeclaredTotal: dec(1000), CountedBy: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, CountAccepted, count.Status)
	assert.True(t, count.Variance.IsZero())
	assert.Empty(t, poster.posted)
}

func TestBlindCountOnlyOnce(t *testing.T) {
	svc, _, _ := newTestService(&mockLedger{})
	session := openSession(t, svc)
	ctx := context.Background()

	_, err := svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{DeclaredTotal: dec(200), CountedBy: 5})
	require.NoError(t, err)

	_, err = svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{DeclaredTotal: dec(210), CountedBy: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCountAlreadySubmitted))
}

func TestBlindCountRetryAfterFailedVariancePosting(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, poster := newTestService(ledger)
	session := openSession(t, svc)
	ctx := context.Background()

	ledger.totals[accounts.CodeCashOnHand+":"+session.ID] = dec(800)
	poster.failErr = errors.New("posting unavailable")

	// Declared 980 against expected 1000: the count row lands but the
	// variance entry never reaches the ledger.
	_, err := svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{DeclaredTotal: dec(980), CountedBy: 5})
	require.Error(t, err)
	require.Empty(t, poster.posted)

	// Resubmitting the same declaration finishes the posting instead of
	// leaving the session stuck behind ErrCountAlreadySubmitted.
	count, err := svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{DeclaredTotal: dec(980), CountedBy: 5})
	require.NoError(t, err)
	assert.True(t, count.Variance.Equal(dec(-20)))
	require.Len(t, poster.posted, 1)
	assert.Equal(t, session.ID+":CLOSING", poster.posted[0].SourceID)

	// A different declaration is still refused.
	_, err = svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{DeclaredTotal: dec(990), CountedBy: 5})
	assert.True(t, errors.Is(err, ErrCountAlreadySubmitted))
}

func TestOpeningCountMeasuredAgainstFloat(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, poster := newTestService(ledger)
	session := openSession(t, svc)

	// Cash already posted must not leak into the opening expectation.
	ledger.totals[accounts.CodeCashOnHand+":"+session.ID] = dec(800)

	count, err := svc.SubmitBlindCount(context.Background(), session.ID, BlindCountInput{
		CountType: CountOpening, DeclaredTotal: dec(200), CountedBy: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, CountOpening, count.Type)
	assert.True(t, count.ExpectedTotal.Equal(dec(200)))
	assert.True(t, count.Variance.IsZero())
	assert.Empty(t, poster.posted)

	// A closing count on the same session is still allowed.
	closing, err := svc.SubmitBlindCount(context.Background(), session.ID, BlindCountInput{
		CountType: CountClosing, DeclaredTotal: dec(1000), CountedBy: 5,
	})
	require.NoError(t, err)
	assert.True(t, closing.ExpectedTotal.Equal(dec(1000)))
}

func TestBlindCountRejectsUnknownType(t *testing.T) {
	svc, _, _ := newTestService(&mockLedger{})
	session := openSession(t, svc)

	_, err := svc.SubmitBlindCount(context.Background(), session.ID, BlindCountInput{
		CountType: "MIDDAY", DeclaredTotal: dec(100), CountedBy: 5,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestCloseRequiresCount(t *testing.T) {
	svc, _, _ := newTestService(&mockLedger{})
	session := openSession(t, svc)

	_, err := svc.Close(context.Background(), session.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCountMissing))
}

func TestCloseBlockedUntilVarianceReviewed(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, _ := newTestService(ledger)
	session := openSession(t, svc)
	ctx := context.Background()

	ledger.totals[accounts.CodeCashOnHand+":"+session.ID] = dec(800)
	count, err := svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{
		DeclaredTotal: dec(700), CountedBy: 5,
	})
	require.NoError(t, err)
	require.Equal(t, CountPendingReview, count.Status)

	_, err = svc.Close(ctx, session.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVarianceUnreviewed))

	reviewed, err := svc.ReviewVariance(ctx, count.ID, 99, "till raid for change")
	require.NoError(t, err)
	assert.Equal(t, CountReviewed, reviewed.Status)

	summary, err := svc.Close(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionClosed, summary.Session.Status)
}

func TestCloseTwiceRejected(t *testing.T) {
	svc, _, _ := newTestService(&mockLedger{})
	session := openSession(t, svc)
	ctx := context.Background()

	_, err := svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{DeclaredTotal: dec(200), CountedBy: 5})
	require.NoError(t, err)
	_, err = svc.Close(ctx, session.ID)
	require.NoError(t, err)

	_, err = svc.Close(ctx, session.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestReviewVarianceOnAcceptedCountRejected(t *testing.T) {
	svc, _, _ := newTestService(&mockLedger{})
	session := openSession(t, svc)
	ctx := context.Background()

	count, err := svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{DeclaredTotal: dec(200), CountedBy: 5})
	require.NoError(t, err)
	require.Equal(t, CountAccepted, count.Status)

	_, err = svc.ReviewVariance(ctx, count.ID, 99, "")
	require.Error(t, err)
}

func TestMpesaVerification(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, _ := newTestService(ledger)
	session := openSession(t, svc)

	ledger.totals[accounts.CodeClearingMpesa+":"+session.ID] = dec(3400)

	verification, err := svc.SubmitMpesaVerification(context.Background(), session.ID, MpesaVerificationInput{
		VerifiedTotal:         dec(3300),
		TransactionIDs:        []string{"QX12AB34", "QX12AB35", "QX12AB36"},
		AllConfirmed:          false,
		FlaggedTransactionIDs: []string{"QX12AB34"},
		VerifiedBy:            9,
	})
	require.NoError(t, err)

	assert.True(t, verification.ExpectedTotal.Equal(dec(3400)))
	assert.True(t, verification.Variance.Equal(dec(-100)))
	assert.Equal(t, 3, verification.TransactionCount)
	assert.False(t, verification.AllConfirmed)
	assert.Equal(t, []string{"QX12AB34"}, verification.FlaggedTransactionIDs)
}

func TestMpesaVerificationAllConfirmed(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, _ := newTestService(ledger)
	session := openSession(t, svc)

	ledger.totals[accounts.CodeClearingMpesa+":"+session.ID] = dec(3400)

	verification, err := svc.SubmitMpesaVerification(context.Background(), session.ID, MpesaVerificationInput{
		VerifiedTotal:  dec(3400),
		TransactionIDs: []string{"QX12AB34", "QX12AB35"},
		AllConfirmed:   true,
		VerifiedBy:     9,
	})
	require.NoError(t, err)

	assert.True(t, verification.Variance.IsZero())
	assert.Equal(t, 2, verification.TransactionCount)
	assert.True(t, verification.AllConfirmed)
}

func TestSpotCountMeasuredAgainstLedger(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, _ := newTestService(ledger)
	session := openSession(t, svc)

	ledger.totals[accounts.CodeCashOnHand+":"+session.ID] = dec(300)

	count, err := svc.SubmitBlindCount(context.Background(), session.ID, BlindCountInput{
		CountType: CountSpot, DeclaredTotal: dec(480), CountedBy: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, CountSpot, count.Type)
	assert.True(t, count.ExpectedTotal.Equal(dec(500)))
	assert.True(t, count.Variance.Equal(dec(-20)))

	// A spot count does not satisfy the close requirement.
	_, err = svc.Close(context.Background(), session.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCountMissing))
}

func TestSummaryAggregatesMethods(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, _ := newTestService(ledger)
	session := openSession(t, svc)
	ctx := context.Background()

	ledger.totals[accounts.CodeCashOnHand+":"+session.ID] = dec(800)
	ledger.totals[accounts.CodeClearingMpesa+":"+session.ID] = dec(3400)

	_, err := svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{DeclaredTotal: dec(1000), CountedBy: 5})
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, session.ID)
	require.NoError(t, err)

	require.Len(t, summary.MethodTotals, 2)
	assert.True(t, summary.TotalCollected.Equal(dec(4200)))
	require.NotNil(t, summary.DrawerCount)
	assert.Nil(t, summary.Verification)
}

func TestSummaryExcludesNonCashierTenders(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, _ := newTestService(ledger)
	session := openSession(t, svc)

	// Bank transfers settle outside the register, so their postings
	// must not inflate what the cashier is accountable for.
	ledger.totals[accounts.CodeCashOnHand+":"+session.ID] = dec(800)
	ledger.totals[accounts.CodeBankMain+":"+session.ID] = dec(9000)

	summary, err := svc.Summary(context.Background(), session.ID)
	require.NoError(t, err)

	require.Len(t, summary.MethodTotals, 2)
	for _, mt := range summary.MethodTotals {
		assert.NotEqual(t, "BANK", mt.MethodCode)
	}
	assert.True(t, summary.TotalCollected.Equal(dec(800)))
}

func TestCloseBlockedByOpeningCountPendingReview(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, _ := newTestService(ledger)
	session := openSession(t, svc)
	ctx := context.Background()

	// Opening declaration 500 against a 200 float: short past tolerance.
	opening, err := svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{
		CountType: CountOpening, DeclaredTotal: dec(500), CountedBy: 5,
	})
	require.NoError(t, err)
	require.Equal(t, CountPendingReview, opening.Status)

	_, err = svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{DeclaredTotal: dec(200), CountedBy: 5})
	require.NoError(t, err)

	_, err = svc.Close(ctx, session.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVarianceUnreviewed))
}

func TestListSessionsFiltersByStatus(t *testing.T) {
	svc, _, _ := newTestService(&mockLedger{})
	ctx := context.Background()

	first := openSession(t, svc)
	_, err := svc.SubmitBlindCount(ctx, first.ID, BlindCountInput{DeclaredTotal: dec(200), CountedBy: 5})
	require.NoError(t, err)
	_, err = svc.Close(ctx, first.ID)
	require.NoError(t, err)

	second, err := svc.Open(ctx, OpenInput{
		ChannelID: 1, LocationID: 1, RegisterID: "REG-2", CashierUserID: 6, OpeningFloat: dec(100),
	})
	require.NoError(t, err)

	open := SessionOpen
	sessions, err := svc.List(ctx, 1, ListFilter{Status: &open})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, second.ID, sessions[0].ID)

	sessions, err = svc.List(ctx, 1, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestUnresolvedSessions(t *testing.T) {
	ledger := &mockLedger{totals: map[string]decimal.Decimal{}}
	svc, _, _ := newTestService(ledger)
	ctx := context.Background()

	session := openSession(t, svc)
	ledger.totals[accounts.CodeCashOnHand+":"+session.ID] = dec(800)
	_, err := svc.SubmitBlindCount(ctx, session.ID, BlindCountInput{
		DeclaredTotal: dec(500), CountedBy: 5,
	})
	require.NoError(t, err)

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	open, unreviewed, err := svc.UnresolvedSessions(ctx, 1, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, unreviewed)
}
