package periods

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/ledger/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	periods map[int64][]Period
	locks   map[int64]Lock
	nextID  int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		periods: make(map[int64][]Period),
		locks:   make(map[int64]Lock),
		nextID:  1,
	}
}

func (m *mockRepository) GetLock(ctx context.Context, channelID int64) (Lock, bool, error) {
	lock, ok := m.locks[channelID]
	return lock, ok, nil
}

func (m *mockRepository) LastClosed(ctx context.Context, channelID int64) (Period, bool, error) {
	var last Period
	found := false
	for _, p := range m.periods[channelID] {
		if p.Status != PeriodStatusClosed {
			continue
		}
		if !found || p.EndDate.After(last.EndDate) {
			last = p
			found = true
		}
	}
	return last, found, nil
}

func (m *mockRepository) List(ctx context.Context, channelID int64) ([]Period, error) {
	out := append([]Period(nil), m.periods[channelID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.After(out[j].EndDate) })
	return out, nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) InsertClosedPeriod(ctx context.Context, in CloseInput, closedAt time.Time) (Period, error) {
	p := Period{
		ID:        t.mock.nextID,
		ChannelID: in.ChannelID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    PeriodStatusClosed,
		ClosedBy:  &in.ActorID,
		ClosedAt:  &closedAt,
		CreatedAt: closedAt,
	}
	t.mock.nextID++
	t.mock.periods[in.ChannelID] = append(t.mock.periods[in.ChannelID], p)
	return p, nil
}

func (t *mockTxRepo) UpsertLock(ctx context.Context, lock Lock) error {
	existing, ok := t.mock.locks[lock.ChannelID]
	if ok && existing.LockEndDate.After(lock.LockEndDate) {
		lock.LockEndDate = existing.LockEndDate
	}
	t.mock.locks[lock.ChannelID] = lock
	return nil
}

type mockValidator struct {
	blocking []string
}

func (v *mockValidator) ValidateClose(ctx context.Context, channelID int64, start, end time.Time) ([]string, error) {
	return v.blocking, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(validator CloseValidator) (*Service, *mockRepository) {
	repo := newMockRepository()
	svc := NewService(repo, validator, nil, nil)
	svc.WithNow(func() time.Time { return day(2026, 4, 15) })
	return svc, repo
}

// ============================================================================
// TESTS
// ============================================================================

func TestClosePeriod(t *testing.T) {
	svc, repo := newTestService(&mockValidator{})
	ctx := context.Background()

	period, err := svc.Close(ctx, CloseInput{
		ChannelID: 1,
		StartDate: day(2026, 3, 1),
		EndDate:   day(2026, 3, 31),
		ActorID:   9,
	})
	require.NoError(t, err)

	assert.Equal(t, PeriodStatusClosed, period.Status)
	require.NotNil(t, period.ClosedBy)
	assert.Equal(t, int64(9), *period.ClosedBy)

	lock, found, err := repo.GetLock(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, day(2026, 3, 31), lock.LockEndDate)
}

func TestCloseEndDateInFuture(t *testing.T) {
	svc, _ := newTestService(&mockValidator{})

	_, err := svc.Close(context.Background(), CloseInput{
		ChannelID: 1,
		StartDate: day(2026, 4, 1),
		EndDate:   day(2026, 4, 30),
		ActorID:   9,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrPeriodEndInFuture))
}

func TestCloseNotSequential(t *testing.T) {
	svc, _ := newTestService(&mockValidator{})
	ctx := context.Background()

	_, err := svc.Close(ctx, CloseInput{
		ChannelID: 1, StartDate: day(2026, 3, 1), EndDate: day(2026, 3, 31), ActorID: 9,
	})
	require.NoError(t, err)

	// Same end date again.
	_, err = svc.Close(ctx, CloseInput{
		ChannelID: 1, StartDate: day(2026, 3, 1), EndDate: day(2026, 3, 31), ActorID: 9,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrPeriodNotSequential))

	// Earlier end date.
	_, err = svc.Close(ctx, CloseInput{
		ChannelID: 1, StartDate: day(2026, 2, 1), EndDate: day(2026, 2, 28), ActorID: 9,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrPeriodNotSequential))
}

func TestCloseBlockedByValidator(t *testing.T) {
	svc, repo := newTestService(&mockValidator{blocking: []string{
		"MPESA (CLEARING_MPESA): no verified reconciliation covering 2026-03-01 to 2026-03-31",
	}})

	_, err := svc.Close(context.Background(), CloseInput{
		ChannelID: 1, StartDate: day(2026, 3, 1), EndDate: day(2026, 3, 31), ActorID: 9,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnreconciledPeriod))

	var unrecon *UnreconciledError
	require.True(t, errors.As(err, &unrecon))
	assert.Len(t, unrecon.Blocking, 1)

	_, found, _ := repo.GetLock(context.Background(), 1)
	assert.False(t, found)
}

func TestCloseInvalidRange(t *testing.T) {
	svc, _ := newTestService(&mockValidator{})

	_, err := svc.Close(context.Background(), CloseInput{
		ChannelID: 1, StartDate: day(2026, 3, 31), EndDate: day(2026, 3, 1), ActorID: 9,
	})
	require.Error(t, err)
}

func TestEnsureOpenAgainstLock(t *testing.T) {
	svc, _ := newTestService(&mockValidator{})
	ctx := context.Background()

	_, err := svc.Close(ctx, CloseInput{
		ChannelID: 1, StartDate: day(2026, 3, 1), EndDate: day(2026, 3, 31), ActorID: 9,
	})
	require.NoError(t, err)

	err = svc.EnsureOpen(ctx, 1, day(2026, 3, 15))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrPeriodClosed))

	// Boundary date is locked too.
	err = svc.EnsureOpen(ctx, 1, day(2026, 3, 31))
	assert.True(t, errors.Is(err, shared.ErrPeriodClosed))

	require.NoError(t, svc.EnsureOpen(ctx, 1, day(2026, 4, 1)))
}

func TestEnsureOpenComparesCalendarDays(t *testing.T) {
	svc, _ := newTestService(&mockValidator{})
	ctx := context.Background()

	_, err := svc.Close(ctx, CloseInput{
		ChannelID: 1, StartDate: day(2026, 3, 1), EndDate: day(2026, 3, 31), ActorID: 9,
	})
	require.NoError(t, err)

	// Mid-morning on the lock-end day stores as the locked date, so the
	// timestamp must not slip past a midnight cutoff.
	err = svc.EnsureOpen(ctx, 1, time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC))
	assert.True(t, errors.Is(err, shared.ErrPeriodClosed))

	require.NoError(t, svc.EnsureOpen(ctx, 1, time.Date(2026, 4, 1, 0, 30, 0, 0, time.UTC)))
}

func TestEnsureOpenWithoutLock(t *testing.T) {
	svc, _ := newTestService(&mockValidator{})
	require.NoError(t, svc.EnsureOpen(context.Background(), 1, day(2020, 1, 1)))
}

func TestLockAdvancesForwardOnly(t *testing.T) {
	svc, repo := newTestService(&mockValidator{})
	ctx := context.Background()

	_, err := svc.Close(ctx, CloseInput{
		ChannelID: 1, StartDate: day(2026, 2, 1), EndDate: day(2026, 2, 28), ActorID: 9,
	})
	require.NoError(t, err)
	_, err = svc.Close(ctx, CloseInput{
		ChannelID: 1, StartDate: day(2026, 3, 1), EndDate: day(2026, 3, 31), ActorID: 9,
	})
	require.NoError(t, err)

	lock, found, err := repo.GetLock(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, day(2026, 3, 31), lock.LockEndDate)

	end, ok, err := svc.LockEnd(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(2026, 3, 31), end)
}

func TestListNewestFirst(t *testing.T) {
	svc, _ := newTestService(&mockValidator{})
	ctx := context.Background()

	for _, end := range []time.Time{day(2026, 1, 31), day(2026, 2, 28), day(2026, 3, 31)} {
		_, err := svc.Close(ctx, CloseInput{
			ChannelID: 1, StartDate: end.AddDate(0, -1, 1), EndDate: end, ActorID: 9,
		})
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, day(2026, 3, 31), list[0].EndDate)
	assert.Equal(t, day(2026, 1, 31), list[2].EndDate)
}
