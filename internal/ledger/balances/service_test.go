package balances

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/ledger/accounts"
	"github.com/dukapos/dukapos/internal/ledger/shared"
)

// ============================================================================
// MOCK REPOSITORY / DIRECTORY
// ============================================================================

type fakeLine struct {
	accountCode string
	debit       decimal.Decimal
	credit      decimal.Decimal
	entryDate   time.Time
	customerID  string
	supplierID  string
	sessionID   string
}

type mockRepository struct {
	lines []fakeLine
	calls int
}

func (m *mockRepository) matches(line fakeLine, codes []string, q Query) bool {
	found := false
	for _, code := range codes {
		if line.accountCode == code {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if q.StartDate != nil && line.entryDate.Before(*q.StartDate) {
		return false
	}
	if q.EndDate != nil && line.entryDate.After(*q.EndDate) {
		return false
	}
	if q.CustomerID != "" && line.customerID != q.CustomerID {
		return false
	}
	if q.SupplierID != "" && line.supplierID != q.SupplierID {
		return false
	}
	if q.SessionID != "" && line.sessionID != q.SessionID {
		return false
	}
	return true
}

func (m *mockRepository) SumByAccountCodes(ctx context.Context, channelID int64, codes []string, q Query) (decimal.Decimal, decimal.Decimal, error) {
	m.calls++
	debit := decimal.Zero
	credit := decimal.Zero
	for _, line := range m.lines {
		if m.matches(line, codes, q) {
			debit = debit.Add(line.debit)
			credit = credit.Add(line.credit)
		}
	}
	return debit, credit, nil
}

func (m *mockRepository) CountLinesByAccountCodes(ctx context.Context, channelID int64, codes []string, q Query) (int64, error) {
	var count int64
	for _, line := range m.lines {
		if m.matches(line, codes, q) {
			count++
		}
	}
	return count, nil
}

type mockDirectory struct {
	accounts map[string]accounts.Account
	children map[int64][]accounts.Account
}

func (d *mockDirectory) GetByCode(ctx context.Context, channelID int64, code string) (accounts.Account, error) {
	a, ok := d.accounts[code]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (d *mockDirectory) Children(ctx context.Context, parentID int64) ([]accounts.Account, error) {
	return d.children[parentID], nil
}

// ============================================================================
// HELPERS
// ============================================================================

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func testDirectory() *mockDirectory {
	dir := &mockDirectory{
		accounts: make(map[string]accounts.Account),
		children: make(map[int64][]accounts.Account),
	}
	add := func(id int64, code string, isParent bool) accounts.Account {
		a := accounts.Account{ID: id, ChannelID: 1, Code: code, Name: code, IsActive: true, IsParent: isParent}
		dir.accounts[code] = a
		return a
	}
	cash := add(1, accounts.CodeCashOnHand, true)
	drawer1 := add(2, "CASH_DRAWER_1", false)
	drawer2 := add(3, "CASH_DRAWER_2", false)
	dir.children[cash.ID] = []accounts.Account{drawer1, drawer2}
	add(4, accounts.CodeSales, false)
	add(5, accounts.CodeSalesReturns, false)
	add(6, accounts.CodeAccountsReceivable, false)
	add(7, accounts.CodeAccountsPayable, false)
	add(8, accounts.CodeClearingMpesa, false)
	return dir
}

func newTestService(t *testing.T, repo *mockRepository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, testDirectory(), NewCache(client, time.Minute), nil)
}

// ============================================================================
// TESTS
// ============================================================================

func TestBalanceSimpleAccount(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeSales, credit: dec(500)},
		{accountCode: accounts.CodeSales, credit: dec(200)},
		{accountCode: accounts.CodeSales, debit: dec(50)},
	}}
	svc := newTestService(t, repo)

	bal, err := svc.Balance(context.Background(), 1, accounts.CodeSales, Query{})
	require.NoError(t, err)

	assert.True(t, bal.DebitTotal.Equal(dec(50)))
	assert.True(t, bal.CreditTotal.Equal(dec(700)))
	assert.True(t, bal.Balance.Equal(dec(-650)))
}

func TestBalanceParentRollsUpChildren(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeCashOnHand, debit: dec(100)},
		{accountCode: "CASH_DRAWER_1", debit: dec(40)},
		{accountCode: "CASH_DRAWER_2", debit: dec(60)},
		{accountCode: accounts.CodeSales, credit: dec(200)},
	}}
	svc := newTestService(t, repo)

	bal, err := svc.Balance(context.Background(), 1, accounts.CodeCashOnHand, Query{})
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec(200)), "parent includes its own and child lines, got %s", bal.Balance)
}

func TestBalanceCachesResult(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeSales, credit: dec(500)},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.Balance(ctx, 1, accounts.CodeSales, Query{})
	require.NoError(t, err)
	_, err = svc.Balance(ctx, 1, accounts.CodeSales, Query{})
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls)
}

func TestBalanceServedWhenRedisDown(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeSales, credit: dec(500)},
	}}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(repo, testDirectory(), NewCache(client, time.Minute), nil)

	// The process tolerates an unreachable Redis at startup; reads fall
	// back to the database rather than erroring.
	mr.Close()

	bal, err := svc.Balance(context.Background(), 1, accounts.CodeSales, Query{})
	require.NoError(t, err)
	assert.True(t, bal.CreditTotal.Equal(dec(500)))
	assert.Equal(t, 1, repo.calls)
}

func TestInvalidateAccountsDropsCache(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeSales, credit: dec(500)},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.Balance(ctx, 1, accounts.CodeSales, Query{})
	require.NoError(t, err)

	svc.InvalidateAccounts(ctx, 1, []string{accounts.CodeSales})

	repo.lines = append(repo.lines, fakeLine{accountCode: accounts.CodeSales, credit: dec(100)})
	bal, err := svc.Balance(ctx, 1, accounts.CodeSales, Query{})
	require.NoError(t, err)
	assert.True(t, bal.CreditTotal.Equal(dec(600)))
	assert.Equal(t, 2, repo.calls)
}

func TestCustomerBalanceFloorsAtZero(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeAccountsReceivable, debit: dec(100), customerID: "cust-1"},
		{accountCode: accounts.CodeAccountsReceivable, credit: dec(30), customerID: "cust-1"},
		{accountCode: accounts.CodeAccountsReceivable, credit: dec(500), customerID: "cust-2"},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	owed, err := svc.CustomerBalance(ctx, 1, "cust-1")
	require.NoError(t, err)
	assert.True(t, owed.Equal(dec(70)))

	// Overpaid customer reads zero, not negative.
	owed, err = svc.CustomerBalance(ctx, 1, "cust-2")
	require.NoError(t, err)
	assert.True(t, owed.IsZero())
}

func TestSupplierBalanceNegatesPayable(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeAccountsPayable, credit: dec(250), supplierID: "sup-1"},
		{accountCode: accounts.CodeAccountsPayable, debit: dec(50), supplierID: "sup-1"},
	}}
	svc := newTestService(t, repo)

	owed, err := svc.SupplierBalance(context.Background(), 1, "sup-1")
	require.NoError(t, err)
	assert.True(t, owed.Equal(dec(200)))
}

func TestSalesTotalNetsReturns(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeSales, credit: dec(1000), entryDate: mar(10)},
		{accountCode: accounts.CodeSalesReturns, debit: dec(150), entryDate: mar(12)},
		{accountCode: accounts.CodeSales, credit: dec(400), entryDate: mar(40)}, // outside window
	}}
	svc := newTestService(t, repo)

	total, err := svc.SalesTotal(context.Background(), 1, mar(1), mar(31))
	require.NoError(t, err)
	assert.True(t, total.Equal(dec(850)), "got %s", total)
}

func TestSessionTotalScopedBySession(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeClearingMpesa, debit: dec(300), sessionID: "sess-a"},
		{accountCode: accounts.CodeClearingMpesa, debit: dec(900), sessionID: "sess-b"},
	}}
	svc := newTestService(t, repo)

	total, err := svc.SessionTotal(context.Background(), 1, accounts.CodeClearingMpesa, "sess-a")
	require.NoError(t, err)
	assert.True(t, total.Equal(dec(300)))
}

func TestHasPostings(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeClearingMpesa, debit: dec(300), entryDate: mar(10)},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	got, err := svc.HasPostings(ctx, 1, accounts.CodeClearingMpesa, mar(1), mar(31))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = svc.HasPostings(ctx, 1, accounts.CodeSales, mar(1), mar(31))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestTrialBalanceIncludesIdleAccounts(t *testing.T) {
	repo := &mockRepository{lines: []fakeLine{
		{accountCode: accounts.CodeSales, credit: dec(100)},
	}}
	svc := newTestService(t, repo)

	tb, err := svc.TrialBalance(context.Background(), 1,
		[]string{accounts.CodeSales, accounts.CodeSalesReturns}, Query{})
	require.NoError(t, err)
	require.Len(t, tb, 2)
	assert.True(t, tb[0].CreditTotal.Equal(dec(100)))
	assert.True(t, tb[1].Balance.IsZero())
}

func mar(d int) time.Time {
	// days beyond 31 spill into April, used to place lines outside March
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d-1)
}
