package balances

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dukapos/dukapos/internal/ledger/accounts"
)

// AccountDirectory resolves chart of accounts rows for rollups.
type AccountDirectory interface {
	GetByCode(ctx context.Context, channelID int64, code string) (accounts.Account, error)
	Children(ctx context.Context, parentID int64) ([]accounts.Account, error)
}

// AccountBalance is the aggregated position of one account. Balance is
// debit total minus credit total, so asset and expense accounts read
// positive and liability and income accounts read negative.
type AccountBalance struct {
	AccountCode string          `json:"accountCode"`
	AccountName string          `json:"accountName"`
	DebitTotal  decimal.Decimal `json:"debitTotal"`
	CreditTotal decimal.Decimal `json:"creditTotal"`
	Balance     decimal.Decimal `json:"balance"`
}

// Service answers balance queries against the posted ledger.
type Service struct {
	repo      Repository
	directory AccountDirectory
	cache     *Cache
	group     singleflight.Group
	logger    *slog.Logger
}

// NewService wires the balance reader.
func NewService(repo Repository, directory AccountDirectory, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, directory: directory, cache: cache, logger: logger}
}

// Balance aggregates one account. Parent accounts roll up their own
// lines plus every child's.
func (s *Service) Balance(ctx context.Context, channelID int64, accountCode string, q Query) (AccountBalance, error) {
	key := balanceKey(channelID, accountCode, q)
	result, err, _ := s.group.Do(key, func() (any, error) {
		var out AccountBalance
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.loadBalance(ctx, channelID, accountCode, q)
		})
		return out, err
	})
	if err != nil {
		return AccountBalance{}, err
	}
	return result.(AccountBalance), nil
}

func (s *Service) loadBalance(ctx context.Context, channelID int64, accountCode string, q Query) (AccountBalance, error) {
	account, err := s.directory.GetByCode(ctx, channelID, accountCode)
	if err != nil {
		return AccountBalance{}, err
	}
	codes := []string{account.Code}
	if account.IsParent {
		children, err := s.directory.Children(ctx, account.ID)
		if err != nil {
			return AccountBalance{}, err
		}
		for _, child := range children {
			codes = append(codes, child.Code)
		}
	}
	debit, credit, err := s.repo.SumByAccountCodes(ctx, channelID, codes, q)
	if err != nil {
		return AccountBalance{}, fmt.Errorf("balances: sum %s: %w", accountCode, err)
	}
	return AccountBalance{
		AccountCode: account.Code,
		AccountName: account.Name,
		DebitTotal:  debit,
		CreditTotal: credit,
		Balance:     debit.Sub(credit),
	}, nil
}

// TrialBalance returns the position of every supplied account for the
// window. Accounts without postings come back with zero totals.
func (s *Service) TrialBalance(ctx context.Context, channelID int64, codes []string, q Query) ([]AccountBalance, error) {
	out := make([]AccountBalance, 0, len(codes))
	for _, code := range codes {
		bal, err := s.Balance(ctx, channelID, code, q)
		if err != nil {
			return nil, err
		}
		out = append(out, bal)
	}
	return out, nil
}

// CustomerBalance is the customer's outstanding receivable. Overpaid
// customers report zero rather than a negative debt.
func (s *Service) CustomerBalance(ctx context.Context, channelID int64, customerID string) (decimal.Decimal, error) {
	bal, err := s.Balance(ctx, channelID, accounts.CodeAccountsReceivable, Query{CustomerID: customerID})
	if err != nil {
		return decimal.Zero, err
	}
	if bal.Balance.IsNegative() {
		return decimal.Zero, nil
	}
	return bal.Balance, nil
}

// SupplierBalance is what the channel still owes the supplier. Payables
// are credit-normal so the signed balance is negated on the way out.
func (s *Service) SupplierBalance(ctx context.Context, channelID int64, supplierID string) (decimal.Decimal, error) {
	bal, err := s.Balance(ctx, channelID, accounts.CodeAccountsPayable, Query{SupplierID: supplierID})
	if err != nil {
		return decimal.Zero, err
	}
	owed := bal.Balance.Neg()
	if owed.IsNegative() {
		return decimal.Zero, nil
	}
	return owed, nil
}

// SalesTotal reports net sales for the window as a positive amount.
func (s *Service) SalesTotal(ctx context.Context, channelID int64, start, end time.Time) (decimal.Decimal, error) {
	bal, err := s.Balance(ctx, channelID, accounts.CodeSales, windowQuery(start, end))
	if err != nil {
		return decimal.Zero, err
	}
	returns, err := s.Balance(ctx, channelID, accounts.CodeSalesReturns, windowQuery(start, end))
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Balance.Neg().Sub(returns.Balance), nil
}

// PurchaseTotal reports purchases for the window.
func (s *Service) PurchaseTotal(ctx context.Context, channelID int64, start, end time.Time) (decimal.Decimal, error) {
	bal, err := s.Balance(ctx, channelID, accounts.CodePurchases, windowQuery(start, end))
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Balance, nil
}

// ExpenseTotal reports operating expenses for the window.
func (s *Service) ExpenseTotal(ctx context.Context, channelID int64, start, end time.Time) (decimal.Decimal, error) {
	bal, err := s.Balance(ctx, channelID, accounts.CodeExpenses, windowQuery(start, end))
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Balance, nil
}

// SessionTotal sums everything a cashier session collected into one
// payment method's ledger account. Sessions tag their lines with a
// sessionId in line metadata, which is what scopes the sum here.
func (s *Service) SessionTotal(ctx context.Context, channelID int64, accountCode, sessionID string) (decimal.Decimal, error) {
	bal, err := s.Balance(ctx, channelID, accountCode, Query{SessionID: sessionID})
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Balance, nil
}

// WindowBalance is the signed movement of one account over a window.
func (s *Service) WindowBalance(ctx context.Context, channelID int64, accountCode string, start, end time.Time) (decimal.Decimal, error) {
	bal, err := s.Balance(ctx, channelID, accountCode, windowQuery(start, end))
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Balance, nil
}

// HasPostings reports whether any journal lines hit the account inside
// the window. Period close uses it to skip reconciliation checks for
// idle accounts.
func (s *Service) HasPostings(ctx context.Context, channelID int64, accountCode string, start, end time.Time) (bool, error) {
	count, err := s.repo.CountLinesByAccountCodes(ctx, channelID, []string{accountCode}, windowQuery(start, end))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InvalidateAccounts implements the posting engine's invalidator port.
func (s *Service) InvalidateAccounts(ctx context.Context, channelID int64, codes []string) {
	s.cache.InvalidateAccounts(ctx, channelID, codes)
}

func windowQuery(start, end time.Time) Query {
	q := Query{}
	if !start.IsZero() {
		q.StartDate = &start
	}
	if !end.IsZero() {
		q.EndDate = &end
	}
	return q
}
