package accounts

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukapos/dukapos/internal/ledger/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	accounts map[int64]*Account
	byCode   map[string]*Account
	nextID   int64

	insertError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts: make(map[int64]*Account),
		byCode:   make(map[string]*Account),
		nextID:   1,
	}
}

func codeKey(channelID int64, code string) string {
	return fmt.Sprintf("%d:%s", channelID, code)
}

func (m *mockRepository) Insert(ctx context.Context, a Account) (Account, error) {
	if m.insertError != nil {
		return Account{}, m.insertError
	}
	if _, ok := m.byCode[codeKey(a.ChannelID, a.Code)]; ok {
		return Account{}, shared.ErrDuplicateAccountCode
	}
	a.ID = m.nextID
	m.nextID++
	stored := a
	m.accounts[a.ID] = &stored
	m.byCode[codeKey(a.ChannelID, a.Code)] = &stored
	return a, nil
}

func (m *mockRepository) GetByID(ctx context.Context, id int64) (Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, shared.ErrAccountNotFound
	}
	return *a, nil
}

func (m *mockRepository) GetByCode(ctx context.Context, channelID int64, code string) (Account, error) {
	a, ok := m.byCode[codeKey(channelID, code)]
	if !ok {
		return Account{}, shared.ErrAccountNotFound
	}
	return *a, nil
}

func (m *mockRepository) ListByChannel(ctx context.Context, channelID int64) ([]Account, error) {
	var out []Account
	for _, a := range m.accounts {
		if a.ChannelID == channelID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepository) ListByCodes(ctx context.Context, channelID int64, codes []string) ([]Account, error) {
	var out []Account
	for _, code := range codes {
		if a, ok := m.byCode[codeKey(channelID, code)]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepository) Children(ctx context.Context, parentID int64) ([]Account, error) {
	var out []Account
	for _, a := range m.accounts {
		if a.ParentID != nil && *a.ParentID == parentID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepository) SetActive(ctx context.Context, id int64, active bool) error {
	a, ok := m.accounts[id]
	if !ok {
		return shared.ErrAccountNotFound
	}
	a.IsActive = active
	return nil
}

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	return NewService(repo, nil), repo
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateAccount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		ChannelID: 1,
		Code:      "PETTY_CASH",
		Name:      "Petty Cash",
		Type:      AccountTypeAsset,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "PETTY_CASH", created.Code)
	assert.True(t, created.IsActive)
	assert.Nil(t, created.ParentID)
}

func TestCreateAccountDuplicateCode(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	in := CreateInput{ChannelID: 1, Code: "PETTY_CASH", Name: "Petty Cash", Type: AccountTypeAsset}
	_, err := svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = svc.Create(ctx, in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrDuplicateAccountCode))
}

func TestCreateAccountInvalidType(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateInput{
		ChannelID: 1,
		Code:      "X",
		Name:      "X",
		Type:      "REVENUE",
	})
	require.Error(t, err)
}

func TestCreateAccountUnderParent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	parent, err := svc.Create(ctx, CreateInput{
		ChannelID: 1, Code: "CASH", Name: "Cash", Type: AccountTypeAsset, IsParent: true,
	})
	require.NoError(t, err)

	child, err := svc.Create(ctx, CreateInput{
		ChannelID: 1, Code: "CASH_DRAWER_1", Name: "Drawer 1", Type: AccountTypeAsset, ParentCode: "CASH",
	})
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)

	children, err := svc.Children(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)
}

func TestCreateAccountParentTypeMismatch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		ChannelID: 1, Code: "SALES", Name: "Sales", Type: AccountTypeIncome, IsParent: true,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{
		ChannelID: 1, Code: "CASH_1", Name: "Drawer", Type: AccountTypeAsset, ParentCode: "SALES",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidHierarchy))
}

func TestCreateAccountParentMissing(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateInput{
		ChannelID: 1, Code: "CASH_1", Name: "Drawer", Type: AccountTypeAsset, ParentCode: "NOPE",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidHierarchy))
}

func TestChildrenOfLeafAccount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	leaf, err := svc.Create(ctx, CreateInput{
		ChannelID: 1, Code: "BANK", Name: "Bank", Type: AccountTypeAsset,
	})
	require.NoError(t, err)

	_, err = svc.Children(ctx, leaf.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidHierarchy))
}

func TestInitializeChannelSeedsChart(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.InitializeChannel(ctx, 7))

	chart, err := repo.ListByChannel(ctx, 7)
	require.NoError(t, err)
	require.Len(t, chart, len(defaultChart))

	cash, err := repo.GetByCode(ctx, 7, CodeCashOnHand)
	require.NoError(t, err)
	assert.True(t, cash.IsParent)
	assert.Equal(t, AccountTypeAsset, cash.Type)
}

func TestInitializeChannelIdempotent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.InitializeChannel(ctx, 7))
	require.NoError(t, svc.InitializeChannel(ctx, 7))

	chart, err := repo.ListByChannel(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, chart, len(defaultChart))
}

func TestEnsureExistReportsMissing(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.InitializeChannel(ctx, 1))

	require.NoError(t, svc.EnsureExist(ctx, 1, []string{CodeSales, CodeCashOnHand}))

	err := svc.EnsureExist(ctx, 1, []string{CodeSales, "MYSTERY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYSTERY")
}

func TestDeactivateAccount(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateInput{
		ChannelID: 1, Code: "OLD", Name: "Old", Type: AccountTypeExpense,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, a.ID))

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}
