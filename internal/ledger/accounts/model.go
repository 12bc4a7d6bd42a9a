package accounts

import "time"

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether the type is one of the four ledger categories.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// Account models a chart of accounts node, scoped to a channel.
// Accounts are never hard-deleted; historical journal lines keep
// referencing deactivated accounts.
type Account struct {
	ID        int64
	ChannelID int64
	Code      string
	Name      string
	Type      AccountType
	IsActive  bool
	IsParent  bool
	ParentID  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Well-known account codes seeded for every channel.
const (
	CodeCashOnHand         = "CASH_ON_HAND"
	CodeBankMain           = "BANK_MAIN"
	CodeClearingMpesa      = "CLEARING_MPESA"
	CodeClearingCredit     = "CLEARING_CREDIT"
	CodeClearingGeneric    = "CLEARING_GENERIC"
	CodeSales              = "SALES"
	CodeSalesReturns       = "SALES_RETURNS"
	CodeAccountsReceivable = "ACCOUNTS_RECEIVABLE"
	CodeAccountsPayable    = "ACCOUNTS_PAYABLE"
	CodeTaxPayable         = "TAX_PAYABLE"
	CodePurchases          = "PURCHASES"
	CodeExpenses           = "EXPENSES"
	CodeProcessorFees      = "PROCESSOR_FEES"
	CodeCashShortOver      = "CASH_SHORT_OVER"
	CodeInventory          = "INVENTORY"
	CodeCOGS               = "COGS"
)

type seedAccount struct {
	Code     string
	Name     string
	Type     AccountType
	IsParent bool
}

// defaultChart is the retail chart created during channel provisioning.
// CASH_ON_HAND is a parent so tender sub-accounts can roll up under it.
var defaultChart = []seedAccount{
	{CodeCashOnHand, "Cash on Hand", AccountTypeAsset, true},
	{CodeBankMain, "Bank - Main", AccountTypeAsset, false},
	{CodeClearingMpesa, "Clearing - M-Pesa", AccountTypeAsset, false},
	{CodeClearingCredit, "Clearing - Customer Credit", AccountTypeAsset, false},
	{CodeClearingGeneric, "Clearing - Generic", AccountTypeAsset, false},
	{CodeInventory, "Inventory on Hand", AccountTypeAsset, false},
	{CodeAccountsReceivable, "Accounts Receivable", AccountTypeAsset, false},
	{CodeSales, "Sales Revenue", AccountTypeIncome, false},
	{CodeSalesReturns, "Sales Returns", AccountTypeIncome, false},
	{CodeAccountsPayable, "Accounts Payable", AccountTypeLiability, false},
	{CodeTaxPayable, "Taxes Payable", AccountTypeLiability, false},
	{CodePurchases, "Inventory Purchases", AccountTypeExpense, false},
	{CodeCOGS, "Cost of Goods Sold", AccountTypeExpense, false},
	{CodeExpenses, "General Expenses", AccountTypeExpense, false},
	{CodeProcessorFees, "Payment Processor Fees", AccountTypeExpense, false},
	{CodeCashShortOver, "Cash Short/Over", AccountTypeExpense, false},
}
