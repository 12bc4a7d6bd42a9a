package paymethod

// ReconciliationType names how a payment method gets verified before a
// financial period can close over it.
type ReconciliationType string

const (
	// ReconBlindCount is a physical drawer count declared without the
	// cashier seeing the expected figure first.
	ReconBlindCount ReconciliationType = "blind_count"
	// ReconTransactionVerification matches individual processor
	// transactions, e.g. M-Pesa confirmations, against the ledger.
	ReconTransactionVerification ReconciliationType = "transaction_verification"
	// ReconStatementMatch ticks postings off an external statement.
	ReconStatementMatch ReconciliationType = "statement_match"
	// ReconNone opts the method out of reconciliation entirely.
	ReconNone ReconciliationType = "none"
)

func (t ReconciliationType) Valid() bool {
	switch t {
	case ReconBlindCount, ReconTransactionVerification, ReconStatementMatch, ReconNone:
		return true
	}
	return false
}

// Method is a configured payment method for one channel. The ledger
// account code decides where collected funds land, and the flags drive
// cashier session handling and period close checks.
type Method struct {
	ID                     int64              `json:"id"`
	ChannelID              int64              `json:"channelId"`
	Code                   string             `json:"code"`
	Name                   string             `json:"name"`
	ReconciliationType     ReconciliationType `json:"reconciliationType"`
	LedgerAccountCode      string             `json:"ledgerAccountCode"`
	IsCashierControlled    bool               `json:"isCashierControlled"`
	RequiresReconciliation bool               `json:"requiresReconciliation"`
	IsActive               bool               `json:"isActive"`
}
