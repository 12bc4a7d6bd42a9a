package shared

import "errors"

var (
	// ErrImbalancedEntry indicates debit total != credit total.
	ErrImbalancedEntry = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrPeriodClosed indicates a posting dated inside a locked range.
	ErrPeriodClosed = errors.New("ledger: period closed for this date")
	// ErrDuplicateAccountCode indicates (channel, code) already exists.
	ErrDuplicateAccountCode = errors.New("ledger: account code already exists for channel")
	// ErrInvalidHierarchy indicates a bad parent/child account reference.
	ErrInvalidHierarchy = errors.New("ledger: invalid account hierarchy")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrUnreconciledPeriod indicates close is blocked by missing reconciliations.
	ErrUnreconciledPeriod = errors.New("ledger: period has unreconciled payment methods or sessions")
	// ErrPeriodNotFound indicates a missing accounting period.
	ErrPeriodNotFound = errors.New("ledger: accounting period not found")
	// ErrPeriodEndInFuture indicates a close dated beyond today.
	ErrPeriodEndInFuture = errors.New("ledger: period end date cannot be in the future")
	// ErrPeriodNotSequential indicates a close dated at or before the last closed period.
	ErrPeriodNotSequential = errors.New("ledger: period end must be after last closed period")
	// ErrReconciliationNotFound indicates a missing reconciliation row.
	ErrReconciliationNotFound = errors.New("ledger: reconciliation not found")
	// ErrReconciliationVerified indicates a mutation on an already verified row.
	ErrReconciliationVerified = errors.New("ledger: reconciliation already verified")
	// ErrValidationFailed indicates malformed input rejected before hitting storage.
	ErrValidationFailed = errors.New("ledger: validation failed")
)
