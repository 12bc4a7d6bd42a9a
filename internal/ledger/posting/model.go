package posting

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyEvent is the idempotent intent record for a ledger posting.
// Unique per (channel, sourceType, sourceId); inserted in the same
// transaction as the journal entry it triggers.
type MoneyEvent struct {
	ID         int64
	ChannelID  int64
	SourceType string
	SourceID   string
	EntryDate  time.Time
	CreatedAt  time.Time
}

// JournalEntry captures posting metadata. Immutable once created;
// corrections are compensating reversal entries.
type JournalEntry struct {
	ID         int64
	ChannelID  int64
	SourceType string
	SourceID   string
	EntryDate  time.Time
	Memo       string
	PostedBy   int64
	CreatedAt  time.Time
	Lines      []JournalLine
}

// JournalLine stores a debit or credit amount for one account. Meta
// carries lookup keys such as customerId or supplierId.
type JournalLine struct {
	ID        int64
	EntryID   int64
	ChannelID int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Meta      map[string]string
	CreatedAt time.Time
}

// Signed returns debit minus credit for balance aggregation.
func (l JournalLine) Signed() decimal.Decimal {
	return l.Debit.Sub(l.Credit)
}
