package recon

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/ledger/shared"
)

// Status tracks a reconciliation through its lifecycle. Drafts carry the
// system expectation; verification records the externally confirmed
// figure and freezes the row.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusVerified Status = "VERIFIED"
)

// Reconciliation compares the ledger's view of one account over a date
// range against an externally confirmed total.
type Reconciliation struct {
	ID            int64            `json:"id"`
	ChannelID     int64            `json:"channelId"`
	AccountCode   string           `json:"accountCode"`
	RangeStart    time.Time        `json:"rangeStart"`
	RangeEnd      time.Time        `json:"rangeEnd"`
	Status        Status           `json:"status"`
	ExpectedTotal decimal.Decimal  `json:"expectedTotal"`
	ActualTotal   *decimal.Decimal `json:"actualTotal,omitempty"`
	Variance      *decimal.Decimal `json:"variance,omitempty"`
	Note          string           `json:"note,omitempty"`
	CreatedBy     int64            `json:"createdBy"`
	VerifiedBy    *int64           `json:"verifiedBy,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	VerifiedAt    *time.Time       `json:"verifiedAt,omitempty"`
}

// GenerateInput opens a draft reconciliation.
type GenerateInput struct {
	ChannelID   int64     `json:"channelId" validate:"required"`
	AccountCode string    `json:"accountCode" validate:"required"`
	RangeStart  time.Time `json:"rangeStart" validate:"required"`
	RangeEnd    time.Time `json:"rangeEnd" validate:"required"`
	CreatedBy   int64     `json:"-"`
}

func (in GenerateInput) Validate() error {
	if in.ChannelID <= 0 || in.AccountCode == "" {
		return shared.ErrValidationFailed
	}
	if in.RangeEnd.Before(in.RangeStart) {
		return shared.ErrValidationFailed
	}
	return nil
}

// VerifyInput confirms a draft against an external figure.
type VerifyInput struct {
	ActualTotal decimal.Decimal `json:"actualTotal"`
	Note        string          `json:"note,omitempty" validate:"max=500"`
	VerifiedBy  int64           `json:"-"`
}
