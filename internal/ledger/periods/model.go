package periods

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukapos/dukapos/internal/ledger/shared"
)

// PeriodStatus enumerates valid period states. There is no reopen
// transition: corrections land in a later open period as reversals.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// Period represents a channel-scoped accounting period window.
type Period struct {
	ID        int64        `json:"id"`
	ChannelID int64        `json:"channelId"`
	StartDate time.Time    `json:"startDate"`
	EndDate   time.Time    `json:"endDate"`
	Status    PeriodStatus `json:"status"`
	ClosedBy  *int64       `json:"closedBy,omitempty"`
	ClosedAt  *time.Time   `json:"closedAt,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Lock is the single forward-only posting cutoff per channel. Entries
// dated on or before LockEndDate are rejected.
type Lock struct {
	ChannelID   int64     `json:"channelId"`
	LockEndDate time.Time `json:"lockEndDate"`
	LockedBy    int64     `json:"lockedBy"`
	LockedAt    time.Time `json:"lockedAt"`
}

// CloseInput bundles parameters for closing a period.
type CloseInput struct {
	ChannelID int64     `json:"-"`
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required"`
	ActorID   int64     `json:"-"`
}

// Validate checks structural close requirements.
func (in CloseInput) Validate() error {
	if in.ChannelID == 0 {
		return fmt.Errorf("periods: channel required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return fmt.Errorf("periods: start and end date required")
	}
	if in.StartDate.After(in.EndDate) {
		return fmt.Errorf("periods: start date after end date")
	}
	return nil
}

// UnreconciledError reports the payment methods and sessions blocking a
// close. It unwraps to shared.ErrUnreconciledPeriod.
type UnreconciledError struct {
	Blocking []string
}

func (e *UnreconciledError) Error() string {
	return fmt.Sprintf("%v: %s", shared.ErrUnreconciledPeriod, strings.Join(e.Blocking, ", "))
}

func (e *UnreconciledError) Unwrap() error {
	return shared.ErrUnreconciledPeriod
}
