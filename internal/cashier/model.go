package cashier

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrSessionNotFound indicates a missing cashier session.
	ErrSessionNotFound = errors.New("cashier: session not found")
	// ErrSessionAlreadyOpen indicates the register already has an open session.
	ErrSessionAlreadyOpen = errors.New("cashier: register already has an open session")
	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = errors.New("cashier: session is closed")
	// ErrCountAlreadySubmitted indicates the session already has a drawer count.
	ErrCountAlreadySubmitted = errors.New("cashier: drawer count already submitted")
	// ErrCountNotFound indicates a missing drawer count.
	ErrCountNotFound = errors.New("cashier: drawer count not found")
	// ErrCountMissing indicates close was attempted before the blind count.
	ErrCountMissing = errors.New("cashier: session has no drawer count")
	// ErrVarianceUnreviewed indicates close was attempted with a variance awaiting review.
	ErrVarianceUnreviewed = errors.New("cashier: variance awaiting review")
	// ErrVerificationNotFound indicates a missing processor verification.
	ErrVerificationNotFound = errors.New("cashier: verification not found")
	// ErrInvalidInput indicates malformed cashier input.
	ErrInvalidInput = errors.New("cashier: invalid input")
)

// SessionStatus tracks a session from open to close.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

// Session is one cashier's shift on one register. The session ID tags
// every ledger line the cashier produces, which is how the close
// reconciles declared cash against posted cash.
type Session struct {
	ID            string          `json:"id"`
	ChannelID     int64           `json:"channelId"`
	LocationID    int64           `json:"locationId"`
	RegisterID    string          `json:"registerId"`
	CashierUserID int64           `json:"cashierUserId"`
	OpeningFloat  decimal.Decimal `json:"openingFloat"`
	Status        SessionStatus   `json:"status"`
	OpenedAt      time.Time       `json:"openedAt"`
	ClosedAt      *time.Time      `json:"closedAt,omitempty"`
}

// CountType distinguishes the opening drawer declaration from the
// end-of-shift one.
type CountType string

const (
	// CountOpening is declared right after the session opens, against the
	// float alone.
	CountOpening CountType = "OPENING"
	// CountClosing is declared at shift end, against float plus every
	// cash posting tagged with the session.
	CountClosing CountType = "CLOSING"
	// CountSpot is a mid-shift check, measured the same way as a closing
	// count. It never satisfies the close requirement.
	CountSpot CountType = "SPOT"
)

// CountStatus tracks a drawer count through review.
type CountStatus string

const (
	// CountAccepted means the variance fell inside the tolerance.
	CountAccepted CountStatus = "ACCEPTED"
	// CountPendingReview means the variance exceeded the tolerance and
	// needs a supervisor.
	CountPendingReview CountStatus = "PENDING_REVIEW"
	// CountReviewed means a supervisor signed off the variance.
	CountReviewed CountStatus = "REVIEWED"
)

// DrawerCount is a blind cash declaration. The cashier never sees the
// expected figure before declaring; both are stored for audit.
type DrawerCount struct {
	ID            int64           `json:"id"`
	SessionID     string          `json:"sessionId"`
	ChannelID     int64           `json:"channelId"`
	Type          CountType       `json:"countType"`
	DeclaredTotal decimal.Decimal `json:"declaredTotal"`
	ExpectedTotal decimal.Decimal `json:"expectedTotal"`
	Variance      decimal.Decimal `json:"variance"`
	Status        CountStatus     `json:"status"`
	Explanation   string          `json:"explanation,omitempty"`
	CountedBy     int64           `json:"countedBy"`
	ReviewedBy    *int64          `json:"reviewedBy,omitempty"`
	CountedAt     time.Time       `json:"countedAt"`
	ReviewedAt    *time.Time      `json:"reviewedAt,omitempty"`
}

// MpesaVerification matches ledger-expected mobile money collections
// against processor-confirmed totals, flagging unmatched transactions.
type MpesaVerification struct {
	ID                    int64           `json:"id"`
	SessionID             string          `json:"sessionId"`
	ChannelID             int64           `json:"channelId"`
	ExpectedTotal         decimal.Decimal `json:"expectedTotal"`
	VerifiedTotal         decimal.Decimal `json:"verifiedTotal"`
	Variance              decimal.Decimal `json:"variance"`
	TransactionCount      int             `json:"transactionCount"`
	AllConfirmed          bool            `json:"allConfirmed"`
	FlaggedTransactionIDs []string        `json:"flaggedTransactionIds,omitempty"`
	VerifiedBy            int64           `json:"verifiedBy"`
	CreatedAt             time.Time       `json:"createdAt"`
}

// OpenInput starts a session.
type OpenInput struct {
	ChannelID     int64           `json:"channelId" validate:"required"`
	LocationID    int64           `json:"locationId" validate:"required"`
	RegisterID    string          `json:"registerId" validate:"required,max=64"`
	CashierUserID int64           `json:"-"`
	OpeningFloat  decimal.Decimal `json:"openingFloat"`
}

func (in OpenInput) Validate() error {
	if in.ChannelID <= 0 || in.LocationID <= 0 || in.RegisterID == "" {
		return ErrInvalidInput
	}
	if in.OpeningFloat.IsNegative() {
		return ErrInvalidInput
	}
	return nil
}

// BlindCountInput is the cashier's declared drawer total. An empty
// CountType means the end-of-shift count.
type BlindCountInput struct {
	CountType     CountType       `json:"countType"`
	DeclaredTotal decimal.Decimal `json:"declaredTotal"`
	CountedBy     int64           `json:"-"`
}

// ListFilter narrows a session listing.
type ListFilter struct {
	Status *SessionStatus
	From   *time.Time
	To     *time.Time
}

// MpesaVerificationInput reconciles the processor's report against the
// ledger. TransactionIDs is the externally reported set; flagged IDs are
// the ones that did not match and AllConfirmed is false when any exist.
type MpesaVerificationInput struct {
	VerifiedTotal         decimal.Decimal `json:"verifiedTotal"`
	TransactionIDs        []string        `json:"transactionIds,omitempty" validate:"max=2000,dive,max=64"`
	AllConfirmed          bool            `json:"allConfirmed"`
	FlaggedTransactionIDs []string        `json:"flaggedTransactionIds,omitempty" validate:"max=500,dive,max=64"`
	VerifiedBy            int64           `json:"-"`
}

// MethodTotal is one payment method's collected amount for a session.
type MethodTotal struct {
	MethodCode  string          `json:"methodCode"`
	MethodName  string          `json:"methodName"`
	AccountCode string          `json:"accountCode"`
	Total       decimal.Decimal `json:"total"`
}

// Summary is the closing picture of a session.
type Summary struct {
	Session        Session            `json:"session"`
	MethodTotals   []MethodTotal      `json:"methodTotals"`
	TotalCollected decimal.Decimal    `json:"totalCollected"`
	OpeningCount   *DrawerCount       `json:"openingCount,omitempty"`
	DrawerCount    *DrawerCount       `json:"drawerCount,omitempty"`
	Verification   *MpesaVerification `json:"mpesaVerification,omitempty"`
}
