package posting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukapos/dukapos/internal/ledger/shared"
)

// LineInput describes a journal line for a posting request. Accounts are
// addressed by code; resolution to ids happens inside the engine.
type LineInput struct {
	AccountCode string            `json:"accountCode" validate:"required,max=64"`
	Debit       decimal.Decimal   `json:"debit"`
	Credit      decimal.Decimal   `json:"credit"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Input groups fields required to post a business event.
type Input struct {
	ChannelID  int64       `json:"-"`
	SourceType string      `json:"sourceType" validate:"required,max=64"`
	SourceID   string      `json:"sourceId" validate:"required,max=64"`
	EntryDate  time.Time   `json:"entryDate" validate:"required"`
	Memo       string      `json:"memo,omitempty" validate:"max=500"`
	PostedBy   int64       `json:"-"`
	Lines      []LineInput `json:"lines" validate:"required,min=2,dive"`
}

// Validate ensures the posting meets structural and balance criteria
// before any write happens.
func (in Input) Validate() error {
	if in.ChannelID == 0 {
		return errors.New("posting: channel required")
	}
	if strings.TrimSpace(in.SourceType) == "" {
		return errors.New("posting: source type required")
	}
	if strings.TrimSpace(in.SourceID) == "" {
		return errors.New("posting: source id required")
	}
	if in.EntryDate.IsZero() {
		return errors.New("posting: entry date required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			return fmt.Errorf("posting: line %d missing account code", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("posting: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("posting: line %d cannot be both debit and credit", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return shared.ErrImbalancedEntry
	}
	return nil
}

// AccountCodes returns the distinct codes referenced by the lines.
func (in Input) AccountCodes() []string {
	seen := make(map[string]struct{}, len(in.Lines))
	codes := make([]string, 0, len(in.Lines))
	for _, line := range in.Lines {
		if _, ok := seen[line.AccountCode]; ok {
			continue
		}
		seen[line.AccountCode] = struct{}{}
		codes = append(codes, line.AccountCode)
	}
	return codes
}

// resolvedLine is a line with its account id bound.
type resolvedLine struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Meta      map[string]string
}
