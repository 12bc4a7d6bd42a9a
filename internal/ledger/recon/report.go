package recon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/dukapos/dukapos/internal/paymethod"
)

// ReportLine is one payment method's position in a reconciliation report.
type ReportLine struct {
	MethodCode       string          `json:"methodCode"`
	MethodName       string          `json:"methodName"`
	AccountCode      string          `json:"accountCode"`
	LedgerTotal      decimal.Decimal `json:"ledgerTotal"`
	DisplayTotal     string          `json:"displayTotal"`
	RequiresRecon    bool            `json:"requiresReconciliation"`
	VerifiedCoverage bool            `json:"verifiedCoverage"`
}

// Report summarises where every payment method stands for a window.
type Report struct {
	ChannelID  int64        `json:"channelId"`
	RangeStart time.Time    `json:"rangeStart"`
	RangeEnd   time.Time    `json:"rangeEnd"`
	Lines      []ReportLine `json:"lines"`
	Complete   bool         `json:"complete"`
}

var reportPrinter = message.NewPrinter(language.English)

func formatAmount(d decimal.Decimal) string {
	f, _ := d.Float64()
	return reportPrinter.Sprintf("%v", number.Decimal(f,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// Report builds the per-method reconciliation summary for a window.
// Complete is true when every method that requires reconciliation and
// had activity is covered by a verified reconciliation.
func (s *Service) Report(ctx context.Context, channelID int64, start, end time.Time) (Report, error) {
	methods, err := s.methods.ListActive(ctx, channelID)
	if err != nil {
		return Report{}, err
	}
	report := Report{ChannelID: channelID, RangeStart: start, RangeEnd: end, Complete: true}
	for _, m := range methods {
		total, err := s.ledger.WindowBalance(ctx, channelID, m.LedgerAccountCode, start, end)
		if err != nil {
			return Report{}, err
		}
		line := ReportLine{
			MethodCode:    m.Code,
			MethodName:    m.Name,
			AccountCode:   m.LedgerAccountCode,
			LedgerTotal:   total,
			DisplayTotal:  formatAmount(total),
			RequiresRecon: m.RequiresReconciliation && m.ReconciliationType != paymethod.ReconNone,
		}
		if line.RequiresRecon {
			covered, err := s.repo.HasVerifiedCovering(ctx, channelID, m.LedgerAccountCode, start, end)
			if err != nil {
				return Report{}, err
			}
			line.VerifiedCoverage = covered
			if !covered && !total.IsZero() {
				report.Complete = false
			}
		}
		report.Lines = append(report.Lines, line)
	}
	return report, nil
}
