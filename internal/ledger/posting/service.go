package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukapos/dukapos/internal/ledger/accounts"
	"github.com/dukapos/dukapos/internal/ledger/shared"
)

// AccountDirectory resolves account codes for a channel.
type AccountDirectory interface {
	ListByCodes(ctx context.Context, channelID int64, codes []string) ([]accounts.Account, error)
	ListByChannel(ctx context.Context, channelID int64) ([]accounts.Account, error)
}

// PeriodGuard gates postings by entry date.
type PeriodGuard interface {
	EnsureOpen(ctx context.Context, channelID int64, entryDate time.Time) error
}

// BalanceInvalidator drops cached balances touched by a posting.
type BalanceInvalidator interface {
	InvalidateAccounts(ctx context.Context, channelID int64, codes []string)
}

// Recorder counts postings for observability.
type Recorder interface {
	PostingRecorded(sourceType string)
}

// Engine converts business events into balanced journal entries with
// exactly-once economic effect per (channel, sourceType, sourceId).
type Engine struct {
	repo        Repository
	directory   AccountDirectory
	guard       PeriodGuard
	invalidator BalanceInvalidator
	recorder    Recorder
	logger      *slog.Logger
}

// NewEngine constructs the posting engine.
func NewEngine(repo Repository, directory AccountDirectory, guard PeriodGuard, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, directory: directory, guard: guard, logger: logger}
}

// WithInvalidator attaches a balance cache invalidation hook.
func (e *Engine) WithInvalidator(inv BalanceInvalidator) *Engine {
	e.invalidator = inv
	return e
}

// WithRecorder attaches a metrics recorder.
func (e *Engine) WithRecorder(rec Recorder) *Engine {
	e.recorder = rec
	return e
}

// Post records a balanced journal entry for a business event. Calling it
// again with the same (channel, sourceType, sourceId) returns the first
// entry unchanged, so redelivery and retries are safe.
func (e *Engine) Post(ctx context.Context, in Input) (JournalEntry, error) {
	if existing, found, err := e.repo.FindBySource(ctx, in.ChannelID, in.SourceType, in.SourceID); err != nil {
		return JournalEntry{}, err
	} else if found {
		return existing, nil
	}

	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if e.guard != nil {
		if err := e.guard.EnsureOpen(ctx, in.ChannelID, in.EntryDate); err != nil {
			return JournalEntry{}, err
		}
	}
	resolved, err := e.resolveLines(ctx, in)
	if err != nil {
		return JournalEntry{}, err
	}

	var entry JournalEntry
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertMoneyEvent(ctx, in); err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, in)
		if err != nil {
			return err
		}
		lines, err := tx.InsertLines(ctx, inserted.ID, in.ChannelID, resolved)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSourceConflict) {
			// Lost the insert race: the winner's entry is the result.
			winner, found, readErr := e.repo.FindBySource(ctx, in.ChannelID, in.SourceType, in.SourceID)
			if readErr != nil {
				return JournalEntry{}, readErr
			}
			if !found {
				return JournalEntry{}, err
			}
			return winner, nil
		}
		return JournalEntry{}, err
	}

	if e.recorder != nil {
		e.recorder.PostingRecorded(in.SourceType)
	}
	if e.invalidator != nil {
		e.invalidator.InvalidateAccounts(ctx, in.ChannelID, in.AccountCodes())
	}
	if e.logger != nil {
		e.logger.Info("journal entry posted",
			slog.Int64("channel_id", in.ChannelID),
			slog.String("source_type", in.SourceType),
			slog.String("source_id", in.SourceID),
			slog.Int64("entry_id", entry.ID))
	}
	return entry, nil
}

// FindBySource returns the entry posted for a source, if any.
func (e *Engine) FindBySource(ctx context.Context, channelID int64, sourceType, sourceID string) (JournalEntry, bool, error) {
	return e.repo.FindBySource(ctx, channelID, sourceType, sourceID)
}

// GetEntry loads one journal entry with its lines.
func (e *Engine) GetEntry(ctx context.Context, entryID int64) (JournalEntry, error) {
	return e.repo.GetEntry(ctx, entryID)
}

// Reverse posts a compensating entry that mirrors the original with
// debit and credit swapped. The original entry is never mutated; the
// reversal lands on reversalDate, which must fall in an open period.
func (e *Engine) Reverse(ctx context.Context, entryID int64, reversalDate time.Time, actorID int64, memo string) (JournalEntry, error) {
	original, err := e.repo.GetEntry(ctx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if memo == "" {
		memo = fmt.Sprintf("Reversal of entry %d (%s %s)", original.ID, original.SourceType, original.SourceID)
	}
	lines := make([]LineInput, 0, len(original.Lines))
	codes, err := e.codesForAccountIDs(ctx, original)
	if err != nil {
		return JournalEntry{}, err
	}
	for _, line := range original.Lines {
		lines = append(lines, LineInput{
			AccountCode: codes[line.AccountID],
			Debit:       line.Credit,
			Credit:      line.Debit,
			Meta:        line.Meta,
		})
	}
	return e.Post(ctx, Input{
		ChannelID:  original.ChannelID,
		SourceType: original.SourceType + ":REVERSAL",
		SourceID:   uuid.NewString(),
		EntryDate:  reversalDate,
		Memo:       memo,
		PostedBy:   actorID,
		Lines:      lines,
	})
}

func (e *Engine) resolveLines(ctx context.Context, in Input) ([]resolvedLine, error) {
	codes := in.AccountCodes()
	found, err := e.directory.ListByCodes(ctx, in.ChannelID, codes)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]accounts.Account, len(found))
	for _, a := range found {
		byCode[a.Code] = a
	}
	var missing []string
	for _, code := range codes {
		if _, ok := byCode[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("posting: channel %d missing accounts %s: %w",
			in.ChannelID, strings.Join(missing, ", "), shared.ErrAccountNotFound)
	}
	resolved := make([]resolvedLine, 0, len(in.Lines))
	for _, line := range in.Lines {
		resolved = append(resolved, resolvedLine{
			AccountID: byCode[line.AccountCode].ID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Meta:      line.Meta,
		})
	}
	return resolved, nil
}

func (e *Engine) codesForAccountIDs(ctx context.Context, entry JournalEntry) (map[int64]string, error) {
	chart, err := e.directory.ListByChannel(ctx, entry.ChannelID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]string, len(chart))
	for _, a := range chart {
		byID[a.ID] = a.Code
	}
	for _, line := range entry.Lines {
		if _, ok := byID[line.AccountID]; !ok {
			return nil, shared.ErrAccountNotFound
		}
	}
	return byID, nil
}
