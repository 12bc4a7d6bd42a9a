package posting

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukapos/dukapos/internal/ledger/shared"
	platformdb "github.com/dukapos/dukapos/internal/platform/db"
)

// ErrSourceConflict signals the unique (channel, source_type, source_id)
// constraint fired; the engine resolves it by re-reading the winner.
var ErrSourceConflict = errors.New("posting: source already posted")

// Repository encapsulates DB operations for journal postings.
type Repository interface {
	FindBySource(ctx context.Context, channelID int64, sourceType, sourceID string) (JournalEntry, bool, error)
	GetEntry(ctx context.Context, entryID int64) (JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within the posting transaction.
type TxRepository interface {
	InsertMoneyEvent(ctx context.Context, in Input) error
	InsertEntry(ctx context.Context, in Input) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, channelID int64, lines []resolvedLine) ([]JournalLine, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) FindBySource(ctx context.Context, channelID int64, sourceType, sourceID string) (JournalEntry, bool, error) {
	var e JournalEntry
	err := r.pool.QueryRow(ctx, `SELECT id, channel_id, source_type, source_id, entry_date, memo, posted_by, created_at
FROM journal_entries WHERE channel_id=$1 AND source_type=$2 AND source_id=$3`, channelID, sourceType, sourceID).
		Scan(&e.ID, &e.ChannelID, &e.SourceType, &e.SourceID, &e.EntryDate, &e.Memo, &e.PostedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, false, nil
		}
		return JournalEntry{}, false, err
	}
	lines, err := r.linesFor(ctx, e.ID)
	if err != nil {
		return JournalEntry{}, false, err
	}
	e.Lines = lines
	return e, true, nil
}

func (r *repository) GetEntry(ctx context.Context, entryID int64) (JournalEntry, error) {
	var e JournalEntry
	err := r.pool.QueryRow(ctx, `SELECT id, channel_id, source_type, source_id, entry_date, memo, posted_by, created_at
FROM journal_entries WHERE id=$1`, entryID).
		Scan(&e.ID, &e.ChannelID, &e.SourceType, &e.SourceID, &e.EntryDate, &e.Memo, &e.PostedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	lines, err := r.linesFor(ctx, e.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	e.Lines = lines
	return e, nil
}

func (r *repository) linesFor(ctx context.Context, entryID int64) ([]JournalLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, entry_id, channel_id, account_id, debit, credit, meta, created_at
FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		var debit, credit pgtype.Numeric
		var meta []byte
		if err := rows.Scan(&line.ID, &line.EntryID, &line.ChannelID, &line.AccountID, &debit, &credit, &meta, &line.CreatedAt); err != nil {
			return nil, err
		}
		line.Debit = platformdb.NumericToDecimal(debit)
		line.Credit = platformdb.NumericToDecimal(credit)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &line.Meta); err != nil {
				return nil, err
			}
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return platformdb.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertMoneyEvent(ctx context.Context, in Input) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO money_events (channel_id, source_type, source_id, entry_date)
VALUES ($1,$2,$3,$4)`, in.ChannelID, in.SourceType, in.SourceID, in.EntryDate)
	if err != nil {
		if platformdb.IsUniqueViolation(err, "") {
			return ErrSourceConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) InsertEntry(ctx context.Context, in Input) (JournalEntry, error) {
	var e JournalEntry
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (channel_id, source_type, source_id, entry_date, memo, posted_by)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, channel_id, source_type, source_id, entry_date, memo, posted_by, created_at`,
		in.ChannelID, in.SourceType, in.SourceID, in.EntryDate, in.Memo, in.PostedBy).
		Scan(&e.ID, &e.ChannelID, &e.SourceType, &e.SourceID, &e.EntryDate, &e.Memo, &e.PostedBy, &e.CreatedAt)
	if err != nil {
		if platformdb.IsUniqueViolation(err, "") {
			return JournalEntry{}, ErrSourceConflict
		}
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, channelID int64, lines []resolvedLine) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		var meta []byte
		if len(line.Meta) > 0 {
			var err error
			meta, err = json.Marshal(line.Meta)
			if err != nil {
				return nil, err
			}
		}
		var inserted JournalLine
		var debit, credit pgtype.Numeric
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, channel_id, account_id, debit, credit, meta)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, entry_id, channel_id, account_id, debit, credit, created_at`,
			entryID, channelID, line.AccountID,
			platformdb.DecimalToNumeric(line.Debit), platformdb.DecimalToNumeric(line.Credit), meta).
			Scan(&inserted.ID, &inserted.EntryID, &inserted.ChannelID, &inserted.AccountID, &debit, &credit, &inserted.CreatedAt)
		if err != nil {
			return nil, err
		}
		inserted.Debit = platformdb.NumericToDecimal(debit)
		inserted.Credit = platformdb.NumericToDecimal(credit)
		inserted.Meta = line.Meta
		out = append(out, inserted)
	}
	return out, nil
}
