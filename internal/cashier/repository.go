package cashier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	platformdb "github.com/dukapos/dukapos/internal/platform/db"
)

// Repository persists sessions, drawer counts and verifications.
type Repository interface {
	InsertSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	OpenSessionForRegister(ctx context.Context, channelID int64, registerID string) (Session, bool, error)
	CloseSession(ctx context.Context, id string, closedAt time.Time) error
	ListSessions(ctx context.Context, channelID int64, filter ListFilter) ([]Session, error)
	CountSessionsOpenedBetween(ctx context.Context, channelID int64, start, end time.Time, status SessionStatus) (int, error)

	InsertCount(ctx context.Context, c DrawerCount) (DrawerCount, error)
	GetCount(ctx context.Context, id int64) (DrawerCount, error)
	CountForSession(ctx context.Context, sessionID string, countType CountType) (DrawerCount, bool, error)
	MarkCountReviewed(ctx context.Context, c DrawerCount) error
	SetCountExplanation(ctx context.Context, id int64, explanation string) error
	ListPendingReviews(ctx context.Context, channelID int64) ([]DrawerCount, error)
	CountPendingReviewsBetween(ctx context.Context, channelID int64, start, end time.Time) (int, error)

	InsertVerification(ctx context.Context, v MpesaVerification) (MpesaVerification, error)
	VerificationForSession(ctx context.Context, sessionID string) (MpesaVerification, bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const sessionColumns = `id, channel_id, location_id, register_id, cashier_user_id,
	opening_float, status, opened_at, closed_at`

func (r *repository) InsertSession(ctx context.Context, s Session) (Session, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO cashier_sessions
		(id, channel_id, location_id, register_id, cashier_user_id, opening_float, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING opened_at`,
		s.ID, s.ChannelID, s.LocationID, s.RegisterID, s.CashierUserID,
		platformdb.DecimalToNumeric(s.OpeningFloat), s.Status)
	if err := row.Scan(&s.OpenedAt); err != nil {
		if platformdb.IsUniqueViolation(err, "uq_cashier_sessions_open_register") {
			return Session{}, ErrSessionAlreadyOpen
		}
		return Session{}, fmt.Errorf("cashier: insert session: %w", err)
	}
	return s, nil
}

func (r *repository) GetSession(ctx context.Context, id string) (Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM cashier_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *repository) OpenSessionForRegister(ctx context.Context, channelID int64, registerID string) (Session, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM cashier_sessions
		WHERE channel_id = $1 AND register_id = $2 AND status = $3`,
		channelID, registerID, SessionOpen)
	s, err := scanSession(row)
	if errors.Is(err, ErrSessionNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *repository) CloseSession(ctx context.Context, id string, closedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cashier_sessions SET status = $2, closed_at = $3
		WHERE id = $1 AND status = $4`, id, SessionClosed, closedAt, SessionOpen)
	if err != nil {
		return fmt.Errorf("cashier: close session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionClosed
	}
	return nil
}

func (r *repository) ListSessions(ctx context.Context, channelID int64, filter ListFilter) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM cashier_sessions WHERE channel_id = $1`
	args := []any{channelID}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND opened_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND opened_at <= $%d", len(args))
	}
	query += " ORDER BY opened_at DESC"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cashier: list sessions: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) CountSessionsOpenedBetween(ctx context.Context, channelID int64, start, end time.Time, status SessionStatus) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cashier_sessions
		WHERE channel_id = $1 AND opened_at >= $2 AND opened_at <= $3 AND status = $4`,
		channelID, start, end, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("cashier: count sessions: %w", err)
	}
	return count, nil
}

const countColumns = `id, session_id, channel_id, count_type, declared_total, expected_total, variance,
	status, explanation, counted_by, reviewed_by, counted_at, reviewed_at`

func (r *repository) InsertCount(ctx context.Context, c DrawerCount) (DrawerCount, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO cash_drawer_counts
		(session_id, channel_id, count_type, declared_total, expected_total, variance, status, counted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, counted_at`,
		c.SessionID, c.ChannelID, c.Type,
		platformdb.DecimalToNumeric(c.DeclaredTotal), platformdb.DecimalToNumeric(c.ExpectedTotal),
		platformdb.DecimalToNumeric(c.Variance), c.Status, c.CountedBy)
	if err := row.Scan(&c.ID, &c.CountedAt); err != nil {
		if platformdb.IsUniqueViolation(err, "uq_cash_drawer_counts_session") {
			return DrawerCount{}, ErrCountAlreadySubmitted
		}
		return DrawerCount{}, fmt.Errorf("cashier: insert count: %w", err)
	}
	return c, nil
}

func (r *repository) GetCount(ctx context.Context, id int64) (DrawerCount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+countColumns+` FROM cash_drawer_counts WHERE id = $1`, id)
	return scanCount(row)
}

func (r *repository) CountForSession(ctx context.Context, sessionID string, countType CountType) (DrawerCount, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+countColumns+` FROM cash_drawer_counts
		WHERE session_id = $1 AND count_type = $2`, sessionID, countType)
	c, err := scanCount(row)
	if errors.Is(err, ErrCountNotFound) {
		return DrawerCount{}, false, nil
	}
	if err != nil {
		return DrawerCount{}, false, err
	}
	return c, true, nil
}

func (r *repository) MarkCountReviewed(ctx context.Context, c DrawerCount) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cash_drawer_counts
		SET status = $2, reviewed_by = $3, reviewed_at = $4, explanation = $5
		WHERE id = $1 AND status = $6`,
		c.ID, CountReviewed, c.ReviewedBy, c.ReviewedAt, c.Explanation, CountPendingReview)
	if err != nil {
		return fmt.Errorf("cashier: review count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCountNotFound
	}
	return nil
}

func (r *repository) SetCountExplanation(ctx context.Context, id int64, explanation string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cash_drawer_counts SET explanation = $2 WHERE id = $1`, id, explanation)
	if err != nil {
		return fmt.Errorf("cashier: set explanation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCountNotFound
	}
	return nil
}

func (r *repository) ListPendingReviews(ctx context.Context, channelID int64) ([]DrawerCount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+countColumns+` FROM cash_drawer_counts
		WHERE channel_id = $1 AND status = $2 ORDER BY counted_at`, channelID, CountPendingReview)
	if err != nil {
		return nil, fmt.Errorf("cashier: pending reviews: %w", err)
	}
	defer rows.Close()
	var out []DrawerCount
	for rows.Next() {
		c, err := scanCount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) CountPendingReviewsBetween(ctx context.Context, channelID int64, start, end time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cash_drawer_counts
		WHERE channel_id = $1 AND status = $2 AND counted_at >= $3 AND counted_at <= $4`,
		channelID, CountPendingReview, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("cashier: count pending reviews: %w", err)
	}
	return count, nil
}

func (r *repository) InsertVerification(ctx context.Context, v MpesaVerification) (MpesaVerification, error) {
	flagged, err := json.Marshal(v.FlaggedTransactionIDs)
	if err != nil {
		return MpesaVerification{}, fmt.Errorf("cashier: marshal flagged ids: %w", err)
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO mpesa_verifications
		(session_id, channel_id, expected_total, verified_total, variance, transaction_count,
		 all_confirmed, flagged_transaction_ids, verified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		v.SessionID, v.ChannelID,
		platformdb.DecimalToNumeric(v.ExpectedTotal), platformdb.DecimalToNumeric(v.VerifiedTotal),
		platformdb.DecimalToNumeric(v.Variance), v.TransactionCount, v.AllConfirmed, flagged, v.VerifiedBy)
	if err := row.Scan(&v.ID, &v.CreatedAt); err != nil {
		return MpesaVerification{}, fmt.Errorf("cashier: insert verification: %w", err)
	}
	return v, nil
}

func (r *repository) VerificationForSession(ctx context.Context, sessionID string) (MpesaVerification, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, session_id, channel_id, expected_total, verified_total,
		variance, transaction_count, all_confirmed, flagged_transaction_ids, verified_by, created_at
		FROM mpesa_verifications WHERE session_id = $1 ORDER BY id DESC LIMIT 1`, sessionID)
	var (
		v                           MpesaVerification
		expected, verified, varianc pgtype.Numeric
		flagged                     []byte
	)
	err := row.Scan(&v.ID, &v.SessionID, &v.ChannelID, &expected, &verified, &varianc,
		&v.TransactionCount, &v.AllConfirmed, &flagged, &v.VerifiedBy, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MpesaVerification{}, false, nil
	}
	if err != nil {
		return MpesaVerification{}, false, fmt.Errorf("cashier: verification: %w", err)
	}
	v.ExpectedTotal = platformdb.NumericToDecimal(expected)
	v.VerifiedTotal = platformdb.NumericToDecimal(verified)
	v.Variance = platformdb.NumericToDecimal(varianc)
	if len(flagged) > 0 {
		if err := json.Unmarshal(flagged, &v.FlaggedTransactionIDs); err != nil {
			return MpesaVerification{}, false, fmt.Errorf("cashier: unmarshal flagged ids: %w", err)
		}
	}
	return v, true, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		s     Session
		float pgtype.Numeric
	)
	err := row.Scan(&s.ID, &s.ChannelID, &s.LocationID, &s.RegisterID, &s.CashierUserID,
		&float, &s.Status, &s.OpenedAt, &s.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("cashier: scan session: %w", err)
	}
	s.OpeningFloat = platformdb.NumericToDecimal(float)
	return s, nil
}

func scanCount(row pgx.Row) (DrawerCount, error) {
	var (
		c                            DrawerCount
		declared, expected, variance pgtype.Numeric
	)
	err := row.Scan(&c.ID, &c.SessionID, &c.ChannelID, &c.Type, &declared, &expected, &variance,
		&c.Status, &c.Explanation, &c.CountedBy, &c.ReviewedBy, &c.CountedAt, &c.ReviewedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DrawerCount{}, ErrCountNotFound
	}
	if err != nil {
		return DrawerCount{}, fmt.Errorf("cashier: scan count: %w", err)
	}
	c.DeclaredTotal = platformdb.NumericToDecimal(declared)
	c.ExpectedTotal = platformdb.NumericToDecimal(expected)
	c.Variance = platformdb.NumericToDecimal(variance)
	return c, nil
}
