package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/CostinMirescu/sala-alternativa/internal/store"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, q string, args ...any) *sql.Row
}

// Repository persists sessions, codes, attendance and attempts.
// Timestamps are written in UTC. Placeholders are numbered in order of first
// use so the same SQL runs on Postgres and SQLite.
type Repository struct {
	db DBTX
}

// NewRepository creates a repo.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, class_id, starts_at, ends_at, frozen_present_count, frozen_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s      Session
		frozen sql.NullInt64
		at     sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.ClassID, &s.StartsAt, &s.EndsAt, &frozen, &at); err != nil {
		return Session{}, err
	}
	if frozen.Valid {
		n := int(frozen.Int64)
		s.FrozenPresentCount = &n
	}
	if at.Valid {
		t := at.Time
		s.FrozenAt = &t
	}
	return s, nil
}

// GetSession returns the session or nil when it does not exist.
func (r *Repository) GetSession(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// NextSession returns the earliest session of the class ending at or after
// since and starting before until.
func (r *Repository) NextSession(ctx context.Context, classID string, since, until time.Time) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE class_id = $1 AND ends_at >= $2 AND starts_at < $3
		ORDER BY starts_at ASC
		LIMIT 1
	`, classID, since.UTC(), until.UTC())
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// EnsureClass creates the class row if missing.
func (r *Repository) EnsureClass(ctx context.Context, classID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classes (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, classID)
	return err
}

// InsertSession creates a session unless one already starts at the same time
// for the class. It reports whether a row was written.
func (r *Repository) InsertSession(ctx context.Context, s Session) (bool, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := r.EnsureClass(ctx, s.ClassID); err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, class_id, starts_at, ends_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (class_id, starts_at) DO NOTHING
	`, s.ID, s.ClassID, s.StartsAt.UTC(), s.EndsAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FreezePresentCount stores the present-count snapshot only if none is set.
// It reports whether this call wrote it.
func (r *Repository) FreezePresentCount(ctx context.Context, sessionID string, count int, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET frozen_present_count = $1, frozen_at = $2
		WHERE id = $3 AND frozen_present_count IS NULL
	`, count, at.UTC(), sessionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CodeAuthorized reports whether the hash belongs to the class.
func (r *Repository) CodeAuthorized(ctx context.Context, classID, codeHash string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM authorized_codes WHERE class_id = $1 AND code_hash = $2
	`, classID, codeHash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertAttendance writes the check-in row. A second row for the same
// (session, code) fails with errConflict.
func (r *Repository) InsertAttendance(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var checkIn any
	if rec.CheckInAt != nil {
		checkIn = rec.CheckInAt.UTC()
	}
	var checkinStatus any
	if rec.CheckinStatus != nil {
		checkinStatus = string(*rec.CheckinStatus)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, session_id, class_id, code_hash, status, checkin_status, check_in_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.SessionID, rec.ClassID, rec.CodeHash, string(rec.Status), checkinStatus, checkIn)
	if store.IsUniqueViolation(err) {
		return errConflict
	}
	return err
}

// GetAttendance returns the row for (session, code) or nil.
func (r *Repository) GetAttendance(ctx context.Context, sessionID, codeHash string) (*Record, error) {
	var (
		rec           Record
		status        string
		checkinStatus sql.NullString
		checkIn       sql.NullTime
		checkOut      sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, class_id, code_hash, status, checkin_status, check_in_at, check_out_at
		FROM attendance
		WHERE session_id = $1 AND code_hash = $2
	`, sessionID, codeHash).Scan(&rec.ID, &rec.SessionID, &rec.ClassID, &rec.CodeHash, &status, &checkinStatus, &checkIn, &checkOut)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Status = Status(status)
	if checkinStatus.Valid {
		s := Status(checkinStatus.String)
		rec.CheckinStatus = &s
	}
	if checkIn.Valid {
		t := checkIn.Time
		rec.CheckInAt = &t
	}
	if checkOut.Valid {
		t := checkOut.Time
		rec.CheckOutAt = &t
	}
	return &rec, nil
}

// MarkLeft sets the check-out on a checked-in row that has not left yet.
// It reports whether a row changed.
func (r *Repository) MarkLeft(ctx context.Context, sessionID, codeHash string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance
		SET status = $1, check_out_at = $2
		WHERE session_id = $3 AND code_hash = $4
		  AND check_in_at IS NOT NULL AND check_out_at IS NULL
	`, string(StatusLeft), at.UTC(), sessionID, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountCheckedIn counts the rows of a session that have a check-in, whether
// or not they have since checked out.
func (r *Repository) CountCheckedIn(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance WHERE session_id = $1 AND check_in_at IS NOT NULL
	`, sessionID).Scan(&n)
	return n, err
}

// CountByStatus returns the number of rows per status for a session.
func (r *Repository) CountByStatus(ctx context.Context, sessionID string) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM attendance WHERE session_id = $1 GROUP BY status
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[Status]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

// InsertAttempt appends a ledger row.
func (r *Repository) InsertAttempt(ctx context.Context, a Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var hash any
	if a.CodeHash != nil {
		hash = *a.CodeHash
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attempt_log (id, session_id, class_id, action, device_id, code_hash, success, reason, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.SessionID, a.ClassID, string(a.Action), a.DeviceID, hash, a.Success, string(a.Reason), a.IP, a.UserAgent, a.At.UTC())
	return err
}

// CountAttemptsSince counts attempts by the device in the session after since.
func (r *Repository) CountAttemptsSince(ctx context.Context, sessionID, deviceID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attempt_log
		WHERE session_id = $1 AND device_id = $2 AND created_at > $3
	`, sessionID, deviceID, since.UTC()).Scan(&n)
	return n, err
}

// LastSuccessfulCode returns the code hash of the device's latest successful
// attempt in the session, or nil.
func (r *Repository) LastSuccessfulCode(ctx context.Context, sessionID, deviceID string) (*string, error) {
	var hash sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT code_hash FROM attempt_log
		WHERE session_id = $1 AND device_id = $2 AND success = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionID, deviceID, true).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !hash.Valid {
		return nil, nil
	}
	return &hash.String, nil
}
