package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/edforge/interview/internal/domain"
)

// SQLiteStore backs the validator with a local sqlite database. Production
// deployments point Store at the hosted platform database instead; this
// implementation covers standalone and development runs.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS interview_sessions (
	id            TEXT PRIMARY KEY,
	instructor_id TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'scheduled'
);
CREATE TABLE IF NOT EXISTS interview_bookings (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	learner_id     TEXT NOT NULL,
	session_id     TEXT NOT NULL,
	booking_status TEXT NOT NULL,
	UNIQUE (learner_id, session_id)
);
`

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SessionOwner(ctx context.Context, sid domain.SessionID) (domain.UserID, error) {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT instructor_id FROM interview_sessions WHERE id = ?`, string(sid),
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query session owner: %w", err)
	}
	return domain.UserID(owner), nil
}

func (s *SQLiteStore) HasActiveBooking(ctx context.Context, uid domain.UserID, sid domain.SessionID) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM interview_bookings
		 WHERE learner_id = ? AND session_id = ? AND booking_status IN ('confirmed', 'pending')`,
		string(uid), string(sid),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query booking: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) SessionStatus(ctx context.Context, sid domain.SessionID) (domain.SessionStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM interview_sessions WHERE id = ?`, string(sid),
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query session status: %w", err)
	}
	return domain.SessionStatus(status), nil
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, sid domain.SessionID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions SET status = 'completed' WHERE id = ?`, string(sid),
	)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
