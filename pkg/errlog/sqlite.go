package errlog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-gaze/pkg/calibration"
)

// Store keeps test errors of many runs in a SQLite database.
type Store struct {
	*sql.DB
}

// OpenStore opens or creates the database at path and migrates it to the
// latest schema.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("errlog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db}
	if err := store.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Session describes one recorded test run.
type Session struct {
	ID         string     `json:"id"`
	Prefix     string     `json:"prefix"`
	Stabilized bool       `json:"stabilized"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Records    int        `json:"records"`
}

// NewSink starts a session and returns a sink recording into it. Closing
// the sink ends the session; the store stays open.
func (s *Store) NewSink(prefix string, stabilized bool) (*SQLiteSink, error) {
	id := uuid.NewString()
	_, err := s.Exec(
		"INSERT INTO test_sessions (session_id, prefix, stabilized, started_at) VALUES (?, ?, ?, ?)",
		id, prefix, stabilized, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("errlog: start session: %w", err)
	}
	return &SQLiteSink{store: s, id: id}, nil
}

// Sessions lists recorded runs, newest first.
func (s *Store) Sessions() ([]Session, error) {
	rows, err := s.Query(`
		SELECT s.session_id, s.prefix, s.stabilized, s.started_at, s.ended_at,
			(SELECT COUNT(*) FROM test_errors e WHERE e.session_id = s.session_id)
		FROM test_sessions s
		ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var ss Session
		var ended sql.NullTime
		if err := rows.Scan(&ss.ID, &ss.Prefix, &ss.Stabilized, &ss.StartedAt, &ended, &ss.Records); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			ss.EndedAt = &t
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// Errors returns the error values of a session in recording order.
func (s *Store) Errors(sessionID string) ([]float64, error) {
	rows, err := s.Query("SELECT error FROM test_errors WHERE session_id = ? ORDER BY rowid", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var e float64
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SQLiteSink records one test run. It implements calibration.ErrorSink.
type SQLiteSink struct {
	store *Store
	id    string

	mu     sync.Mutex
	closed bool
}

// SessionID returns the id of the run.
func (s *SQLiteSink) SessionID() string {
	return s.id
}

// Record implements calibration.ErrorSink.
func (s *SQLiteSink) Record(rec calibration.TestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("errlog: session %s closed", s.id)
	}
	_, err := s.store.Exec(
		"INSERT INTO test_errors (session_id, target_x, target_y, estimate_x, estimate_y, error) VALUES (?, ?, ?, ?, ?, ?)",
		s.id, rec.Target.X, rec.Target.Y, rec.Estimate.X, rec.Estimate.Y, rec.Error)
	if err != nil {
		return fmt.Errorf("errlog: record: %w", err)
	}
	return nil
}

// Close ends the session.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, err := s.store.Exec("UPDATE test_sessions SET ended_at = ? WHERE session_id = ?", time.Now().UTC(), s.id)
	if err != nil {
		return fmt.Errorf("errlog: end session: %w", err)
	}
	return nil
}
