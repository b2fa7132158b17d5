package event

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
	seq     INTEGER NOT NULL,
	run_id  TEXT    NOT NULL,
	type    TEXT    NOT NULL,
	time    TEXT    NOT NULL,
	payload TEXT    NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (run_id, type);
`

// SQLiteStore persists envelopes to a SQLite database, one row per event.
// Useful when runs are inspected with ad-hoc queries rather than log tailing.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the event database at {dir}/events.db.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event store directory: %w", err)
	}

	path := filepath.Join(dir, "events.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event database: %w", err)
	}

	if _, err := db.Exec(createEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize event schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append inserts one envelope.
func (s *SQLiteStore) Append(env Envelope) error {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO events (seq, run_id, type, time, payload) VALUES (?, ?, ?, ?, ?)`,
		env.Seq, env.RunID, env.Type, env.Time.Format("2006-01-02T15:04:05.000Z07:00"), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// StoredEvent is one persisted event row, with the payload left as raw JSON.
type StoredEvent struct {
	Seq     uint64
	RunID   string
	Type    string
	Time    string
	Payload json.RawMessage
}

// Events returns all events for a run in sequence order. This is a reader
// for the `steward events` command; the run loop itself never calls it.
func (s *SQLiteStore) Events(runID string) ([]StoredEvent, error) {
	rows, err := s.db.Query(
		`SELECT seq, run_id, type, time, payload FROM events WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payload string
		if err := rows.Scan(&e.Seq, &e.RunID, &e.Type, &e.Time, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Runs returns the distinct run IDs present in the store, most recent first.
func (s *SQLiteStore) Runs() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT run_id FROM events GROUP BY run_id ORDER BY MAX(time) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
