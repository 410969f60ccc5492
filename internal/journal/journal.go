package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal is a sqlite-backed record of controller state transitions. It
// survives restarts so operators can reconstruct what the device did while
// nobody was looking.
type Journal struct {
	db *sql.DB
}

// Transition is one recorded state change.
type Transition struct {
	Device string
	State  string
	Status string
	At     time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS state_transitions (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	device TEXT NOT NULL,
	state  TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_state_transitions_device_at
	ON state_transitions(device, at DESC);
`

// Open creates or opens the journal database. Use ":memory:" for an
// ephemeral journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; serialize through one connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Record appends a state transition.
func (j *Journal) Record(device, state, status string) error {
	_, err := j.db.Exec(
		`INSERT INTO state_transitions (device, state, status, at) VALUES (?, ?, ?, ?)`,
		device, state, status, time.Now().UTC())
	return err
}

// Recent returns the latest transitions for a device, newest first.
func (j *Journal) Recent(device string, limit int) ([]Transition, error) {
	rows, err := j.db.Query(
		`SELECT device, state, status, at FROM state_transitions
		 WHERE device = ? ORDER BY at DESC, id DESC LIMIT ?`,
		device, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.Device, &t.State, &t.Status, &t.At); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Last returns the most recent transition for a device, or nil when the
// journal has none.
func (j *Journal) Last(device string) (*Transition, error) {
	ts, err := j.Recent(device, 1)
	if err != nil || len(ts) == 0 {
		return nil, err
	}
	return &ts[0], nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
