// Package journal persists a record of daemon sessions and the renders they
// served, so "farmhand sessions" can report history after the daemons are
// gone.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Session is one daemon lifetime.
type Session struct {
	ID        string
	SceneFile string
	PID       int
	StartedAt time.Time
	EndedAt   time.Time
	State     string
	Renders   int
	Failure   string
}

// Session states.
const (
	StateRunning = "running"
	StateStopped = "stopped"
	StateFailed  = "failed"
)

type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	scene_file TEXT NOT NULL,
	pid INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	state TEXT NOT NULL,
	renders INTEGER NOT NULL DEFAULT 0,
	failure TEXT NOT NULL DEFAULT ''
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Begin records the start of a session. A restarted session with the same id
// resets its record.
func (j *Journal) Begin(id, sceneFile string, pid int, startedAt time.Time) error {
	_, err := j.db.Exec(
		`INSERT INTO sessions (id, scene_file, pid, started_at, state)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 scene_file = excluded.scene_file,
		 pid = excluded.pid,
		 started_at = excluded.started_at,
		 ended_at = NULL,
		 state = excluded.state,
		 renders = 0,
		 failure = ''`,
		id, sceneFile, pid, startedAt.UTC().Format(time.RFC3339), StateRunning,
	)
	if err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

// RecordRender bumps the render counter of a session.
func (j *Journal) RecordRender(id string) error {
	if _, err := j.db.Exec(`UPDATE sessions SET renders = renders + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("record render: %w", err)
	}
	return nil
}

// End closes out a session. failure is empty for a clean stop.
func (j *Journal) End(id string, endedAt time.Time, failure string) error {
	state := StateStopped
	if failure != "" {
		state = StateFailed
	}
	_, err := j.db.Exec(
		`UPDATE sessions SET ended_at = ?, state = ?, failure = ? WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339), state, failure, id,
	)
	if err != nil {
		return fmt.Errorf("record session end: %w", err)
	}
	return nil
}

// Get returns one session by id.
func (j *Journal) Get(id string) (Session, bool, error) {
	row := j.db.QueryRow(
		`SELECT id, scene_file, pid, started_at, ended_at, state, renders, failure
		 FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("query session %q: %w", id, err)
	}
	return s, true, nil
}

// List returns the most recent sessions, newest first. limit <= 0 returns
// all of them.
func (j *Journal) List(limit int) ([]Session, error) {
	query := `SELECT id, scene_file, pid, started_at, ended_at, state, renders, failure
		 FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func scanSession(scan func(...any) error) (Session, error) {
	var s Session
	var startedAt string
	var endedAt sql.NullString
	if err := scan(&s.ID, &s.SceneFile, &s.PID, &startedAt, &endedAt, &s.State, &s.Renders, &s.Failure); err != nil {
		return Session{}, err
	}
	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse session start time: %w", err)
	}
	s.StartedAt = t
	if endedAt.Valid && endedAt.String != "" {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse session end time: %w", err)
		}
		s.EndedAt = t
	}
	return s, nil
}
