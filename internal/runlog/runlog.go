// Package runlog keeps finalized run summaries in a local SQLite file so a
// later invocation can replay the ranges a run failed to write.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/atlasgrowth23/lapermits/internal/ingest"
)

// ErrNotFound is returned by Load for an unknown run id
var ErrNotFound = errors.New("run not found")

// Source kinds recorded with each run
const (
	KindCSV  = "csv"
	KindFeed = "feed"
)

// Entry is one recorded run plus what is needed to reopen its source
type Entry struct {
	Summary   ingest.RunSummary `json:"summary"`
	Kind      string            `json:"kind"`
	Delimiter string            `json:"delimiter,omitempty"`
	Filter    string            `json:"filter,omitempty"`
}

// Ledger is the SQLite-backed run log
type Ledger struct {
	db *sql.DB
}

// Open creates the ledger file and table if needed
func Open(path string) (*Ledger, error) {
	if path == "" {
		path = "runs.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		dataset TEXT NOT NULL,
		started_at TEXT NOT NULL,
		complete INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the ledger file
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Save records or replaces an entry
func (l *Ledger) Save(ctx context.Context, e Entry) error {
	if e.Summary.RunID == "" {
		return errors.New("run summary has no run id")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", e.Summary.RunID, err)
	}
	complete := 0
	if e.Summary.Complete() {
		complete = 1
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, dataset, started_at, complete, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			dataset = excluded.dataset,
			started_at = excluded.started_at,
			complete = excluded.complete,
			payload = excluded.payload`,
		e.Summary.RunID, e.Summary.Dataset, e.Summary.StartedAt.UTC().Format(time.RFC3339Nano), complete, payload)
	if err != nil {
		return fmt.Errorf("save run %s: %w", e.Summary.RunID, err)
	}
	return nil
}

// Load returns the entry for a run id
func (l *Ledger) Load(ctx context.Context, runID string) (Entry, error) {
	var payload []byte
	err := l.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	return decode(payload)
}

// List returns the most recent entries first, optionally for one dataset
func (l *Ledger) List(ctx context.Context, dataset string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT payload FROM runs`
	args := []any{}
	if dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, dataset)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e, err := decode(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func decode(payload []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return Entry{}, fmt.Errorf("decode run: %w", err)
	}
	return e, nil
}
