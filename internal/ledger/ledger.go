// Package ledger is a sqlite-backed record of conflicts and run history,
// queryable by the conflicts CLI subcommand. It is independent of the
// flat-file baseline and state stores: losing it costs history, never
// sync correctness.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS conflicts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	page_id TEXT NOT NULL,
	local_path TEXT NOT NULL,
	local_hash TEXT NOT NULL,
	remote_hash TEXT NOT NULL,
	detected_at INTEGER NOT NULL,
	resolution TEXT NOT NULL DEFAULT 'unresolved',
	resolved_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_conflicts_page_id ON conflicts(page_id);

CREATE TABLE IF NOT EXISTS run_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	pages_pushed INTEGER NOT NULL DEFAULT 0,
	pages_pulled INTEGER NOT NULL DEFAULT 0,
	conflicts INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0,
	exit_code INTEGER NOT NULL DEFAULT 0
);
`

// Resolution tags how a conflict was closed.
type Resolution string

const (
	Unresolved  Resolution = "unresolved"
	KeptLocal   Resolution = "kept_local"
	KeptRemote  Resolution = "kept_remote"
	MergedClean Resolution = "merged_clean"
)

// Conflict is one row of the conflicts table.
type Conflict struct {
	ID         int64
	PageID     string
	LocalPath  string
	LocalHash  string
	RemoteHash string
	DetectedAt time.Time
	Resolution Resolution
	ResolvedAt *time.Time
}

// Run is one row of the run_history table.
type Run struct {
	ID          int64
	StartedAt   time.Time
	FinishedAt  time.Time
	PagesPushed int
	PagesPulled int
	Conflicts   int
	Errors      int
	ExitCode    int
}

// Ledger wraps the sqlite connection.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if absent) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: init schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordConflict inserts a new unresolved conflict row.
func (l *Ledger) RecordConflict(pageID, localPath, localHash, remoteHash string) (int64, error) {
	res, err := l.db.Exec(
		`INSERT INTO conflicts (page_id, local_path, local_hash, remote_hash, detected_at, resolution)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		pageID, localPath, localHash, remoteHash, time.Now().Unix(), Unresolved,
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: record conflict for %s: %w", pageID, err)
	}
	return res.LastInsertId()
}

// ResolveConflict marks a conflict row resolved.
func (l *Ledger) ResolveConflict(id int64, resolution Resolution) error {
	_, err := l.db.Exec(
		`UPDATE conflicts SET resolution = ?, resolved_at = ? WHERE id = ?`,
		resolution, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("ledger: resolve conflict %d: %w", id, err)
	}
	return nil
}

// GetConflicts returns every unresolved conflict, most recent first.
func (l *Ledger) GetConflicts() ([]Conflict, error) {
	rows, err := l.db.Query(
		`SELECT id, page_id, local_path, local_hash, remote_hash, detected_at, resolution, resolved_at
		 FROM conflicts WHERE resolution = ? ORDER BY detected_at DESC`, Unresolved,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query conflicts: %w", err)
	}
	defer rows.Close()

	var out []Conflict
	for rows.Next() {
		var c Conflict
		var detected int64
		var resolvedAt sql.NullInt64
		if err := rows.Scan(&c.ID, &c.PageID, &c.LocalPath, &c.LocalHash, &c.RemoteHash, &detected, &c.Resolution, &resolvedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan conflict row: %w", err)
		}
		c.DetectedAt = time.Unix(detected, 0)
		if resolvedAt.Valid {
			t := time.Unix(resolvedAt.Int64, 0)
			c.ResolvedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HasConflict reports whether pageID has an unresolved conflict on record.
func (l *Ledger) HasConflict(pageID string) (bool, error) {
	var count int
	err := l.db.QueryRow(`SELECT COUNT(1) FROM conflicts WHERE page_id = ? AND resolution = ?`, pageID, Unresolved).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("ledger: check conflict for %s: %w", pageID, err)
	}
	return count > 0, nil
}

// RecordRun appends one run-history row.
func (l *Ledger) RecordRun(r Run) error {
	_, err := l.db.Exec(
		`INSERT INTO run_history (started_at, finished_at, pages_pushed, pages_pulled, conflicts, errors, exit_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.Unix(), r.FinishedAt.Unix(), r.PagesPushed, r.PagesPulled, r.Conflicts, r.Errors, r.ExitCode,
	)
	if err != nil {
		return fmt.Errorf("ledger: record run: %w", err)
	}
	return nil
}

// GetHistory returns the most recent limit runs, newest first.
func (l *Ledger) GetHistory(limit int) ([]Run, error) {
	rows, err := l.db.Query(
		`SELECT id, started_at, finished_at, pages_pushed, pages_pulled, conflicts, errors, exit_code
		 FROM run_history ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query history: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.PagesPushed, &r.PagesPulled, &r.Conflicts, &r.Errors, &r.ExitCode); err != nil {
			return nil, fmt.Errorf("ledger: scan run row: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClearHistory deletes all run_history rows, for tests and `--reset`-style
// maintenance flows.
func (l *Ledger) ClearHistory() error {
	_, err := l.db.Exec(`DELETE FROM run_history`)
	if err != nil {
		return fmt.Errorf("ledger: clear history: %w", err)
	}
	return nil
}
