// Package ledger persists export history in an embedded SQLite database so
// repeated crawls skip receipts that are already on disk.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const dayFormat = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	window_start TEXT NOT NULL,
	window_end   TEXT NOT NULL,
	status       TEXT NOT NULL,
	found        INTEGER NOT NULL DEFAULT 0,
	exported     INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS receipts (
	order_id    TEXT PRIMARY KEY,
	order_date  TEXT NOT NULL,
	detail_url  TEXT NOT NULL,
	pdf_path    TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	exported_at TEXT NOT NULL
);
`

// Run is one crawl invocation.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	WindowStart time.Time
	WindowEnd   time.Time
	Status      string
	Found       int
	Exported    int
	Skipped     int
	Failed      int
}

// Ledger wraps the SQLite database holding runs and exported receipts.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// The ledger is single-user; one connection avoids write contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun inserts a new run row in the running state.
func (l *Ledger) StartRun(ctx context.Context, runID string, windowStart, windowEnd time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, window_start, window_end, status)
		 VALUES (?, ?, ?, ?, 'running')`,
		runID,
		time.Now().UTC().Format(time.RFC3339),
		windowStart.Format(dayFormat),
		windowEnd.Format(dayFormat),
	)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// FinishRun stamps a run with its final status and counters.
func (l *Ledger) FinishRun(ctx context.Context, runID, status string, found, exported, skipped, failed int) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs
		 SET finished_at = ?, status = ?, found = ?, exported = ?, skipped = ?, failed = ?
		 WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339),
		status, found, exported, skipped, failed, runID,
	)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// Record upserts one exported receipt. A re-export overwrites the previous
// row so the ledger always points at the current file.
func (l *Ledger) Record(ctx context.Context, orderID string, orderDate time.Time, detailURL, pdfPath, runID string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO receipts (order_id, order_date, detail_url, pdf_path, run_id, exported_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(order_id) DO UPDATE SET
			order_date = excluded.order_date,
			detail_url = excluded.detail_url,
			pdf_path = excluded.pdf_path,
			run_id = excluded.run_id,
			exported_at = excluded.exported_at`,
		orderID,
		orderDate.Format(dayFormat),
		detailURL,
		pdfPath,
		runID,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording receipt %s: %w", orderID, err)
	}
	return nil
}

// Lookup reports the recorded PDF path for an order, with ok false on miss.
func (l *Ledger) Lookup(ctx context.Context, orderID string) (string, bool, error) {
	var path string
	err := l.db.QueryRowContext(ctx,
		`SELECT pdf_path FROM receipts WHERE order_id = ?`, orderID,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up receipt %s: %w", orderID, err)
	}
	return path, true, nil
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), window_start, window_end,
		        status, found, exported, skipped, failed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished, wStart, wEnd string
		if err := rows.Scan(&r.ID, &started, &finished, &wStart, &wEnd,
			&r.Status, &r.Found, &r.Exported, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		}
		r.WindowStart, _ = time.Parse(dayFormat, wStart)
		r.WindowEnd, _ = time.Parse(dayFormat, wEnd)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
