package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"tickvault/internal/domain"
)

// Compile-time interface check.
var _ Journal = (*RunJournal)(nil)

// RunJournal records ingest outcomes in a SQLite database. It is an audit
// trail, not a source of truth: partition existence on disk always wins.
type RunJournal struct {
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS ingest_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL,
	date        TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ingest_log_symbol_date ON ingest_log(symbol, date);
`

// OpenRunJournal opens (or creates) the journal database at dbPath.
func OpenRunJournal(dbPath string) (*RunJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", dbPath, err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising journal schema: %w", err)
	}
	return &RunJournal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *RunJournal) Close() error {
	return j.db.Close()
}

// RecordOutcome appends one ingest outcome for (symbol, date).
func (j *RunJournal) RecordOutcome(ctx context.Context, symbol string, date time.Time, outcome domain.Outcome, detail string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO ingest_log (symbol, date, outcome, detail, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		symbol, domain.FormatDate(date), outcome.String(), detail,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording outcome %s/%s: %w", symbol, domain.FormatDate(date), err)
	}
	return nil
}

// LastOutcome returns the most recently recorded outcome for (symbol, date),
// or ok=false when the pair was never journaled.
func (j *RunJournal) LastOutcome(ctx context.Context, symbol string, date time.Time) (string, bool, error) {
	var outcome string
	err := j.db.QueryRowContext(ctx,
		`SELECT outcome FROM ingest_log WHERE symbol = ? AND date = ? ORDER BY id DESC LIMIT 1`,
		symbol, domain.FormatDate(date),
	).Scan(&outcome)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying outcome %s/%s: %w", symbol, domain.FormatDate(date), err)
	}
	return outcome, true, nil
}

// FailureCount returns how many failed outcomes were recorded since the given
// time.
func (j *RunJournal) FailureCount(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingest_log WHERE outcome = ? AND recorded_at >= ?`,
		domain.OutcomeFailed.String(), since.UTC().Format(time.RFC3339),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting failures: %w", err)
	}
	return n, nil
}
