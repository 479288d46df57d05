// Package store defines the partitioned archive abstractions: the partition
// store over daily and yearly OHLCV files, and the run journal that records
// ingest outcomes.
package store

import (
	"context"
	"time"

	"tickvault/internal/domain"
)

// PartitionStore persists and retrieves daily and yearly partitions. Daily
// partitions are addressed by (symbol, date), yearly ones by (symbol, year);
// the physical file name is deterministic from the key so external tools can
// locate partitions without an index. All writes are atomic: a file visible
// at its final path is complete.
type PartitionStore interface {
	// ExistsDaily reports whether the daily partition is present. A file at
	// the final path is the sole visibility signal.
	ExistsDaily(symbol string, date time.Time) bool

	// WriteDaily atomically writes the daily partition for (symbol, date).
	WriteDaily(ctx context.Context, symbol string, date time.Time, rows []domain.Row) error

	// ReadDaily returns the rows of an existing daily partition.
	ReadDaily(ctx context.Context, symbol string, date time.Time) ([]domain.Row, error)

	// ListDates returns every date with a complete daily partition for the
	// symbol, ascending.
	ListDates(ctx context.Context, symbol string) ([]time.Time, error)

	// ListYears returns every year with a yearly partition for the symbol,
	// ascending.
	ListYears(ctx context.Context, symbol string) ([]int, error)

	// ReadYearlyTimestamps returns only the timestamp column of the yearly
	// partition, to bound memory. A missing partition yields (nil, nil).
	ReadYearlyTimestamps(ctx context.Context, symbol string, year int) ([]time.Time, error)

	// ReadYearlyFull returns every row of the yearly partition. A missing
	// partition yields (nil, nil).
	ReadYearlyFull(ctx context.Context, symbol string, year int) ([]domain.Row, error)

	// WriteYearly atomically replaces the yearly partition for (symbol, year).
	WriteYearly(ctx context.Context, symbol string, year int, rows []domain.Row) error
}

// Journal records per-date ingest outcomes for resumability audits and the
// end-of-run failure accounting.
type Journal interface {
	// RecordOutcome appends one ingest outcome for (symbol, date).
	RecordOutcome(ctx context.Context, symbol string, date time.Time, outcome domain.Outcome, detail string) error
}
