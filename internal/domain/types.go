// Package domain defines the value types shared across the archive:
// instruments, canonical OHLCV rows, raw fetch results, and ingest outcomes.
package domain

import (
	"time"
)

// Instrument is one entry of the instrument registry: a stable internal
// symbol key, the identifier the external data provider knows it by, and the
// earliest date for which history is required. Immutable reference data.
type Instrument struct {
	Symbol       string
	ProviderID   string
	EarliestDate time.Time // UTC midnight
}

// Row is one canonical observation. Column order in storage is fixed:
// symbol, timestamp, unix_time, open, high, low, close, volume.
type Row struct {
	Symbol    string
	Timestamp time.Time // UTC
	UnixTime  int64     // whole seconds since epoch, floor of Timestamp
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Date returns the UTC calendar date of the row.
func (r Row) Date() time.Time {
	return Midnight(r.Timestamp)
}

// RawTable is one day of provider rows prior to normalization: a header of
// column names plus string-valued records. Providers differ in which columns
// they emit; only timestamp is guaranteed downstream.
type RawTable struct {
	Columns []string
	Records [][]string
}

// Column returns the index of the named column, or -1 if absent.
func (t *RawTable) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Empty reports whether the table carries no records.
func (t *RawTable) Empty() bool {
	return t == nil || len(t.Records) == 0
}

// Outcome classifies a single-date ingest attempt.
type Outcome int

const (
	OutcomeWritten Outcome = iota
	OutcomeAlreadyPresent
	OutcomeNoData
	OutcomeFailed
)

// String returns the journal/log representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeAlreadyPresent:
		return "already_present"
	case OutcomeNoData:
		return "no_data"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
