// Package normalize converts raw provider tables into canonical rows. The
// same raw input must normalize identically on any machine: timestamps are
// parsed as UTC regardless of the local timezone.
package normalize

import (
	"fmt"
	"strconv"
	"time"

	"tickvault/internal/domain"
)

// SchemaError reports a required or malformed column in a raw fetch result.
// It is fatal for that date's ingestion but never aborts the instrument's
// remaining dates.
type SchemaError struct {
	Column string
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: column %q: %s", e.Column, e.Reason)
}

// timestampLayouts are the provider timestamp formats, minute and second
// resolution.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// numericColumns are cast to float64 when present. A column missing from the
// raw input is omitted, not invented.
var numericColumns = []string{"open", "high", "low", "close", "volume"}

// Normalize converts raw rows into canonical rows for the given symbol key.
// The timestamp column is required; unix_time is derived as whole epoch
// seconds; the symbol key (not the provider id) is injected into every row.
func Normalize(raw *domain.RawTable, symbol string) ([]domain.Row, error) {
	tsIdx := raw.Column("timestamp")
	if tsIdx < 0 {
		return nil, &SchemaError{Column: "timestamp", Reason: "column absent"}
	}

	numIdx := make(map[string]int, len(numericColumns))
	for _, name := range numericColumns {
		if idx := raw.Column(name); idx >= 0 {
			numIdx[name] = idx
		}
	}

	rows := make([]domain.Row, 0, len(raw.Records))
	for i, rec := range raw.Records {
		if tsIdx >= len(rec) {
			return nil, &SchemaError{Column: "timestamp", Reason: fmt.Sprintf("record %d too short", i)}
		}

		ts, err := parseUTC(rec[tsIdx])
		if err != nil {
			return nil, &SchemaError{Column: "timestamp", Reason: fmt.Sprintf("record %d: %v", i, err)}
		}

		row := domain.Row{
			Symbol:    symbol,
			Timestamp: ts,
			UnixTime:  ts.Unix(),
		}
		for name, idx := range numIdx {
			if idx >= len(rec) || rec[idx] == "" {
				continue
			}
			v, err := strconv.ParseFloat(rec[idx], 64)
			if err != nil {
				return nil, &SchemaError{Column: name, Reason: fmt.Sprintf("record %d: %v", i, err)}
			}
			switch name {
			case "open":
				row.Open = v
			case "high":
				row.High = v
			case "low":
				row.Low = v
			case "close":
				row.Close = v
			case "volume":
				row.Volume = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseUTC parses a provider timestamp, forcing UTC.
func parseUTC(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
