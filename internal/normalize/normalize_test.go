package normalize

import (
	"errors"
	"testing"
	"time"

	"tickvault/internal/domain"
)

func TestNormalize(t *testing.T) {
	raw := &domain.RawTable{
		Columns: []string{"timestamp", "open", "high", "low", "close", "volume"},
		Records: [][]string{
			{"2024-05-10 00:00", "5200.0", "5201.5", "5199.0", "5200.5", "12"},
			{"2024-05-10 00:01", "5200.5", "5202.0", "5200.0", "5201.0", "8"},
		},
	}

	rows, err := Normalize(raw, "ES")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Normalize returned %d rows, want 2", len(rows))
	}

	first := rows[0]
	if first.Symbol != "ES" {
		t.Errorf("Symbol = %q, want ES (internal key injected)", first.Symbol)
	}
	wantTS := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(wantTS) {
		t.Errorf("Timestamp = %v, want %v", first.Timestamp, wantTS)
	}
	if first.UnixTime != wantTS.Unix() {
		t.Errorf("UnixTime = %d, want %d", first.UnixTime, wantTS.Unix())
	}
	if first.Open != 5200.0 || first.Volume != 12 {
		t.Errorf("numeric cast mismatch: %+v", first)
	}
}

func TestNormalizeSecondResolution(t *testing.T) {
	raw := &domain.RawTable{
		Columns: []string{"timestamp", "close"},
		Records: [][]string{{"2024-05-10 13:45:07", "1.2345"}},
	}

	rows, err := Normalize(raw, "EURUSD")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := time.Date(2024, 5, 10, 13, 45, 7, 0, time.UTC)
	if !rows[0].Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", rows[0].Timestamp, want)
	}
	if rows[0].UnixTime != want.Unix() {
		t.Errorf("UnixTime = %d, want %d", rows[0].UnixTime, want.Unix())
	}
}

func TestNormalizePartialColumns(t *testing.T) {
	// A provider response missing some numeric columns is tolerated: absent
	// columns are omitted, not invented.
	raw := &domain.RawTable{
		Columns: []string{"timestamp", "close"},
		Records: [][]string{{"2024-05-10 00:00", "42.5"}},
	}

	rows, err := Normalize(raw, "ES")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rows[0].Close != 42.5 {
		t.Errorf("Close = %v, want 42.5", rows[0].Close)
	}
	if rows[0].Open != 0 || rows[0].High != 0 || rows[0].Low != 0 || rows[0].Volume != 0 {
		t.Errorf("absent columns should stay zero: %+v", rows[0])
	}
}

func TestNormalizeMissingTimestamp(t *testing.T) {
	raw := &domain.RawTable{
		Columns: []string{"open", "close"},
		Records: [][]string{{"1.0", "2.0"}},
	}

	_, err := Normalize(raw, "ES")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Normalize = %v, want SchemaError", err)
	}
	if schemaErr.Column != "timestamp" {
		t.Errorf("SchemaError.Column = %q, want timestamp", schemaErr.Column)
	}
}

func TestNormalizeUnparsableValues(t *testing.T) {
	cases := []struct {
		name   string
		raw    *domain.RawTable
		column string
	}{
		{
			name: "bad timestamp",
			raw: &domain.RawTable{
				Columns: []string{"timestamp", "close"},
				Records: [][]string{{"10/05/2024", "1.0"}},
			},
			column: "timestamp",
		},
		{
			name: "bad numeric",
			raw: &domain.RawTable{
				Columns: []string{"timestamp", "close"},
				Records: [][]string{{"2024-05-10 00:00", "n/a"}},
			},
			column: "close",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.raw, "ES")
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("Normalize = %v, want SchemaError", err)
			}
			if schemaErr.Column != tc.column {
				t.Errorf("SchemaError.Column = %q, want %q", schemaErr.Column, tc.column)
			}
		})
	}
}

func TestNormalizeColumnOrderIndependent(t *testing.T) {
	// Column positions in the raw input don't matter; lookup is by name.
	raw := &domain.RawTable{
		Columns: []string{"volume", "close", "timestamp", "open"},
		Records: [][]string{{"7", "2.0", "2024-05-10 00:00", "1.0"}},
	}

	rows, err := Normalize(raw, "ES")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rows[0].Volume != 7 || rows[0].Close != 2.0 || rows[0].Open != 1.0 {
		t.Errorf("row = %+v", rows[0])
	}
}
