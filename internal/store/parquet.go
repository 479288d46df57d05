package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"tickvault/internal/domain"
)

// Compile-time interface check.
var _ PartitionStore = (*ParquetStore)(nil)

// ParquetStore implements PartitionStore using Parquet files on disk, in the
// hive-style layout the rest of the toolchain expects:
//
//	<DataDir>/ohlcv/1s/symbol=<SYM>/date=<YYYY-MM-DD>/<SYM>_<YYYY-MM-DD>.parquet
//	<DataDir>/ohlcv/1Ys/symbol=<SYM>/year=<YYYY>/<SYM>_<YYYY>.parquet
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// RowRecord is the Parquet schema for canonical OHLCV rows. Column order is
// the stored contract: symbol, timestamp, unix_time, open, high, low, close,
// volume.
type RowRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, UTC
	UnixTime  int64   `parquet:"unix_time"`                        // whole epoch seconds
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// timestampRecord projects only the timestamp column of a partition file.
type timestampRecord struct {
	Timestamp int64 `parquet:"timestamp,timestamp(millisecond)"`
}

func toRecord(r domain.Row) RowRecord {
	return RowRecord{
		Symbol:    r.Symbol,
		Timestamp: r.Timestamp.UnixMilli(),
		UnixTime:  r.UnixTime,
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}

func fromRecord(rec RowRecord) domain.Row {
	return domain.Row{
		Symbol:    rec.Symbol,
		Timestamp: time.UnixMilli(rec.Timestamp).UTC(),
		UnixTime:  rec.UnixTime,
		Open:      rec.Open,
		High:      rec.High,
		Low:       rec.Low,
		Close:     rec.Close,
		Volume:    rec.Volume,
	}
}

// ---------------------------------------------------------------------------
// Path helpers (stable addressing contract)
// ---------------------------------------------------------------------------

// DailyPath returns the filesystem path of the daily partition for
// (symbol, date).
func (s *ParquetStore) DailyPath(symbol string, date time.Time) string {
	d := domain.FormatDate(date)
	return filepath.Join(s.DataDir, "ohlcv", "1s",
		"symbol="+symbol, "date="+d, fmt.Sprintf("%s_%s.parquet", symbol, d))
}

// YearlyPath returns the filesystem path of the yearly partition for
// (symbol, year).
func (s *ParquetStore) YearlyPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "ohlcv", "1Ys",
		"symbol="+symbol, fmt.Sprintf("year=%d", year),
		fmt.Sprintf("%s_%d.parquet", symbol, year))
}

// ---------------------------------------------------------------------------
// Daily partitions
// ---------------------------------------------------------------------------

// ExistsDaily reports whether the daily partition file is present at its
// final path.
func (s *ParquetStore) ExistsDaily(symbol string, date time.Time) bool {
	_, err := os.Stat(s.DailyPath(symbol, date))
	return err == nil
}

// WriteDaily atomically writes the daily partition for (symbol, date).
func (s *ParquetStore) WriteDaily(_ context.Context, symbol string, date time.Time, rows []domain.Row) error {
	records := make([]RowRecord, len(rows))
	for i, r := range rows {
		records[i] = toRecord(r)
	}
	if err := writeParquetAtomic(s.DailyPath(symbol, date), records); err != nil {
		return fmt.Errorf("writing daily %s/%s: %w", symbol, domain.FormatDate(date), err)
	}
	return nil
}

// ReadDaily returns the rows of an existing daily partition.
func (s *ParquetStore) ReadDaily(_ context.Context, symbol string, date time.Time) ([]domain.Row, error) {
	records, err := parquet.ReadFile[RowRecord](s.DailyPath(symbol, date))
	if err != nil {
		return nil, fmt.Errorf("reading daily %s/%s: %w", symbol, domain.FormatDate(date), err)
	}
	rows := make([]domain.Row, len(records))
	for i, rec := range records {
		rows[i] = fromRecord(rec)
	}
	return rows, nil
}

// ListDates returns every date with a complete daily partition for the
// symbol, ascending. A date directory without its expected file (a crash
// between mkdir and publish) is not listed.
func (s *ParquetStore) ListDates(_ context.Context, symbol string) ([]time.Time, error) {
	dir := filepath.Join(s.DataDir, "ohlcv", "1s", "symbol="+symbol)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing dates for %s: %w", symbol, err)
	}

	var dates []time.Time
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "date=") {
			continue
		}
		d, err := domain.ParseDate(strings.TrimPrefix(e.Name(), "date="))
		if err != nil {
			continue
		}
		if _, err := os.Stat(s.DailyPath(symbol, d)); err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// ---------------------------------------------------------------------------
// Yearly partitions
// ---------------------------------------------------------------------------

// ListYears returns every year with a yearly partition for the symbol,
// ascending.
func (s *ParquetStore) ListYears(_ context.Context, symbol string) ([]int, error) {
	dir := filepath.Join(s.DataDir, "ohlcv", "1Ys", "symbol="+symbol)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing years for %s: %w", symbol, err)
	}

	var years []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "year=") {
			continue
		}
		y, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "year="))
		if err != nil {
			continue
		}
		if _, err := os.Stat(s.YearlyPath(symbol, y)); err != nil {
			continue
		}
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// ReadYearlyTimestamps returns only the timestamp column of the yearly
// partition. A missing partition yields (nil, nil).
func (s *ParquetStore) ReadYearlyTimestamps(_ context.Context, symbol string, year int) ([]time.Time, error) {
	path := s.YearlyPath(symbol, year)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	records, err := parquet.ReadFile[timestampRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading yearly timestamps %s/%d: %w", symbol, year, err)
	}
	ts := make([]time.Time, len(records))
	for i, rec := range records {
		ts[i] = time.UnixMilli(rec.Timestamp).UTC()
	}
	return ts, nil
}

// ReadYearlyFull returns every row of the yearly partition. A missing
// partition yields (nil, nil).
func (s *ParquetStore) ReadYearlyFull(_ context.Context, symbol string, year int) ([]domain.Row, error) {
	path := s.YearlyPath(symbol, year)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	records, err := parquet.ReadFile[RowRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading yearly %s/%d: %w", symbol, year, err)
	}
	rows := make([]domain.Row, len(records))
	for i, rec := range records {
		rows[i] = fromRecord(rec)
	}
	return rows, nil
}

// WriteYearly atomically replaces the yearly partition for (symbol, year).
func (s *ParquetStore) WriteYearly(_ context.Context, symbol string, year int, rows []domain.Row) error {
	records := make([]RowRecord, len(rows))
	for i, r := range rows {
		records[i] = toRecord(r)
	}
	if err := writeParquetAtomic(s.YearlyPath(symbol, year), records); err != nil {
		return fmt.Errorf("writing yearly %s/%d: %w", symbol, year, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Atomic write helper
// ---------------------------------------------------------------------------

// writeParquetAtomic writes records to a temporary file in the target
// directory and renames it into place. A crash mid-write leaves at most a
// stray temp file, never a truncated partition at the final path.
func writeParquetAtomic[T any](path string, records []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := parquet.WriteFile(tmpPath, records); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
