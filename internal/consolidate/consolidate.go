// Package consolidate merges daily partitions into the yearly partition for a
// (symbol, year). Incremental runs fold in only the dailies newer than the
// yearly file's consolidation boundary; a rebuild regenerates the yearly file
// from dailies alone.
package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tickvault/internal/domain"
	"tickvault/internal/store"
)

// Engine consolidates daily partitions into yearly ones. Safe for concurrent
// use; work on the same (symbol, year) is serialized, distinct keys proceed
// in parallel.
type Engine struct {
	store store.PartitionStore
	log   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a consolidation Engine over the given partition store.
func New(st store.PartitionStore) *Engine {
	return &Engine{
		store: st,
		log:   slog.Default().With("component", "consolidate"),
		locks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lock(symbol string, year int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", symbol, year)
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.locks[key]
	if !ok {
		m = &sync.Mutex{}
		e.locks[key] = m
	}
	return m
}

// Consolidate incrementally folds the symbol's daily partitions of the given
// year into its yearly partition. Only dailies dated strictly after the
// yearly file's newest timestamp are read; when none exist the yearly file is
// left untouched. Returns the row count of the yearly partition after the
// run.
func (e *Engine) Consolidate(ctx context.Context, symbol string, year int) (int, error) {
	m := e.lock(symbol, year)
	m.Lock()
	defer m.Unlock()

	// The boundary comes from the timestamp column alone; the full yearly
	// file is loaded only once new dailies are known to exist.
	timestamps, err := e.store.ReadYearlyTimestamps(ctx, symbol, year)
	if err != nil {
		return 0, fmt.Errorf("consolidating %s/%d: %w", symbol, year, err)
	}
	boundary := lastConsolidatedDate(timestamps)

	pending, err := e.pendingDates(ctx, symbol, year, boundary)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		e.log.Debug("yearly up to date", "symbol", symbol, "year", year, "rows", len(timestamps))
		return len(timestamps), nil
	}

	existing, err := e.store.ReadYearlyFull(ctx, symbol, year)
	if err != nil {
		return 0, fmt.Errorf("consolidating %s/%d: %w", symbol, year, err)
	}
	return e.merge(ctx, symbol, year, existing, pending)
}

// Rebuild regenerates the yearly partition from the year's daily partitions
// alone, discarding whatever the yearly file currently holds. Returns the row
// count of the rebuilt partition; with no dailies on disk nothing is written.
func (e *Engine) Rebuild(ctx context.Context, symbol string, year int) (int, error) {
	m := e.lock(symbol, year)
	m.Lock()
	defer m.Unlock()

	pending, err := e.pendingDates(ctx, symbol, year, time.Time{})
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		e.log.Warn("no daily partitions to rebuild from", "symbol", symbol, "year", year)
		return 0, nil
	}
	return e.merge(ctx, symbol, year, nil, pending)
}

// pendingDates returns the symbol's daily partition dates within the year
// that fall strictly after the boundary, ascending. A zero boundary selects
// the whole year.
func (e *Engine) pendingDates(ctx context.Context, symbol string, year int, boundary time.Time) ([]time.Time, error) {
	dates, err := e.store.ListDates(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("consolidating %s/%d: %w", symbol, year, err)
	}
	var pending []time.Time
	for _, d := range dates {
		if d.Year() != year {
			continue
		}
		if !boundary.IsZero() && !d.After(boundary) {
			continue
		}
		pending = append(pending, d)
	}
	return pending, nil
}

// merge reads the pending dailies, unions them with the existing yearly rows,
// and atomically replaces the yearly partition with the sorted, deduplicated
// result. Any daily read failure aborts before the write, leaving the yearly
// file untouched.
func (e *Engine) merge(ctx context.Context, symbol string, year int, existing []domain.Row, pending []time.Time) (int, error) {
	merged := make([]domain.Row, 0, len(existing))
	merged = append(merged, existing...)

	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		rows, err := e.store.ReadDaily(ctx, symbol, d)
		if err != nil {
			return 0, fmt.Errorf("consolidating %s/%d: %w", symbol, year, err)
		}
		for _, r := range rows {
			// Derived column is recomputed rather than trusted, so a daily
			// written with a skewed unix_time cannot poison the yearly file.
			r.UnixTime = r.Timestamp.Unix()
			merged = append(merged, r)
		}
	}

	merged = dedupSorted(merged)

	if err := e.store.WriteYearly(ctx, symbol, year, merged); err != nil {
		return 0, fmt.Errorf("consolidating %s/%d: %w", symbol, year, err)
	}
	e.log.Info("consolidated", "symbol", symbol, "year", year,
		"dailies", len(pending), "rows", len(merged))
	return len(merged), nil
}

// rowKey is the comparable projection of a Row used for full-row
// deduplication. time.Time is reduced to Unix milliseconds so that rows equal
// on the wire compare equal regardless of in-memory representation.
type rowKey struct {
	symbol   string
	tsMilli  int64
	unixTime int64
	open     float64
	high     float64
	low      float64
	close    float64
	volume   float64
}

func keyOf(r domain.Row) rowKey {
	return rowKey{
		symbol:   r.Symbol,
		tsMilli:  r.Timestamp.UnixMilli(),
		unixTime: r.UnixTime,
		open:     r.Open,
		high:     r.High,
		low:      r.Low,
		close:    r.Close,
		volume:   r.Volume,
	}
}

// dedupSorted sorts rows ascending by timestamp (stable, so re-ingested
// duplicates keep their first occurrence's relative position) and drops rows
// identical across every column. Rows sharing a timestamp but differing in
// any other column are both kept.
func dedupSorted(rows []domain.Row) []domain.Row {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	seen := make(map[rowKey]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		k := keyOf(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// lastConsolidatedDate returns the date of the newest timestamp already in
// the yearly partition, or the zero time for an empty or missing partition.
func lastConsolidatedDate(timestamps []time.Time) time.Time {
	var max time.Time
	for _, ts := range timestamps {
		if ts.After(max) {
			max = ts
		}
	}
	if max.IsZero() {
		return time.Time{}
	}
	return domain.Midnight(max)
}
