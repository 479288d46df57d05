// Package metadata maintains the boundary index: a JSON document mapping each
// symbol to the latest date for which consolidated data exists. Downstream
// consumers read it instead of scanning the archive.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tickvault/internal/domain"
	"tickvault/internal/store"
)

const updatedKey = "_data_boundaries_updated"

// BoundaryIndex is the persisted instruments document. Per-symbol entries
// carry arbitrary descriptive fields owned by other tools; this package only
// touches dataRange.latest, dataRange.sources.1Ys.latest, and the top-level
// update stamp. Keys starting with "_" are bookkeeping, not symbols.
type BoundaryIndex struct {
	path string
	doc  map[string]any
}

// LoadIndex reads the boundary index at path. A missing file yields an empty
// index; malformed JSON is an error.
func LoadIndex(path string) (*BoundaryIndex, error) {
	idx := &BoundaryIndex{path: path, doc: make(map[string]any)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("reading boundary index: %w", err)
	}
	if err := json.Unmarshal(data, &idx.doc); err != nil {
		return nil, fmt.Errorf("parsing boundary index %s: %w", path, err)
	}
	return idx, nil
}

// Latest returns the recorded latest date for a symbol, or "" when the
// symbol has no boundary yet.
func (idx *BoundaryIndex) Latest(symbol string) string {
	entry, ok := idx.doc[symbol].(map[string]any)
	if !ok {
		return ""
	}
	dataRange, ok := entry["dataRange"].(map[string]any)
	if !ok {
		return ""
	}
	latest, _ := dataRange["latest"].(string)
	return latest
}

// SetLatest records the latest date for a symbol, creating the entry and its
// dataRange scaffolding when absent. Other fields of the entry are preserved.
func (idx *BoundaryIndex) SetLatest(symbol, latest string) {
	entry, ok := idx.doc[symbol].(map[string]any)
	if !ok {
		entry = make(map[string]any)
		idx.doc[symbol] = entry
	}
	dataRange, ok := entry["dataRange"].(map[string]any)
	if !ok {
		dataRange = make(map[string]any)
		entry["dataRange"] = dataRange
	}
	dataRange["latest"] = latest

	sources, ok := dataRange["sources"].(map[string]any)
	if !ok {
		sources = make(map[string]any)
		dataRange["sources"] = sources
	}
	yearly, ok := sources["1Ys"].(map[string]any)
	if !ok {
		yearly = make(map[string]any)
		sources["1Ys"] = yearly
	}
	yearly["latest"] = latest
}

// Write stamps the update time and atomically replaces the index file. Either
// the whole pass lands or the prior file stays intact.
func (idx *BoundaryIndex) Write(now time.Time) error {
	idx.doc[updatedKey] = now.UTC().Format("2006-01-02T15:04:05Z")

	data, err := json.MarshalIndent(idx.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding boundary index: %w", err)
	}

	dir := filepath.Dir(idx.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("writing boundary index: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(idx.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("writing boundary index: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing boundary index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing boundary index: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing boundary index: %w", err)
	}
	if err := os.Rename(tmpPath, idx.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing boundary index: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Synchronizer
// ---------------------------------------------------------------------------

// Synchronizer recomputes per-symbol latest dates from the yearly partitions
// and publishes them to the boundary index.
type Synchronizer struct {
	store     store.PartitionStore
	indexPath string
	now       func() time.Time
	log       *slog.Logger
}

// NewSynchronizer creates a Synchronizer writing to the index file at
// indexPath.
func NewSynchronizer(st store.PartitionStore, indexPath string) *Synchronizer {
	return &Synchronizer{
		store:     st,
		indexPath: indexPath,
		now:       time.Now,
		log:       slog.Default().With("component", "metadata"),
	}
}

// RefreshLatestDates recomputes the latest available date for each instrument
// and writes the index in one pass. Instruments whose yearly partitions are
// all missing or unreadable keep their recorded boundary and are counted out
// of the result. Returns how many boundaries were updated.
func (s *Synchronizer) RefreshLatestDates(ctx context.Context, instruments []domain.Instrument) (int, error) {
	idx, err := LoadIndex(s.indexPath)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		latest, ok := s.latestDate(ctx, inst.Symbol)
		if !ok {
			s.log.Warn("no readable yearly data, keeping recorded boundary",
				"symbol", inst.Symbol, "recorded", idx.Latest(inst.Symbol))
			continue
		}
		idx.SetLatest(inst.Symbol, latest)
		updated++
		s.log.Info("boundary refreshed", "symbol", inst.Symbol, "latest", latest)
	}

	if err := idx.Write(s.now()); err != nil {
		return 0, err
	}
	return updated, nil
}

// latestDate scans the symbol's yearly partitions newest-first and returns
// the calendar date of the maximum timestamp in the first non-empty, readable
// one. Unreadable or empty years fall through to older years.
func (s *Synchronizer) latestDate(ctx context.Context, symbol string) (string, bool) {
	years, err := s.store.ListYears(ctx, symbol)
	if err != nil {
		s.log.Warn("listing years failed", "symbol", symbol, "err", err)
		return "", false
	}

	for i := len(years) - 1; i >= 0; i-- {
		timestamps, err := s.store.ReadYearlyTimestamps(ctx, symbol, years[i])
		if err != nil {
			s.log.Warn("unreadable yearly partition skipped",
				"symbol", symbol, "year", years[i], "err", err)
			continue
		}
		if len(timestamps) == 0 {
			continue
		}
		max := timestamps[0]
		for _, ts := range timestamps[1:] {
			if ts.After(max) {
				max = ts
			}
		}
		return domain.FormatDate(max.UTC()), true
	}
	return "", false
}
