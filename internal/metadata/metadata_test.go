package metadata

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tickvault/internal/domain"
	"tickvault/internal/store"
)

func writeYear(t *testing.T, ps *store.ParquetStore, symbol string, year int, timestamps ...time.Time) {
	t.Helper()
	rows := make([]domain.Row, len(timestamps))
	for i, ts := range timestamps {
		rows[i] = domain.Row{Symbol: symbol, Timestamp: ts, UnixTime: ts.Unix(), Close: 100}
	}
	if err := ps.WriteYearly(context.Background(), symbol, year, rows); err != nil {
		t.Fatalf("WriteYearly %s/%d: %v", symbol, year, err)
	}
}

func TestBoundaryIndexRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.json")

	idx, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex on missing file: %v", err)
	}
	if got := idx.Latest("ES"); got != "" {
		t.Errorf("Latest on empty index = %q, want empty", got)
	}

	idx.SetLatest("ES", "2024-05-10")
	now := time.Date(2024, 5, 11, 3, 0, 0, 0, time.UTC)
	if err := idx.Write(now); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reloaded, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if got := reloaded.Latest("ES"); got != "2024-05-10" {
		t.Errorf("Latest = %q, want 2024-05-10", got)
	}

	// The raw document carries both the per-source boundary and the stamp.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc["_data_boundaries_updated"] != "2024-05-11T03:00:00Z" {
		t.Errorf("update stamp = %v", doc["_data_boundaries_updated"])
	}
	entry := doc["ES"].(map[string]any)
	dataRange := entry["dataRange"].(map[string]any)
	yearly := dataRange["sources"].(map[string]any)["1Ys"].(map[string]any)
	if yearly["latest"] != "2024-05-10" {
		t.Errorf("sources.1Ys.latest = %v, want 2024-05-10", yearly["latest"])
	}
}

func TestBoundaryIndexPreservesForeignFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.json")
	seed := `{"ES": {"name": "E-mini S&P 500", "dataRange": {"earliest": "2020-01-01", "latest": "2024-01-01"}}}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	idx, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	idx.SetLatest("ES", "2024-05-10")
	if err := idx.Write(time.Now()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reloaded, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	entry := reloaded.doc["ES"].(map[string]any)
	if entry["name"] != "E-mini S&P 500" {
		t.Errorf("name field lost: %v", entry)
	}
	dataRange := entry["dataRange"].(map[string]any)
	if dataRange["earliest"] != "2020-01-01" {
		t.Errorf("earliest field lost: %v", dataRange)
	}
	if dataRange["latest"] != "2024-05-10" {
		t.Errorf("latest = %v, want 2024-05-10", dataRange["latest"])
	}
}

func TestBoundaryIndexMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadIndex(path); err == nil {
		t.Fatal("LoadIndex should reject malformed JSON")
	}
}

func TestRefreshLatestDates(t *testing.T) {
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	indexPath := filepath.Join(dir, "instruments.json")

	writeYear(t, ps, "ES", 2023,
		time.Date(2023, 12, 29, 23, 59, 0, 0, time.UTC))
	writeYear(t, ps, "ES", 2024,
		time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC))

	sync := NewSynchronizer(ps, indexPath)
	instruments := []domain.Instrument{
		{Symbol: "ES", ProviderID: "esusd"},
		{Symbol: "NQ", ProviderID: "nqusd"}, // no data on disk
	}

	updated, err := sync.RefreshLatestDates(context.Background(), instruments)
	if err != nil {
		t.Fatalf("RefreshLatestDates: %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}

	idx, err := LoadIndex(indexPath)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if got := idx.Latest("ES"); got != "2024-05-10" {
		t.Errorf("ES latest = %q, want 2024-05-10 (max timestamp of newest year)", got)
	}
	if got := idx.Latest("NQ"); got != "" {
		t.Errorf("NQ latest = %q, want empty (no data, nothing invented)", got)
	}
}

func TestRefreshFallsBackPastUnreadableYear(t *testing.T) {
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	indexPath := filepath.Join(dir, "instruments.json")

	writeYear(t, ps, "ES", 2023,
		time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC))
	writeYear(t, ps, "ES", 2024,
		time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))
	// Newest year becomes unreadable; the scan must fall back to 2023
	// instead of erasing the boundary.
	if err := os.WriteFile(ps.YearlyPath("ES", 2024), []byte("junk"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sync := NewSynchronizer(ps, indexPath)
	updated, err := sync.RefreshLatestDates(context.Background(),
		[]domain.Instrument{{Symbol: "ES", ProviderID: "esusd"}})
	if err != nil {
		t.Fatalf("RefreshLatestDates: %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}

	idx, err := LoadIndex(indexPath)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if got := idx.Latest("ES"); got != "2023-12-29" {
		t.Errorf("ES latest = %q, want 2023-12-29 (from the readable year)", got)
	}
}

func TestRefreshKeepsRecordedBoundaryWhenNothingReadable(t *testing.T) {
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	indexPath := filepath.Join(dir, "instruments.json")

	seed := `{"ES": {"dataRange": {"latest": "2024-01-15"}}}`
	if err := os.WriteFile(indexPath, []byte(seed), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sync := NewSynchronizer(ps, indexPath)
	updated, err := sync.RefreshLatestDates(context.Background(),
		[]domain.Instrument{{Symbol: "ES", ProviderID: "esusd"}})
	if err != nil {
		t.Fatalf("RefreshLatestDates: %v", err)
	}
	if updated != 0 {
		t.Errorf("updated = %d, want 0", updated)
	}

	idx, err := LoadIndex(indexPath)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if got := idx.Latest("ES"); got != "2024-01-15" {
		t.Errorf("ES latest = %q, want 2024-01-15 (never silently erased)", got)
	}
}
