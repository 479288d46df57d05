package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tickvault/internal/domain"
)

// seedCSV writes a downloader-shaped CSV for (id, date) into downloadDir.
func seedCSV(t *testing.T, downloadDir, id string, date time.Time, content string) string {
	t.Helper()
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	from := date.Format("2006-01-02")
	to := date.AddDate(0, 0, 1).Format("2006-01-02")
	path := filepath.Join(downloadDir, fmt.Sprintf("%s-s1-bid-%s-%s.csv", id, from, to))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDukascopyFetchParsesCSV(t *testing.T) {
	downloadDir := filepath.Join(t.TempDir(), "download")
	date := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	seedCSV(t, downloadDir, "esusd", date,
		"timestamp,open,high,low,close,volume\n"+
			"2024-05-10 00:00,5200.0,5201.5,5199.0,5200.5,12\n"+
			"2024-05-10 00:01,5200.5,5202.0,5200.0,5201.0,8\n")

	// "true" accepts the downloader arguments and exits 0 without touching
	// the pre-seeded CSV, isolating the pickup-and-parse path.
	client := NewDukascopyClient("true", downloadDir, time.Minute)

	table, err := client.Fetch(context.Background(), "esusd", date)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(table.Columns) != 6 || table.Columns[0] != "timestamp" {
		t.Errorf("Columns = %v", table.Columns)
	}
	if len(table.Records) != 2 {
		t.Fatalf("Records = %d, want 2", len(table.Records))
	}
	if table.Records[1][0] != "2024-05-10 00:01" {
		t.Errorf("second timestamp = %q", table.Records[1][0])
	}

	// The transient CSV is cleaned up by default.
	entries, err := os.ReadDir(downloadDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("download dir still has %d files, want 0", len(entries))
	}
}

func TestDukascopyFetchNoData(t *testing.T) {
	downloadDir := filepath.Join(t.TempDir(), "download")
	date := time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC) // Saturday
	client := NewDukascopyClient("true", downloadDir, time.Minute)

	// No CSV at all: the provider had nothing for the date.
	if _, err := client.Fetch(context.Background(), "esusd", date); !errors.Is(err, ErrNoData) {
		t.Errorf("Fetch (missing csv) = %v, want ErrNoData", err)
	}

	// Zero-size CSV is the same thing.
	seedCSV(t, downloadDir, "esusd", date, "")
	if _, err := client.Fetch(context.Background(), "esusd", date); !errors.Is(err, ErrNoData) {
		t.Errorf("Fetch (empty csv) = %v, want ErrNoData", err)
	}

	// Header-only CSV as well.
	seedCSV(t, downloadDir, "esusd", date, "timestamp,open,high,low,close,volume\n")
	if _, err := client.Fetch(context.Background(), "esusd", date); !errors.Is(err, ErrNoData) {
		t.Errorf("Fetch (header-only csv) = %v, want ErrNoData", err)
	}
}

func TestDukascopyFetchProcessFailure(t *testing.T) {
	downloadDir := filepath.Join(t.TempDir(), "download")
	date := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	client := NewDukascopyClient("false", downloadDir, time.Minute)

	_, err := client.Fetch(context.Background(), "esusd", date)
	if err == nil || errors.Is(err, ErrNoData) {
		t.Errorf("Fetch with failing downloader = %v, want transport error", err)
	}
}

func TestFakeProvider(t *testing.T) {
	fake := NewFakeProvider()
	ctx := context.Background()
	date := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	// Unseeded date is a no-data day.
	if _, err := fake.Fetch(ctx, "esusd", date); !errors.Is(err, ErrNoData) {
		t.Errorf("Fetch (unseeded) = %v, want ErrNoData", err)
	}

	fake.SetTable("esusd", date, &domain.RawTable{
		Columns: []string{"timestamp", "open", "high", "low", "close", "volume"},
		Records: [][]string{{"2024-05-10 00:00", "1", "2", "0.5", "1.5", "10"}},
	})
	fake.FailNext("esusd", date, errors.New("connection reset"))

	if _, err := fake.Fetch(ctx, "esusd", date); err == nil {
		t.Error("queued error should be returned first")
	}
	table, err := fake.Fetch(ctx, "esusd", date)
	if err != nil {
		t.Fatalf("Fetch after queued error: %v", err)
	}
	if len(table.Records) != 1 {
		t.Errorf("Records = %d, want 1", len(table.Records))
	}

	if calls := fake.Calls(); len(calls) != 3 {
		t.Errorf("Calls = %d, want 3", len(calls))
	}
}
