package fetch

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"tickvault/internal/domain"
)

// Compile-time interface check.
var _ Provider = (*DukascopyClient)(nil)

// DukascopyClient invokes the dukascopy-node downloader as a subprocess and
// picks up the CSV it drops into the download directory. An absent or
// zero-size CSV after a clean exit means the provider had nothing for that
// day.
type DukascopyClient struct {
	Command     string // launcher binary, normally "npx"
	DownloadDir string // where dukascopy-node drops its CSVs
	Timeout     time.Duration
	KeepCSV     bool // leave the raw CSV behind after conversion

	log *slog.Logger
}

// NewDukascopyClient creates a client that launches dukascopy-node via the
// given command and expects CSVs under downloadDir.
func NewDukascopyClient(command, downloadDir string, timeout time.Duration) *DukascopyClient {
	return &DukascopyClient{
		Command:     command,
		DownloadDir: downloadDir,
		Timeout:     timeout,
		log:         slog.Default().With("provider", "dukascopy"),
	}
}

// Fetch downloads one day of second-resolution bars for the given provider
// instrument id. Returns ErrNoData when the downloader produced no rows.
func (c *DukascopyClient) Fetch(ctx context.Context, providerID string, date time.Time) (*domain.RawTable, error) {
	from := domain.FormatDate(date)
	to := domain.FormatDate(date.AddDate(0, 0, 1))

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	if err := os.MkdirAll(c.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download dir: %w", err)
	}

	// dukascopy-node writes into ./download relative to its working
	// directory.
	cmd := exec.CommandContext(ctx, c.Command, "dukascopy-node",
		"-i", providerID,
		"-from", from,
		"-to", to,
		"-t", "s1",
		"-f", "csv",
		"--date-format", "YYYY-MM-DD HH:mm",
		"-v",
		"-fl",
	)
	cmd.Dir = filepath.Dir(c.DownloadDir)

	c.log.Debug("running downloader", "id", providerID, "from", from, "to", to)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("dukascopy-node timed out after %s: %w", c.Timeout, ctx.Err())
		}
		return nil, fmt.Errorf("dukascopy-node %s %s: %w: %s", providerID, from, err, tail(out))
	}

	csvPath := filepath.Join(c.DownloadDir, fmt.Sprintf("%s-s1-bid-%s-%s.csv", providerID, from, to))
	return c.collectCSV(csvPath)
}

// collectCSV reads the downloaded CSV into a RawTable. A missing or empty
// file is classified ErrNoData.
func (c *DukascopyClient) collectCSV(csvPath string) (*domain.RawTable, error) {
	info, err := os.Stat(csvPath)
	if os.IsNotExist(err) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("checking csv %s: %w", csvPath, err)
	}
	if info.Size() == 0 {
		if !c.KeepCSV {
			os.Remove(csvPath)
		}
		return nil, ErrNoData
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", csvPath, err)
	}
	records, err := csv.NewReader(f).ReadAll()
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("parsing csv %s: %w", csvPath, err)
	}

	if !c.KeepCSV {
		os.Remove(csvPath)
	}

	if len(records) <= 1 {
		// Header only, or nothing at all.
		return nil, ErrNoData
	}
	return &domain.RawTable{
		Columns: records[0],
		Records: records[1:],
	}, nil
}

// tail returns the last line of subprocess output for error messages.
func tail(out []byte) string {
	s := string(out)
	if len(s) > 200 {
		s = s[len(s)-200:]
	}
	return s
}
