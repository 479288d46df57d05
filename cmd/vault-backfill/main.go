package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tickvault/internal/config"
	"tickvault/internal/consolidate"
	"tickvault/internal/fetch"
	"tickvault/internal/ingest"
	"tickvault/internal/metadata"
	"tickvault/internal/pipeline"
	"tickvault/internal/registry"
	"tickvault/internal/store"
	"tickvault/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbol keys (default: all registered)")
	flag.Parse()

	cfgPath := "config/vault.yaml"
	if p := os.Getenv("VAULT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logFileName := fmt.Sprintf("/tmp/vault-backfill-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()
	util.SetDefault(util.NewDualLogger(cfg.Logging.Level, logFile))

	reg, err := registry.Load(cfg.Storage.RegistryPath)
	if err != nil {
		log.Fatalf("failed to load registry: %v", err)
	}
	instruments, unknown := reg.Select(splitSymbols(*symbolsFlag))
	if len(unknown) > 0 {
		log.Fatalf("unknown symbols: %s", strings.Join(unknown, ", "))
	}
	if len(instruments) == 0 {
		log.Fatal("no instruments selected")
	}

	journal, err := store.OpenRunJournal(cfg.Storage.JournalPath)
	if err != nil {
		log.Fatalf("failed to open run journal: %v", err)
	}
	defer journal.Close()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	ingestor := ingest.New(newProvider(cfg), pstore, ingest.Options{
		MaxAttempts:     cfg.Fetch.MaxAttempts,
		Backoff:         time.Duration(cfg.Fetch.BackoffMS) * time.Millisecond,
		RateLimitPerMin: cfg.Fetch.RateLimitPerMin,
		Journal:         journal,
	})
	p := pipeline.New(pstore, ingestor, consolidate.New(pstore),
		metadata.NewSynchronizer(pstore, cfg.Storage.IndexPath), cfg.Ingest.MaxWorkers)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting vault-backfill", "logFile", logFileName,
		"instruments", len(instruments), "provider", cfg.Fetch.Provider)

	report, err := p.RunBackfill(ctx, instruments)
	if err != nil {
		log.Fatalf("backfill aborted: %v", err)
	}
	for _, res := range report.Results {
		if res.Err != nil {
			slog.Error("instrument failed", "symbol", res.Symbol, "err", res.Err)
			continue
		}
		slog.Info("instrument done", "symbol", res.Symbol,
			"written", res.Ingest.Written, "noData", res.Ingest.NoData,
			"skipped", res.Ingest.AlreadyPresent, "failed", res.Ingest.Failed,
			"years", res.Years)
	}
	slog.Info("boundaries refreshed", "updated", report.BoundariesSynced)

	if n := report.FailureCount(); n > 0 {
		slog.Error("backfill finished with failures", "failures", n)
		os.Exit(1)
	}
	slog.Info("backfill finished")
}

func newProvider(cfg *config.Config) fetch.Provider {
	switch cfg.Fetch.Provider {
	case "alpaca":
		return fetch.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret,
			cfg.Alpaca.DataURL, cfg.Alpaca.Feed)
	default:
		return fetch.NewDukascopyClient(cfg.Fetch.Command, cfg.Fetch.DownloadDir,
			time.Duration(cfg.Fetch.TimeoutSec)*time.Second)
	}
}

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
