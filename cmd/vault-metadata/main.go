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
	"tickvault/internal/metadata"
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

	logFileName := fmt.Sprintf("/tmp/vault-metadata-%s.log", time.Now().Format("2006-01-02"))
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

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	sync := metadata.NewSynchronizer(pstore, cfg.Storage.IndexPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting vault-metadata", "logFile", logFileName,
		"instruments", len(instruments), "index", cfg.Storage.IndexPath)

	updated, err := sync.RefreshLatestDates(ctx, instruments)
	if err != nil {
		log.Fatalf("boundary refresh failed: %v", err)
	}
	slog.Info("boundary refresh finished", "updated", updated, "instruments", len(instruments))
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
