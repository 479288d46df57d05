package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"tickvault/internal/config"
	"tickvault/internal/consolidate"
	"tickvault/internal/registry"
	"tickvault/internal/store"
	"tickvault/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbol keys (default: all registered)")
	yearFlag := flag.Int("year", time.Now().UTC().Year(), "year to consolidate")
	historicalFlag := flag.Bool("historical", false, "consolidate every year with dailies on disk, up to the previous year")
	rebuildFlag := flag.Bool("rebuild", false, "regenerate yearly partitions from dailies, ignoring the consolidation boundary")
	flag.Parse()

	cfgPath := "config/vault.yaml"
	if p := os.Getenv("VAULT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logFileName := fmt.Sprintf("/tmp/vault-consolidate-%s.log", time.Now().Format("2006-01-02"))
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
	engine := consolidate.New(pstore)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting vault-consolidate", "logFile", logFileName,
		"instruments", len(instruments), "historical", *historicalFlag, "rebuild", *rebuildFlag)

	previousYear := time.Now().UTC().Year() - 1
	failures := 0
	for _, inst := range instruments {
		years := []int{*yearFlag}
		if *historicalFlag {
			years, err = historicalYears(ctx, pstore, inst.Symbol, previousYear)
			if err != nil {
				slog.Error("scanning dailies failed", "symbol", inst.Symbol, "err", err)
				failures++
				continue
			}
			if len(years) == 0 {
				slog.Info("no historical dailies", "symbol", inst.Symbol)
				continue
			}
		}
		for _, year := range years {
			if ctx.Err() != nil {
				log.Fatalf("interrupted: %v", ctx.Err())
			}
			var rows int
			var err error
			if *rebuildFlag {
				rows, err = engine.Rebuild(ctx, inst.Symbol, year)
			} else {
				rows, err = engine.Consolidate(ctx, inst.Symbol, year)
			}
			if err != nil {
				slog.Error("consolidation failed", "symbol", inst.Symbol, "year", year, "err", err)
				failures++
				continue
			}
			slog.Info("year done", "symbol", inst.Symbol, "year", year, "rows", rows)
		}
	}

	if failures > 0 {
		slog.Error("consolidation finished with failures", "failures", failures)
		os.Exit(1)
	}
	slog.Info("consolidation finished")
}

// historicalYears returns the distinct years with daily partitions on disk,
// ascending, capped at the previous year. The current year belongs to the
// nightly incremental run.
func historicalYears(ctx context.Context, pstore *store.ParquetStore, symbol string, previousYear int) ([]int, error) {
	dates, err := pstore.ListDates(ctx, symbol)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]struct{})
	var years []int
	for _, d := range dates {
		y := d.Year()
		if y > previousYear {
			continue
		}
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
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
