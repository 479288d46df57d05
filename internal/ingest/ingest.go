// Package ingest drives fetch-per-missing-date for one instrument: skip what
// exists, fetch what doesn't, normalize, and publish daily partitions
// atomically. Re-running over the same dates is a cheap no-op.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"tickvault/internal/domain"
	"tickvault/internal/fetch"
	"tickvault/internal/normalize"
	"tickvault/internal/store"
	"tickvault/internal/util"
)

// Options configures retry, pacing, and journaling for an Ingestor.
type Options struct {
	MaxAttempts     int           // fetch attempts per date, default 3
	Backoff         time.Duration // initial retry backoff, default 2s
	RateLimitPerMin int           // 0 means unpaced
	Journal         store.Journal // optional outcome journal
}

// Ingestor fetches and writes daily partitions for instruments.
type Ingestor struct {
	provider fetch.Provider
	store    store.PartitionStore
	journal  store.Journal
	limiter  *util.RateLimiter
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

// New creates an Ingestor over the given provider and partition store.
func New(provider fetch.Provider, st store.PartitionStore, opts Options) *Ingestor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	return &Ingestor{
		provider: provider,
		store:    st,
		journal:  opts.Journal,
		limiter:  util.NewRateLimiter(opts.RateLimitPerMin),
		attempts: opts.MaxAttempts,
		backoff:  opts.Backoff,
		log:      slog.Default().With("component", "ingest"),
	}
}

// Ingest fetches and writes the daily partition for (instrument, date).
// Outcomes:
//
//	Written        — partition fetched, normalized, and published
//	AlreadyPresent — partition already on disk; nothing done
//	NoData         — provider had nothing for the date (weekend/holiday)
//	Failed         — transport, schema, or store failure; err carries detail
func (ing *Ingestor) Ingest(ctx context.Context, inst domain.Instrument, date time.Time) (domain.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutcomeFailed, err
	}
	date = domain.Midnight(date)

	// Idempotency at single-date granularity: a file at the final path is
	// complete, so repeated full-gap scans stay cheap.
	if ing.store.ExistsDaily(inst.Symbol, date) {
		return domain.OutcomeAlreadyPresent, nil
	}

	if err := ing.limiter.Wait(ctx); err != nil {
		return domain.OutcomeFailed, err
	}

	var raw *domain.RawTable
	err := util.Retry(ctx, ing.attempts, ing.backoff, func() error {
		table, err := ing.provider.Fetch(ctx, inst.ProviderID, date)
		if err != nil {
			if errors.Is(err, fetch.ErrNoData) {
				// Legitimate terminal outcome, never retried.
				return &util.Permanent{Err: err}
			}
			return err
		}
		raw = table
		return nil
	})
	if errors.Is(err, fetch.ErrNoData) || (err == nil && raw.Empty()) {
		return ing.record(ctx, inst.Symbol, date, domain.OutcomeNoData, "")
	}
	if err != nil {
		return ing.fail(ctx, inst.Symbol, date, fmt.Errorf("fetching %s/%s: %w", inst.Symbol, domain.FormatDate(date), err))
	}

	rows, err := normalize.Normalize(raw, inst.Symbol)
	if err != nil {
		return ing.fail(ctx, inst.Symbol, date, fmt.Errorf("normalizing %s/%s: %w", inst.Symbol, domain.FormatDate(date), err))
	}

	if err := ing.store.WriteDaily(ctx, inst.Symbol, date, rows); err != nil {
		return ing.fail(ctx, inst.Symbol, date, err)
	}
	return ing.record(ctx, inst.Symbol, date, domain.OutcomeWritten, "")
}

// record journals a terminal outcome. AlreadyPresent skips are not journaled;
// they would dominate the log during full-gap scans.
func (ing *Ingestor) record(ctx context.Context, symbol string, date time.Time, outcome domain.Outcome, detail string) (domain.Outcome, error) {
	if ing.journal != nil {
		if err := ing.journal.RecordOutcome(ctx, symbol, date, outcome, detail); err != nil {
			ing.log.Warn("journal write failed", "symbol", symbol, "date", domain.FormatDate(date), "err", err)
		}
	}
	return outcome, nil
}

func (ing *Ingestor) fail(ctx context.Context, symbol string, date time.Time, err error) (domain.Outcome, error) {
	if ing.journal != nil {
		if jerr := ing.journal.RecordOutcome(ctx, symbol, date, domain.OutcomeFailed, err.Error()); jerr != nil {
			ing.log.Warn("journal write failed", "symbol", symbol, "date", domain.FormatDate(date), "err", jerr)
		}
	}
	return domain.OutcomeFailed, err
}

// Summary aggregates per-date outcomes of one IngestRange call.
type Summary struct {
	Written        int
	AlreadyPresent int
	NoData         int
	Failed         int
	FailedDates    []time.Time
}

// Total returns the number of dates processed.
func (s Summary) Total() int {
	return s.Written + s.AlreadyPresent + s.NoData + s.Failed
}

// IngestRange processes dates strictly in ascending order, isolating
// per-date failures: a failed date is counted and the run continues with the
// next one. It stops early only on context cancellation, returning the
// partial summary alongside the context error.
func (ing *Ingestor) IngestRange(ctx context.Context, inst domain.Instrument, dates []time.Time) (Summary, error) {
	ordered := make([]time.Time, len(dates))
	copy(ordered, dates)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	var sum Summary
	for _, date := range ordered {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		outcome, err := ing.Ingest(ctx, inst, date)
		switch outcome {
		case domain.OutcomeWritten:
			sum.Written++
			ing.log.Info("ingested", "symbol", inst.Symbol, "date", domain.FormatDate(date))
		case domain.OutcomeAlreadyPresent:
			sum.AlreadyPresent++
			ing.log.Debug("already ingested", "symbol", inst.Symbol, "date", domain.FormatDate(date))
		case domain.OutcomeNoData:
			sum.NoData++
			ing.log.Info("no data", "symbol", inst.Symbol, "date", domain.FormatDate(date))
		case domain.OutcomeFailed:
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Failed++
			sum.FailedDates = append(sum.FailedDates, date)
			ing.log.Error("ingest failed", "symbol", inst.Symbol, "date", domain.FormatDate(date), "err", err)
		}
	}
	return sum, nil
}
