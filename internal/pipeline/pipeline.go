// Package pipeline orchestrates the per-instrument flow: gap detection,
// ingestion, consolidation, and the final boundary-index refresh. Instruments
// run on a bounded worker pool; within one instrument the stages are strictly
// sequential.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"tickvault/internal/consolidate"
	"tickvault/internal/domain"
	"tickvault/internal/gaps"
	"tickvault/internal/ingest"
	"tickvault/internal/metadata"
	"tickvault/internal/store"
)

// Pipeline wires the stages together for a set of instruments.
type Pipeline struct {
	store    store.PartitionStore
	ingestor *ingest.Ingestor
	engine   *consolidate.Engine
	sync     *metadata.Synchronizer
	workers  int
	now      func() time.Time
	log      *slog.Logger
}

// New creates a Pipeline. workers bounds how many instruments run at once;
// values below 1 are treated as 1.
func New(st store.PartitionStore, ing *ingest.Ingestor, eng *consolidate.Engine, sync *metadata.Synchronizer, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		store:    st,
		ingestor: ing,
		engine:   eng,
		sync:     sync,
		workers:  workers,
		now:      time.Now,
		log:      slog.Default().With("component", "pipeline"),
	}
}

// Range optionally overrides the dates a run covers. A zero From keeps the
// computed gap start; a zero To defaults to yesterday UTC. An explicit To is
// taken as-is, not clamped to yesterday.
type Range struct {
	From time.Time
	To   time.Time
}

// InstrumentResult is the outcome of one instrument's pipeline run.
type InstrumentResult struct {
	Symbol string
	Ingest ingest.Summary
	Years  []int // years consolidated this run
	Err    error // pipeline-level failure (gap scan, consolidation)
}

// Report aggregates a whole run.
type Report struct {
	Results          []InstrumentResult
	BoundariesSynced int
}

// FailureCount returns how many dates and instruments failed, for the exit
// status decision.
func (r Report) FailureCount() int {
	n := 0
	for _, res := range r.Results {
		n += res.Ingest.Failed
		if res.Err != nil {
			n++
		}
	}
	return n
}

// RunDaily performs the nightly forward gap-fill for every instrument, then
// consolidates the touched years and refreshes the boundary index once. Each
// instrument fails independently; the report carries all outcomes.
func (p *Pipeline) RunDaily(ctx context.Context, instruments []domain.Instrument, rng Range) (Report, error) {
	return p.run(ctx, instruments, func(ctx context.Context, inst domain.Instrument) ([]time.Time, error) {
		return p.forwardDates(ctx, inst, rng)
	})
}

// RunBackfill extends each instrument's history back to its earliest required
// date, then consolidates and refreshes boundaries like the daily run.
func (p *Pipeline) RunBackfill(ctx context.Context, instruments []domain.Instrument) (Report, error) {
	return p.run(ctx, instruments, func(ctx context.Context, inst domain.Instrument) ([]time.Time, error) {
		existing, err := p.store.ListDates(ctx, inst.Symbol)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", inst.Symbol, err)
		}
		// Cutoff-exclusive today, so the backfill reaches through yesterday.
		cutoff := domain.Midnight(p.now().UTC())
		return gaps.ComputeGaps(inst.EarliestDate, existing, cutoff), nil
	})
}

func (p *Pipeline) run(ctx context.Context, instruments []domain.Instrument, dates func(context.Context, domain.Instrument) ([]time.Time, error)) (Report, error) {
	results := make([]InstrumentResult, len(instruments))
	sem := make(chan struct{}, p.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i, inst := range instruments {
		i, inst := i, inst
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = p.runInstrument(gctx, inst, dates)
			if err := gctx.Err(); err != nil {
				return err // stop the pool, keep per-instrument errors in results
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{Results: results}, err
	}

	synced, err := p.sync.RefreshLatestDates(ctx, instruments)
	if err != nil {
		return Report{Results: results}, fmt.Errorf("refreshing boundaries: %w", err)
	}
	return Report{Results: results, BoundariesSynced: synced}, nil
}

// runInstrument executes gap detection, ingestion, and consolidation for one
// instrument. Failures are captured in the result, never propagated, so one
// bad instrument cannot sink the run.
func (p *Pipeline) runInstrument(ctx context.Context, inst domain.Instrument, dates func(context.Context, domain.Instrument) ([]time.Time, error)) InstrumentResult {
	res := InstrumentResult{Symbol: inst.Symbol}

	pending, err := dates(ctx, inst)
	if err != nil {
		res.Err = err
		return res
	}
	if len(pending) == 0 {
		p.log.Info("up to date", "symbol", inst.Symbol)
		return res
	}
	p.log.Info("gap detected", "symbol", inst.Symbol,
		"from", domain.FormatDate(pending[0]),
		"to", domain.FormatDate(pending[len(pending)-1]),
		"dates", len(pending))

	res.Ingest, err = p.ingestor.IngestRange(ctx, inst, pending)
	if err != nil {
		res.Err = err
		return res
	}

	for _, year := range touchedYears(pending) {
		if _, err := p.engine.Consolidate(ctx, inst.Symbol, year); err != nil {
			res.Err = fmt.Errorf("consolidating %s/%d: %w", inst.Symbol, year, err)
			return res
		}
		res.Years = append(res.Years, year)
	}
	return res
}

// forwardDates computes the dates a daily run must ingest for the
// instrument, honoring manual range overrides.
func (p *Pipeline) forwardDates(ctx context.Context, inst domain.Instrument, rng Range) ([]time.Time, error) {
	end := rng.To
	if end.IsZero() {
		end = domain.YesterdayUTC(p.now())
	}

	if !rng.From.IsZero() {
		start := domain.MaxDate(domain.Midnight(rng.From), inst.EarliestDate)
		return domain.DateRange(start, domain.Midnight(end)), nil
	}

	existing, err := p.store.ListDates(ctx, inst.Symbol)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", inst.Symbol, err)
	}
	var lastLocal time.Time
	if len(existing) > 0 {
		lastLocal = existing[len(existing)-1]
	}

	start, stop, ok := gaps.ComputeForwardGap(lastLocal, inst.EarliestDate, end)
	if !ok {
		return nil, nil
	}
	return domain.DateRange(start, stop), nil
}

func touchedYears(dates []time.Time) []int {
	set := make(map[int]struct{})
	for _, d := range dates {
		set[d.Year()] = struct{}{}
	}
	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
