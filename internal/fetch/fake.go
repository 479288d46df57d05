package fetch

import (
	"context"
	"sync"
	"time"

	"tickvault/internal/domain"
)

// Compile-time interface check.
var _ Provider = (*FakeProvider)(nil)

// FakeProvider implements Provider in memory for tests. Dates without a
// seeded table return ErrNoData; queued errors are returned once each before
// the seeded result, which exercises retry paths.
type FakeProvider struct {
	mu     sync.Mutex
	tables map[string]*domain.RawTable
	errs   map[string][]error
	calls  []string
}

// NewFakeProvider creates an empty FakeProvider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		tables: make(map[string]*domain.RawTable),
		errs:   make(map[string][]error),
	}
}

func fakeKey(providerID string, date time.Time) string {
	return providerID + "@" + domain.FormatDate(date)
}

// SetTable seeds the raw table returned for (providerID, date).
func (f *FakeProvider) SetTable(providerID string, date time.Time, table *domain.RawTable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[fakeKey(providerID, date)] = table
}

// FailNext queues errors returned, in order, by the next calls for
// (providerID, date) before any seeded table is served.
func (f *FakeProvider) FailNext(providerID string, date time.Time, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeKey(providerID, date)
	f.errs[key] = append(f.errs[key], errs...)
}

// Fetch implements Provider.
func (f *FakeProvider) Fetch(ctx context.Context, providerID string, date time.Time) (*domain.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := fakeKey(providerID, date)
	f.calls = append(f.calls, key)

	if queued := f.errs[key]; len(queued) > 0 {
		err := queued[0]
		f.errs[key] = queued[1:]
		return nil, err
	}

	table, ok := f.tables[key]
	if !ok {
		return nil, ErrNoData
	}
	return table, nil
}

// Calls returns every fetch key seen so far, in call order.
func (f *FakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}
