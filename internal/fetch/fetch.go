// Package fetch defines the external market-data provider interface and its
// implementations: the dukascopy-node subprocess downloader, the Alpaca
// market-data API, and an in-memory fake for tests.
package fetch

import (
	"context"
	"errors"
	"time"

	"tickvault/internal/domain"
)

// ErrNoData signals that the provider has nothing for the requested date.
// Weekends and holidays produce it routinely; it is a legitimate terminal
// outcome, never retried.
var ErrNoData = errors.New("fetch: no data for date")

// Provider fetches one day of raw tabular rows for an instrument. The
// interval is the half-open [date, date+1d). Implementations return ErrNoData
// for empty days and plain errors for transport failures, which the caller
// may retry.
type Provider interface {
	Fetch(ctx context.Context, providerID string, date time.Time) (*domain.RawTable, error)
}
