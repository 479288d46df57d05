package fetch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tickvault/internal/domain"
)

// Compile-time interface check.
var _ Provider = (*AlpacaProvider)(nil)

// AlpacaProvider fetches minute bars from the Alpaca market-data API and
// presents them as a raw table in the same shape the CSV downloader emits,
// so normalization is provider-agnostic.
type AlpacaProvider struct {
	client *marketdata.Client
	feed   string
}

// NewAlpacaProvider creates an AlpacaProvider with the given credentials.
// feed may be empty; Alpaca then serves the account's default feed.
func NewAlpacaProvider(apiKey, apiSecret, dataURL, feed string) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaProvider{
		client: marketdata.NewClient(opts),
		feed:   feed,
	}
}

// Fetch returns one day of minute bars for the given symbol, or ErrNoData
// when the market was closed.
func (p *AlpacaProvider) Fetch(ctx context.Context, providerID string, date time.Time) (*domain.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     domain.Midnight(date),
		End:       domain.Midnight(date).AddDate(0, 0, 1),
	}
	if p.feed != "" {
		req.Feed = marketdata.Feed(p.feed)
	}

	bars, err := p.client.GetBars(providerID, req)
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", providerID, err)
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	table := &domain.RawTable{
		Columns: []string{"timestamp", "open", "high", "low", "close", "volume"},
		Records: make([][]string, 0, len(bars)),
	}
	for _, b := range bars {
		table.Records = append(table.Records, []string{
			b.Timestamp.UTC().Format("2006-01-02 15:04"),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(float64(b.Volume)),
		})
	}
	return table, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
