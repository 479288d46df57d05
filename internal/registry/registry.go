// Package registry loads the read-only instrument registry from symbols.yaml:
// a mapping from internal symbol key to provider identifier and required
// history floor. The registry is owned by whoever maintains symbols.yaml;
// this package only parses it.
package registry

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"tickvault/internal/domain"
)

// entry is the on-disk shape of one registry record.
type entry struct {
	ID           string `yaml:"id"`
	EarliestDate string `yaml:"earliest_date"`
}

// Registry is the loaded instrument set, keyed by internal symbol.
type Registry struct {
	instruments map[string]domain.Instrument
}

// Load reads and parses the symbols.yaml file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}

	raw := make(map[string]entry)
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}

	instruments := make(map[string]domain.Instrument, len(raw))
	for symbol, e := range raw {
		if e.ID == "" {
			return nil, fmt.Errorf("registry entry %s: missing provider id", symbol)
		}
		earliest, err := domain.ParseDate(e.EarliestDate)
		if err != nil {
			return nil, fmt.Errorf("registry entry %s: bad earliest_date %q: %w", symbol, e.EarliestDate, err)
		}
		instruments[symbol] = domain.Instrument{
			Symbol:       symbol,
			ProviderID:   e.ID,
			EarliestDate: earliest,
		}
	}

	return &Registry{instruments: instruments}, nil
}

// Get returns the instrument for the given symbol key.
func (r *Registry) Get(symbol string) (domain.Instrument, bool) {
	inst, ok := r.instruments[symbol]
	return inst, ok
}

// All returns every instrument, sorted by symbol for deterministic runs.
func (r *Registry) All() []domain.Instrument {
	out := make([]domain.Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Select returns the instruments for the requested symbols, preserving the
// registry's sorted order, plus the list of unknown symbols.
func (r *Registry) Select(symbols []string) ([]domain.Instrument, []string) {
	if len(symbols) == 0 {
		return r.All(), nil
	}

	want := make(map[string]struct{}, len(symbols))
	var unknown []string
	for _, s := range symbols {
		if _, ok := r.instruments[s]; !ok {
			unknown = append(unknown, s)
			continue
		}
		want[s] = struct{}{}
	}

	var out []domain.Instrument
	for _, inst := range r.All() {
		if _, ok := want[inst.Symbol]; ok {
			out = append(out, inst)
		}
	}
	return out, unknown
}

// Len returns the number of registered instruments.
func (r *Registry) Len() int { return len(r.instruments) }
