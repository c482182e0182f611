// Package adapter normalizes vendor API responses into the canonical
// raw envelope persisted to Bronze. One adapter per source family;
// registration of a new family is a source change, not a plugin.
package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/heimdall-intel/asis-cli/internal/config"
	"github.com/heimdall-intel/asis-cli/internal/fetcher"
	"github.com/heimdall-intel/asis-cli/internal/model"
)

// Context carries everything an adapter needs for one fetch.
type Context struct {
	Entry          model.CatalogEntry
	LastIngestedAt *time.Time
	// Limit caps the number of items fetched. Used by the activation
	// probe (limit 1); zero means the adapter's own default.
	Limit int
}

// Adapter is the uniform contract every source family implements: one
// canonical raw envelope per invocation, or an error. Adapters never
// write to the store and never retry beyond what the HTTP client does.
type Adapter interface {
	Family() model.SourceFamily
	Validate(entry *model.CatalogEntry) error
	Fetch(ctx context.Context, in Context) (*model.RawEnvelope, error)
}

// Registry resolves the adapter for a source family.
type Registry struct {
	adapters map[model.SourceFamily]Adapter
}

// NewRegistry wires the closed set of adapters over the shared fetch
// client.
func NewRegistry(cfg *config.Config, client *fetcher.Client) *Registry {
	r := &Registry{adapters: make(map[model.SourceFamily]Adapter)}
	for _, a := range []Adapter{
		NewMacroSeriesAdapter(cfg.Macro, client),
		NewPriceBarsAdapter(cfg.Prices, client),
		NewNewsFeedAdapter(cfg.News, client),
	} {
		r.adapters[a.Family()] = a
	}
	return r
}

// For returns the adapter for the family, or an error for an unknown one.
func (r *Registry) For(family model.SourceFamily) (Adapter, error) {
	a, ok := r.adapters[family]
	if !ok {
		return nil, eris.Errorf("adapter: no adapter registered for family %s", family)
	}
	return a, nil
}

// RequestHash derives the Bronze primary key: sha256 over the catalog
// key, the canonical query echo, and the time window truncated to the
// entry's frequency. Two fetches inside one window hash identically, so
// the second upsert no-ops.
func RequestHash(key string, echo map[string]any, freq model.Frequency, now time.Time) string {
	canonical, _ := json.Marshal(echo) // map keys marshal sorted
	input := fmt.Sprintf("%s:%s:%s", key, canonical, freq.Bucket(now))
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// incrementalStart derives the observation window start from the
// ingestion watermark. Judgment streams look back further than
// validation streams; a nil watermark means full history.
func incrementalStart(in Context) *time.Time {
	if in.LastIngestedAt == nil {
		return nil
	}
	daysBack := 7
	if in.Entry.Role == "JUDGMENT" {
		daysBack = 30
	}
	t := in.LastIngestedAt.AddDate(0, 0, -daysBack)
	return &t
}
