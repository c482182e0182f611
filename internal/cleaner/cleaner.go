// Package cleaner transforms Bronze raw envelopes into typed Silver
// rows. One cleaner per source family; each is a pure transform apart
// from the news cleaner's bounded full-text fetches.
package cleaner

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/heimdall-intel/asis-cli/internal/model"
)

// Cleaner turns one raw record into Silver rows plus a count of skipped
// source items. Errors abandon the record, never the batch.
type Cleaner interface {
	Family() model.SourceFamily
	Clean(ctx context.Context, rec model.RawRecord) (model.SilverBatch, int, error)
}

// Registry resolves the cleaner for a source family.
type Registry struct {
	cleaners map[model.SourceFamily]Cleaner
}

// NewRegistry wires the closed set of cleaners.
func NewRegistry(news *NewsFeedCleaner) *Registry {
	r := &Registry{cleaners: make(map[model.SourceFamily]Cleaner)}
	for _, c := range []Cleaner{
		&MacroSeriesCleaner{},
		&PriceBarsCleaner{},
		news,
	} {
		r.cleaners[c.Family()] = c
	}
	return r
}

// For returns the cleaner for the family, or an error for an unknown one.
func (r *Registry) For(family model.SourceFamily) (Cleaner, error) {
	c, ok := r.cleaners[family]
	if !ok {
		return nil, eris.Errorf("cleaner: no cleaner registered for family %s", family)
	}
	return c, nil
}

// decodeEnvelope parses a Bronze payload back into the canonical
// envelope.
func decodeEnvelope(rec model.RawRecord) (*model.RawEnvelope, error) {
	var env model.RawEnvelope
	if err := json.Unmarshal(rec.RawPayload, &env); err != nil {
		return nil, eris.Wrapf(err, "cleaner: decode payload for %s", rec.CatalogKey)
	}
	return &env, nil
}
