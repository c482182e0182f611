package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/heimdall-intel/asis-cli/internal/adapter"
	"github.com/heimdall-intel/asis-cli/internal/model"
	"github.com/heimdall-intel/asis-cli/internal/resilience"
)

// ActivationResult summarizes one confirmation attempt.
type ActivationResult struct {
	CatalogKey string
	Activated  bool
	Err        error
}

// ConfirmActivation probes every inactive catalog entry (or a single
// one) with a limit-1 fetch. An entry becomes active iff the probe
// succeeds and yields at least one item.
func (e *Engine) ConfirmActivation(ctx context.Context, catalogKey string) ([]ActivationResult, error) {
	var entries []model.CatalogEntry
	if catalogKey != "" {
		entry, err := e.store.GetCatalog(ctx, catalogKey)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, eris.Errorf("ingest: catalog not found: %s", catalogKey)
		}
		entries = []model.CatalogEntry{*entry}
	} else {
		var err error
		entries, err = e.store.ListInactive(ctx)
		if err != nil {
			return nil, err
		}
	}

	results := make([]ActivationResult, 0, len(entries))
	for _, entry := range entries {
		res := ActivationResult{CatalogKey: entry.CatalogKey}
		res.Activated, res.Err = e.confirmOne(ctx, entry)
		results = append(results, res)
		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Engine) confirmOne(ctx context.Context, entry model.CatalogEntry) (bool, error) {
	start := time.Now()
	log := zap.L().With(
		zap.String("catalog_key", entry.CatalogKey),
		zap.String("source_family", string(entry.SourceFamily)),
	)

	ad, err := e.registry.For(entry.SourceFamily)
	if err != nil {
		return false, err
	}

	env, err := ad.Fetch(ctx, adapter.Context{Entry: entry, Limit: 1})
	if err != nil {
		log.Warn("activation probe failed",
			zap.String("status", "failed"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("error_kind", resilience.Kind(err)),
			zap.Error(err),
		)
		return false, err
	}
	if env.Error != "" || env.ItemCount() == 0 {
		log.Warn("activation probe returned no items",
			zap.String("status", "empty"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return false, nil
	}

	if err := e.store.ActivateCatalog(ctx, entry.CatalogKey); err != nil {
		return false, err
	}
	log.Info("catalog activated",
		zap.String("status", "activated"),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int("count", env.ItemCount()),
	)
	return true, nil
}
