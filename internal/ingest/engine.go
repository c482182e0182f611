// Package ingest drives the Bronze layer: select due catalog entries,
// invoke their adapters, persist raw envelopes idempotently, and
// advance per-stream ingestion watermarks.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/heimdall-intel/asis-cli/internal/adapter"
	"github.com/heimdall-intel/asis-cli/internal/model"
	"github.com/heimdall-intel/asis-cli/internal/resilience"
	"github.com/heimdall-intel/asis-cli/internal/store"
)

// Engine orchestrates ingestion batches over the adapter registry.
type Engine struct {
	store       *store.Store
	registry    *adapter.Registry
	concurrency int
}

// Options selects what a batch ingests.
type Options struct {
	Frequency  model.Frequency
	CatalogKey string // restrict to one entry
	DryRun     bool   // fetch without storing
	Limit      int    // cap the number of entries processed
}

// NewEngine creates an ingestion engine. concurrency bounds the
// per-entry fan-out.
func NewEngine(st *store.Store, reg *adapter.Registry, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Engine{store: st, registry: reg, concurrency: concurrency}
}

// Run ingests every active catalog entry matching the options. Entries
// fail in isolation: an error is logged with its kind and counted, and
// the batch continues. The batch summary lands in ingestion_runs.
func (e *Engine) Run(ctx context.Context, opts Options) (store.RunCounters, error) {
	log := zap.L().With(zap.String("component", "ingest.engine"))

	entries, err := e.selectEntries(ctx, opts)
	if err != nil {
		return store.RunCounters{}, err
	}
	if len(entries) == 0 {
		log.Info("no active catalog entries due", zap.String("frequency", string(opts.Frequency)))
		return store.RunCounters{}, nil
	}

	runID, err := e.store.StartRun(ctx, opts.Frequency)
	if err != nil {
		return store.RunCounters{}, err
	}

	log.Info("starting ingestion batch",
		zap.String("run_id", runID),
		zap.String("frequency", string(opts.Frequency)),
		zap.Int("count", len(entries)),
		zap.Bool("dry_run", opts.DryRun),
	)

	var mu sync.Mutex
	counters := store.RunCounters{Total: len(entries)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, entry := range entries {
		g.Go(func() error {
			outcome := e.ingestOne(gctx, entry, opts.DryRun)
			mu.Lock()
			switch outcome {
			case outcomeStored, outcomeDryRunOK:
				counters.Succeeded++
			case outcomeSkipped:
				counters.Skipped++
			default:
				counters.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := e.store.CompleteRun(ctx, runID, counters); err != nil {
		log.Error("failed to record batch completion", zap.Error(err))
	}

	log.Info("ingestion batch complete",
		zap.String("run_id", runID),
		zap.Int("count", counters.Total),
		zap.Int("succeeded", counters.Succeeded),
		zap.Int("skipped", counters.Skipped),
		zap.Int("failed", counters.Failed),
	)
	return counters, ctx.Err()
}

type outcome int

const (
	outcomeStored outcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeDryRunOK
)

// ingestOne runs the full fetch-hash-upsert-advance sequence for one
// catalog entry. Every failure mode is absorbed here.
func (e *Engine) ingestOne(ctx context.Context, entry model.CatalogEntry, dryRun bool) outcome {
	start := time.Now()
	log := zap.L().With(
		zap.String("catalog_key", entry.CatalogKey),
		zap.String("source_family", string(entry.SourceFamily)),
	)

	fail := func(err error) outcome {
		log.Error("ingestion failed",
			zap.String("status", "failed"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("error_kind", resilience.Kind(err)),
			zap.Error(err),
		)
		return outcomeFailed
	}

	ad, err := e.registry.For(entry.SourceFamily)
	if err != nil {
		return fail(err)
	}

	wm, err := e.store.GetWatermark(ctx, entry.CatalogKey)
	if err != nil {
		return fail(err)
	}
	var lastIngested *time.Time
	if wm != nil {
		lastIngested = wm.LastIngestedAt
	}

	env, err := ad.Fetch(ctx, adapter.Context{Entry: entry, LastIngestedAt: lastIngested})
	if err != nil {
		if errors.Is(err, resilience.ErrEmptyResultSet) {
			log.Warn("upstream returned no items",
				zap.String("status", "empty"),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("error_kind", resilience.Kind(err)),
			)
			return outcomeSkipped
		}
		return fail(err)
	}

	if dryRun {
		log.Info("dry run passed",
			zap.String("status", "dry_run_passed"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("count", env.ItemCount()),
		)
		return outcomeDryRunOK
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fail(eris.Wrap(err, "ingest: marshal envelope"))
	}

	hash := adapter.RequestHash(entry.CatalogKey, env.QueryEcho, entry.UpdateFrequency, env.FetchedAt)
	inserted, err := e.store.UpsertRaw(ctx, model.RawRecord{
		RequestHash:  hash,
		CatalogKey:   entry.CatalogKey,
		SourceFamily: entry.SourceFamily,
		RawPayload:   payload,
		InsertedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fail(err)
	}

	if !inserted {
		log.Info("already ingested for this window",
			zap.String("status", "skipped"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_hash", hash),
		)
		return outcomeSkipped
	}

	if err := e.store.AdvanceIngested(ctx, entry.CatalogKey, time.Now().UTC()); err != nil {
		return fail(err)
	}

	log.Info("ingested",
		zap.String("status", "success"),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.String("request_hash", hash),
		zap.Int("count", env.ItemCount()),
	)
	return outcomeStored
}

func (e *Engine) selectEntries(ctx context.Context, opts Options) ([]model.CatalogEntry, error) {
	if opts.CatalogKey != "" {
		entry, err := e.store.GetCatalog(ctx, opts.CatalogKey)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, eris.Errorf("ingest: catalog not found: %s", opts.CatalogKey)
		}
		if !entry.IsActive {
			return nil, eris.Errorf("ingest: catalog not active: %s (run activate first)", opts.CatalogKey)
		}
		return []model.CatalogEntry{*entry}, nil
	}

	entries, err := e.store.ListActive(ctx, opts.Frequency)
	if err != nil {
		return nil, err
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}
