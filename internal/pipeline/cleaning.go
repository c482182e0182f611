// Package pipeline drives the differential Bronze → Silver cleaning
// algorithm: read watermark, pull delta, transform, commit rows and
// watermark atomically, repeat until the delta runs dry.
package pipeline

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/heimdall-intel/asis-cli/internal/cleaner"
	"github.com/heimdall-intel/asis-cli/internal/model"
	"github.com/heimdall-intel/asis-cli/internal/resilience"
	"github.com/heimdall-intel/asis-cli/internal/store"
)

// Pipeline is the cleaning driver.
type Pipeline struct {
	store      *store.Store
	registry   *cleaner.Registry
	batchLimit int
}

// Options selects what a cleaning run processes.
type Options struct {
	Family model.SourceFamily // empty means every family
	DryRun bool
	Limit  int // overrides the configured batch cap
}

// Stats aggregates one family's cleaning outcome.
type Stats struct {
	Family   model.SourceFamily
	Input    int
	Cleaned  int // raw records that produced rows
	Rows     int // silver rows committed
	Skipped  int
	Failed   int
	Duration time.Duration
}

// New creates a cleaning pipeline with the given per-batch record cap.
func New(st *store.Store, reg *cleaner.Registry, batchLimit int) *Pipeline {
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &Pipeline{store: st, registry: reg, batchLimit: batchLimit}
}

// Run cleans the selected families, returning per-family stats.
func (p *Pipeline) Run(ctx context.Context, opts Options) ([]Stats, error) {
	families := model.Families()
	if opts.Family != "" {
		families = []model.SourceFamily{opts.Family}
	}

	var all []Stats
	for _, family := range families {
		stats, err := p.runFamily(ctx, family, opts)
		all = append(all, stats)
		if err != nil {
			return all, err
		}
		if err := ctx.Err(); err != nil {
			return all, err
		}
	}
	return all, nil
}

// runFamily loops batches for one family until the delta query returns
// fewer rows than the cap.
func (p *Pipeline) runFamily(ctx context.Context, family model.SourceFamily, opts Options) (Stats, error) {
	start := time.Now()
	stats := Stats{Family: family}
	log := zap.L().With(
		zap.String("component", "cleaning.pipeline"),
		zap.String("source_family", string(family)),
	)

	limit := p.batchLimit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	cl, err := p.registry.For(family)
	if err != nil {
		return stats, err
	}
	wmKey := model.CleaningKey(family)

	for {
		wm, err := p.store.GetWatermark(ctx, wmKey)
		if err != nil {
			return stats, err
		}
		var since *time.Time
		if wm != nil {
			since = wm.LastCleanedAt
		}

		delta, err := p.store.RawDelta(ctx, family, since, limit)
		if err != nil {
			return stats, err
		}
		if len(delta) == 0 {
			if stats.Input == 0 {
				log.Info("no new records",
					zap.String("status", "up_to_date"),
					zap.Timep("last_cleaned_at", since),
				)
			}
			break
		}
		stats.Input += len(delta)

		batch, batchStats := p.transform(ctx, cl, delta)
		stats.Cleaned += batchStats.Cleaned
		stats.Skipped += batchStats.Skipped
		stats.Failed += batchStats.Failed
		stats.Rows += batch.Len()

		maxInserted := delta[len(delta)-1].InsertedAt

		if opts.DryRun {
			log.Info("dry run: batch not committed",
				zap.String("status", "dry_run"),
				zap.Int("count", batch.Len()),
				zap.Time("would_advance_to", maxInserted),
			)
			// Without the watermark advance the same delta would return
			// forever; one pass is all a dry run inspects.
			break
		}

		err = p.store.InTx(ctx, func(tx *sql.Tx) error {
			if err := p.store.UpsertSilver(ctx, tx, batch); err != nil {
				return err
			}
			return p.store.AdvanceCleaned(ctx, tx, wmKey, maxInserted)
		})
		if err != nil {
			log.Error("batch rolled back",
				zap.String("status", "rolled_back"),
				zap.String("error_kind", "storage_failure"),
				zap.Error(err),
			)
			stats.Duration = time.Since(start)
			return stats, err
		}

		log.Info("batch committed",
			zap.String("status", "committed"),
			zap.Int("count", batch.Len()),
			zap.Int("skipped", batchStats.Skipped),
			zap.Time("last_cleaned_at", maxInserted),
		)

		if len(delta) < limit {
			break
		}
	}

	stats.Duration = time.Since(start)
	log.Info("family cleaning complete",
		zap.Int("input", stats.Input),
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

type transformStats struct {
	Cleaned int
	Skipped int
	Failed  int
}

// transform dispatches each raw record to the cleaner. A record whose
// cleaner errors is logged and treated as a skip; the batch continues.
func (p *Pipeline) transform(ctx context.Context, cl cleaner.Cleaner, delta []model.RawRecord) (model.SilverBatch, transformStats) {
	var batch model.SilverBatch
	var stats transformStats

	for _, rec := range delta {
		rows, skipped, err := cl.Clean(ctx, rec)
		stats.Skipped += skipped
		if err != nil {
			stats.Failed++
			zap.L().Warn("record cleaning failed",
				zap.String("catalog_key", rec.CatalogKey),
				zap.String("source_family", string(rec.SourceFamily)),
				zap.String("status", "skipped"),
				zap.String("error_kind", resilience.Kind(err)),
				zap.Error(err),
			)
			continue
		}
		if rows.Len() > 0 {
			stats.Cleaned++
		}
		batch.Merge(rows)
	}
	return batch, stats
}

// ResetWatermark nulls the cleaning watermark for one family, or for
// all of them, so the next run reprocesses every Bronze row. Upsert
// semantics keep the Silver row count stable across the reprocess.
func (p *Pipeline) ResetWatermark(ctx context.Context, family model.SourceFamily) error {
	families := model.Families()
	if family != "" {
		families = []model.SourceFamily{family}
	}
	for _, f := range families {
		if err := p.store.ResetCleaned(ctx, model.CleaningKey(f)); err != nil {
			return err
		}
		zap.L().Info("cleaning watermark reset",
			zap.String("source_family", string(f)),
		)
	}
	return nil
}

// Watermarks returns the cleaning watermark rows for display.
func (p *Pipeline) Watermarks(ctx context.Context) ([]model.Watermark, error) {
	return p.store.ListWatermarks(ctx, "SYSTEM_CLEANING_%")
}
