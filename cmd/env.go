package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/heimdall-intel/asis-cli/internal/adapter"
	"github.com/heimdall-intel/asis-cli/internal/cleaner"
	"github.com/heimdall-intel/asis-cli/internal/fetcher"
	"github.com/heimdall-intel/asis-cli/internal/ingest"
	"github.com/heimdall-intel/asis-cli/internal/pipeline"
	"github.com/heimdall-intel/asis-cli/internal/resilience"
	"github.com/heimdall-intel/asis-cli/internal/store"
)

// env bundles the wired subsystems a command needs.
type env struct {
	Store    *store.Store
	Engine   *ingest.Engine
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// initEnv opens the store, migrates the schema, and wires the fetch
// client, adapters, cleaners, engine, and pipeline. Failures here are
// the fatal setup errors that abort a command with a non-zero exit.
func initEnv(ctx context.Context) (*env, error) {
	if dir := filepath.Dir(cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "create data dir %s", dir)
		}
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	client := fetcher.NewClient(fetcher.Options{
		UserAgent:       cfg.HTTP.UserAgent,
		Timeout:         time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
		Retry:           resilience.RetryConfig{MaxAttempts: cfg.HTTP.MaxRetries},
		RateLimits:      fetcher.DefaultRateLimits(),
		HostConcurrency: cfg.HTTP.HostConcurrency,
	})

	registry := adapter.NewRegistry(cfg, client)
	engine := ingest.NewEngine(st, registry, cfg.Ingest.MaxConcurrentCatalogs)

	extractor := cleaner.NewExtractor(time.Duration(cfg.Cleaning.ExtractTimeoutSecs) * time.Second)
	cleaners := cleaner.NewRegistry(cleaner.NewNewsFeedCleaner(extractor, cfg.Cleaning.ExtractWorkers))
	pl := pipeline.New(st, cleaners, cfg.Cleaning.BatchLimit)

	return &env{Store: st, Engine: engine, Pipeline: pl}, nil
}
