package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/heimdall-intel/asis-cli/internal/config"
	"github.com/heimdall-intel/asis-cli/internal/fetcher"
	"github.com/heimdall-intel/asis-cli/internal/model"
	"github.com/heimdall-intel/asis-cli/internal/resilience"
)

// MacroSeriesAdapter fetches macro-economic series observations from
// the FRED observations API. Sentinel non-numeric values ("." for
// missing data) pass through unfiltered; filtering is a cleaner concern.
type MacroSeriesAdapter struct {
	cfg    config.MacroConfig
	client *fetcher.Client
}

// NewMacroSeriesAdapter creates the macro-series adapter.
func NewMacroSeriesAdapter(cfg config.MacroConfig, client *fetcher.Client) *MacroSeriesAdapter {
	return &MacroSeriesAdapter{cfg: cfg, client: client}
}

func (a *MacroSeriesAdapter) Family() model.SourceFamily { return model.FamilyMacro }

type macroConfig struct {
	Series seriesList `json:"series"`
}

// seriesList accepts either a single series ID or a list of them.
type seriesList []string

func (s *seriesList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// Validate checks that the entry names at least one non-empty series ID.
func (a *MacroSeriesAdapter) Validate(entry *model.CatalogEntry) error {
	var cfg macroConfig
	if err := entry.Config(&cfg); err != nil {
		return resilience.NewPermanentError(err, 0)
	}
	if len(cfg.Series) == 0 {
		return resilience.NewPermanentError(
			eris.Errorf("macro: catalog %s has no series configured", entry.CatalogKey), 0)
	}
	for _, id := range cfg.Series {
		if id == "" {
			return resilience.NewPermanentError(
				eris.Errorf("macro: catalog %s has an empty series id", entry.CatalogKey), 0)
		}
	}
	return nil
}

type fredResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// Fetch pulls observations for every configured series concurrently and
// folds them into one envelope. Per-series failures are recorded in the
// envelope metadata; the fetch fails when no series succeeds, and with
// ErrEmptyResultSet when the series together return no observations.
func (a *MacroSeriesAdapter) Fetch(ctx context.Context, in Context) (*model.RawEnvelope, error) {
	if err := a.Validate(&in.Entry); err != nil {
		return nil, err
	}
	var cfg macroConfig
	_ = in.Entry.Config(&cfg)

	start := incrementalStart(in)

	var mu sync.Mutex
	observations := make(map[string][]model.Observation, len(cfg.Series))
	seriesErrors := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range cfg.Series {
		g.Go(func() error {
			obs, err := a.fetchSeries(gctx, id, start, in.Limit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				seriesErrors[id] = err.Error()
				zap.L().Warn("macro series fetch failed",
					zap.String("catalog_key", in.Entry.CatalogKey),
					zap.String("series_id", id),
					zap.Error(err),
				)
				return nil
			}
			observations[id] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(observations) == 0 && len(seriesErrors) > 0 {
		return nil, resilience.NewTransientError(
			eris.Errorf("macro: all %d series failed for %s", len(cfg.Series), in.Entry.CatalogKey), 0)
	}

	// Deterministic series order in the envelope.
	ids := make([]string, 0, len(observations))
	for id := range observations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var all []model.Observation
	for _, id := range ids {
		all = append(all, observations[id]...)
	}
	if len(all) == 0 {
		return nil, resilience.ErrEmptyResultSet
	}

	env := &model.RawEnvelope{
		CatalogKey:   in.Entry.CatalogKey,
		SourceFamily: model.FamilyMacro,
		FetchedAt:    time.Now().UTC(),
		QueryEcho: map[string]any{
			"series": []string(cfg.Series),
		},
		Observations: all,
	}
	if start != nil {
		env.Metadata = map[string]any{"observation_start": start.Format("2006-01-02")}
	}
	if len(seriesErrors) > 0 {
		if env.Metadata == nil {
			env.Metadata = map[string]any{}
		}
		env.Metadata["series_errors"] = seriesErrors
	}
	return env, nil
}

func (a *MacroSeriesAdapter) fetchSeries(ctx context.Context, seriesID string, start *time.Time, limit int) ([]model.Observation, error) {
	q := url.Values{}
	q.Set("series_id", seriesID)
	q.Set("api_key", a.cfg.APIKey)
	q.Set("file_type", "json")
	q.Set("observation_end", time.Now().UTC().Format("2006-01-02"))
	if start != nil {
		q.Set("observation_start", start.Format("2006-01-02"))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
		q.Set("sort_order", "desc")
	}

	var resp fredResponse
	if err := a.client.GetJSON(ctx, a.cfg.BaseURL+"/series/observations?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	obs := make([]model.Observation, 0, len(resp.Observations))
	for _, o := range resp.Observations {
		obs = append(obs, model.Observation{SeriesID: seriesID, Date: o.Date, Value: o.Value})
	}
	return obs, nil
}
