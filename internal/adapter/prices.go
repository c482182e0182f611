package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/heimdall-intel/asis-cli/internal/config"
	"github.com/heimdall-intel/asis-cli/internal/fetcher"
	"github.com/heimdall-intel/asis-cli/internal/model"
	"github.com/heimdall-intel/asis-cli/internal/resilience"
)

// PriceBarsAdapter fetches daily OHLCV bars from a Yahoo-style chart
// API. Bar dates are normalized to UTC midnight; bars with missing
// columns stay in the envelope and are dropped by the cleaner.
type PriceBarsAdapter struct {
	cfg    config.PricesConfig
	client *fetcher.Client
}

// NewPriceBarsAdapter creates the price-bars adapter.
func NewPriceBarsAdapter(cfg config.PricesConfig, client *fetcher.Client) *PriceBarsAdapter {
	return &PriceBarsAdapter{cfg: cfg, client: client}
}

func (a *PriceBarsAdapter) Family() model.SourceFamily { return model.FamilyMicro }

type pricesConfig struct {
	Ticker string `json:"ticker"`
}

// Validate checks that the entry names a ticker symbol.
func (a *PriceBarsAdapter) Validate(entry *model.CatalogEntry) error {
	var cfg pricesConfig
	if err := entry.Config(&cfg); err != nil {
		return resilience.NewPermanentError(err, 0)
	}
	if cfg.Ticker == "" {
		return resilience.NewPermanentError(
			eris.Errorf("prices: catalog %s has no ticker configured", entry.CatalogKey), 0)
	}
	return nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch pulls the bar range for the configured ticker.
func (a *PriceBarsAdapter) Fetch(ctx context.Context, in Context) (*model.RawEnvelope, error) {
	if err := a.Validate(&in.Entry); err != nil {
		return nil, err
	}
	var cfg pricesConfig
	_ = in.Entry.Config(&cfg)

	now := time.Now().UTC()
	rangeDays := a.cfg.RangeDays
	if rangeDays <= 0 {
		rangeDays = 30
	}
	if in.Limit > 0 && in.Limit < rangeDays {
		rangeDays = 5
	}
	start := now.AddDate(0, 0, -rangeDays)
	if s := incrementalStart(in); s != nil && s.After(start) {
		start = *s
	}

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", fmt.Sprint(start.Unix()))
	q.Set("period2", fmt.Sprint(now.Unix()))

	var resp chartResponse
	endpoint := a.cfg.BaseURL + "/" + url.PathEscape(cfg.Ticker) + "?" + q.Encode()
	if err := a.client.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		return nil, resilience.NewPermanentError(
			eris.Errorf("prices: upstream error for %s: %s", cfg.Ticker, resp.Chart.Error.Code), 0)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, resilience.ErrEmptyResultSet
	}

	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 || len(result.Timestamp) == 0 {
		return nil, resilience.ErrEmptyResultSet
	}
	quote := result.Indicators.Quote[0]

	bars := make([]model.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		bar := model.PriceBar{Date: midnightUTC(time.Unix(ts, 0))}
		if i < len(quote.Open) {
			bar.Open = quote.Open[i]
		}
		if i < len(quote.High) {
			bar.High = quote.High[i]
		}
		if i < len(quote.Low) {
			bar.Low = quote.Low[i]
		}
		if i < len(quote.Close) {
			bar.Close = quote.Close[i]
		}
		if i < len(quote.Volume) {
			bar.Volume = quote.Volume[i]
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, resilience.ErrEmptyResultSet
	}
	if in.Limit > 0 && len(bars) > in.Limit {
		bars = bars[len(bars)-in.Limit:]
	}

	return &model.RawEnvelope{
		CatalogKey:   in.Entry.CatalogKey,
		SourceFamily: model.FamilyMicro,
		FetchedAt:    time.Now().UTC(),
		QueryEcho: map[string]any{
			"ticker":   cfg.Ticker,
			"interval": "1d",
		},
		Bars: bars,
	}, nil
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
