package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/heimdall-intel/asis-cli/internal/config"
	"github.com/heimdall-intel/asis-cli/internal/fetcher"
	"github.com/heimdall-intel/asis-cli/internal/model"
	"github.com/heimdall-intel/asis-cli/internal/resilience"
)

// rateLimitedMarker is the error marker persisted in a news envelope
// when the upstream returns 429. Such envelopes are valid Bronze rows;
// the cleaner skips them.
const rateLimitedMarker = "rate_limited"

// NewsFeedAdapter fetches article metadata from a NewsAPI-style
// everything endpoint, restricted to preferred domains. Full-text
// extraction belongs to the cleaner; Bronze carries metadata only.
type NewsFeedAdapter struct {
	cfg     config.NewsConfig
	client  *fetcher.Client
	sources map[string]SourceConfig
}

// NewNewsFeedAdapter creates the news-feed adapter, loading the
// preferred-domain registry up front.
func NewNewsFeedAdapter(cfg config.NewsConfig, client *fetcher.Client) *NewsFeedAdapter {
	sources, err := LoadSources(cfg.SourcesFile)
	if err != nil {
		zap.L().Warn("news sources file unusable, using defaults", zap.Error(err))
		sources = defaultSources
	}
	return &NewsFeedAdapter{cfg: cfg, client: client, sources: sources}
}

func (a *NewsFeedAdapter) Family() model.SourceFamily { return model.FamilyNews }

type newsConfig struct {
	Region string `json:"region"`
}

// Validate checks that the entry carries search keywords.
func (a *NewsFeedAdapter) Validate(entry *model.CatalogEntry) error {
	if keywords(entry) == nil {
		return resilience.NewPermanentError(
			eris.Errorf("news: catalog %s has no search keywords", entry.CatalogKey), 0)
	}
	return nil
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// Fetch queries the everything endpoint for the entry's keywords over
// its region's preferred domains. A rate-limit response that survives
// the client's retries becomes a persistable error envelope, not a
// fetch failure.
func (a *NewsFeedAdapter) Fetch(ctx context.Context, in Context) (*model.RawEnvelope, error) {
	if err := a.Validate(&in.Entry); err != nil {
		return nil, err
	}
	var cfg newsConfig
	_ = in.Entry.Config(&cfg)

	kws := keywords(&in.Entry)
	query := buildQuery(kws)
	domains := domainsForRegion(a.sources, cfg.Region)

	echo := map[string]any{
		"q":       query,
		"domains": strings.Join(domains, ","),
	}

	env := &model.RawEnvelope{
		CatalogKey:   in.Entry.CatalogKey,
		SourceFamily: model.FamilyNews,
		FetchedAt:    time.Now().UTC(),
		QueryEcho:    echo,
	}

	pageSize := a.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	if in.Limit > 0 && in.Limit < pageSize {
		pageSize = in.Limit
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("apiKey", a.cfg.APIKey)
	q.Set("pageSize", fmt.Sprint(pageSize))
	q.Set("sortBy", "publishedAt")
	q.Set("language", "en")
	if len(domains) > 0 {
		q.Set("domains", strings.Join(domains, ","))
	}

	var resp newsAPIResponse
	err := a.client.GetJSON(ctx, a.cfg.BaseURL+"/everything?"+q.Encode(), &resp)
	if err != nil {
		var te *resilience.TransientError
		if errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests {
			zap.L().Warn("news feed rate limited, recording error envelope",
				zap.String("catalog_key", in.Entry.CatalogKey))
			env.Error = rateLimitedMarker
			return env, nil
		}
		return nil, err
	}

	if resp.Status != "ok" {
		if resp.Code == "rateLimited" {
			env.Error = rateLimitedMarker
			return env, nil
		}
		return nil, resilience.NewPermanentError(
			eris.Errorf("news: upstream error %s: %s", resp.Code, resp.Message), 0)
	}

	maxArticles := a.cfg.MaxArticles
	if maxArticles <= 0 {
		maxArticles = 20
	}
	if in.Limit > 0 && in.Limit < maxArticles {
		maxArticles = in.Limit
	}

	for _, art := range resp.Articles {
		if len(env.Articles) >= maxArticles {
			break
		}
		if art.Title == "" || art.URL == "" {
			continue
		}
		env.Articles = append(env.Articles, model.NewsArticle{
			Title:       art.Title,
			Description: art.Description,
			URL:         art.URL,
			PublishedAt: art.PublishedAt,
			Author:      art.Author,
			SourceName:  art.Source.Name,
		})
	}

	return env, nil
}

// keywords splits the catalog's comma-separated search keywords. Nil
// when none are configured.
func keywords(entry *model.CatalogEntry) []string {
	var kws []string
	for _, k := range strings.Split(entry.SearchKeywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	return kws
}

// buildQuery folds keywords into one OR query so a single API call
// covers every term. Multi-word phrases are quoted; keywords already
// carrying OR logic are wrapped in parentheses as one group. Only the
// first five keywords are used.
func buildQuery(kws []string) string {
	if len(kws) > 5 {
		kws = kws[:5]
	}
	parts := make([]string, 0, len(kws))
	for _, kw := range kws {
		switch {
		case strings.Contains(strings.ToUpper(kw), " OR "):
			parts = append(parts, "("+kw+")")
		case strings.Contains(kw, " "):
			parts = append(parts, `"`+kw+`"`)
		default:
			parts = append(parts, kw)
		}
	}
	return strings.Join(parts, " OR ")
}
