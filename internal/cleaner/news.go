package cleaner

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/heimdall-intel/asis-cli/internal/model"
)

// NewsFeedCleaner produces one news_intel_pool row per article,
// deduplicated by the md5 of its canonical URL. Body extraction runs
// concurrently within the record, bounded by the worker count, and the
// cleaner waits for every extraction so the caller commits atomically.
// A row is emitted whether or not extraction succeeds; the body falls
// back to the article description, or null.
type NewsFeedCleaner struct {
	extractor *Extractor
	workers   int
}

// NewNewsFeedCleaner creates the news cleaner with the given extraction
// fan-out width.
func NewNewsFeedCleaner(extractor *Extractor, workers int) *NewsFeedCleaner {
	if workers <= 0 {
		workers = 4
	}
	return &NewsFeedCleaner{extractor: extractor, workers: workers}
}

func (c *NewsFeedCleaner) Family() model.SourceFamily { return model.FamilyNews }

// Clean transforms a news envelope into Silver rows. Envelopes carrying
// an upstream error marker (e.g. rate_limited) yield zero rows and one
// skip, letting the watermark advance past them.
func (c *NewsFeedCleaner) Clean(ctx context.Context, rec model.RawRecord) (model.SilverBatch, int, error) {
	env, err := decodeEnvelope(rec)
	if err != nil {
		return model.SilverBatch{}, 0, err
	}

	if env.Error != "" {
		zap.L().Info("skipping error-marked news envelope",
			zap.String("catalog_key", rec.CatalogKey),
			zap.String("error_kind", env.Error),
		)
		return model.SilverBatch{}, 1, nil
	}

	type pending struct {
		row  *model.NewsRow
		desc string
	}

	skipped := 0
	rows := make([]pending, 0, len(env.Articles))
	for _, art := range env.Articles {
		title := strings.TrimSpace(art.Title)
		rawURL := strings.TrimSpace(art.URL)
		if title == "" || rawURL == "" {
			skipped++
			continue
		}
		rows = append(rows, pending{
			row: &model.NewsRow{
				Fingerprint: Fingerprint(rawURL),
				CatalogKey:  rec.CatalogKey,
				Title:       title,
				URL:         rawURL,
				PublishedAt: parsePublished(art.PublishedAt),
				Author:      strings.TrimSpace(art.Author),
				SourceName:  strings.TrimSpace(art.SourceName),
			},
			desc: strings.TrimSpace(art.Description),
		})
	}

	// Fan out body extraction; every row is finished before returning.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, p := range rows {
		g.Go(func() error {
			body, err := c.extractor.Extract(gctx, p.row.URL)
			if err != nil || body == "" {
				if err != nil {
					zap.L().Debug("body extraction failed, falling back to description",
						zap.String("url", p.row.URL),
						zap.Error(err),
					)
				}
				if p.desc != "" {
					p.row.Body = &p.desc
				}
				return nil
			}
			p.row.Body = &body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.SilverBatch{}, skipped, err
	}

	batch := model.SilverBatch{News: make([]model.NewsRow, 0, len(rows))}
	for _, p := range rows {
		batch.News = append(batch.News, *p.row)
	}
	return batch, skipped, nil
}

// Fingerprint computes the md5 of the canonicalized URL: the single
// authoritative identity for a news row.
func Fingerprint(rawURL string) string {
	sum := md5.Sum([]byte(CanonicalURL(rawURL)))
	return hex.EncodeToString(sum[:])
}

// CanonicalURL normalizes a URL for fingerprinting: lowercase scheme
// and host, fragment dropped, tracking parameters removed, trailing
// slash trimmed.
func CanonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if strings.HasPrefix(param, "utm_") || param == "fbclid" || param == "gclid" || param == "ref" {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

func parsePublished(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
