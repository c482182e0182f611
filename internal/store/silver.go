package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/heimdall-intel/asis-cli/internal/model"
)

// UpsertMacroRows writes macro observations, replacing the value on a
// (catalog_key, date) conflict so re-derivation stays idempotent.
func (s *Store) UpsertMacroRows(ctx context.Context, q execer, rows []model.MacroRow) error {
	for _, r := range rows {
		_, err := q.ExecContext(ctx,
			`INSERT INTO timeseries_macro (catalog_key, date, value)
			 VALUES (?, ?, ?)
			 ON CONFLICT(catalog_key, date) DO UPDATE SET value = excluded.value`,
			r.CatalogKey, r.Date, r.Value)
		if err != nil {
			return eris.Wrapf(err, "store: upsert macro %s/%s", r.CatalogKey, r.Date)
		}
	}
	return nil
}

// UpsertMicroRows writes OHLCV bars with replace-on-conflict semantics.
func (s *Store) UpsertMicroRows(ctx context.Context, q execer, rows []model.MicroRow) error {
	for _, r := range rows {
		_, err := q.ExecContext(ctx,
			`INSERT INTO timeseries_micro
			 (catalog_key, date, val_open, val_high, val_low, val_close, val_volume)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(catalog_key, date) DO UPDATE SET
			   val_open = excluded.val_open,
			   val_high = excluded.val_high,
			   val_low = excluded.val_low,
			   val_close = excluded.val_close,
			   val_volume = excluded.val_volume`,
			r.CatalogKey, r.Date, r.Open, r.High, r.Low, r.Close, r.Volume)
		if err != nil {
			return eris.Wrapf(err, "store: upsert micro %s/%s", r.CatalogKey, r.Date)
		}
	}
	return nil
}

// UpsertNewsRows writes news rows keyed by fingerprint. A later
// observation of the same fingerprint replaces the earlier one: upstream
// corrects article metadata. Sentiment and summary slots are left to
// their downstream owners.
func (s *Store) UpsertNewsRows(ctx context.Context, q execer, rows []model.NewsRow) error {
	for _, r := range rows {
		_, err := q.ExecContext(ctx,
			`INSERT INTO news_intel_pool
			 (fingerprint, catalog_key, title, url, published_at, author, source_name, body)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(fingerprint) DO UPDATE SET
			   catalog_key = excluded.catalog_key,
			   title = excluded.title,
			   url = excluded.url,
			   published_at = excluded.published_at,
			   author = excluded.author,
			   source_name = excluded.source_name,
			   body = excluded.body`,
			r.Fingerprint, r.CatalogKey, r.Title, r.URL, r.PublishedAt,
			nullable(r.Author), nullable(r.SourceName), r.Body)
		if err != nil {
			return eris.Wrapf(err, "store: upsert news %s", r.Fingerprint)
		}
	}
	return nil
}

// UpsertSilver dispatches a mixed batch to the per-family upserts.
func (s *Store) UpsertSilver(ctx context.Context, q execer, batch model.SilverBatch) error {
	if err := s.UpsertMacroRows(ctx, q, batch.Macro); err != nil {
		return err
	}
	if err := s.UpsertMicroRows(ctx, q, batch.Micro); err != nil {
		return err
	}
	return s.UpsertNewsRows(ctx, q, batch.News)
}

// SilverCounts returns row counts for every Silver table.
func (s *Store) SilverCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 3)
	for _, table := range []string{"timeseries_macro", "timeseries_micro", "news_intel_pool"} {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "store: count %s", table)
		}
		counts[table] = n
	}
	return counts, nil
}

// NewsFingerprintStats returns total and distinct fingerprint counts
// for the news pool. With a primary-keyed fingerprint these are equal;
// the verify pass asserts it anyway.
func (s *Store) NewsFingerprintStats(ctx context.Context) (total, distinct int64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT fingerprint) FROM news_intel_pool`).
		Scan(&total, &distinct)
	return total, distinct, eris.Wrap(err, "store: news fingerprint stats")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
