package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/heimdall-intel/asis-cli/internal/model"
)

// Store wraps the writer connection to the embedded SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path with WAL mode
// and synchronous commits. The returned Store holds the process's only
// writer connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}
	// A single writer connection serializes all mutations.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the writer connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const migration = `
CREATE TABLE IF NOT EXISTS data_catalog (
	catalog_key      TEXT PRIMARY KEY,
	entity_name      TEXT NOT NULL,
	source_family    TEXT NOT NULL,
	update_frequency TEXT NOT NULL,
	config_params    TEXT NOT NULL DEFAULT '{}',
	search_keywords  TEXT,
	role             TEXT NOT NULL DEFAULT 'JUDGMENT',
	scope            TEXT NOT NULL DEFAULT 'MACRO',
	is_active        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS raw_ingestion_cache (
	request_hash  TEXT PRIMARY KEY,
	catalog_key   TEXT NOT NULL,
	source_family TEXT NOT NULL,
	raw_payload   TEXT NOT NULL,
	inserted_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_watermarks (
	catalog_key      TEXT PRIMARY KEY,
	last_ingested_at DATETIME,
	last_cleaned_at  DATETIME
);

CREATE TABLE IF NOT EXISTS timeseries_macro (
	catalog_key TEXT NOT NULL,
	date        TEXT NOT NULL,
	value       REAL NOT NULL,
	PRIMARY KEY (catalog_key, date)
);

CREATE TABLE IF NOT EXISTS timeseries_micro (
	catalog_key TEXT NOT NULL,
	date        TEXT NOT NULL,
	val_open    REAL NOT NULL,
	val_high    REAL NOT NULL,
	val_low     REAL NOT NULL,
	val_close   REAL NOT NULL,
	val_volume  INTEGER,
	PRIMARY KEY (catalog_key, date)
);

CREATE TABLE IF NOT EXISTS news_intel_pool (
	fingerprint     TEXT PRIMARY KEY,
	catalog_key     TEXT NOT NULL,
	title           TEXT NOT NULL,
	url             TEXT NOT NULL,
	published_at    DATETIME,
	author          TEXT,
	source_name     TEXT,
	body            TEXT,
	sentiment_score REAL,
	ai_summary      TEXT
);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id          TEXT PRIMARY KEY,
	frequency   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	total       INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_raw_family_inserted
	ON raw_ingestion_cache(source_family, inserted_at);
CREATE INDEX IF NOT EXISTS idx_raw_catalog ON raw_ingestion_cache(catalog_key);
CREATE INDEX IF NOT EXISTS idx_catalog_freq ON data_catalog(update_frequency, is_active);
CREATE INDEX IF NOT EXISTS idx_runs_started ON ingestion_runs(started_at);
`

// Migrate creates the schema idempotently and seeds the catalog if it
// is empty.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migration); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	return s.seedCatalog(ctx)
}

// --- catalog ---

const catalogColumns = `catalog_key, entity_name, source_family, update_frequency,
	config_params, COALESCE(search_keywords, ''), role, scope, is_active`

// ListActive returns active catalog entries, optionally filtered by
// update frequency.
func (s *Store) ListActive(ctx context.Context, freq model.Frequency) ([]model.CatalogEntry, error) {
	query := `SELECT ` + catalogColumns + ` FROM data_catalog WHERE is_active = 1`
	var args []any
	if freq != "" {
		query += ` AND update_frequency = ?`
		args = append(args, string(freq))
	}
	query += ` ORDER BY source_family, catalog_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list active catalog")
	}
	defer rows.Close()
	return scanCatalog(rows)
}

// ListInactive returns catalog entries awaiting activation.
func (s *Store) ListInactive(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+catalogColumns+` FROM data_catalog WHERE is_active = 0
		 ORDER BY source_family, catalog_key`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list inactive catalog")
	}
	defer rows.Close()
	return scanCatalog(rows)
}

// GetCatalog fetches a single entry by key. Returns nil when absent.
func (s *Store) GetCatalog(ctx context.Context, key string) (*model.CatalogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+catalogColumns+` FROM data_catalog WHERE catalog_key = ?`, key)

	var e model.CatalogEntry
	var params string
	var active int
	err := row.Scan(&e.CatalogKey, &e.EntityName, &e.SourceFamily, &e.UpdateFrequency,
		&params, &e.SearchKeywords, &e.Role, &e.Scope, &active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get catalog %s", key)
	}
	e.ConfigParams = []byte(params)
	e.IsActive = active != 0
	return &e, nil
}

// ActivateCatalog flips is_active and ensures a watermark row exists,
// the post-confirmation step of the activation operation.
func (s *Store) ActivateCatalog(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE data_catalog SET is_active = 1 WHERE catalog_key = ?`, key)
	if err != nil {
		return eris.Wrapf(err, "store: activate catalog %s", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Errorf("store: catalog not found: %s", key)
	}
	return s.EnsureWatermark(ctx, key)
}

func scanCatalog(rows *sql.Rows) ([]model.CatalogEntry, error) {
	var entries []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		var params string
		var active int
		if err := rows.Scan(&e.CatalogKey, &e.EntityName, &e.SourceFamily, &e.UpdateFrequency,
			&params, &e.SearchKeywords, &e.Role, &e.Scope, &active); err != nil {
			return nil, eris.Wrap(err, "store: scan catalog entry")
		}
		e.ConfigParams = []byte(params)
		e.IsActive = active != 0
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "store: iterate catalog")
}

// --- watermarks ---

// EnsureWatermark creates an empty watermark row for the key if none
// exists.
func (s *Store) EnsureWatermark(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sync_watermarks (catalog_key) VALUES (?)`, key)
	return eris.Wrapf(err, "store: ensure watermark %s", key)
}

// GetWatermark returns the watermark row for key, nil when absent.
func (s *Store) GetWatermark(ctx context.Context, key string) (*model.Watermark, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT catalog_key, last_ingested_at, last_cleaned_at
		 FROM sync_watermarks WHERE catalog_key = ?`, key)

	var w model.Watermark
	err := row.Scan(&w.CatalogKey, &w.LastIngestedAt, &w.LastCleanedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get watermark %s", key)
	}
	return &w, nil
}

// ListWatermarks returns watermark rows whose key matches the LIKE
// pattern, ordered by key.
func (s *Store) ListWatermarks(ctx context.Context, pattern string) ([]model.Watermark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT catalog_key, last_ingested_at, last_cleaned_at
		 FROM sync_watermarks WHERE catalog_key LIKE ? ORDER BY catalog_key`, pattern)
	if err != nil {
		return nil, eris.Wrap(err, "store: list watermarks")
	}
	defer rows.Close()

	var marks []model.Watermark
	for rows.Next() {
		var w model.Watermark
		if err := rows.Scan(&w.CatalogKey, &w.LastIngestedAt, &w.LastCleanedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan watermark")
		}
		marks = append(marks, w)
	}
	return marks, eris.Wrap(rows.Err(), "store: iterate watermarks")
}

// AdvanceIngested sets last_ingested_at for key, creating the row if
// needed.
func (s *Store) AdvanceIngested(ctx context.Context, key string, ts time.Time) error {
	if err := s.EnsureWatermark(ctx, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_watermarks SET last_ingested_at = ? WHERE catalog_key = ?`,
		ts.UTC(), key)
	return eris.Wrapf(err, "store: advance ingested %s", key)
}

// AdvanceCleaned sets last_cleaned_at for key within q, which must be
// the same transaction that commits the batch's Silver rows.
func (s *Store) AdvanceCleaned(ctx context.Context, q execer, key string, ts time.Time) error {
	if _, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO sync_watermarks (catalog_key) VALUES (?)`, key); err != nil {
		return eris.Wrapf(err, "store: ensure watermark %s", key)
	}
	_, err := q.ExecContext(ctx,
		`UPDATE sync_watermarks SET last_cleaned_at = ? WHERE catalog_key = ?`,
		ts.UTC(), key)
	return eris.Wrapf(err, "store: advance cleaned %s", key)
}

// ResetCleaned nulls last_cleaned_at for key, forcing a full reprocess
// on the next cleaning run.
func (s *Store) ResetCleaned(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_watermarks SET last_cleaned_at = NULL WHERE catalog_key = ?`, key)
	return eris.Wrapf(err, "store: reset cleaned %s", key)
}

// --- bronze ---

// UpsertRaw writes a Bronze row keyed by request hash. A matching hash
// is a no-op: the same request window was already persisted. Reports
// whether a row was actually written.
func (s *Store) UpsertRaw(ctx context.Context, rec model.RawRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO raw_ingestion_cache
		 (request_hash, catalog_key, source_family, raw_payload, inserted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.RequestHash, rec.CatalogKey, string(rec.SourceFamily),
		string(rec.RawPayload), rec.InsertedAt.UTC())
	if err != nil {
		return false, eris.Wrapf(err, "store: upsert raw %s", rec.CatalogKey)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "store: rows affected")
	}
	return n > 0, nil
}

// RawExists reports whether a raw row with the hash is already stored.
func (s *Store) RawExists(ctx context.Context, hash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM raw_ingestion_cache WHERE request_hash = ?`, hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "store: raw exists")
	}
	return true, nil
}

// RawDelta returns raw rows for the family inserted after since (all
// rows when since is nil), ascending by inserted_at, capped at limit.
func (s *Store) RawDelta(ctx context.Context, family model.SourceFamily, since *time.Time, limit int) ([]model.RawRecord, error) {
	query := `SELECT request_hash, catalog_key, source_family, raw_payload, inserted_at
		 FROM raw_ingestion_cache WHERE source_family = ?`
	args := []any{string(family)}
	if since != nil {
		query += ` AND inserted_at > ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY inserted_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: raw delta")
	}
	defer rows.Close()

	var recs []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		var payload string
		if err := rows.Scan(&r.RequestHash, &r.CatalogKey, &r.SourceFamily, &payload, &r.InsertedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan raw record")
		}
		r.RawPayload = []byte(payload)
		r.InsertedAt = r.InsertedAt.UTC()
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "store: iterate raw delta")
}

// MaxRawInserted returns the latest inserted_at for the family, nil
// when Bronze holds no rows for it.
func (s *Store) MaxRawInserted(ctx context.Context, family model.SourceFamily) (*time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT inserted_at FROM raw_ingestion_cache WHERE source_family = ?
		 ORDER BY inserted_at DESC LIMIT 1`,
		string(family)).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: max raw inserted")
	}
	ts = ts.UTC()
	return &ts, nil
}

// RawCount counts Bronze rows for the family.
func (s *Store) RawCount(ctx context.Context, family model.SourceFamily) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_ingestion_cache WHERE source_family = ?`,
		string(family)).Scan(&n)
	return n, eris.Wrap(err, "store: raw count")
}

// --- transactions ---

// InTx runs fn inside a single transaction, committing on nil error and
// rolling back otherwise. Silver upserts and watermark advances for one
// cleaning batch go through here so they land together or not at all.
func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin tx")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return eris.Wrapf(err, "store: rollback also failed: %v", rbErr)
		}
		return err
	}
	return eris.Wrap(tx.Commit(), "store: commit tx")
}
