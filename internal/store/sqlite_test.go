package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-intel/asis-cli/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func rawRecord(hash, key string, family model.SourceFamily, insertedAt time.Time) model.RawRecord {
	return model.RawRecord{
		RequestHash:  hash,
		CatalogKey:   key,
		SourceFamily: family,
		RawPayload:   []byte(`{"observations":[]}`),
		InsertedAt:   insertedAt,
	}
}

// --- migration and seed ---

func TestMigrate_Idempotent(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Migrate(context.Background()))
}

func TestMigrate_SeedsCatalogOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	inactive, err := st.ListInactive(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, inactive, "fresh database should carry the seed catalog")

	// Entries start inactive until confirmed.
	active, err := st.ListActive(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, active)

	// A second migrate must not duplicate the seed.
	require.NoError(t, st.Migrate(ctx))
	again, err := st.ListInactive(ctx)
	require.NoError(t, err)
	assert.Len(t, again, len(inactive))
}

// --- catalog ---

func TestCatalog_ActivateAndList(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ActivateCatalog(ctx, "METRIC_US_10Y_YIELD"))

	active, err := st.ListActive(ctx, model.Daily)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "METRIC_US_10Y_YIELD", active[0].CatalogKey)
	assert.Equal(t, model.FamilyMacro, active[0].SourceFamily)

	// Activation ensures a watermark row.
	wm, err := st.GetWatermark(ctx, "METRIC_US_10Y_YIELD")
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Nil(t, wm.LastIngestedAt)
}

func TestCatalog_ActivateUnknown(t *testing.T) {
	st := newTestStore(t)
	err := st.ActivateCatalog(context.Background(), "NO_SUCH_KEY")
	require.Error(t, err)
}

func TestCatalog_GetMissing(t *testing.T) {
	st := newTestStore(t)
	entry, err := st.GetCatalog(context.Background(), "NO_SUCH_KEY")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCatalog_ConfigRoundTrip(t *testing.T) {
	st := newTestStore(t)
	entry, err := st.GetCatalog(context.Background(), "NVDA")
	require.NoError(t, err)
	require.NotNil(t, entry)

	var cfg struct {
		Ticker string `json:"ticker"`
	}
	require.NoError(t, entry.Config(&cfg))
	assert.Equal(t, "NVDA", cfg.Ticker)
}

// --- bronze idempotency ---

func TestUpsertRaw_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	inserted, err := st.UpsertRaw(ctx, rawRecord("hash-1", "K1", model.FamilyMacro, now))
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same hash again: no-op.
	inserted, err = st.UpsertRaw(ctx, rawRecord("hash-1", "K1", model.FamilyMacro, now.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := st.RawCount(ctx, model.FamilyMacro)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	exists, err := st.RawExists(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

// --- delta query ---

func TestRawDelta_OrderAndWindow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)

	for i, hash := range []string{"h1", "h2", "h3"} {
		_, err := st.UpsertRaw(ctx, rawRecord(hash, "K1", model.FamilyMacro, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	// A row from another family stays out of the delta.
	_, err := st.UpsertRaw(ctx, rawRecord("h-news", "N1", model.FamilyNews, base))
	require.NoError(t, err)

	// Nil watermark: everything, ascending.
	delta, err := st.RawDelta(ctx, model.FamilyMacro, nil, 100)
	require.NoError(t, err)
	require.Len(t, delta, 3)
	assert.Equal(t, "h1", delta[0].RequestHash)
	assert.Equal(t, "h3", delta[2].RequestHash)
	assert.True(t, delta[0].InsertedAt.Before(delta[1].InsertedAt))

	// Watermark at the first row: strictly newer rows only.
	since := delta[0].InsertedAt
	delta, err = st.RawDelta(ctx, model.FamilyMacro, &since, 100)
	require.NoError(t, err)
	require.Len(t, delta, 2)
	assert.Equal(t, "h2", delta[0].RequestHash)

	// Batch cap.
	delta, err = st.RawDelta(ctx, model.FamilyMacro, nil, 2)
	require.NoError(t, err)
	assert.Len(t, delta, 2)
}

func TestMaxRawInserted(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ts, err := st.MaxRawInserted(ctx, model.FamilyMacro)
	require.NoError(t, err)
	assert.Nil(t, ts)

	latest := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	_, err = st.UpsertRaw(ctx, rawRecord("h1", "K1", model.FamilyMacro, latest.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = st.UpsertRaw(ctx, rawRecord("h2", "K1", model.FamilyMacro, latest))
	require.NoError(t, err)

	ts, err = st.MaxRawInserted(ctx, model.FamilyMacro)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(latest))
}

// --- watermarks ---

func TestWatermark_AdvanceIngested(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.AdvanceIngested(ctx, "K1", ts))

	wm, err := st.GetWatermark(ctx, "K1")
	require.NoError(t, err)
	require.NotNil(t, wm)
	require.NotNil(t, wm.LastIngestedAt)
	assert.True(t, wm.LastIngestedAt.Equal(ts))
	assert.Nil(t, wm.LastCleanedAt)
}

func TestWatermark_ResetCleaned(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := model.CleaningKey(model.FamilyNews)
	ts := time.Now().UTC()

	err := st.InTx(ctx, func(tx *sql.Tx) error {
		return st.AdvanceCleaned(ctx, tx, key, ts)
	})
	require.NoError(t, err)

	wm, err := st.GetWatermark(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, wm.LastCleanedAt)

	require.NoError(t, st.ResetCleaned(ctx, key))
	wm, err = st.GetWatermark(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, wm.LastCleanedAt)
}

func TestListWatermarks_Pattern(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureWatermark(ctx, model.CleaningKey(model.FamilyMacro)))
	require.NoError(t, st.EnsureWatermark(ctx, model.CleaningKey(model.FamilyNews)))

	marks, err := st.ListWatermarks(ctx, "SYSTEM_CLEANING_%")
	require.NoError(t, err)
	assert.Len(t, marks, 2)
}

// --- silver upserts ---

func TestUpsertMacroRows_ReplaceOnConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rows := []model.MacroRow{{CatalogKey: "K1", Date: "2025-01-02", Value: 4.23}}
	require.NoError(t, st.UpsertMacroRows(ctx, st.db, rows))

	rows[0].Value = 4.25
	require.NoError(t, st.UpsertMacroRows(ctx, st.db, rows))

	counts, err := st.SilverCounts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts["timeseries_macro"])
}

func TestUpsertNewsRows_FingerprintDedup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	body := "original body"

	rows := []model.NewsRow{{
		Fingerprint: "fp-1",
		CatalogKey:  "NEWS_US_TECH_SECTOR",
		Title:       "Old title",
		URL:         "https://example.com/a",
		Body:        &body,
	}}
	require.NoError(t, st.UpsertNewsRows(ctx, st.db, rows))

	// Later observation of the same fingerprint replaces the earlier one.
	rows[0].Title = "Corrected title"
	rows[0].Body = nil
	require.NoError(t, st.UpsertNewsRows(ctx, st.db, rows))

	total, distinct, err := st.NewsFingerprintStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.EqualValues(t, 1, distinct)

	var title string
	var gotBody sql.NullString
	err = st.db.QueryRowContext(ctx,
		`SELECT title, body FROM news_intel_pool WHERE fingerprint = 'fp-1'`).Scan(&title, &gotBody)
	require.NoError(t, err)
	assert.Equal(t, "Corrected title", title)
	assert.False(t, gotBody.Valid)
}

// --- transactions ---

func TestInTx_RollbackLeavesNothing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := model.CleaningKey(model.FamilyMacro)

	boom := eris.New("boom")
	err := st.InTx(ctx, func(tx *sql.Tx) error {
		if err := st.UpsertMacroRows(ctx, tx, []model.MacroRow{
			{CatalogKey: "K1", Date: "2025-01-02", Value: 1},
		}); err != nil {
			return err
		}
		if err := st.AdvanceCleaned(ctx, tx, key, time.Now().UTC()); err != nil {
			return err
		}
		return boom
	})
	require.Error(t, err)

	counts, err := st.SilverCounts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, counts["timeseries_macro"])

	wm, err := st.GetWatermark(ctx, key)
	require.NoError(t, err)
	if wm != nil {
		assert.Nil(t, wm.LastCleanedAt)
	}
}

func TestInTx_CommitsTogether(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := model.CleaningKey(model.FamilyMacro)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	err := st.InTx(ctx, func(tx *sql.Tx) error {
		if err := st.UpsertMacroRows(ctx, tx, []model.MacroRow{
			{CatalogKey: "K1", Date: "2025-01-02", Value: 1},
		}); err != nil {
			return err
		}
		return st.AdvanceCleaned(ctx, tx, key, ts)
	})
	require.NoError(t, err)

	counts, err := st.SilverCounts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts["timeseries_macro"])

	wm, err := st.GetWatermark(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, wm.LastCleanedAt)
	assert.True(t, wm.LastCleanedAt.Equal(ts))
}

// --- ingestion runs ---

func TestIngestionRuns_StartCompleteList(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.StartRun(ctx, model.Daily)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, st.CompleteRun(ctx, id, RunCounters{Total: 3, Succeeded: 2, Failed: 1}))

	runs, err := st.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "complete", runs[0].Status)
	assert.Equal(t, 2, runs[0].Succeeded)
	assert.NotNil(t, runs[0].FinishedAt)
}
