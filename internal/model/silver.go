package model

import "time"

// MacroRow is one cleaned (catalog key, date) macro observation for
// timeseries_macro.
type MacroRow struct {
	CatalogKey string
	Date       string // YYYY-MM-DD
	Value      float64
}

// MicroRow is one cleaned OHLCV bar for timeseries_micro.
type MicroRow struct {
	CatalogKey string
	Date       string // YYYY-MM-DD, UTC
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     *int64
}

// NewsRow is one cleaned article for news_intel_pool, keyed by the md5
// of its canonical URL. Sentiment and AISummary belong to downstream
// scoring components and are never written by the pipeline.
type NewsRow struct {
	Fingerprint string
	CatalogKey  string
	Title       string
	URL         string
	PublishedAt *time.Time
	Author      string
	SourceName  string
	Body        *string
	Sentiment   *float64
	AISummary   *string
}

// SilverBatch aggregates cleaner output for one raw record. Exactly one
// of the slices is populated, matching the record's source family.
type SilverBatch struct {
	Macro []MacroRow
	Micro []MicroRow
	News  []NewsRow
}

// Len returns the total number of Silver rows in the batch.
func (b *SilverBatch) Len() int {
	return len(b.Macro) + len(b.Micro) + len(b.News)
}

// Merge appends other's rows into b.
func (b *SilverBatch) Merge(other SilverBatch) {
	b.Macro = append(b.Macro, other.Macro...)
	b.Micro = append(b.Micro, other.Micro...)
	b.News = append(b.News, other.News...)
}
