package model

import (
	"encoding/json"
	"time"
)

// RawRecord is one row of raw_ingestion_cache (Bronze). Immutable once
// written; may hold an upstream error marker without violating anything.
type RawRecord struct {
	RequestHash  string          `json:"request_hash"`
	CatalogKey   string          `json:"catalog_key"`
	SourceFamily SourceFamily    `json:"source_family"`
	RawPayload   json.RawMessage `json:"raw_payload"`
	InsertedAt   time.Time       `json:"inserted_at"`
}

// RawEnvelope is the canonical shape every adapter normalizes vendor
// responses into before persistence.
type RawEnvelope struct {
	CatalogKey   string         `json:"catalog_key"`
	SourceFamily SourceFamily   `json:"source_family"`
	FetchedAt    time.Time      `json:"fetched_at"`
	QueryEcho    map[string]any `json:"query_echo"`
	Error        string         `json:"error,omitempty"`
	Observations []Observation  `json:"observations,omitempty"`
	Bars         []PriceBar     `json:"bars,omitempty"`
	Articles     []NewsArticle  `json:"articles,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Observation is a single macro-series data point as fetched. Value
// stays a string in Bronze: sentinel markers like "." pass through and
// the cleaner decides.
type Observation struct {
	SeriesID string `json:"series_id,omitempty"`
	Date     string `json:"date"`
	Value    string `json:"value"`
}

// PriceBar is one OHLCV bar as fetched, date normalized to UTC midnight.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   *float64  `json:"open"`
	High   *float64  `json:"high"`
	Low    *float64  `json:"low"`
	Close  *float64  `json:"close"`
	Volume *int64    `json:"volume"`
}

// NewsArticle is one article's metadata as fetched. Body extraction is
// a cleaner concern; Bronze carries metadata only.
type NewsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at,omitempty"`
	Author      string `json:"author,omitempty"`
	SourceName  string `json:"source_name,omitempty"`
}

// ItemCount returns how many source items the envelope carries,
// regardless of family.
func (e *RawEnvelope) ItemCount() int {
	return len(e.Observations) + len(e.Bars) + len(e.Articles)
}
