package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// SourceFamily identifies the upstream source family of a data stream.
type SourceFamily string

const (
	FamilyMacro SourceFamily = "MACRO_SERIES"
	FamilyMicro SourceFamily = "PRICE_BARS"
	FamilyNews  SourceFamily = "NEWS_FEED"
)

// Families lists every source family in dispatch order.
func Families() []SourceFamily {
	return []SourceFamily{FamilyMacro, FamilyMicro, FamilyNews}
}

// ParseFamily converts a CLI-facing source name into a SourceFamily.
func ParseFamily(s string) (SourceFamily, error) {
	switch s {
	case "MACRO", "MACRO_SERIES":
		return FamilyMacro, nil
	case "MICRO", "PRICE_BARS":
		return FamilyMicro, nil
	case "NEWS", "NEWS_FEED":
		return FamilyNews, nil
	default:
		return "", eris.Errorf("unknown source family: %q (valid: MACRO, MICRO, NEWS)", s)
	}
}

// Frequency describes how often a catalog entry is polled.
type Frequency string

const (
	Hourly    Frequency = "HOURLY"
	Daily     Frequency = "DAILY"
	Monthly   Frequency = "MONTHLY"
	Quarterly Frequency = "QUARTERLY"
)

// ParseFrequency converts a flag value into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch s {
	case "HOURLY", "hourly":
		return Hourly, nil
	case "DAILY", "daily":
		return Daily, nil
	case "MONTHLY", "monthly":
		return Monthly, nil
	case "QUARTERLY", "quarterly":
		return Quarterly, nil
	default:
		return "", eris.Errorf("unknown frequency: %q (valid: HOURLY, DAILY, MONTHLY, QUARTERLY)", s)
	}
}

// Bucket truncates t to the frequency's time window. Two fetches inside
// the same bucket hash identically and dedupe at the raw upsert.
func (f Frequency) Bucket(t time.Time) string {
	t = t.UTC()
	switch f {
	case Hourly:
		return t.Format("2006-01-02-15")
	case Monthly:
		return t.Format("2006-01")
	case Quarterly:
		q := (int(t.Month())-1)/3 + 1
		return fmt.Sprintf("%d-Q%d", t.Year(), q)
	default:
		return t.Format("2006-01-02")
	}
}

// CatalogEntry is one row of data_catalog: the registry record for a
// logical data stream.
type CatalogEntry struct {
	CatalogKey      string          `json:"catalog_key"`
	EntityName      string          `json:"entity_name"`
	SourceFamily    SourceFamily    `json:"source_family"`
	UpdateFrequency Frequency       `json:"update_frequency"`
	ConfigParams    json.RawMessage `json:"config_params"`
	SearchKeywords  string          `json:"search_keywords,omitempty"`
	Role            string          `json:"role"`
	Scope           string          `json:"scope"`
	IsActive        bool            `json:"is_active"`
}

// Config unmarshals the entry's source-specific configuration blob.
func (c *CatalogEntry) Config(dst any) error {
	if len(c.ConfigParams) == 0 {
		return eris.Errorf("catalog %s: empty config_params", c.CatalogKey)
	}
	if err := json.Unmarshal(c.ConfigParams, dst); err != nil {
		return eris.Wrapf(err, "catalog %s: decode config_params", c.CatalogKey)
	}
	return nil
}

// Watermark is one row of sync_watermarks: per-stream, per-stage
// checkpoints driving differential processing.
type Watermark struct {
	CatalogKey     string     `json:"catalog_key"`
	LastIngestedAt *time.Time `json:"last_ingested_at,omitempty"`
	LastCleanedAt  *time.Time `json:"last_cleaned_at,omitempty"`
}

// CleaningKey returns the synthetic catalog key that carries the
// per-family cleaning watermark.
func CleaningKey(f SourceFamily) string {
	return "SYSTEM_CLEANING_" + string(f)
}
