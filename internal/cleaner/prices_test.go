package cleaner

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-intel/asis-cli/internal/model"
)

func f(v float64) *float64 { return &v }
func i(v int64) *int64     { return &v }

func pricesRecord(t *testing.T, key string, bars []model.PriceBar) model.RawRecord {
	t.Helper()
	payload, err := json.Marshal(model.RawEnvelope{
		CatalogKey:   key,
		SourceFamily: model.FamilyMicro,
		FetchedAt:    time.Now().UTC(),
		Bars:         bars,
	})
	require.NoError(t, err)
	return model.RawRecord{
		RequestHash:  "h",
		CatalogKey:   key,
		SourceFamily: model.FamilyMicro,
		RawPayload:   payload,
		InsertedAt:   time.Now().UTC(),
	}
}

func TestPricesClean_ValidBar(t *testing.T) {
	c := &PriceBarsCleaner{}
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	rec := pricesRecord(t, "NVDA", []model.PriceBar{
		{Date: date, Open: f(100), High: f(104), Low: f(99), Close: f(103), Volume: i(1000)},
	})

	batch, skipped, err := c.Clean(context.Background(), rec)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, batch.Micro, 1)
	row := batch.Micro[0]
	assert.Equal(t, "2025-01-02", row.Date)
	assert.Equal(t, 100.0, row.Open)
	assert.EqualValues(t, 1000, *row.Volume)
}

func TestPricesClean_DropsOHLCViolations(t *testing.T) {
	c := &PriceBarsCleaner{}
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		bar  model.PriceBar
	}{
		{"low above open", model.PriceBar{Date: date, Open: f(100), High: f(104), Low: f(101), Close: f(103)}},
		{"high below close", model.PriceBar{Date: date, Open: f(100), High: f(102), Low: f(99), Close: f(103)}},
		{"missing open", model.PriceBar{Date: date, High: f(104), Low: f(99), Close: f(103)}},
		{"nan close", model.PriceBar{Date: date, Open: f(100), High: f(104), Low: f(99), Close: f(math.NaN())}},
		{"inf high", model.PriceBar{Date: date, Open: f(100), High: f(math.Inf(1)), Low: f(99), Close: f(103)}},
		{"negative volume", model.PriceBar{Date: date, Open: f(100), High: f(104), Low: f(99), Close: f(103), Volume: i(-5)}},
		{"zero date", model.PriceBar{Open: f(100), High: f(104), Low: f(99), Close: f(103)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := json.Marshal(tt.bar); err != nil {
				// NaN and ±Inf have no JSON form, so such a bar cannot
				// reach Clean through a raw payload; check the bar
				// filter Clean applies directly.
				_, ok := validBar("K", tt.bar)
				assert.False(t, ok)
				return
			}
			batch, skipped, err := c.Clean(context.Background(), pricesRecord(t, "K", []model.PriceBar{tt.bar}))
			require.NoError(t, err)
			assert.Equal(t, 1, skipped)
			assert.Empty(t, batch.Micro)
		})
	}
}

func TestPricesClean_MissingVolumeAllowed(t *testing.T) {
	c := &PriceBarsCleaner{}
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	rec := pricesRecord(t, "K", []model.PriceBar{
		{Date: date, Open: f(100), High: f(104), Low: f(99), Close: f(103)},
	})

	batch, skipped, err := c.Clean(context.Background(), rec)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, batch.Micro, 1)
	assert.Nil(t, batch.Micro[0].Volume)
}

func TestPricesClean_MixedBatchKeepsValid(t *testing.T) {
	c := &PriceBarsCleaner{}
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	rec := pricesRecord(t, "K", []model.PriceBar{
		{Date: date, Open: f(100), High: f(104), Low: f(99), Close: f(103)},
		{Date: date.AddDate(0, 0, 1), Open: f(100), High: f(90), Low: f(99), Close: f(103)},
		{Date: date.AddDate(0, 0, 2), Open: f(103), High: f(108), Low: f(102), Close: f(107)},
	})

	batch, skipped, err := c.Clean(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Len(t, batch.Micro, 2)
}
