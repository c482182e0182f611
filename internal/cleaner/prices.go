package cleaner

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/heimdall-intel/asis-cli/internal/model"
)

// PriceBarsCleaner emits one timeseries_micro row per bar whose OHLC
// columns are all present, finite, and ordered
// low ≤ min(open, close) ≤ max(open, close) ≤ high. Anything else is
// dropped and counted.
type PriceBarsCleaner struct{}

func (c *PriceBarsCleaner) Family() model.SourceFamily { return model.FamilyMicro }

// Clean transforms a price-bars envelope into Silver rows.
func (c *PriceBarsCleaner) Clean(_ context.Context, rec model.RawRecord) (model.SilverBatch, int, error) {
	env, err := decodeEnvelope(rec)
	if err != nil {
		return model.SilverBatch{}, 0, err
	}

	skipped := 0
	batch := model.SilverBatch{Micro: make([]model.MicroRow, 0, len(env.Bars))}

	for _, bar := range env.Bars {
		row, ok := validBar(rec.CatalogKey, bar)
		if !ok {
			skipped++
			zap.L().Warn("dropping invalid price bar",
				zap.String("catalog_key", rec.CatalogKey),
				zap.Time("date", bar.Date),
			)
			continue
		}
		batch.Micro = append(batch.Micro, row)
	}
	return batch, skipped, nil
}

func validBar(key string, bar model.PriceBar) (model.MicroRow, bool) {
	if bar.Date.IsZero() {
		return model.MicroRow{}, false
	}
	if bar.Open == nil || bar.High == nil || bar.Low == nil || bar.Close == nil {
		return model.MicroRow{}, false
	}
	o, h, l, cl := *bar.Open, *bar.High, *bar.Low, *bar.Close
	for _, v := range []float64{o, h, l, cl} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.MicroRow{}, false
		}
	}
	if l > math.Min(o, cl) || math.Max(o, cl) > h {
		return model.MicroRow{}, false
	}
	if bar.Volume != nil && *bar.Volume < 0 {
		return model.MicroRow{}, false
	}

	return model.MicroRow{
		CatalogKey: key,
		Date:       bar.Date.UTC().Format("2006-01-02"),
		Open:       o,
		High:       h,
		Low:        l,
		Close:      cl,
		Volume:     bar.Volume,
	}, true
}
