package cleaner

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/heimdall-intel/asis-cli/internal/model"
)

// MacroSeriesCleaner emits one timeseries_macro row per observation
// with a parseable numeric value and a valid date. Sentinel values like
// "." are dropped and logged. Observations from multiple series on the
// same date are summed, so composite metrics (e.g. net liquidity) fold
// into a single row.
type MacroSeriesCleaner struct{}

func (c *MacroSeriesCleaner) Family() model.SourceFamily { return model.FamilyMacro }

// Clean transforms a macro envelope into Silver rows.
func (c *MacroSeriesCleaner) Clean(_ context.Context, rec model.RawRecord) (model.SilverBatch, int, error) {
	env, err := decodeEnvelope(rec)
	if err != nil {
		return model.SilverBatch{}, 0, err
	}

	skipped := 0
	byDate := make(map[string]float64)
	var dates []string

	for _, obs := range env.Observations {
		if _, err := time.Parse("2006-01-02", obs.Date); err != nil {
			skipped++
			zap.L().Warn("dropping observation with invalid date",
				zap.String("catalog_key", rec.CatalogKey),
				zap.String("date", obs.Date),
			)
			continue
		}
		value, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			skipped++
			zap.L().Warn("dropping non-numeric observation",
				zap.String("catalog_key", rec.CatalogKey),
				zap.String("date", obs.Date),
				zap.String("value", obs.Value),
			)
			continue
		}
		if _, seen := byDate[obs.Date]; !seen {
			dates = append(dates, obs.Date)
		}
		byDate[obs.Date] += value
	}

	batch := model.SilverBatch{Macro: make([]model.MacroRow, 0, len(dates))}
	for _, date := range dates {
		batch.Macro = append(batch.Macro, model.MacroRow{
			CatalogKey: rec.CatalogKey,
			Date:       date,
			Value:      byDate[date],
		})
	}
	return batch, skipped, nil
}
