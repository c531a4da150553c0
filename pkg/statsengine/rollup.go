package statsengine

import (
	"context"
	"math"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Rollup is the best available sold-price summary for a card in one
// condition and currency
type Rollup struct {
	CardID          string           `json:"card_id"`
	Condition       models.Condition `json:"condition"`
	Currency        string           `json:"currency"`
	PeriodSizeDays  int              `json:"period_size_days"`
	ModificationKey string           `json:"modification_key"`
	Stats           models.Stats     `json:"stats"`
	Source          string           `json:"source"` // native, converted, latest_price
}

// CardRollup answers "what is this card worth" with a fallback ladder:
// the narrowest native-currency stat, then a cross-currency stat converted
// into the requested currency, then the most recent sold price as a
// single-sample degenerate block. Returns nil when no data exists at all.
func (e *Engine) CardRollup(ctx context.Context, cardID string, condition models.Condition, curr string) (*Rollup, error) {
	ctx, span := tracing.StartSpan(ctx, "statsengine.Engine.CardRollup")
	defer span.End()

	selections, err := e.selections.ListByCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Selection, len(selections))
	for i := range selections {
		byID[selections[i].ID] = &selections[i]
	}

	allStats, err := e.stats.ListByCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	var native, foreign *models.Stat
	for i := range allStats {
		stat := &allStats[i]
		selection, ok := byID[stat.SelectionID]
		if !ok || selection.PriceKind != models.PriceKindSold || selection.Condition != condition {
			continue
		}
		if stat.ModificationKey != models.UngradedModificationKey || stat.Stats.Count < e.minSample {
			continue
		}
		if selection.Currency == curr {
			if native == nil || stat.PeriodSizeDays < native.PeriodSizeDays {
				native = stat
			}
		} else {
			if foreign == nil || stat.PeriodSizeDays < foreign.PeriodSizeDays {
				foreign = stat
			}
		}
	}

	if native != nil {
		return &Rollup{
			CardID: cardID, Condition: condition, Currency: curr,
			PeriodSizeDays:  native.PeriodSizeDays,
			ModificationKey: native.ModificationKey,
			Stats:           native.Stats,
			Source:          "native",
		}, nil
	}

	if foreign != nil {
		from := byID[foreign.SelectionID].Currency
		converted, err := e.convertStats(ctx, foreign.Stats, from, curr)
		if err == nil {
			return &Rollup{
				CardID: cardID, Condition: condition, Currency: curr,
				PeriodSizeDays:  foreign.PeriodSizeDays,
				ModificationKey: foreign.ModificationKey,
				Stats:           converted,
				Source:          "converted",
			}, nil
		}
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from": from, "to": curr}).Warn("Rollup currency conversion unavailable")
	}

	return e.latestPriceRollup(ctx, cardID, condition, curr)
}

// latestPriceRollup degrades to the single most recent sold price
func (e *Engine) latestPriceRollup(ctx context.Context, cardID string, condition models.Condition, curr string) (*Rollup, error) {
	prices, err := e.soldPrices.ListByCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	var latest *models.SoldPrice
	var latestAmount int64
	for i := range prices {
		p := &prices[i]
		if p.State != models.PriceStateActive || p.Condition != condition {
			continue
		}
		amount, err := e.exchanger.Convert(ctx, p.Amount, p.Currency, curr)
		if err != nil {
			continue
		}
		if latest == nil || p.SoldAt.After(latest.SoldAt) {
			latest = p
			latestAmount = amount
		}
	}
	if latest == nil {
		return nil, nil
	}

	value := float64(latestAmount)
	return &Rollup{
		CardID: cardID, Condition: condition, Currency: curr,
		ModificationKey: latest.ModificationKey(),
		Stats: models.Stats{
			Count: 1, Min: latestAmount, Max: latestAmount,
			FirstQuartile: value, Median: value, ThirdQuartile: value, Mean: value,
		},
		Source: "latest_price",
	}, nil
}

// convertStats rescales a stat block into another currency using the
// exchanger's current rate
func (e *Engine) convertStats(ctx context.Context, block models.Stats, from, to string) (models.Stats, error) {
	const probe = 1_000_000
	convertedProbe, err := e.exchanger.Convert(ctx, probe, from, to)
	if err != nil {
		return models.Stats{}, err
	}
	rate := float64(convertedProbe) / float64(probe)

	scaleInt := func(v int64) int64 { return int64(math.Round(float64(v) * rate)) }
	out := models.Stats{
		Count:         block.Count,
		Min:           scaleInt(block.Min),
		Max:           scaleInt(block.Max),
		FirstQuartile: block.FirstQuartile * rate,
		Median:        block.Median * rate,
		ThirdQuartile: block.ThirdQuartile * rate,
		Mean:          block.Mean * rate,
		StdDev:        block.StdDev * rate,
	}
	for _, ma := range block.MovingAverages {
		out.MovingAverages = append(out.MovingAverages, models.MovingAverage{Window: ma.Window, Value: ma.Value * rate})
	}
	return out, nil
}
