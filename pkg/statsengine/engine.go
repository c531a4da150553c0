// Package statsengine recomputes the windowed price aggregates for
// selections and serves rollups over them.
package statsengine

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/currency"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/opportunity"
	"github.com/Ramsey-B/fern/pkg/schedule"
	"github.com/Ramsey-B/fern/pkg/stats"
)

// preferredSoldPeriodDays is the window opportunity scoring reads first
const preferredSoldPeriodDays = 14

// SelectionStore is the selection surface the engine needs
type SelectionStore interface {
	Get(ctx context.Context, id string) (*models.Selection, error)
	GetByDimensions(ctx context.Context, cardID string, kind models.PriceKind, condition models.Condition, currency, searchDefinitionID string) (*models.Selection, error)
	ListByCard(ctx context.Context, cardID string) ([]models.Selection, error)
}

// StatStore is the stat surface the engine needs
type StatStore interface {
	Get(ctx context.Context, id string) (*models.Stat, error)
	Upsert(ctx context.Context, stat *models.Stat) (*models.Stat, error)
	ListBySelection(ctx context.Context, selectionID string) ([]models.Stat, error)
	ListByCard(ctx context.Context, cardID string) ([]models.Stat, error)
}

// SoldPriceStore is the sold price surface the engine needs
type SoldPriceStore interface {
	ListActiveBySelection(ctx context.Context, selectionID string) ([]models.SoldPrice, error)
	ListByCard(ctx context.Context, cardID string) ([]models.SoldPrice, error)
}

// ListingStore is the listing surface the engine needs
type ListingStore interface {
	ListBySelection(ctx context.Context, selectionID string) ([]models.Listing, error)
}

// EventEmitter publishes recomputation events
type EventEmitter interface {
	EmitStatsCalculated(ctx context.Context, cardID string, stat *models.Stat) error
}

// Engine owns stat recomputation and rollups
type Engine struct {
	selections SelectionStore
	stats      StatStore
	soldPrices SoldPriceStore
	listings   ListingStore
	exchanger  currency.Exchanger
	emitter    EventEmitter
	calculator *stats.Calculator
	logger     logging.Logger

	periods   []int
	minSample int
	now       func() time.Time
}

// NewEngine creates an Engine
func NewEngine(cfg config.Config, selections SelectionStore, statStore StatStore, soldPrices SoldPriceStore, listings ListingStore, exchanger currency.Exchanger, emitter EventEmitter, logger logging.Logger) *Engine {
	periods := append([]int{}, cfg.StatPeriodSizeDays...)
	sort.Ints(periods)
	return &Engine{
		selections: selections,
		stats:      statStore,
		soldPrices: soldPrices,
		listings:   listings,
		exchanger:  exchanger,
		emitter:    emitter,
		calculator: stats.NewCalculator(),
		logger:     logger,
		periods:    periods,
		minSample:  cfg.StatMinimumSampleSize,
		now:        time.Now,
	}
}

// RecomputeSelection recomputes every (period, modification key) stat for a
// selection and returns the stats that met the minimum sample size. Series
// below the minimum are skipped rather than persisted as noise.
func (e *Engine) RecomputeSelection(ctx context.Context, selectionID string) ([]models.Stat, error) {
	ctx, span := tracing.StartSpan(ctx, "statsengine.Engine.RecomputeSelection")
	defer span.End()

	selection, err := e.selections.Get(ctx, selectionID)
	if err != nil {
		return nil, err
	}

	series, err := e.seriesForSelection(ctx, selection)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	var computed []models.Stat
	for modKey, points := range series {
		for _, period := range e.periods {
			stat := e.computeOne(selection, points, period, modKey, now)
			if stat == nil {
				continue
			}
			stored, err := e.stats.Upsert(ctx, stat)
			if err != nil {
				return computed, err
			}
			computed = append(computed, *stored)
			if err := e.emitter.EmitStatsCalculated(ctx, selection.CardID, stored); err != nil {
				e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit stats event")
			}
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"selection_id": selectionID,
		"stats":        len(computed),
	}).Info("Recomputed selection stats")

	return computed, nil
}

// RecomputeStat recomputes a single existing stat in place
func (e *Engine) RecomputeStat(ctx context.Context, statID string) (*models.Stat, error) {
	ctx, span := tracing.StartSpan(ctx, "statsengine.Engine.RecomputeStat")
	defer span.End()

	existing, err := e.stats.Get(ctx, statID)
	if err != nil {
		return nil, err
	}
	selection, err := e.selections.Get(ctx, existing.SelectionID)
	if err != nil {
		return nil, err
	}

	series, err := e.seriesForSelection(ctx, selection)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	stat := e.computeOne(selection, series[existing.ModificationKey], existing.PeriodSizeDays, existing.ModificationKey, now)
	if stat == nil {
		// series shrank below the minimum; keep the old block but push the
		// schedule out so the job stops picking it up every pass
		existing.NextCalculationTime = schedule.NextStatCalculation(selection.PriceKind, nil, existing.PeriodSizeDays, now, now)
		existing.LastCalculatedAt = now
		return e.stats.Upsert(ctx, existing)
	}

	stat.ID = existing.ID
	stat.CreatedAt = existing.CreatedAt
	stored, err := e.stats.Upsert(ctx, stat)
	if err != nil {
		return nil, err
	}
	if err := e.emitter.EmitStatsCalculated(ctx, selection.CardID, stored); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit stats event")
	}
	return stored, nil
}

// SoldStats returns the sold aggregates a live listing should be scored
// against: the listing's own dimensions, ungraded partition, preferring the
// 14-day window and falling back to wider ones. Nil when nothing usable
// exists yet.
func (e *Engine) SoldStats(ctx context.Context, listing *models.Listing) (*opportunity.SoldStats, error) {
	ctx, span := tracing.StartSpan(ctx, "statsengine.Engine.SoldStats")
	defer span.End()

	for _, defID := range listing.SearchDefinitionIDs {
		selection, err := e.selections.GetByDimensions(ctx, listing.CardID, models.PriceKindSold, listing.Condition, listing.Currency, defID)
		if err != nil {
			return nil, err
		}
		if selection == nil {
			continue
		}

		candidates, err := e.stats.ListBySelection(ctx, selection.ID)
		if err != nil {
			return nil, err
		}

		if best := pickSoldStat(candidates, e.minSample); best != nil {
			return &opportunity.SoldStats{
				Median: int64(math.Round(best.Stats.Median)),
				Low:    int64(math.Round(best.Stats.FirstQuartile)),
				Min:    best.Stats.Min,
			}, nil
		}
	}

	return nil, nil
}

func (e *Engine) seriesForSelection(ctx context.Context, selection *models.Selection) (map[string][]stats.PricePoint, error) {
	series := map[string][]stats.PricePoint{}

	switch selection.PriceKind {
	case models.PriceKindSold:
		prices, err := e.soldPrices.ListActiveBySelection(ctx, selection.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range prices {
			key := p.ModificationKey()
			series[key] = append(series[key], stats.PricePoint{ID: p.ID, Amount: p.Amount, At: p.SoldAt})
		}
	case models.PriceKindListing:
		listings, err := e.listings.ListBySelection(ctx, selection.ID)
		if err != nil {
			return nil, err
		}
		for _, l := range listings {
			if l.State != models.ListingStateOpen {
				continue
			}
			at := e.now().UTC()
			if l.EndTime != nil {
				at = *l.EndTime
			}
			series[models.UngradedModificationKey] = append(series[models.UngradedModificationKey],
				stats.PricePoint{ID: l.ID, Amount: l.CurrentPrice, At: at})
		}
	}

	return series, nil
}

// computeOne windows the series, aggregates it, and builds the stat row.
// Returns nil when the windowed series is below the minimum sample size.
func (e *Engine) computeOne(selection *models.Selection, points []stats.PricePoint, periodDays int, modKey string, now time.Time) *models.Stat {
	period := time.Duration(periodDays) * 24 * time.Hour

	var from, to time.Time
	if selection.PriceKind == models.PriceKindSold {
		// trailing window over realized sales
		from, to = now.Add(-period), now
	} else {
		// forward window over listings still to close
		from, to = now, now.Add(period)
	}

	var windowed []stats.PricePoint
	times := make([]time.Time, 0, len(points))
	for _, p := range points {
		times = append(times, p.At)
		if selection.PriceKind == models.PriceKindListing && p.At.Before(now) {
			// open listing with no known close; always current
			windowed = append(windowed, p)
			continue
		}
		if !p.At.Before(from) && !p.At.After(to) {
			windowed = append(windowed, p)
		}
	}

	if len(windowed) < e.minSample {
		return nil
	}

	itemIDs := make(models.StringSlice, len(windowed))
	for i, p := range windowed {
		itemIDs[i] = p.ID
	}

	return &models.Stat{
		SelectionID:         selection.ID,
		PeriodSizeDays:      periodDays,
		ModificationKey:     modKey,
		Stats:               e.calculator.Calculate(windowed),
		From:                from,
		To:                  to,
		ItemIDs:             itemIDs,
		NextCalculationTime: schedule.NextStatCalculation(selection.PriceKind, times, periodDays, now, now),
		LastCalculatedAt:    now,
	}
}

// pickSoldStat chooses the ungraded stat to score against: the preferred
// window when present, otherwise the widest available
func pickSoldStat(candidates []models.Stat, minSample int) *models.Stat {
	var best *models.Stat
	for i := range candidates {
		c := &candidates[i]
		if c.ModificationKey != models.UngradedModificationKey || c.Stats.Count < minSample {
			continue
		}
		if c.PeriodSizeDays == preferredSoldPeriodDays {
			return c
		}
		if best == nil || c.PeriodSizeDays > best.PeriodSizeDays {
			best = c
		}
	}
	return best
}
