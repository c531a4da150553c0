// Package schedule decides when listings and stats should next be examined.
package schedule

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	afterEndGrace = 10 * time.Minute

	// stats recomputation bounds
	minRecalcInterval = 24 * time.Hour
	recalcFallback    = 4 * 7 * 24 * time.Hour
)

// age bands for listings with no known end time
const (
	youngListing = 7 * 24 * time.Hour
	oldListing   = 30 * 24 * time.Hour
)

// NextListingCheck returns when a listing should next be polled.
//
// With a known end time, opportunities are polled on a step function that
// tightens as the close approaches; everything else is polled shortly after
// the end. Without an end time the cadence scales purely on listing age,
// opportunities on a tighter ladder than the rest.
func NextListingCheck(endTime *time.Time, isOpportunity bool, age time.Duration, now time.Time) time.Time {
	if endTime != nil {
		if !endTime.After(now) {
			return endTime.Add(afterEndGrace)
		}
		if !isOpportunity {
			next := endTime.Add(afterEndGrace)
			if cap := now.Add(24 * time.Hour); next.After(cap) {
				return cap
			}
			return next
		}
		remaining := endTime.Sub(now)
		switch {
		case remaining > 24*time.Hour:
			return now.Add(24 * time.Hour)
		case remaining > 12*time.Hour:
			return now.Add(12 * time.Hour)
		case remaining > time.Hour:
			// close enough to watch the finish itself
			return *endTime
		default:
			return now.Add(afterEndGrace)
		}
	}

	if isOpportunity {
		switch {
		case age < youngListing:
			return now.Add(16 * time.Hour)
		case age < oldListing:
			return now.Add(32 * time.Hour)
		default:
			return now.Add(64 * time.Hour)
		}
	}

	if age < oldListing {
		return now.Add(64 * time.Hour)
	}
	return now.Add(128 * time.Hour)
}

// NextStatCalculation returns when a stat should next be recomputed: the
// first moment a price will cross the aggregation window boundary. SOLD
// windows trail now, so members exit as they age out; LISTING windows look
// forward, so future-dated prices enter as now advances. The result is
// clamped to at least 24h after the last calculation and falls back to four
// weeks out when no price will cross the boundary.
func NextStatCalculation(kind models.PriceKind, priceTimes []time.Time, periodSizeDays int, lastCalculatedAt, now time.Time) time.Time {
	period := time.Duration(periodSizeDays) * 24 * time.Hour

	var boundary *time.Time
	for _, at := range priceTimes {
		var crossing time.Time
		switch kind {
		case models.PriceKindSold:
			// inside the trailing window; exits at observation + period
			if at.After(now.Add(-period)) && !at.After(now) {
				crossing = at.Add(period)
			} else {
				continue
			}
		case models.PriceKindListing:
			// beyond the forward window; enters at time - period
			if at.After(now.Add(period)) {
				crossing = at.Add(-period)
			} else {
				continue
			}
		default:
			continue
		}
		if boundary == nil || crossing.Before(*boundary) {
			c := crossing
			boundary = &c
		}
	}

	next := now.Add(recalcFallback)
	if boundary != nil {
		next = *boundary
	}

	if floor := lastCalculatedAt.Add(minRecalcInterval); next.Before(floor) {
		return floor
	}
	return next
}
