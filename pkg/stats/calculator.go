// Package stats implements the numeric aggregation over a price series.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// PricePoint is one price observation fed into the calculator
type PricePoint struct {
	ID     string
	Amount int64
	At     time.Time
}

// Calculator computes the Stats block for a price series
type Calculator struct {
	movingWindows []int
}

// NewCalculator creates a Calculator. Moving averages are computed for the
// given trailing window sizes; windows larger than the series are skipped.
func NewCalculator(movingWindows ...int) *Calculator {
	if len(movingWindows) == 0 {
		movingWindows = []int{3, 5, 10}
	}
	sort.Ints(movingWindows)
	return &Calculator{movingWindows: movingWindows}
}

// Calculate aggregates the series. An empty series yields a zero block with
// Count == 0.
func (c *Calculator) Calculate(points []PricePoint) models.Stats {
	if len(points) == 0 {
		return models.Stats{}
	}

	amounts := make([]float64, len(points))
	var sum float64
	minAmount, maxAmount := points[0].Amount, points[0].Amount
	for i, p := range points {
		amounts[i] = float64(p.Amount)
		sum += amounts[i]
		if p.Amount < minAmount {
			minAmount = p.Amount
		}
		if p.Amount > maxAmount {
			maxAmount = p.Amount
		}
	}
	sort.Float64s(amounts)

	n := len(amounts)
	mean := sum / float64(n)

	var variance float64
	if n > 1 {
		for _, a := range amounts {
			d := a - mean
			variance += d * d
		}
		variance /= float64(n - 1)
	}

	return models.Stats{
		Count:          n,
		Min:            minAmount,
		Max:            maxAmount,
		FirstQuartile:  quantile(amounts, 0.25),
		Median:         quantile(amounts, 0.5),
		ThirdQuartile:  quantile(amounts, 0.75),
		Mean:           mean,
		StdDev:         math.Sqrt(variance),
		MovingAverages: c.movingAverages(points),
	}
}

// quantile interpolates linearly between closest ranks on a sorted series
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// movingAverages computes trailing averages over the most recent points
func (c *Calculator) movingAverages(points []PricePoint) []models.MovingAverage {
	byTime := make([]PricePoint, len(points))
	copy(byTime, points)
	sort.Slice(byTime, func(i, j int) bool { return byTime[i].At.Before(byTime[j].At) })

	var result []models.MovingAverage
	for _, window := range c.movingWindows {
		if window > len(byTime) {
			continue
		}
		var sum float64
		for _, p := range byTime[len(byTime)-window:] {
			sum += float64(p.Amount)
		}
		result = append(result, models.MovingAverage{
			Window: window,
			Value:  sum / float64(window),
		})
	}
	return result
}
