// Package opportunity scores a live listing price against recent sold prices.
package opportunity

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// SoldStats is the slice of sold-price statistics the scorer needs, all in
// the listing's currency.
type SoldStats struct {
	Median int64
	Low    int64
	Min    int64
}

// Input describes the live listing being scored
type Input struct {
	Price       int64
	BuyNowPrice *int64
	BidCount    int
	EndTime     *time.Time
	Sold        SoldStats
}

const maxPriceDiffPoints = 20

// minor units to points
const priceDiffScale = 0.01

// Scorer evaluates buying opportunities
type Scorer struct{}

// NewScorer creates a Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns the opportunity breakdown, or nil when the offer price is
// above the sold median (no opportunity at all, not a zero-valued one).
// The total never goes below zero.
func (s *Scorer) Score(in Input, now time.Time) *models.OpportunityScore {
	if in.Price > in.Sold.Median {
		return nil
	}

	score := &models.OpportunityScore{}

	score.Add("price_difference", priceDiffPoints(in.Sold.Median, in.Price))

	switch {
	case in.Price <= in.Sold.Min:
		score.Add("at_or_below_minimum", 40)
	case in.Price <= in.Sold.Low:
		score.Add("at_or_below_low", 20)
	default:
		score.Add("at_or_below_median", 10)
	}

	if in.EndTime != nil && in.EndTime.After(now) {
		remaining := in.EndTime.Sub(now)
		switch {
		case remaining <= 4*time.Hour:
			score.Add("ending_within_4h", 40)
		case remaining <= 8*time.Hour:
			score.Add("ending_within_8h", 30)
		case remaining <= 16*time.Hour:
			score.Add("ending_within_16h", 20)
		case remaining <= 32*time.Hour:
			score.Add("ending_within_32h", 10)
		}
	}

	switch {
	case in.BidCount == 0:
		score.Add("no_bids", 10)
	case in.BidCount <= 5:
		score.Add("few_bids", -10)
	default:
		score.Add("many_bids", -20)
	}

	if in.BuyNowPrice != nil && *in.BuyNowPrice <= in.Sold.Median {
		score.Add("buy_now_beats_sold", 40)
		score.Add("buy_now_price_difference", priceDiffPoints(in.Sold.Median, *in.BuyNowPrice))
	}

	if score.Total < 0 {
		score.Total = 0
	}
	return score
}

// priceDiffPoints scales the minor-unit gap below the median, capped
func priceDiffPoints(median, price int64) float64 {
	points := float64(median-price) * priceDiffScale
	if points > maxPriceDiffPoints {
		return maxPriceDiffPoints
	}
	if points < 0 {
		return 0
	}
	return points
}
