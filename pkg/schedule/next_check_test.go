package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestNextListingCheckOpportunityNearEndPollsAtEnd(t *testing.T) {
	end := now.Add(2 * time.Hour)
	got := NextListingCheck(&end, true, 24*time.Hour, now)
	assert.Equal(t, end, got)
}

func TestNextListingCheckNonOpportunityPollsAfterEnd(t *testing.T) {
	end := now.Add(2 * time.Hour)
	got := NextListingCheck(&end, false, 24*time.Hour, now)
	assert.Equal(t, end.Add(10*time.Minute), got)
}

func TestNextListingCheckNonOpportunityCappedAtDailyCadence(t *testing.T) {
	end := now.Add(5 * 24 * time.Hour)
	got := NextListingCheck(&end, false, 24*time.Hour, now)
	assert.Equal(t, now.Add(24*time.Hour), got)
}

func TestNextListingCheckPastEnd(t *testing.T) {
	end := now.Add(-time.Hour)
	got := NextListingCheck(&end, false, 24*time.Hour, now)
	assert.Equal(t, end.Add(10*time.Minute), got)
}

func TestNextListingCheckOpportunitySteps(t *testing.T) {
	tests := []struct {
		name     string
		until    time.Duration
		expected time.Time
	}{
		{"far out", 72 * time.Hour, now.Add(24 * time.Hour)},
		{"under a day", 18 * time.Hour, now.Add(12 * time.Hour)},
		{"closing soon", 30 * time.Minute, now.Add(10 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end := now.Add(tt.until)
			assert.Equal(t, tt.expected, NextListingCheck(&end, true, 24*time.Hour, now))
		})
	}
}

func TestNextListingCheckNoEndTimeAgeLadder(t *testing.T) {
	tests := []struct {
		name          string
		isOpportunity bool
		age           time.Duration
		expected      time.Duration
	}{
		{"young opportunity", true, 2 * 24 * time.Hour, 16 * time.Hour},
		{"mid opportunity", true, 14 * 24 * time.Hour, 32 * time.Hour},
		{"old opportunity", true, 60 * 24 * time.Hour, 64 * time.Hour},
		{"mid non-opportunity", false, 14 * 24 * time.Hour, 64 * time.Hour},
		{"old non-opportunity", false, 60 * 24 * time.Hour, 128 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextListingCheck(nil, tt.isOpportunity, tt.age, now)
			assert.Equal(t, now.Add(tt.expected), got)
		})
	}
}

func TestNextStatCalculationSoldWindowExit(t *testing.T) {
	// Price observed 13 days ago exits a 14-day trailing window tomorrow.
	times := []time.Time{now.Add(-13 * 24 * time.Hour)}
	lastCalc := now.Add(-48 * time.Hour)

	got := NextStatCalculation(models.PriceKindSold, times, 14, lastCalc, now)
	assert.Equal(t, now.Add(24*time.Hour), got)
}

func TestNextStatCalculationIgnoresPricesOutsideWindow(t *testing.T) {
	// 15 days old is already outside a 14-day window; no boundary crossing.
	times := []time.Time{now.Add(-15 * 24 * time.Hour)}
	lastCalc := now.Add(-48 * time.Hour)

	got := NextStatCalculation(models.PriceKindSold, times, 14, lastCalc, now)
	assert.Equal(t, now.Add(recalcFallback), got)
}

func TestNextStatCalculationListingWindowEntry(t *testing.T) {
	// A listing ending 16 days out enters a 14-day forward window in 2 days.
	times := []time.Time{now.Add(16 * 24 * time.Hour)}
	lastCalc := now.Add(-48 * time.Hour)

	got := NextStatCalculation(models.PriceKindListing, times, 14, lastCalc, now)
	assert.Equal(t, now.Add(2*24*time.Hour), got)
}

func TestNextStatCalculationClampedToDaily(t *testing.T) {
	// Boundary crossing in an hour, but we recalculated 5 minutes ago.
	times := []time.Time{now.Add(-14*24*time.Hour + time.Hour)}
	lastCalc := now.Add(-5 * time.Minute)

	got := NextStatCalculation(models.PriceKindSold, times, 14, lastCalc, now)
	assert.Equal(t, lastCalc.Add(24*time.Hour), got)
}

func TestNextStatCalculationFallbackWithNoPrices(t *testing.T) {
	got := NextStatCalculation(models.PriceKindSold, nil, 14, now.Add(-48*time.Hour), now)
	assert.Equal(t, now.Add(recalcFallback), got)
}
