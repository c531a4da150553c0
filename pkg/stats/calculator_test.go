package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(amounts ...int64) []PricePoint {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	result := make([]PricePoint, len(amounts))
	for i, a := range amounts {
		result[i] = PricePoint{Amount: a, At: base.Add(time.Duration(i) * time.Hour)}
	}
	return result
}

func TestCalculateEmptySeries(t *testing.T) {
	got := NewCalculator().Calculate(nil)
	assert.Equal(t, 0, got.Count)
	assert.Zero(t, got.Min)
	assert.Zero(t, got.Median)
}

func TestCalculateSinglePoint(t *testing.T) {
	got := NewCalculator().Calculate(points(4200))
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, int64(4200), got.Min)
	assert.Equal(t, int64(4200), got.Max)
	assert.Equal(t, 4200.0, got.Median)
	assert.Equal(t, 4200.0, got.Mean)
	assert.Zero(t, got.StdDev)
}

func TestCalculateBlock(t *testing.T) {
	got := NewCalculator().Calculate(points(1000, 2000, 3000, 4000, 5000))

	assert.Equal(t, 5, got.Count)
	assert.Equal(t, int64(1000), got.Min)
	assert.Equal(t, int64(5000), got.Max)
	assert.Equal(t, 2000.0, got.FirstQuartile)
	assert.Equal(t, 3000.0, got.Median)
	assert.Equal(t, 4000.0, got.ThirdQuartile)
	assert.Equal(t, 3000.0, got.Mean)
	assert.InDelta(t, 1581.14, got.StdDev, 0.01)
}

func TestCalculateEvenCountMedianInterpolates(t *testing.T) {
	got := NewCalculator().Calculate(points(1000, 2000, 3000, 4000))
	assert.Equal(t, 2500.0, got.Median)
}

func TestMovingAverages(t *testing.T) {
	got := NewCalculator(3, 5).Calculate(points(1000, 2000, 3000, 4000, 5000, 6000))

	require.Len(t, got.MovingAverages, 2)
	assert.Equal(t, 3, got.MovingAverages[0].Window)
	assert.Equal(t, 5000.0, got.MovingAverages[0].Value)
	assert.Equal(t, 5, got.MovingAverages[1].Window)
	assert.Equal(t, 4000.0, got.MovingAverages[1].Value)
}

func TestMovingAveragesSkipShortSeries(t *testing.T) {
	got := NewCalculator(3, 10).Calculate(points(1000, 2000, 3000, 4000))

	require.Len(t, got.MovingAverages, 1)
	assert.Equal(t, 3, got.MovingAverages[0].Window)
}

func TestMovingAveragesUseTimeOrderNotInputOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	series := []PricePoint{
		{Amount: 9000, At: base.Add(3 * time.Hour)},
		{Amount: 1000, At: base},
		{Amount: 3000, At: base.Add(2 * time.Hour)},
		{Amount: 2000, At: base.Add(time.Hour)},
	}

	got := NewCalculator(2).Calculate(series)
	require.Len(t, got.MovingAverages, 1)
	assert.Equal(t, 6000.0, got.MovingAverages[0].Value)
}
