package statsengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/pkg/currency"
	"github.com/Ramsey-B/fern/pkg/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeSelectionStore struct {
	selections map[string]*models.Selection
}

func (f *fakeSelectionStore) Get(_ context.Context, id string) (*models.Selection, error) {
	s, ok := f.selections[id]
	if !ok {
		return nil, fmt.Errorf("selection %s not found", id)
	}
	return s, nil
}

func (f *fakeSelectionStore) GetByDimensions(_ context.Context, cardID string, kind models.PriceKind, condition models.Condition, curr, defID string) (*models.Selection, error) {
	for _, s := range f.selections {
		if s.CardID == cardID && s.PriceKind == kind && s.Condition == condition && s.Currency == curr && s.SearchDefinitionID == defID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSelectionStore) ListByCard(_ context.Context, cardID string) ([]models.Selection, error) {
	var out []models.Selection
	for _, s := range f.selections {
		if s.CardID == cardID {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeStatStore struct {
	stats map[string]*models.Stat
}

func newFakeStatStore() *fakeStatStore {
	return &fakeStatStore{stats: map[string]*models.Stat{}}
}

func (f *fakeStatStore) Get(_ context.Context, id string) (*models.Stat, error) {
	for _, s := range f.stats {
		if s.ID == id {
			copied := *s
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("stat %s not found", id)
}

func (f *fakeStatStore) Upsert(_ context.Context, stat *models.Stat) (*models.Stat, error) {
	if stat.ID == "" {
		stat.ID = fmt.Sprintf("stat-%d", len(f.stats)+1)
	}
	stored := *stat
	f.stats[stat.DimensionKey()] = &stored
	return stat, nil
}

func (f *fakeStatStore) ListBySelection(_ context.Context, selectionID string) ([]models.Stat, error) {
	var out []models.Stat
	for _, s := range f.stats {
		if s.SelectionID == selectionID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStatStore) ListByCard(_ context.Context, _ string) ([]models.Stat, error) {
	var out []models.Stat
	for _, s := range f.stats {
		out = append(out, *s)
	}
	return out, nil
}

type fakeSoldPriceStore struct {
	prices []models.SoldPrice
}

func (f *fakeSoldPriceStore) ListActiveBySelection(_ context.Context, selectionID string) ([]models.SoldPrice, error) {
	var out []models.SoldPrice
	for _, p := range f.prices {
		if p.State == models.PriceStateActive && p.SelectionIDs.Contains(selectionID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeSoldPriceStore) ListByCard(_ context.Context, cardID string) ([]models.SoldPrice, error) {
	var out []models.SoldPrice
	for _, p := range f.prices {
		if p.CardID == cardID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeListingStore struct {
	listings []models.Listing
}

func (f *fakeListingStore) ListBySelection(_ context.Context, selectionID string) ([]models.Listing, error) {
	var out []models.Listing
	for _, l := range f.listings {
		if l.SelectionIDs.Contains(selectionID) {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeEmitter struct {
	calculated int
}

func (f *fakeEmitter) EmitStatsCalculated(context.Context, string, *models.Stat) error {
	f.calculated++
	return nil
}

func soldPrice(id string, amount int64, soldAt time.Time, selectionID string) models.SoldPrice {
	return models.SoldPrice{
		ID: id, CardID: "card-1", Condition: models.ConditionNearMint,
		Amount: amount, Currency: "GBP", SoldAt: soldAt,
		State: models.PriceStateActive, SelectionIDs: models.StringSlice{selectionID},
	}
}

func newEngine(selStore *fakeSelectionStore, statStore *fakeStatStore, prices *fakeSoldPriceStore, listings *fakeListingStore, emitter *fakeEmitter, minSample int) *Engine {
	cfg := config.Config{StatPeriodSizeDays: []int{1, 14, 90}, StatMinimumSampleSize: minSample}
	exchanger := currency.NewRateTable(map[string]float64{"USD/GBP": 0.8, "GBP/USD": 1.25})
	engine := NewEngine(cfg, selStore, statStore, prices, listings, exchanger, emitter, logging.NewNop())
	engine.now = func() time.Time { return testNow }
	return engine
}

func soldSelection() *models.Selection {
	return &models.Selection{
		ID: "sel-1", CardID: "card-1", PriceKind: models.PriceKindSold,
		Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionID: "def-1",
	}
}

func TestRecomputeSelectionTrailingWindowMembership(t *testing.T) {
	selStore := &fakeSelectionStore{selections: map[string]*models.Selection{"sel-1": soldSelection()}}
	prices := &fakeSoldPriceStore{prices: []models.SoldPrice{
		soldPrice("p-13d", 4000, testNow.Add(-13*24*time.Hour), "sel-1"),
		soldPrice("p-5d", 5000, testNow.Add(-5*24*time.Hour), "sel-1"),
		soldPrice("p-1d", 4500, testNow.Add(-24*time.Hour), "sel-1"),
		soldPrice("p-15d", 9000, testNow.Add(-15*24*time.Hour), "sel-1"),
	}}
	statStore := newFakeStatStore()
	emitter := &fakeEmitter{}
	engine := newEngine(selStore, statStore, prices, &fakeListingStore{}, emitter, 3)

	computed, err := engine.RecomputeSelection(context.Background(), "sel-1")
	require.NoError(t, err)

	var fourteen *models.Stat
	for i := range computed {
		if computed[i].PeriodSizeDays == 14 {
			fourteen = &computed[i]
		}
	}
	require.NotNil(t, fourteen)

	// the 13-day-old sale is inside the window, the 15-day-old one is not
	assert.Contains(t, []string(fourteen.ItemIDs), "p-13d")
	assert.NotContains(t, []string(fourteen.ItemIDs), "p-15d")
	assert.Equal(t, 3, fourteen.Stats.Count)
	assert.Equal(t, int64(4000), fourteen.Stats.Min)
	assert.Equal(t, float64(4500), fourteen.Stats.Median)
	assert.Equal(t, testNow, fourteen.LastCalculatedAt)
	assert.Greater(t, emitter.calculated, 0)
}

func TestRecomputeSelectionSkipsBelowMinimumSample(t *testing.T) {
	selStore := &fakeSelectionStore{selections: map[string]*models.Selection{"sel-1": soldSelection()}}
	prices := &fakeSoldPriceStore{prices: []models.SoldPrice{
		soldPrice("p-1", 4000, testNow.Add(-2*24*time.Hour), "sel-1"),
	}}
	statStore := newFakeStatStore()
	engine := newEngine(selStore, statStore, prices, &fakeListingStore{}, &fakeEmitter{}, 3)

	computed, err := engine.RecomputeSelection(context.Background(), "sel-1")
	require.NoError(t, err)
	assert.Empty(t, computed)
	assert.Empty(t, statStore.stats)
}

func TestRecomputeSelectionPartitionsByModificationKey(t *testing.T) {
	selStore := &fakeSelectionStore{selections: map[string]*models.Selection{"sel-1": soldSelection()}}

	company, grade := "PSA", "9"
	graded := soldPrice("p-graded-1", 20000, testNow.Add(-2*24*time.Hour), "sel-1")
	graded.GradingCompany, graded.Grade = &company, &grade

	prices := &fakeSoldPriceStore{prices: []models.SoldPrice{
		soldPrice("p-raw-1", 4000, testNow.Add(-24*time.Hour), "sel-1"),
		soldPrice("p-raw-2", 4400, testNow.Add(-48*time.Hour), "sel-1"),
		graded,
	}}
	statStore := newFakeStatStore()
	engine := newEngine(selStore, statStore, prices, &fakeListingStore{}, &fakeEmitter{}, 1)

	computed, err := engine.RecomputeSelection(context.Background(), "sel-1")
	require.NoError(t, err)

	keys := map[string]bool{}
	for _, s := range computed {
		keys[s.ModificationKey] = true
	}
	assert.True(t, keys[models.UngradedModificationKey])
	assert.True(t, keys["PSA:9"])
}

func TestRecomputeSelectionListingForwardWindow(t *testing.T) {
	selection := &models.Selection{
		ID: "sel-2", CardID: "card-1", PriceKind: models.PriceKindListing,
		Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionID: "def-1",
	}
	selStore := &fakeSelectionStore{selections: map[string]*models.Selection{"sel-2": selection}}

	soon := testNow.Add(5 * 24 * time.Hour)
	far := testNow.Add(30 * 24 * time.Hour)
	listings := &fakeListingStore{listings: []models.Listing{
		{ID: "l-soon", State: models.ListingStateOpen, CurrentPrice: 3000, EndTime: &soon, SelectionIDs: models.StringSlice{"sel-2"}},
		{ID: "l-far", State: models.ListingStateOpen, CurrentPrice: 9000, EndTime: &far, SelectionIDs: models.StringSlice{"sel-2"}},
		{ID: "l-open-ended", State: models.ListingStateOpen, CurrentPrice: 3500, SelectionIDs: models.StringSlice{"sel-2"}},
		{ID: "l-ended", State: models.ListingStateEnded, CurrentPrice: 100, SelectionIDs: models.StringSlice{"sel-2"}},
	}}
	statStore := newFakeStatStore()
	engine := newEngine(selStore, statStore, &fakeSoldPriceStore{}, listings, &fakeEmitter{}, 1)

	computed, err := engine.RecomputeSelection(context.Background(), "sel-2")
	require.NoError(t, err)

	var fourteen *models.Stat
	for i := range computed {
		if computed[i].PeriodSizeDays == 14 {
			fourteen = &computed[i]
		}
	}
	require.NotNil(t, fourteen)

	assert.Contains(t, []string(fourteen.ItemIDs), "l-soon")
	assert.Contains(t, []string(fourteen.ItemIDs), "l-open-ended")
	assert.NotContains(t, []string(fourteen.ItemIDs), "l-far")
	assert.NotContains(t, []string(fourteen.ItemIDs), "l-ended")
}

func TestSoldStatsPrefersFourteenDayWindow(t *testing.T) {
	selStore := &fakeSelectionStore{selections: map[string]*models.Selection{"sel-1": soldSelection()}}
	statStore := newFakeStatStore()
	statStore.stats["a"] = &models.Stat{ID: "s-90", SelectionID: "sel-1", PeriodSizeDays: 90, ModificationKey: models.UngradedModificationKey, Stats: models.Stats{Count: 10, Median: 5000, FirstQuartile: 4000, Min: 3000}}
	statStore.stats["b"] = &models.Stat{ID: "s-14", SelectionID: "sel-1", PeriodSizeDays: 14, ModificationKey: models.UngradedModificationKey, Stats: models.Stats{Count: 5, Median: 4500, FirstQuartile: 3500, Min: 2500}}
	engine := newEngine(selStore, statStore, &fakeSoldPriceStore{}, &fakeListingStore{}, &fakeEmitter{}, 3)

	listing := &models.Listing{
		CardID: "card-1", Condition: models.ConditionNearMint, Currency: "GBP",
		SearchDefinitionIDs: models.StringSlice{"def-1"},
	}
	got, err := engine.SoldStats(context.Background(), listing)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, int64(4500), got.Median)
	assert.Equal(t, int64(3500), got.Low)
	assert.Equal(t, int64(2500), got.Min)
}

func TestSoldStatsNilWithoutUsableData(t *testing.T) {
	selStore := &fakeSelectionStore{selections: map[string]*models.Selection{}}
	engine := newEngine(selStore, newFakeStatStore(), &fakeSoldPriceStore{}, &fakeListingStore{}, &fakeEmitter{}, 3)

	listing := &models.Listing{CardID: "card-1", Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionIDs: models.StringSlice{"def-1"}}
	got, err := engine.SoldStats(context.Background(), listing)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCardRollupPrefersNativeCurrency(t *testing.T) {
	selStore := &fakeSelectionStore{selections: map[string]*models.Selection{"sel-1": soldSelection()}}
	statStore := newFakeStatStore()
	statStore.stats["a"] = &models.Stat{ID: "s-1", SelectionID: "sel-1", PeriodSizeDays: 14, ModificationKey: models.UngradedModificationKey, Stats: models.Stats{Count: 5, Median: 4500}}
	engine := newEngine(selStore, statStore, &fakeSoldPriceStore{}, &fakeListingStore{}, &fakeEmitter{}, 3)

	rollup, err := engine.CardRollup(context.Background(), "card-1", models.ConditionNearMint, "GBP")
	require.NoError(t, err)
	require.NotNil(t, rollup)

	assert.Equal(t, "native", rollup.Source)
	assert.Equal(t, float64(4500), rollup.Stats.Median)
	assert.Equal(t, 14, rollup.PeriodSizeDays)
}

func TestCardRollupConvertsForeignCurrency(t *testing.T) {
	usdSelection := soldSelection()
	usdSelection.Currency = "USD"
	selStore := &fakeSelectionStore{selections: map[string]*models.Selection{"sel-1": usdSelection}}
	statStore := newFakeStatStore()
	statStore.stats["a"] = &models.Stat{ID: "s-1", SelectionID: "sel-1", PeriodSizeDays: 14, ModificationKey: models.UngradedModificationKey, Stats: models.Stats{Count: 5, Median: 5000, Min: 4000, Max: 6000}}
	engine := newEngine(selStore, statStore, &fakeSoldPriceStore{}, &fakeListingStore{}, &fakeEmitter{}, 3)

	rollup, err := engine.CardRollup(context.Background(), "card-1", models.ConditionNearMint, "GBP")
	require.NoError(t, err)
	require.NotNil(t, rollup)

	assert.Equal(t, "converted", rollup.Source)
	assert.Equal(t, float64(4000), rollup.Stats.Median)
	assert.Equal(t, int64(3200), rollup.Stats.Min)
}

func TestCardRollupFallsBackToLatestPrice(t *testing.T) {
	selStore := &fakeSelectionStore{selections: map[string]*models.Selection{}}
	prices := &fakeSoldPriceStore{prices: []models.SoldPrice{
		soldPrice("p-old", 4000, testNow.Add(-40*24*time.Hour), "x"),
		soldPrice("p-new", 4800, testNow.Add(-10*24*time.Hour), "x"),
	}}
	engine := newEngine(selStore, newFakeStatStore(), prices, &fakeListingStore{}, &fakeEmitter{}, 3)

	rollup, err := engine.CardRollup(context.Background(), "card-1", models.ConditionNearMint, "GBP")
	require.NoError(t, err)
	require.NotNil(t, rollup)

	assert.Equal(t, "latest_price", rollup.Source)
	assert.Equal(t, 1, rollup.Stats.Count)
	assert.Equal(t, float64(4800), rollup.Stats.Median)
}

func TestCardRollupNilWithoutAnyData(t *testing.T) {
	engine := newEngine(&fakeSelectionStore{selections: map[string]*models.Selection{}}, newFakeStatStore(), &fakeSoldPriceStore{}, &fakeListingStore{}, &fakeEmitter{}, 3)

	rollup, err := engine.CardRollup(context.Background(), "card-1", models.ConditionNearMint, "GBP")
	require.NoError(t, err)
	assert.Nil(t, rollup)
}

func TestRecomputeStatSingleRow(t *testing.T) {
	selStore := &fakeSelectionStore{selections: map[string]*models.Selection{"sel-1": soldSelection()}}
	prices := &fakeSoldPriceStore{prices: []models.SoldPrice{
		soldPrice("p-1", 4000, testNow.Add(-24*time.Hour), "sel-1"),
		soldPrice("p-2", 5000, testNow.Add(-48*time.Hour), "sel-1"),
		soldPrice("p-3", 4500, testNow.Add(-72*time.Hour), "sel-1"),
	}}
	statStore := newFakeStatStore()
	existing := &models.Stat{ID: "stat-1", SelectionID: "sel-1", PeriodSizeDays: 14, ModificationKey: models.UngradedModificationKey, Stats: models.Stats{Count: 1, Median: 1}, CreatedAt: testNow.Add(-30 * 24 * time.Hour)}
	statStore.stats[existing.DimensionKey()] = existing
	engine := newEngine(selStore, statStore, prices, &fakeListingStore{}, &fakeEmitter{}, 3)

	got, err := engine.RecomputeStat(context.Background(), "stat-1")
	require.NoError(t, err)

	assert.Equal(t, "stat-1", got.ID)
	assert.Equal(t, 3, got.Stats.Count)
	assert.Equal(t, float64(4500), got.Stats.Median)
	assert.Equal(t, existing.CreatedAt, got.CreatedAt)
}
