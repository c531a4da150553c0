package selections

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeSelectionStore struct {
	selections map[string]*models.Selection
	nextID     int
}

func newFakeSelectionStore() *fakeSelectionStore {
	return &fakeSelectionStore{selections: map[string]*models.Selection{}}
}

func (f *fakeSelectionStore) Create(_ context.Context, s *models.Selection) (*models.Selection, error) {
	f.nextID++
	s.ID = fmt.Sprintf("sel-%d", f.nextID)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	stored := *s
	f.selections[s.ID] = &stored
	return s, nil
}

func (f *fakeSelectionStore) Get(_ context.Context, id string) (*models.Selection, error) {
	s, ok := f.selections[id]
	if !ok {
		return nil, fmt.Errorf("selection %s not found", id)
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSelectionStore) GetByDimensions(_ context.Context, cardID string, kind models.PriceKind, condition models.Condition, currency, defID string) (*models.Selection, error) {
	var best *models.Selection
	for _, s := range f.selections {
		if s.CardID == cardID && s.PriceKind == kind && s.Condition == condition && s.Currency == currency && s.SearchDefinitionID == defID {
			if best == nil || s.CreatedAt.After(best.CreatedAt) || (s.CreatedAt.Equal(best.CreatedAt) && s.ID > best.ID) {
				best = s
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

func (f *fakeSelectionStore) ListDuplicates(_ context.Context) ([]models.Selection, error) {
	byKey := map[string][]models.Selection{}
	for _, s := range f.selections {
		byKey[s.DimensionKey()] = append(byKey[s.DimensionKey()], *s)
	}

	keys := make([]string, 0, len(byKey))
	for key, group := range byKey {
		if len(group) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var out []models.Selection
	for _, key := range keys {
		group := byKey[key]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.After(group[j].CreatedAt)
			}
			return group[i].ID > group[j].ID
		})
		out = append(out, group...)
	}
	return out, nil
}

func (f *fakeSelectionStore) ListUnreconciled(_ context.Context, limit int) ([]models.Selection, error) {
	var out []models.Selection
	for _, s := range f.selections {
		if !s.HasReconciled {
			out = append(out, *s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSelectionStore) MarkReconciled(_ context.Context, id string) error {
	s, ok := f.selections[id]
	if !ok {
		return fmt.Errorf("selection %s not found", id)
	}
	s.HasReconciled = true
	return nil
}

func (f *fakeSelectionStore) Delete(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.selections, id)
	}
	return nil
}

type fakeListingStore struct {
	listings map[string]*models.Listing
}

func newFakeListingStore(listings ...*models.Listing) *fakeListingStore {
	store := &fakeListingStore{listings: map[string]*models.Listing{}}
	for _, l := range listings {
		store.listings[l.ID] = l
	}
	return store
}

func (f *fakeListingStore) ListBySearchDefinition(_ context.Context, defID string) ([]models.Listing, error) {
	var out []models.Listing
	for _, l := range f.listings {
		if l.SearchDefinitionIDs.Contains(defID) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeListingStore) ListBySelection(_ context.Context, selectionID string) ([]models.Listing, error) {
	var out []models.Listing
	for _, l := range f.listings {
		if l.SelectionIDs.Contains(selectionID) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeListingStore) SetSelectionIDs(_ context.Context, id string, ids []string) error {
	l, ok := f.listings[id]
	if !ok {
		return fmt.Errorf("listing %s not found", id)
	}
	l.SelectionIDs = models.StringSlice(ids)
	return nil
}

type fakeSoldPriceStore struct {
	prices map[string]*models.SoldPrice
}

func newFakeSoldPriceStore(prices ...*models.SoldPrice) *fakeSoldPriceStore {
	store := &fakeSoldPriceStore{prices: map[string]*models.SoldPrice{}}
	for _, p := range prices {
		store.prices[p.ID] = p
	}
	return store
}

func (f *fakeSoldPriceStore) ListBySearchDefinition(_ context.Context, defID string) ([]models.SoldPrice, error) {
	var out []models.SoldPrice
	for _, p := range f.prices {
		if p.SearchDefinitionIDs.Contains(defID) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeSoldPriceStore) ListActiveBySelection(_ context.Context, selectionID string) ([]models.SoldPrice, error) {
	var out []models.SoldPrice
	for _, p := range f.prices {
		if p.State == models.PriceStateActive && p.SelectionIDs.Contains(selectionID) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeSoldPriceStore) SetSelectionIDs(_ context.Context, id string, ids []string) error {
	p, ok := f.prices[id]
	if !ok {
		return fmt.Errorf("price %s not found", id)
	}
	p.SelectionIDs = models.StringSlice(ids)
	return nil
}

type fakeStatStore struct {
	deleted [][]string
}

func (f *fakeStatStore) DeleteBySelectionIDs(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids)
	return nil
}

type fakeDefinitionStore struct {
	defs map[string]*models.SearchDefinition
}

func newFakeDefinitionStore(defs ...*models.SearchDefinition) *fakeDefinitionStore {
	store := &fakeDefinitionStore{defs: map[string]*models.SearchDefinition{}}
	for _, d := range defs {
		store.defs[d.ID] = d
	}
	return store
}

func (f *fakeDefinitionStore) Get(_ context.Context, id string) (*models.SearchDefinition, error) {
	d, ok := f.defs[id]
	if !ok {
		return nil, fmt.Errorf("definition %s not found", id)
	}
	return d, nil
}

func (f *fakeDefinitionStore) GetMany(_ context.Context, ids []string) ([]models.SearchDefinition, error) {
	var out []models.SearchDefinition
	for _, id := range ids {
		if d, ok := f.defs[id]; ok {
			out = append(out, *d)
		}
	}
	return out, nil
}

func newTestReconciler(selStore *fakeSelectionStore, listings *fakeListingStore, prices *fakeSoldPriceStore, stats *fakeStatStore, defs *fakeDefinitionStore) *Reconciler {
	manager := NewManager(selStore, logging.NewNop())
	return NewReconciler(manager, selStore, listings, prices, stats, defs, logging.NewNop())
}

func charizardDef() *models.SearchDefinition {
	return &models.SearchDefinition{
		ID:       "def-1",
		CardID:   "card-1",
		Query:    "charizard base set",
		Currency: "GBP",
		Keywords: models.Keywords{Includes: [][]string{{"charizard"}}},
		Active:   true,
	}
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	selStore := newFakeSelectionStore()
	manager := NewManager(selStore, logging.NewNop())

	first, err := manager.FindOrCreate(context.Background(), "card-1", models.PriceKindListing, models.ConditionNearMint, "GBP", "def-1")
	require.NoError(t, err)
	second, err := manager.FindOrCreate(context.Background(), "card-1", models.PriceKindListing, models.ConditionNearMint, "GBP", "def-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, selStore.selections, 1)
}

func TestReconcileSelectionPullsMatchingListings(t *testing.T) {
	selStore := newFakeSelectionStore()
	listings := newFakeListingStore(
		&models.Listing{ID: "l-1", CardID: "card-1", Name: "Charizard Holo", Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionIDs: models.StringSlice{"def-1"}},
		&models.Listing{ID: "l-2", CardID: "card-1", Name: "Charizard Played", Condition: models.ConditionHeavilyPlayed, Currency: "GBP", SearchDefinitionIDs: models.StringSlice{"def-1"}},
		&models.Listing{ID: "l-3", CardID: "card-1", Name: "Charizard NM", Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionIDs: models.StringSlice{"def-1"}},
		&models.Listing{ID: "l-4", CardID: "card-1", Name: "Blastoise NM", Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionIDs: models.StringSlice{"def-1"}},
		&models.Listing{ID: "l-5", CardID: "card-1", Name: "Charizard USD", Condition: models.ConditionNearMint, Currency: "USD", SearchDefinitionIDs: models.StringSlice{"def-1"}},
	)
	defs := newFakeDefinitionStore(charizardDef())
	reconciler := newTestReconciler(selStore, listings, newFakeSoldPriceStore(), &fakeStatStore{}, defs)

	selection, err := selStore.Create(context.Background(), &models.Selection{
		CardID: "card-1", PriceKind: models.PriceKindListing,
		Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionID: "def-1",
	})
	require.NoError(t, err)

	joined, err := reconciler.ReconcileSelection(context.Background(), selection.ID)
	require.NoError(t, err)

	// only the NM/GBP charizards qualify: wrong condition, failed keywords,
	// and wrong currency all stay out
	assert.Equal(t, 2, joined)
	assert.True(t, listings.listings["l-1"].SelectionIDs.Contains(selection.ID))
	assert.True(t, listings.listings["l-3"].SelectionIDs.Contains(selection.ID))
	assert.False(t, listings.listings["l-2"].SelectionIDs.Contains(selection.ID))
	assert.False(t, listings.listings["l-4"].SelectionIDs.Contains(selection.ID))
	assert.False(t, listings.listings["l-5"].SelectionIDs.Contains(selection.ID))
	assert.True(t, selStore.selections[selection.ID].HasReconciled)
}

func TestReconcileSelectionRemovesStaleMembers(t *testing.T) {
	selStore := newFakeSelectionStore()
	defs := newFakeDefinitionStore(charizardDef())

	selection, err := selStore.Create(context.Background(), &models.Selection{
		CardID: "card-1", PriceKind: models.PriceKindListing,
		Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionID: "def-1",
	})
	require.NoError(t, err)

	// 60 matching candidates and 40 that wrongly hold the id already
	listings := newFakeListingStore()
	for i := 0; i < 60; i++ {
		listings.listings[fmt.Sprintf("match-%d", i)] = &models.Listing{
			ID: fmt.Sprintf("match-%d", i), CardID: "card-1", Name: "Charizard Holo",
			Condition: models.ConditionNearMint, Currency: "GBP",
			SearchDefinitionIDs: models.StringSlice{"def-1"},
		}
	}
	for i := 0; i < 40; i++ {
		listings.listings[fmt.Sprintf("stale-%d", i)] = &models.Listing{
			ID: fmt.Sprintf("stale-%d", i), CardID: "card-1", Name: "Charizard Played",
			Condition: models.ConditionHeavilyPlayed, Currency: "GBP",
			SearchDefinitionIDs: models.StringSlice{"def-1"},
			SelectionIDs:        models.StringSlice{selection.ID, "other-selection"},
		}
	}
	reconciler := newTestReconciler(selStore, listings, newFakeSoldPriceStore(), &fakeStatStore{}, defs)

	joined, err := reconciler.ReconcileSelection(context.Background(), selection.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, joined)

	holders := 0
	for _, l := range listings.listings {
		if l.SelectionIDs.Contains(selection.ID) {
			holders++
		}
	}
	assert.Equal(t, 60, holders)
	// unrelated memberships survive the removal
	assert.True(t, listings.listings["stale-0"].SelectionIDs.Contains("other-selection"))
}

func TestReconcileSelectionRemovesStaleSoldPrices(t *testing.T) {
	selStore := newFakeSelectionStore()
	defs := newFakeDefinitionStore(charizardDef())

	selection, err := selStore.Create(context.Background(), &models.Selection{
		CardID: "card-1", PriceKind: models.PriceKindSold,
		Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionID: "def-1",
	})
	require.NoError(t, err)

	prices := newFakeSoldPriceStore(
		&models.SoldPrice{ID: "p-1", CardID: "card-1", Condition: models.ConditionNearMint, Currency: "GBP", State: models.PriceStateActive, SearchDefinitionIDs: models.StringSlice{"def-1"}},
		&models.SoldPrice{ID: "p-2", CardID: "card-1", Condition: models.ConditionDamaged, Currency: "GBP", State: models.PriceStateActive, SearchDefinitionIDs: models.StringSlice{"def-1"}, SelectionIDs: models.StringSlice{selection.ID}},
	)
	reconciler := newTestReconciler(selStore, newFakeListingStore(), prices, &fakeStatStore{}, defs)

	joined, err := reconciler.ReconcileSelection(context.Background(), selection.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, joined)
	assert.True(t, prices.prices["p-1"].SelectionIDs.Contains(selection.ID))
	assert.False(t, prices.prices["p-2"].SelectionIDs.Contains(selection.ID))
}

func TestReconcileSelectionIsIdempotent(t *testing.T) {
	selStore := newFakeSelectionStore()
	listings := newFakeListingStore(
		&models.Listing{ID: "l-1", CardID: "card-1", Name: "Charizard Holo", Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionIDs: models.StringSlice{"def-1"}},
	)
	defs := newFakeDefinitionStore(charizardDef())
	reconciler := newTestReconciler(selStore, listings, newFakeSoldPriceStore(), &fakeStatStore{}, defs)

	selection, err := selStore.Create(context.Background(), &models.Selection{
		CardID: "card-1", PriceKind: models.PriceKindListing,
		Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionID: "def-1",
	})
	require.NoError(t, err)

	joined, err := reconciler.ReconcileSelection(context.Background(), selection.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, joined)

	joined, err = reconciler.ReconcileSelection(context.Background(), selection.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, joined)
	assert.Equal(t, models.StringSlice{selection.ID}, models.StringSlice(listings.listings["l-1"].SelectionIDs))
}

func TestReconcileSelectionPullsSoldPrices(t *testing.T) {
	selStore := newFakeSelectionStore()
	prices := newFakeSoldPriceStore(
		&models.SoldPrice{ID: "p-1", CardID: "card-1", Condition: models.ConditionNearMint, Currency: "GBP", State: models.PriceStateActive, SearchDefinitionIDs: models.StringSlice{"def-1"}},
		&models.SoldPrice{ID: "p-2", CardID: "card-1", Condition: models.ConditionDamaged, Currency: "GBP", State: models.PriceStateActive, SearchDefinitionIDs: models.StringSlice{"def-1"}},
	)
	defs := newFakeDefinitionStore(charizardDef())
	reconciler := newTestReconciler(selStore, newFakeListingStore(), prices, &fakeStatStore{}, defs)

	selection, err := selStore.Create(context.Background(), &models.Selection{
		CardID: "card-1", PriceKind: models.PriceKindSold,
		Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionID: "def-1",
	})
	require.NoError(t, err)

	joined, err := reconciler.ReconcileSelection(context.Background(), selection.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, joined)
	assert.True(t, prices.prices["p-1"].SelectionIDs.Contains(selection.ID))
	assert.False(t, prices.prices["p-2"].SelectionIDs.Contains(selection.ID))
}

func TestSyncListingCreatesAndReplacesMemberships(t *testing.T) {
	selStore := newFakeSelectionStore()
	listing := &models.Listing{
		ID: "l-1", CardID: "card-1", Name: "Charizard Holo",
		Condition: models.ConditionNearMint, Currency: "GBP",
		SearchDefinitionIDs: models.StringSlice{"def-1", "def-2"},
		SelectionIDs:        models.StringSlice{"stale-selection"},
	}
	listings := newFakeListingStore(listing)
	defs := newFakeDefinitionStore(
		charizardDef(),
		&models.SearchDefinition{
			ID: "def-2", CardID: "card-1", Currency: "GBP",
			Keywords: models.Keywords{Includes: [][]string{{"blastoise"}}},
		},
	)
	reconciler := newTestReconciler(selStore, listings, newFakeSoldPriceStore(), &fakeStatStore{}, defs)

	ids, err := reconciler.SyncListing(context.Background(), listing)
	require.NoError(t, err)

	// def-2's keywords reject the title, so exactly one membership remains
	// and the stale one is gone
	require.Len(t, ids, 1)
	assert.Equal(t, models.StringSlice(ids), listings.listings["l-1"].SelectionIDs)
	assert.Len(t, selStore.selections, 1)
}

func TestSyncSoldPriceCreatesMemberships(t *testing.T) {
	selStore := newFakeSelectionStore()
	price := &models.SoldPrice{
		ID: "p-1", CardID: "card-1", Condition: models.ConditionNearMint,
		Currency: "GBP", State: models.PriceStateActive,
		SearchDefinitionIDs: models.StringSlice{"def-1"},
	}
	prices := newFakeSoldPriceStore(price)
	reconciler := newTestReconciler(selStore, newFakeListingStore(), prices, &fakeStatStore{}, newFakeDefinitionStore(charizardDef()))

	ids, err := reconciler.SyncSoldPrice(context.Background(), price)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	stored := selStore.selections[ids[0]]
	assert.Equal(t, models.PriceKindSold, stored.PriceKind)
	assert.Equal(t, models.StringSlice(ids), prices.prices["p-1"].SelectionIDs)
}

func TestEnforceUniquenessKeepsNewestAndRepointsMembers(t *testing.T) {
	selStore := newFakeSelectionStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	older := &models.Selection{ID: "sel-old", CardID: "card-1", PriceKind: models.PriceKindListing, Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionID: "def-1", CreatedAt: base}
	newer := &models.Selection{ID: "sel-new", CardID: "card-1", PriceKind: models.PriceKindListing, Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionID: "def-1", CreatedAt: base.Add(time.Hour)}
	selStore.selections[older.ID] = older
	selStore.selections[newer.ID] = newer

	listing := &models.Listing{ID: "l-1", CardID: "card-1", SelectionIDs: models.StringSlice{"sel-old"}}
	listings := newFakeListingStore(listing)
	stats := &fakeStatStore{}
	reconciler := newTestReconciler(selStore, listings, newFakeSoldPriceStore(), stats, newFakeDefinitionStore(charizardDef()))

	removed, err := reconciler.EnforceUniqueness(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.Contains(t, selStore.selections, "sel-new")
	assert.NotContains(t, selStore.selections, "sel-old")
	assert.Equal(t, models.StringSlice{"sel-new"}, models.StringSlice(listing.SelectionIDs))
	require.Len(t, stats.deleted, 1)
	assert.Equal(t, []string{"sel-old"}, stats.deleted[0])
}

func TestEnforceUniquenessNoDuplicatesIsNoop(t *testing.T) {
	selStore := newFakeSelectionStore()
	_, err := selStore.Create(context.Background(), &models.Selection{CardID: "card-1", PriceKind: models.PriceKindListing, Condition: models.ConditionNearMint, Currency: "GBP", SearchDefinitionID: "def-1"})
	require.NoError(t, err)

	stats := &fakeStatStore{}
	reconciler := newTestReconciler(selStore, newFakeListingStore(), newFakeSoldPriceStore(), stats, newFakeDefinitionStore())

	removed, err := reconciler.EnforceUniqueness(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Empty(t, stats.deleted)
}
