package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/pkg/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		CheckingBudgetSeconds:       5,
		SourcingBudgetSeconds:       5,
		ReconciliationBudgetSeconds: 5,
		StatsBudgetSeconds:          5,
		ArchivalBudgetSeconds:       5,
		MaxConcurrency:              2,
		QueueScale:                  4,
		ArchiveAfterDays:            180,
	}
}

type fakeSearchFetcher struct {
	queries []string
}

func (f *fakeSearchFetcher) Search(_ context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return "<html>" + query + "</html>", nil
}

type fakeSearchExtractor struct {
	results []models.SearchResult
}

func (f *fakeSearchExtractor) SearchResults(string) ([]models.SearchResult, error) {
	return f.results, nil
}

type fakeSourcingListingStore struct {
	byURL   map[string]*models.Listing
	created []*models.Listing
	updated []*models.Listing
}

func newFakeSourcingListingStore() *fakeSourcingListingStore {
	return &fakeSourcingListingStore{byURL: map[string]*models.Listing{}}
}

func (f *fakeSourcingListingStore) GetByURL(_ context.Context, url string) (*models.Listing, error) {
	return f.byURL[url], nil
}

func (f *fakeSourcingListingStore) Create(_ context.Context, listing *models.Listing) (*models.Listing, error) {
	listing.ID = fmt.Sprintf("l-%d", len(f.created)+1)
	f.byURL[listing.URL] = listing
	f.created = append(f.created, listing)
	return listing, nil
}

func (f *fakeSourcingListingStore) Update(_ context.Context, listing *models.Listing) error {
	f.byURL[listing.URL] = listing
	f.updated = append(f.updated, listing)
	return nil
}

type fakeDefinitionStore struct {
	due        []models.SearchDefinition
	listed     bool
	sourcedIDs []string
	nextTimes  []time.Time
}

func (f *fakeDefinitionStore) ListDue(_ context.Context, _ int) ([]models.SearchDefinition, error) {
	if f.listed {
		return nil, nil
	}
	f.listed = true
	return f.due, nil
}

func (f *fakeDefinitionStore) MarkSourced(_ context.Context, id string, _, next time.Time) error {
	f.sourcedIDs = append(f.sourcedIDs, id)
	f.nextTimes = append(f.nextTimes, next)
	return nil
}

type fakeListingSyncer struct {
	synced []string
}

func (f *fakeListingSyncer) SyncListing(_ context.Context, listing *models.Listing) ([]string, error) {
	f.synced = append(f.synced, listing.ID)
	return nil, nil
}

func charizardDef() models.SearchDefinition {
	return models.SearchDefinition{
		ID:       "def-1",
		CardID:   "card-1",
		Query:    "charizard base set",
		Currency: "GBP",
		Keywords: models.Keywords{Includes: [][]string{{"charizard"}}, Excludes: []string{"proxy"}},
		Active:   true,
	}
}

func newSourcingFixture(results []models.SearchResult, due ...models.SearchDefinition) (*Sourcing, *fakeSourcingListingStore, *fakeDefinitionStore, *fakeListingSyncer) {
	listings := newFakeSourcingListingStore()
	definitions := &fakeDefinitionStore{due: due}
	syncer := &fakeListingSyncer{}
	job := NewSourcing(testConfig(), &fakeSearchFetcher{}, &fakeSearchExtractor{results: results}, listings, definitions, syncer, logging.NewNop())
	job.now = func() time.Time { return testNow }
	return job, listings, definitions, syncer
}

func TestSourcingCreatesListingsFromResults(t *testing.T) {
	results := []models.SearchResult{
		{URL: "https://x/1", Title: "Charizard Base Set Holo", Price: 4500, Currency: "GBP", BidCount: 2},
		{URL: "https://x/2", Title: "Blastoise Base Set", Price: 3000, Currency: "GBP"},
		{URL: "https://x/3", Title: "Charizard proxy card", Price: 500, Currency: "GBP"},
	}
	job, listings, definitions, syncer := newSourcingFixture(results, charizardDef())

	result := job.Run(context.Background())
	assert.Equal(t, 0, result.Failed)

	// only the keyword-passing row becomes a listing
	require.Len(t, listings.created, 1)
	created := listings.created[0]
	assert.Equal(t, "https://x/1", created.URL)
	assert.Equal(t, "card-1", created.CardID)
	assert.Equal(t, models.ListingStateOpen, created.State)
	assert.Equal(t, models.StringSlice{"def-1"}, created.SearchDefinitionIDs)
	assert.Equal(t, testNow, created.NextCheckTime)
	require.Len(t, created.History, 1)
	assert.Equal(t, int64(4500), created.History[0].Amount)

	assert.Equal(t, []string{"l-1"}, syncer.synced)
	assert.Equal(t, []string{"def-1"}, definitions.sourcedIDs)
	require.Len(t, definitions.nextTimes, 1)
	assert.Equal(t, testNow.Add(sourcingInterval), definitions.nextTimes[0])
}

func TestSourcingJoinsExistingListing(t *testing.T) {
	results := []models.SearchResult{
		{URL: "https://x/1", Title: "Charizard Base Set Holo", Price: 4500, Currency: "GBP"},
	}
	job, listings, _, syncer := newSourcingFixture(results, charizardDef())
	listings.byURL["https://x/1"] = &models.Listing{
		ID: "l-existing", URL: "https://x/1", CardID: "card-1",
		SearchDefinitionIDs: models.StringSlice{"def-0"},
	}

	result := job.Run(context.Background())
	assert.Equal(t, 0, result.Failed)

	assert.Empty(t, listings.created)
	require.Len(t, listings.updated, 1)
	assert.Equal(t, models.StringSlice{"def-0", "def-1"}, listings.updated[0].SearchDefinitionIDs)
	assert.Equal(t, []string{"l-existing"}, syncer.synced)
}

func TestSourcingSkipsAlreadyMemberAndArchived(t *testing.T) {
	results := []models.SearchResult{
		{URL: "https://x/1", Title: "Charizard member", Price: 100, Currency: "GBP"},
		{URL: "https://x/2", Title: "Charizard archived", Price: 100, Currency: "GBP"},
	}
	job, listings, definitions, syncer := newSourcingFixture(results, charizardDef())
	archivedAt := testNow.Add(-time.Hour)
	listings.byURL["https://x/1"] = &models.Listing{ID: "l-1", URL: "https://x/1", SearchDefinitionIDs: models.StringSlice{"def-1"}}
	listings.byURL["https://x/2"] = &models.Listing{ID: "l-2", URL: "https://x/2", ArchivedAt: &archivedAt}

	result := job.Run(context.Background())
	assert.Equal(t, 0, result.Failed)

	assert.Empty(t, listings.created)
	assert.Empty(t, listings.updated)
	assert.Empty(t, syncer.synced)
	assert.Equal(t, []string{"def-1"}, definitions.sourcedIDs)
}

func TestSourcingFallsBackToDefinitionCurrency(t *testing.T) {
	results := []models.SearchResult{
		{URL: "https://x/1", Title: "Charizard no currency row", Price: 4500},
	}
	job, listings, _, _ := newSourcingFixture(results, charizardDef())

	job.Run(context.Background())

	require.Len(t, listings.created, 1)
	assert.Equal(t, "GBP", listings.created[0].Currency)
}
