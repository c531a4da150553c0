package jobs

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/condition"
	"github.com/Ramsey-B/fern/pkg/keywords"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/taskrunner"
)

// a sourced definition goes back to sleep for one scheduler cycle
const sourcingInterval = 4 * time.Hour

// SearchFetcher loads a marketplace search results page
type SearchFetcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearchExtractor parses result rows out of a search page
type SearchExtractor interface {
	SearchResults(html string) ([]models.SearchResult, error)
}

// SourcingListingStore is the listing surface sourcing needs
type SourcingListingStore interface {
	GetByURL(ctx context.Context, url string) (*models.Listing, error)
	Create(ctx context.Context, listing *models.Listing) (*models.Listing, error)
	Update(ctx context.Context, listing *models.Listing) error
}

// SourcingDefinitionStore pages due definitions and records sourcing passes
type SourcingDefinitionStore interface {
	ListDue(ctx context.Context, limit int) ([]models.SearchDefinition, error)
	MarkSourced(ctx context.Context, id string, sourcedAt, next time.Time) error
}

// ListingSyncer assigns a listing its selection memberships
type ListingSyncer interface {
	SyncListing(ctx context.Context, listing *models.Listing) ([]string, error)
}

// Sourcing runs every due search definition against the marketplace and
// folds the results into tracked listings: known URLs gain the definition's
// membership, unknown ones become new listings due for an immediate check.
type Sourcing struct {
	runner      *taskrunner.Runner
	fetcher     SearchFetcher
	extractor   SearchExtractor
	listings    SourcingListingStore
	definitions SourcingDefinitionStore
	syncer      ListingSyncer
	matcher     *keywords.Matcher
	classifier  *condition.Classifier
	logger      logging.Logger

	budget      time.Duration
	concurrency int
	queueScale  int
	now         func() time.Time
}

// NewSourcing creates the sourcing job
func NewSourcing(cfg config.Config, fetcher SearchFetcher, extractor SearchExtractor, listings SourcingListingStore, definitions SourcingDefinitionStore, syncer ListingSyncer, logger logging.Logger) *Sourcing {
	return &Sourcing{
		runner:      taskrunner.NewRunner(logger),
		fetcher:     fetcher,
		extractor:   extractor,
		listings:    listings,
		definitions: definitions,
		syncer:      syncer,
		matcher:     keywords.NewMatcher(),
		classifier:  condition.NewClassifier(),
		logger:      logger,
		budget:      budgetSeconds(cfg.SourcingBudgetSeconds),
		concurrency: cfg.MaxConcurrency,
		queueScale:  cfg.QueueScale,
		now:         time.Now,
	}
}

func (j *Sourcing) Name() string { return "sourcing" }

func (j *Sourcing) Run(ctx context.Context) taskrunner.Result {
	ctx, span := tracing.StartSpan(ctx, "jobs.Sourcing.Run")
	defer span.End()

	queue := taskrunner.NewQueue(
		j.definitions.ListDue,
		func(d models.SearchDefinition) string { return d.ID },
		func(d models.SearchDefinition) taskrunner.Task {
			return func(ctx context.Context) error {
				return j.SourceDefinition(ctx, &d)
			}
		},
		j.concurrency,
		j.concurrency*j.queueScale,
	)

	return j.runner.Run(ctx, j.budget, j.concurrency, queue, func(err error) {
		j.logger.WithContext(ctx).WithError(err).Warn("Definition sourcing failed")
	})
}

// SourceDefinition runs one definition's search and absorbs its result rows
func (j *Sourcing) SourceDefinition(ctx context.Context, def *models.SearchDefinition) error {
	ctx, span := tracing.StartSpan(ctx, "jobs.Sourcing.SourceDefinition")
	defer span.End()

	html, err := j.fetcher.Search(ctx, def.Query)
	if err != nil {
		return err
	}
	results, err := j.extractor.SearchResults(html)
	if err != nil {
		return err
	}

	now := j.now().UTC()

	created, joined := 0, 0
	for i := range results {
		result := &results[i]
		if !j.matcher.Validate(def, result.Title).IsValid {
			continue
		}

		existing, err := j.listings.GetByURL(ctx, result.URL)
		if err != nil {
			return err
		}

		if existing != nil {
			if existing.ArchivedAt != nil || existing.SearchDefinitionIDs.Contains(def.ID) {
				continue
			}
			existing.SearchDefinitionIDs = append(existing.SearchDefinitionIDs, def.ID)
			if err := j.listings.Update(ctx, existing); err != nil {
				return err
			}
			if _, err := j.syncer.SyncListing(ctx, existing); err != nil {
				return err
			}
			joined++
			continue
		}

		listing, err := j.createListing(ctx, def, result, now)
		if err != nil {
			return err
		}
		if _, err := j.syncer.SyncListing(ctx, listing); err != nil {
			return err
		}
		created++
	}

	if err := j.definitions.MarkSourced(ctx, def.ID, now, now.Add(sourcingInterval)); err != nil {
		return err
	}

	j.logger.WithContext(ctx).WithFields(map[string]any{
		"definition_id": def.ID,
		"results":       len(results),
		"created":       created,
		"joined":        joined,
	}).Info("Sourced search definition")

	return nil
}

// createListing tracks a search result as a new listing. Only the row's
// fields are known at this point; the listing is due immediately so the
// checking job fills in the rest from the full page.
func (j *Sourcing) createListing(ctx context.Context, def *models.SearchDefinition, result *models.SearchResult, now time.Time) (*models.Listing, error) {
	currency := result.Currency
	if currency == "" {
		currency = def.Currency
	}

	listing := &models.Listing{
		CardID:              def.CardID,
		SearchDefinitionIDs: models.StringSlice{def.ID},
		URL:                 result.URL,
		Name:                result.Title,
		CurrentPrice:        result.Price,
		Currency:            currency,
		BidCount:            result.BidCount,
		Condition:           j.classifier.Classify(condition.Input{Title: result.Title}),
		State:               models.ListingStateOpen,
		NextCheckTime:       now,
	}
	listing.AppendHistory(models.HistoryEntry{
		Amount:     result.Price,
		BidCount:   result.BidCount,
		ObservedAt: now,
	})

	return j.listings.Create(ctx, listing)
}
