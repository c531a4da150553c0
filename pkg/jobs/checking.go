package jobs

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/taskrunner"
)

// ListingChecker observes one listing and applies its state transition
type ListingChecker interface {
	CheckListing(ctx context.Context, id string) (*models.Listing, error)
}

// DueListingStore pages through listings whose next check time has passed
type DueListingStore interface {
	ListDue(ctx context.Context, limit int) ([]models.Listing, error)
}

// Checking polls every due listing against the marketplace. Checked listings
// get a future next check time, so refills naturally stop returning them.
type Checking struct {
	runner   *taskrunner.Runner
	listings DueListingStore
	checker  ListingChecker
	logger   logging.Logger

	budget      time.Duration
	concurrency int
	queueScale  int
}

// NewChecking creates the checking job
func NewChecking(cfg config.Config, listings DueListingStore, checker ListingChecker, logger logging.Logger) *Checking {
	return &Checking{
		runner:      taskrunner.NewRunner(logger),
		listings:    listings,
		checker:     checker,
		logger:      logger,
		budget:      budgetSeconds(cfg.CheckingBudgetSeconds),
		concurrency: cfg.MaxConcurrency,
		queueScale:  cfg.QueueScale,
	}
}

func (j *Checking) Name() string { return "checking" }

func (j *Checking) Run(ctx context.Context) taskrunner.Result {
	ctx, span := tracing.StartSpan(ctx, "jobs.Checking.Run")
	defer span.End()

	queue := taskrunner.NewQueue(
		j.listings.ListDue,
		func(l models.Listing) string { return l.ID },
		func(l models.Listing) taskrunner.Task {
			return func(ctx context.Context) error {
				_, err := j.checker.CheckListing(ctx, l.ID)
				return err
			}
		},
		j.concurrency,
		j.concurrency*j.queueScale,
	)

	return j.runner.Run(ctx, j.budget, j.concurrency, queue, func(err error) {
		j.logger.WithContext(ctx).WithError(err).Warn("Listing check failed")
	})
}
