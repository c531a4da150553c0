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

// ArchivableListingStore pages terminal listings past the retention window
// and archives them
type ArchivableListingStore interface {
	ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.Listing, error)
	Archive(ctx context.Context, id string) error
}

// Archival retires listings that ended (or went unknown) long enough ago
// that nothing will ever look at them again
type Archival struct {
	runner   *taskrunner.Runner
	listings ArchivableListingStore
	logger   logging.Logger

	budget      time.Duration
	retention   time.Duration
	concurrency int
	queueScale  int
	now         func() time.Time
}

// NewArchival creates the archival job
func NewArchival(cfg config.Config, listings ArchivableListingStore, logger logging.Logger) *Archival {
	return &Archival{
		runner:      taskrunner.NewRunner(logger),
		listings:    listings,
		logger:      logger,
		budget:      budgetSeconds(cfg.ArchivalBudgetSeconds),
		retention:   time.Duration(cfg.ArchiveAfterDays) * 24 * time.Hour,
		concurrency: cfg.MaxConcurrency,
		queueScale:  cfg.QueueScale,
		now:         time.Now,
	}
}

func (j *Archival) Name() string { return "archival" }

func (j *Archival) Run(ctx context.Context) taskrunner.Result {
	ctx, span := tracing.StartSpan(ctx, "jobs.Archival.Run")
	defer span.End()

	cutoff := j.now().UTC().Add(-j.retention)

	queue := taskrunner.NewQueue(
		func(ctx context.Context, limit int) ([]models.Listing, error) {
			return j.listings.ListArchivable(ctx, cutoff, limit)
		},
		func(l models.Listing) string { return l.ID },
		func(l models.Listing) taskrunner.Task {
			return func(ctx context.Context) error {
				return j.listings.Archive(ctx, l.ID)
			}
		},
		j.concurrency,
		j.concurrency*j.queueScale,
	)

	return j.runner.Run(ctx, j.budget, j.concurrency, queue, func(err error) {
		j.logger.WithContext(ctx).WithError(err).Warn("Listing archival failed")
	})
}
