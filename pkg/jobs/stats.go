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

// StatRecomputer recomputes one stat row in place
type StatRecomputer interface {
	RecomputeStat(ctx context.Context, statID string) (*models.Stat, error)
}

// DueStatStore pages stats whose next calculation time has passed
type DueStatStore interface {
	ListDue(ctx context.Context, limit int) ([]models.Stat, error)
}

// Stats recomputes every stat row that has come due. Recomputation always
// moves the row's next calculation time forward, so refills converge.
type Stats struct {
	runner *taskrunner.Runner
	stats  DueStatStore
	engine StatRecomputer
	logger logging.Logger

	budget      time.Duration
	concurrency int
	queueScale  int
}

// NewStats creates the stats job
func NewStats(cfg config.Config, stats DueStatStore, engine StatRecomputer, logger logging.Logger) *Stats {
	return &Stats{
		runner:      taskrunner.NewRunner(logger),
		stats:       stats,
		engine:      engine,
		logger:      logger,
		budget:      budgetSeconds(cfg.StatsBudgetSeconds),
		concurrency: cfg.MaxConcurrency,
		queueScale:  cfg.QueueScale,
	}
}

func (j *Stats) Name() string { return "stats" }

func (j *Stats) Run(ctx context.Context) taskrunner.Result {
	ctx, span := tracing.StartSpan(ctx, "jobs.Stats.Run")
	defer span.End()

	queue := taskrunner.NewQueue(
		j.stats.ListDue,
		func(s models.Stat) string { return s.ID },
		func(s models.Stat) taskrunner.Task {
			return func(ctx context.Context) error {
				_, err := j.engine.RecomputeStat(ctx, s.ID)
				return err
			}
		},
		j.concurrency,
		j.concurrency*j.queueScale,
	)

	return j.runner.Run(ctx, j.budget, j.concurrency, queue, func(err error) {
		j.logger.WithContext(ctx).WithError(err).Warn("Stat recomputation failed")
	})
}
