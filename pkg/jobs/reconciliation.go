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

// SelectionReconciler repairs selection membership consistency
type SelectionReconciler interface {
	EnforceUniqueness(ctx context.Context) (int, error)
	ReconcileSelection(ctx context.Context, selectionID string) (int, error)
}

// UnreconciledSelectionStore pages selections awaiting their first
// membership backfill
type UnreconciledSelectionStore interface {
	ListUnreconciled(ctx context.Context, limit int) ([]models.Selection, error)
}

// Reconciliation collapses duplicate selections, then backfills membership
// for every selection that has not been reconciled yet. Uniqueness runs
// first so the backfill never fills a selection about to be deleted.
type Reconciliation struct {
	runner     *taskrunner.Runner
	reconciler SelectionReconciler
	selections UnreconciledSelectionStore
	logger     logging.Logger

	budget      time.Duration
	concurrency int
	queueScale  int
}

// NewReconciliation creates the reconciliation job
func NewReconciliation(cfg config.Config, reconciler SelectionReconciler, selections UnreconciledSelectionStore, logger logging.Logger) *Reconciliation {
	return &Reconciliation{
		runner:      taskrunner.NewRunner(logger),
		reconciler:  reconciler,
		selections:  selections,
		logger:      logger,
		budget:      budgetSeconds(cfg.ReconciliationBudgetSeconds),
		concurrency: cfg.MaxConcurrency,
		queueScale:  cfg.QueueScale,
	}
}

func (j *Reconciliation) Name() string { return "reconciliation" }

func (j *Reconciliation) Run(ctx context.Context) taskrunner.Result {
	ctx, span := tracing.StartSpan(ctx, "jobs.Reconciliation.Run")
	defer span.End()

	if removed, err := j.reconciler.EnforceUniqueness(ctx); err != nil {
		j.logger.WithContext(ctx).WithError(err).Error("Selection uniqueness enforcement failed")
	} else if removed > 0 {
		j.logger.WithContext(ctx).WithFields(map[string]any{"removed": removed}).Info("Removed duplicate selections")
	}

	queue := taskrunner.NewQueue(
		j.selections.ListUnreconciled,
		func(s models.Selection) string { return s.ID },
		func(s models.Selection) taskrunner.Task {
			return func(ctx context.Context) error {
				_, err := j.reconciler.ReconcileSelection(ctx, s.ID)
				return err
			}
		},
		j.concurrency,
		j.concurrency*j.queueScale,
	)

	return j.runner.Run(ctx, j.budget, j.concurrency, queue, func(err error) {
		j.logger.WithContext(ctx).WithError(err).Warn("Selection reconciliation failed")
	})
}
