// Package taskrunner is the bounded-concurrency, time-boxed executor every
// batch job in the service runs on.
package taskrunner

import (
	"context"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/internal/logging"
	"github.com/Ramsey-B/fern/internal/tracing"
)

// Task is one unit of work
type Task func(ctx context.Context) error

// Supplier hands the runner its next task. ok == false means the supplier is
// currently empty; the runner stops after two consecutive empties.
type Supplier interface {
	Next(ctx context.Context) (task Task, ok bool, err error)
}

// Result summarizes one run
type Result struct {
	Dispatched int
	Failed     int
	Elapsed    time.Duration
}

// Runner executes supplied tasks on a fixed-size worker pool until the
// wall-clock budget expires or the supplier runs dry.
type Runner struct {
	logger logging.Logger
}

// NewRunner creates a Runner
func NewRunner(logger logging.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run pulls tasks from the supplier and dispatches them with at most
// maxConcurrency in flight. New work stops being issued once the budget
// elapses or the supplier reports empty twice in a row; in-flight tasks are
// allowed to finish. Individual task failures go to onError and never abort
// the loop.
func (r *Runner) Run(ctx context.Context, budget time.Duration, maxConcurrency int, supplier Supplier, onError func(error)) Result {
	ctx, span := tracing.StartSpan(ctx, "taskrunner.Runner.Run")
	defer span.End()

	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if onError == nil {
		onError = func(error) {}
	}

	start := time.Now()
	deadline := start.Add(budget)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		dispatched int
		failed     int
	)
	slots := make(chan struct{}, maxConcurrency)

	emptyStreak := 0
	for time.Now().Before(deadline) && emptyStreak < 2 {
		if ctx.Err() != nil {
			break
		}

		task, ok, err := supplier.Next(ctx)
		if err != nil {
			onError(err)
			mu.Lock()
			failed++
			mu.Unlock()
			emptyStreak++
			continue
		}
		if !ok {
			emptyStreak++
			continue
		}
		emptyStreak = 0

		slots <- struct{}{}
		// the slot wait can outlast the budget under full concurrency
		if !time.Now().Before(deadline) || ctx.Err() != nil {
			<-slots
			break
		}
		wg.Add(1)
		dispatched++
		go func() {
			defer func() {
				<-slots
				wg.Done()
			}()
			if err := task(ctx); err != nil {
				onError(err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	result := Result{Dispatched: dispatched, Failed: failed, Elapsed: time.Since(start)}
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"dispatched": result.Dispatched,
		"failed":     result.Failed,
		"elapsed":    result.Elapsed.String(),
	}).Info("Task run finished")
	return result
}
