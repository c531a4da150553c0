package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/logging"
)

type sliceSupplier struct {
	mu    sync.Mutex
	tasks []Task
}

func (s *sliceSupplier) Next(_ context.Context) (Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return nil, false, nil
	}
	task := s.tasks[0]
	s.tasks = s.tasks[1:]
	return task, true, nil
}

func TestRunExecutesAllSuppliedTasks(t *testing.T) {
	var count int64
	supplier := &sliceSupplier{}
	for i := 0; i < 20; i++ {
		supplier.tasks = append(supplier.tasks, func(context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	}

	result := NewRunner(logging.NewNop()).Run(context.Background(), 5*time.Second, 4, supplier, nil)

	assert.Equal(t, int64(20), atomic.LoadInt64(&count))
	assert.Equal(t, 20, result.Dispatched)
	assert.Equal(t, 0, result.Failed)
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak int64
	supplier := &sliceSupplier{}
	for i := 0; i < 30; i++ {
		supplier.tasks = append(supplier.tasks, func(context.Context) error {
			current := atomic.AddInt64(&inFlight, 1)
			for {
				observed := atomic.LoadInt64(&peak)
				if current <= observed || atomic.CompareAndSwapInt64(&peak, observed, current) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return nil
		})
	}

	NewRunner(logging.NewNop()).Run(context.Background(), 10*time.Second, 3, supplier, nil)

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
	assert.Greater(t, atomic.LoadInt64(&peak), int64(0))
}

func TestRunStopsIssuingAfterBudget(t *testing.T) {
	var count int64
	endless := supplierFunc(func(context.Context) (Task, bool, error) {
		return func(context.Context) error {
			atomic.AddInt64(&count, 1)
			time.Sleep(10 * time.Millisecond)
			return nil
		}, true, nil
	})

	result := NewRunner(logging.NewNop()).Run(context.Background(), 100*time.Millisecond, 2, endless, nil)

	// budget expiry stops new dispatches but lets in-flight work finish
	assert.Equal(t, result.Dispatched, int(atomic.LoadInt64(&count)))
	assert.Less(t, result.Dispatched, 100)
}

func TestRunDoesNotDispatchAfterBudgetWhileSaturated(t *testing.T) {
	var dispatchTimes []time.Time
	var mu sync.Mutex
	start := time.Now()

	// every task holds the only slot well past the budget, so anything pulled
	// from the supplier near the deadline can only get a slot after it
	endless := supplierFunc(func(context.Context) (Task, bool, error) {
		return func(context.Context) error {
			mu.Lock()
			dispatchTimes = append(dispatchTimes, time.Now())
			mu.Unlock()
			time.Sleep(300 * time.Millisecond)
			return nil
		}, true, nil
	})

	result := NewRunner(logging.NewNop()).Run(context.Background(), 100*time.Millisecond, 1, endless, nil)

	assert.Equal(t, 1, result.Dispatched)
	mu.Lock()
	defer mu.Unlock()
	for _, at := range dispatchTimes {
		assert.Less(t, at.Sub(start), 100*time.Millisecond)
	}
}

func TestRunTaskFailuresDoNotAbort(t *testing.T) {
	var failures []error
	supplier := &sliceSupplier{}
	for i := 0; i < 5; i++ {
		i := i
		supplier.tasks = append(supplier.tasks, func(context.Context) error {
			if i%2 == 0 {
				return fmt.Errorf("task %d failed", i)
			}
			return nil
		})
	}

	var mu sync.Mutex
	result := NewRunner(logging.NewNop()).Run(context.Background(), 5*time.Second, 2, supplier, func(err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	})

	assert.Equal(t, 5, result.Dispatched)
	assert.Equal(t, 3, result.Failed)
	assert.Len(t, failures, 3)
}

func TestRunStopsAfterTwoConsecutiveEmpties(t *testing.T) {
	var calls int64
	empty := supplierFunc(func(context.Context) (Task, bool, error) {
		atomic.AddInt64(&calls, 1)
		return nil, false, nil
	})

	result := NewRunner(logging.NewNop()).Run(context.Background(), time.Minute, 2, empty, nil)

	assert.Equal(t, 0, result.Dispatched)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.Less(t, result.Elapsed, time.Second)
}

func TestRunSupplierErrorCountsAsFailure(t *testing.T) {
	boom := errors.New("storage unavailable")
	failing := supplierFunc(func(context.Context) (Task, bool, error) {
		return nil, false, boom
	})

	var got []error
	result := NewRunner(logging.NewNop()).Run(context.Background(), time.Minute, 2, failing, func(err error) {
		got = append(got, err)
	})

	assert.Equal(t, 2, result.Failed)
	require.NotEmpty(t, got)
	assert.ErrorIs(t, got[0], boom)
}

type supplierFunc func(ctx context.Context) (Task, bool, error)

func (f supplierFunc) Next(ctx context.Context) (Task, bool, error) { return f(ctx) }
