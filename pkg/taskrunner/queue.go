package taskrunner

import (
	"context"
	"sync"
)

// FetchFunc loads up to limit items of pending work from storage.
type FetchFunc[T any] func(ctx context.Context, limit int) ([]T, error)

// Queue is a self-refilling work buffer backed by a FetchFunc. It refills
// from storage whenever the buffer drops below the low-water mark and
// remembers which ids it already handed out, so items whose rows are still
// due at refill time are not dispatched twice within a run.
type Queue[T any] struct {
	fetch    FetchFunc[T]
	identify func(T) string
	build    func(T) Task

	lowWater   int
	refillSize int

	mu         sync.Mutex
	buffer     []T
	dispatched map[string]struct{}
	drained    bool
}

// NewQueue creates a Queue. lowWater should match the runner's concurrency;
// refillSize is how many rows each storage fetch asks for.
func NewQueue[T any](fetch FetchFunc[T], identify func(T) string, build func(T) Task, lowWater, refillSize int) *Queue[T] {
	if lowWater < 1 {
		lowWater = 1
	}
	if refillSize < lowWater {
		refillSize = lowWater
	}
	return &Queue[T]{
		fetch:      fetch,
		identify:   identify,
		build:      build,
		lowWater:   lowWater,
		refillSize: refillSize,
		dispatched: map[string]struct{}{},
	}
}

// Next implements Supplier
func (q *Queue[T]) Next(ctx context.Context) (Task, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buffer) < q.lowWater && !q.drained {
		if err := q.refill(ctx); err != nil {
			return nil, false, err
		}
	}

	if len(q.buffer) == 0 {
		return nil, false, nil
	}

	item := q.buffer[0]
	q.buffer = q.buffer[1:]
	return q.build(item), true, nil
}

// refill must be called with the lock held
func (q *Queue[T]) refill(ctx context.Context) error {
	items, err := q.fetch(ctx, q.refillSize)
	if err != nil {
		return err
	}

	added := 0
	for _, item := range items {
		id := q.identify(item)
		if _, seen := q.dispatched[id]; seen {
			continue
		}
		q.dispatched[id] = struct{}{}
		q.buffer = append(q.buffer, item)
		added++
	}

	// a full fetch that yields nothing new means storage has no more work
	// this run will be able to claim
	if added == 0 && len(items) < q.refillSize {
		q.drained = true
	}
	return nil
}
