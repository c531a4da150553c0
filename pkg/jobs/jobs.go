// Package jobs holds the batch jobs the scheduler and the admin API trigger.
// Every job runs on the shared taskrunner with its own wall-clock budget.
package jobs

import (
	"context"
	"sort"
	"time"

	"github.com/Ramsey-B/fern/pkg/taskrunner"
)

// Job is one named batch job
type Job interface {
	Name() string
	Run(ctx context.Context) taskrunner.Result
}

// Registry resolves jobs by name for the admin trigger endpoint and the
// cron scheduler
type Registry struct {
	jobs map[string]Job
}

// NewRegistry creates a Registry over the given jobs
func NewRegistry(jobs ...Job) *Registry {
	byName := make(map[string]Job, len(jobs))
	for _, job := range jobs {
		byName[job.Name()] = job
	}
	return &Registry{jobs: byName}
}

// Get returns the job with the given name
func (r *Registry) Get(name string) (Job, bool) {
	job, ok := r.jobs[name]
	return job, ok
}

// Names returns the registered job names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func budgetSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
