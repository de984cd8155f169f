package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/casetrail/reqflow/logger"
)

// Job is one schedulable unit of driver work.
type Job func(ctx context.Context) (Stats, error)

type scheduledJob struct {
	interval time.Duration
	run      Job
}

// Runner drives registered jobs on independent intervals. Each job runs
// single-flight: a tick or Trigger call that arrives while the job is
// already running joins the in-flight run instead of starting another.
type Runner struct {
	mu   sync.Mutex
	jobs map[string]*scheduledJob
	sf   singleflight.Group
	log  *slog.Logger
}

// NewRunner builds an empty runner.
func NewRunner() *Runner {
	return &Runner{
		jobs: make(map[string]*scheduledJob),
		log:  logger.With("component", "runner"),
	}
}

// Add registers a job under name with its tick interval. Registering an
// existing name replaces the previous job.
func (r *Runner) Add(name string, interval time.Duration, job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[name] = &scheduledJob{interval: interval, run: job}
}

// Trigger runs the named job now, coalescing with any in-flight run.
func (r *Runner) Trigger(ctx context.Context, name string) (Stats, error) {
	r.mu.Lock()
	job, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return Stats{}, fmt.Errorf("unknown job %q", name)
	}

	result, err, _ := r.sf.Do(name, func() (any, error) {
		stats, err := job.run(ctx)
		return stats, err
	})
	stats, _ := result.(Stats)
	return stats, err
}

// Run ticks every registered job on its interval until ctx is cancelled,
// then waits for in-flight runs to finish. Job errors are logged; they never
// stop the schedule.
func (r *Runner) Run(ctx context.Context) {
	r.mu.Lock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, name := range names {
		r.mu.Lock()
		job := r.jobs[name]
		r.mu.Unlock()

		wg.Add(1)
		go func(name string, job *scheduledJob) {
			defer wg.Done()
			ticker := time.NewTicker(job.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := r.Trigger(ctx, name); err != nil {
						r.log.ErrorContext(ctx, "job run failed", "job", name, "error", err)
					}
				}
			}
		}(name, job)
	}
	wg.Wait()
}
