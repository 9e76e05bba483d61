// Package scheduler runs background jobs on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/internal/news"
	"github.com/seenimoa/futurenews/pkg/logger"
)

// Job is one unit of periodic work.
type Job interface {
	// Name returns the job name for logging.
	Name() string
	// Run executes one iteration.
	Run(ctx context.Context) error
}

// PeriodicWorker runs a Job once at start and then every interval until its
// context is cancelled. Iterations never overlap.
type PeriodicWorker struct {
	job      Job
	interval time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
	runs     int
	mu       sync.Mutex
}

// NewPeriodicWorker creates a worker for job.
func NewPeriodicWorker(job Job, interval time.Duration, log *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		job:      job,
		interval: interval,
		log:      logger.OrNop(log).With(zap.String("worker", job.Name())),
	}
}

// Start runs the worker in the background.
func (pw *PeriodicWorker) Start(ctx context.Context) {
	pw.wg.Add(1)
	go pw.run(ctx)
}

// Stop waits for the worker to exit after its context is cancelled. It
// returns an error if that takes longer than timeout.
func (pw *PeriodicWorker) Stop(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		pw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		pw.log.Info("worker stopped")
		return nil
	case <-time.After(timeout):
		pw.log.Warn("worker stop timeout", zap.Duration("timeout", timeout))
		return fmt.Errorf("scheduler: %s did not stop within %s", pw.job.Name(), timeout)
	}
}

// Runs returns the number of completed iterations.
func (pw *PeriodicWorker) Runs() int {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.runs
}

func (pw *PeriodicWorker) run(ctx context.Context) {
	defer pw.wg.Done()

	pw.log.Info("worker started", zap.Duration("interval", pw.interval))
	pw.once(ctx)

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			pw.log.Info("worker stopping")
			return
		case <-ticker.C:
			pw.once(ctx)
		}
	}
}

func (pw *PeriodicWorker) once(ctx context.Context) {
	start := time.Now()
	if err := pw.job.Run(ctx); err != nil {
		// Keep going; the next tick retries.
		pw.log.Error("worker execution failed", zap.Error(err))
	} else {
		pw.log.Debug("worker iteration complete", zap.Duration("latency", time.Since(start)))
	}
	pw.mu.Lock()
	pw.runs++
	pw.mu.Unlock()
}

// ── Refresh job ──

// ErrAllPartitionsFailed is returned by RefreshJob when nothing was fetched.
var ErrAllPartitionsFailed = errors.New("scheduler: every ingestion partition failed")

// Refresher is the cache refresh entry point.
type Refresher interface {
	Refresh(ctx context.Context) news.RefreshResult
}

// RefreshJob refreshes the news cache.
type RefreshJob struct {
	Service Refresher
}

// Name returns the job name.
func (RefreshJob) Name() string { return "news-refresh" }

// Run performs one refresh. Partial partition failure is not an error.
func (j RefreshJob) Run(ctx context.Context) error {
	return RefreshOutcome(j.Service.Refresh(ctx))
}

// RefreshOutcome reduces a refresh result to an error: an abandoned cycle,
// every attempted partition failing, else the save error.
func RefreshOutcome(res news.RefreshResult) error {
	if res.Err != nil {
		return fmt.Errorf("refresh abandoned: %w", res.Err)
	}
	if res.Failed() {
		return fmt.Errorf("%w: %v", ErrAllPartitionsFailed, errors.Join(partitionErrs(res)...))
	}
	return res.SaveErr
}

func partitionErrs(res news.RefreshResult) []error {
	errs := make([]error, len(res.Errors))
	for i, e := range res.Errors {
		errs[i] = e
	}
	return errs
}
