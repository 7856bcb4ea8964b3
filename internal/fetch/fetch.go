// Package fetch downloads and unpacks the grid archives of a run.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
	"github.com/couchcryptid/noaa-grids-etl/internal/observability"
	"github.com/couchcryptid/noaa-grids-etl/internal/worker"
)

// Downloader writes the remote archive of a task to dst.
type Downloader interface {
	Download(ctx context.Context, task domain.GridTask, dst string) (int64, error)
}

// Backoff returns the wait after the given zero-based failed attempt.
type Backoff func(attempt int) time.Duration

// ExponentialBackoff waits base, 2*base, 4*base, ...
func ExponentialBackoff(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base << attempt
	}
}

// BuildTasks expands zones x events x durations into grid tasks. Upper and
// lower bound archives are added for the 100-year event when withConfidence is set.
func BuildTasks(zones []string, events []domain.Event, durations []domain.Duration, withConfidence bool, dir string) []domain.GridTask {
	var tasks []domain.GridTask
	for _, z := range zones {
		for _, e := range events {
			for _, d := range durations {
				for _, v := range domain.VariantsFor(e, withConfidence) {
					tasks = append(tasks, domain.GridTask{Zone: z, Event: e, Duration: d, Variant: v, Dir: dir})
				}
			}
		}
	}
	return tasks
}

// Summary counts the outcome of a fetch stage.
type Summary struct {
	Total     int
	Succeeded int
	Failed    []domain.GridTask
}

// Fetcher downloads and extracts grid archives with bounded retries.
type Fetcher struct {
	dl          Downloader
	maxAttempts int
	backoff     Backoff
	clock       clockwork.Clock
	pool        *worker.Pool
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithBackoff replaces the exponential backoff policy.
func WithBackoff(b Backoff) Option {
	return func(f *Fetcher) { f.backoff = b }
}

// WithClock sets the clock used for retry waits.
func WithClock(c clockwork.Clock) Option {
	return func(f *Fetcher) { f.clock = c }
}

// New creates a Fetcher using limits for attempts, backoff base and pool size.
func New(dl Downloader, limits domain.Limits, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		dl:          dl,
		maxAttempts: max(limits.MaxAttempts, 1),
		backoff:     ExponentialBackoff(limits.BackoffBase),
		clock:       domain.Clock(),
		pool:        worker.NewPool("fetch", limits.FetchWorkers, logger),
		metrics:     metrics,
		logger:      logger,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FetchAll runs every task on the fetch pool. A failed task does not affect
// its siblings; the returned error joins every *domain.FetchError.
func (f *Fetcher) FetchAll(ctx context.Context, tasks []domain.GridTask) (Summary, error) {
	sum := Summary{Total: len(tasks)}
	failed := make([]bool, len(tasks))
	var done atomic.Int64

	jobs := make([]worker.Task, len(tasks))
	for i, t := range tasks {
		jobs[i] = func(ctx context.Context) error {
			err := f.Fetch(ctx, t)
			failed[i] = err != nil
			f.logger.Info("grid task finished",
				"archive", t.ArchiveName(), "zone", t.Zone,
				"progress", fmt.Sprintf("%d/%d", done.Add(1), len(tasks)),
				"ok", err == nil)
			return err
		}
	}
	err := f.pool.Run(ctx, jobs)

	for i, t := range tasks {
		if failed[i] {
			sum.Failed = append(sum.Failed, t)
		}
	}
	sum.Succeeded = int(done.Load()) - len(sum.Failed)
	return sum, err
}

// Fetch downloads and extracts one task, retrying up to the attempt limit.
// The archive file never outlives the call.
func (f *Fetcher) Fetch(ctx context.Context, task domain.GridTask) error {
	if err := os.MkdirAll(task.Dir, 0o755); err != nil {
		return &domain.FetchError{Task: task, Err: err}
	}
	archive := filepath.Join(task.Dir, task.ArchiveName())

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			f.metrics.FetchRetries.Inc()
		}
		attempts++
		lastErr = f.attempt(ctx, task, archive)
		if lastErr == nil {
			f.metrics.FetchTasks.WithLabelValues("success").Inc()
			return nil
		}
		f.logger.Warn("grid attempt failed",
			"archive", task.ArchiveName(), "zone", task.Zone,
			"attempt", attempt+1, "max_attempts", f.maxAttempts, "error", lastErr)

		if attempt == f.maxAttempts-1 || ctx.Err() != nil {
			break
		}
		if err := f.sleep(ctx, f.backoff(attempt)); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	f.metrics.FetchTasks.WithLabelValues("exhausted").Inc()
	f.logger.Error("grid task failed",
		"archive", task.ArchiveName(), "zone", task.Zone, "attempts", attempts, "error", lastErr)
	return &domain.FetchError{Task: task, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) attempt(ctx context.Context, task domain.GridTask, archive string) error {
	defer f.removeArchive(archive)

	if _, err := f.dl.Download(ctx, task, archive); err != nil {
		return err
	}
	return Extract(archive, task.Dir)
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.clock.After(d):
		return nil
	}
}

func (f *Fetcher) removeArchive(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.logger.Warn("remove archive", "archive", filepath.Base(path), "error", err)
	}
}
