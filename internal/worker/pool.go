// Package worker runs independent units of work on a fixed-capacity pool.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task is one independent unit of work.
type Task func(ctx context.Context) error

// Pool executes tasks with at most Size running at once. A failing task
// never cancels its siblings.
type Pool struct {
	name   string
	size   int
	logger *slog.Logger
}

// NewPool creates a pool. Sizes below one are raised to one.
func NewPool(name string, size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{name: name, size: size, logger: logger}
}

// Size returns the pool capacity.
func (p *Pool) Size() int { return p.size }

// Run executes every task and waits for all of them. The returned error
// joins each task error in submission order, or is nil when all succeeded.
// Once ctx is done no further tasks are started and ctx.Err() is included.
func (p *Pool) Run(ctx context.Context, tasks []Task) error {
	var g errgroup.Group
	g.SetLimit(p.size)

	errs := make([]error, len(tasks))
	total := len(tasks)
	var done atomic.Int64

	for i, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			errs[i] = task(ctx)
			n := done.Add(1)
			p.logger.Debug("task finished", "pool", p.name, "done", n, "total", total, "failed", errs[i] != nil)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
