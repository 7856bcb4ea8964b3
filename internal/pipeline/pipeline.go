// Package pipeline sequences zone resolution, grid fetching, mosaicking and
// confidence-bound derivation for one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/noaa-grids-etl/internal/confidence"
	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
	"github.com/couchcryptid/noaa-grids-etl/internal/fetch"
	"github.com/couchcryptid/noaa-grids-etl/internal/mosaic"
	"github.com/couchcryptid/noaa-grids-etl/internal/observability"
)

// ZoneFinder determines the zones a project area intersects.
type ZoneFinder interface {
	FindZones(indexPath, areaPath string) ([]string, error)
}

// GridFetcher downloads and unpacks grid archives.
type GridFetcher interface {
	FetchAll(ctx context.Context, tasks []domain.GridTask) (fetch.Summary, error)
}

// Mosaicker composites per-zone rasters from srcDir into outDir.
type Mosaicker interface {
	Run(ctx context.Context, srcDir, outDir string, events []domain.Event, durations []domain.Duration) (mosaic.Summary, error)
}

// BoundsEngine derives confidence bounds for the rasters in dir.
type BoundsEngine interface {
	Run(dir string, durations []domain.Duration) confidence.Summary
}

// Notifier receives the final report of every run.
type Notifier interface {
	Notify(ctx context.Context, report domain.RunReport) error
}

// Result describes a finished run.
type Result struct {
	Report     domain.RunReport
	NoZones    bool
	Fetch      fetch.Summary
	Mosaic     *mosaic.Summary
	Confidence *confidence.Summary
	Elapsed    time.Duration
}

// Partial reports whether a contained unit failure (one mosaic group or one
// confidence duration) occurred during an otherwise completed run.
func (r *Result) Partial() bool {
	return (r.Mosaic != nil && len(r.Mosaic.Failed) > 0) ||
		(r.Confidence != nil && len(r.Confidence.Failed) > 0)
}

// Pipeline runs the grid stages in order.
type Pipeline struct {
	limits    domain.Limits
	zones     ZoneFinder
	fetcher   GridFetcher
	mosaicker Mosaicker
	bounds    BoundsEngine
	notifiers []Notifier
	logger    *slog.Logger
	metrics   *observability.Metrics
	started   atomic.Bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithNotifier publishes each run report through n. It may be given more
// than once; notifiers are called in order.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifiers = append(p.notifiers, n) }
}

// New creates a Pipeline with the given stages and observability.
func New(limits domain.Limits, z ZoneFinder, f GridFetcher, m Mosaicker, b BoundsEngine,
	logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		limits:    limits,
		zones:     z,
		fetcher:   f,
		mosaicker: m,
		bounds:    b,
		logger:    logger,
		metrics:   metrics,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// CheckReadiness returns nil once the pipeline has started a run.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.started.Load() {
		return errors.New("pipeline has not started a run yet")
	}
	return nil
}

// Run executes one request. Invalid requests fail before any I/O. A project
// area outside every zone completes with Result.NoZones set and no error.
// Any stage failure that is not contained to one unit aborts the run with an
// error naming the stage.
func (p *Pipeline) Run(ctx context.Context, req domain.Request) (*Result, error) {
	clock := domain.Clock()
	start := clock.Now()
	res := &Result{Report: domain.RunReport{
		RunID:     "run-" + start.UTC().Format("20060102T150405.000"),
		Stages:    []domain.Stage{domain.StageIdle},
		Events:    req.Events,
		Durations: req.Durations,
		StartedAt: start,
	}}

	p.started.Store(true)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	err := p.run(ctx, req, res)

	res.Report.FinishedAt = clock.Now()
	res.Elapsed = res.Report.FinishedAt.Sub(start)
	switch {
	case err != nil:
		res.Report.Status = "failed"
		res.Report.Error = err.Error()
	case res.NoZones:
		res.Report.Status = "no_zones"
	case res.Partial():
		res.Report.Status = "partial"
	default:
		res.Report.Status = "done"
	}
	p.metrics.RunsTotal.WithLabelValues(res.Report.Status).Inc()
	p.logger.Info("processing completed", "status", res.Report.Status, "elapsed", domain.FormatElapsed(res.Elapsed))

	for _, n := range p.notifiers {
		if nerr := n.Notify(ctx, res.Report); nerr != nil {
			p.logger.Warn("publish run report failed", "error", nerr)
		}
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, req domain.Request, res *Result) error {
	if err := p.limits.Validate(req); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	gridsDir := filepath.Join(req.BaseDir, domain.GridsDir)
	mosaicDir := filepath.Join(req.BaseDir, domain.MosaicDir)

	var zones []string
	err := p.stage("zones", func() error {
		var err error
		zones, err = p.zones.FindZones(req.ZoneIndexPath, req.ProjectAreaPath)
		return err
	})
	if err != nil {
		return fmt.Errorf("pipeline: zone stage: %w", err)
	}
	res.Report.Zones = zones
	p.advance(res, domain.StageZonesResolved)
	if len(zones) == 0 {
		p.logger.Warn("project area intersects no Atlas 14 zone; nothing to fetch")
		res.NoZones = true
		p.advance(res, domain.StageDone)
		return nil
	}
	p.logger.Info("zones resolved", "zones", zones)

	tasks := fetch.BuildTasks(zones, req.Events, req.Durations, req.WantsConfidence(), gridsDir)
	err = p.stage("fetch", func() error {
		var err error
		res.Fetch, err = p.fetcher.FetchAll(ctx, tasks)
		return err
	})
	if err != nil {
		return fmt.Errorf("pipeline: fetch stage: %w", err)
	}
	p.advance(res, domain.StageGridsFetched)
	res.Report.OutputDir = gridsDir

	if len(zones) > 1 {
		var sum mosaic.Summary
		err = p.stage("mosaic", func() error {
			var err error
			sum, err = p.mosaicker.Run(ctx, gridsDir, mosaicDir, req.Events, req.Durations)
			return err
		})
		if err != nil && (len(sum.Failed) == 0 || ctx.Err() != nil) {
			return fmt.Errorf("pipeline: mosaic stage: %w", err)
		}
		if err != nil {
			p.logger.Warn("mosaic stage finished with failed groups", "failed", len(sum.Failed), "error", err)
		}
		res.Mosaic = &sum
		res.Report.OutputDir = mosaicDir
		p.advance(res, domain.StageMosaicked)
	}

	if req.WantsConfidence() {
		var sum confidence.Summary
		_ = p.stage("confidence", func() error {
			sum = p.bounds.Run(res.Report.OutputDir, req.Durations)
			return sum.Err()
		})
		if err := sum.Err(); err != nil {
			p.logger.Warn("confidence stage finished with failed durations", "failed", len(sum.Failed), "error", err)
		}
		res.Confidence = &sum
		p.advance(res, domain.StageConfidenceComputed)
	}

	p.advance(res, domain.StageDone)
	return nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

func (p *Pipeline) advance(res *Result, s domain.Stage) {
	res.Report.Stages = append(res.Report.Stages, s)
	p.logger.Debug("stage reached", "stage", s)
}
