// Package mosaic merges the per-zone rasters of each (event, duration,
// variant) group into one composite covering all zones.
package mosaic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
	"github.com/couchcryptid/noaa-grids-etl/internal/observability"
	"github.com/couchcryptid/noaa-grids-etl/internal/raster"
	"github.com/couchcryptid/noaa-grids-etl/internal/worker"
)

// Group is a set of per-zone rasters sharing event, duration and variant.
type Group struct {
	Event    domain.Event
	Duration domain.Duration
	Variant  domain.Variant
	Files    []string
}

// OutputName is the composite file name for the group.
func (g Group) OutputName() string {
	return domain.MosaicName(g.Event, g.Duration, g.Variant)
}

// Groups lists dir and returns every group with at least two rasters, in
// event, duration, variant order. Groups with fewer files are skipped.
func Groups(dir string, events []domain.Event, durations []domain.Duration) ([]Group, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var groups []Group
	for _, e := range events {
		for _, d := range durations {
			for _, v := range domain.VariantsFor(e, true) {
				g := Group{Event: e, Duration: d, Variant: v}
				pattern := domain.GridPattern(e, d, v)
				for _, name := range names {
					if name == g.OutputName() || !pattern.MatchString(name) {
						continue
					}
					g.Files = append(g.Files, filepath.Join(dir, name))
				}
				if len(g.Files) < 2 {
					continue
				}
				groups = append(groups, g)
			}
		}
	}
	return groups, nil
}

// Summary reports the outcome of a mosaic stage.
type Summary struct {
	Groups  int
	Written []string
	Failed  []*domain.GroupError
}

// Mosaicker composites groups on a CPU-sized worker pool.
type Mosaicker struct {
	pool    *worker.Pool
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Mosaicker with limits.MosaicWorkers workers.
func New(limits domain.Limits, metrics *observability.Metrics, logger *slog.Logger) *Mosaicker {
	return &Mosaicker{
		pool:    worker.NewPool("mosaic", limits.MosaicWorkers, logger),
		metrics: metrics,
		logger:  logger,
	}
}

// Run mosaics every group found in srcDir into outDir. A failing group is
// logged and reported without stopping the others; the returned error joins
// every *domain.GroupError.
func (m *Mosaicker) Run(ctx context.Context, srcDir, outDir string, events []domain.Event, durations []domain.Duration) (Summary, error) {
	groups, err := Groups(srcDir, events, durations)
	if err != nil {
		return Summary{}, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create %s: %w", outDir, err)
	}
	m.logger.Info("mosaicking groups", "groups", len(groups), "workers", m.pool.Size())

	sum := Summary{Groups: len(groups)}
	var mu sync.Mutex
	tasks := make([]worker.Task, len(groups))
	for i, g := range groups {
		tasks[i] = func(ctx context.Context) error {
			out, err := m.MosaicGroup(g, outDir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var ge *domain.GroupError
				if errors.As(err, &ge) {
					sum.Failed = append(sum.Failed, ge)
				}
				return err
			}
			sum.Written = append(sum.Written, out)
			return nil
		}
	}
	err = m.pool.Run(ctx, tasks)
	sort.Strings(sum.Written)
	return sum, err
}

// MosaicGroup merges one group and writes the composite into outDir. Groups
// built by Groups already match the naming pattern; the per-file name check
// here covers groups assembled by other callers. Every input must share
// resolution and reference system with the first; a file that does not is
// named in the ErrPatternMismatch error.
func (m *Mosaicker) MosaicGroup(g Group, outDir string) (string, error) {
	out := filepath.Join(outDir, g.OutputName())
	if err := m.mosaic(g, out); err != nil {
		m.metrics.MosaicGroups.WithLabelValues("failed").Inc()
		m.logger.Error("mosaic failed", "event", g.Event, "duration", g.Duration,
			"variant", g.Variant.String(), "error", err)
		return "", &domain.GroupError{Event: g.Event, Duration: g.Duration, Variant: g.Variant, Err: err}
	}
	m.metrics.MosaicGroups.WithLabelValues("written").Inc()
	m.logger.Info("mosaic written", "file", filepath.Base(out), "inputs", len(g.Files))
	return out, nil
}

func (m *Mosaicker) mosaic(g Group, out string) error {
	pattern := domain.GridPattern(g.Event, g.Duration, g.Variant)

	files := make([]*raster.File, 0, len(g.Files))
	defer func() {
		for _, f := range files {
			if err := f.Close(); err != nil {
				m.logger.Warn("close raster", "file", filepath.Base(f.Path()), "error", err)
			}
		}
	}()

	for _, path := range g.Files {
		if name := filepath.Base(path); !pattern.MatchString(name) {
			return fmt.Errorf("%w: %s does not match %s", domain.ErrPatternMismatch, name, pattern)
		}
		f, err := raster.Open(path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	grids := make([]*raster.Grid, 0, len(files))
	for _, f := range files {
		grid, err := f.ReadGrid()
		if err != nil {
			return err
		}
		if len(grids) > 0 {
			if err := grids[0].Conforms(grid); err != nil {
				return fmt.Errorf("%w: %s: %v", domain.ErrPatternMismatch, filepath.Base(f.Path()), err)
			}
		}
		grids = append(grids, grid)
	}

	merged, err := raster.MergeMax(grids)
	if err != nil {
		if errors.Is(err, raster.ErrIncompatible) {
			return fmt.Errorf("%w: %v", domain.ErrPatternMismatch, err)
		}
		return err
	}
	return raster.Write(out, merged)
}
