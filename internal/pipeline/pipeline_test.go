package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/noaa-grids-etl/internal/adapter/hdsc"
	"github.com/couchcryptid/noaa-grids-etl/internal/confidence"
	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
	"github.com/couchcryptid/noaa-grids-etl/internal/fetch"
	"github.com/couchcryptid/noaa-grids-etl/internal/mosaic"
	"github.com/couchcryptid/noaa-grids-etl/internal/observability"
	"github.com/couchcryptid/noaa-grids-etl/internal/pipeline"
	"github.com/couchcryptid/noaa-grids-etl/internal/raster"
)

// --- mocks ---

type mockZones struct {
	zones []string
	err   error
	calls int
}

func (m *mockZones) FindZones(_, _ string) ([]string, error) {
	m.calls++
	return m.zones, m.err
}

type mockFetcher struct {
	err   error
	tasks []domain.GridTask
	calls int
}

func (m *mockFetcher) FetchAll(_ context.Context, tasks []domain.GridTask) (fetch.Summary, error) {
	m.calls++
	m.tasks = tasks
	return fetch.Summary{Total: len(tasks), Succeeded: len(tasks)}, m.err
}

type mockMosaicker struct {
	sum   mosaic.Summary
	err   error
	calls int
}

func (m *mockMosaicker) Run(_ context.Context, _, _ string, _ []domain.Event, _ []domain.Duration) (mosaic.Summary, error) {
	m.calls++
	return m.sum, m.err
}

type mockBounds struct {
	dir   string
	calls int
}

func (m *mockBounds) Run(dir string, _ []domain.Duration) confidence.Summary {
	m.calls++
	m.dir = dir
	return confidence.Summary{}
}

type mockNotifier struct {
	mu      sync.Mutex
	reports []domain.RunReport
}

func (m *mockNotifier) Notify(_ context.Context, r domain.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validRequest(base string) domain.Request {
	return domain.Request{
		BaseDir:             base,
		ZoneIndexPath:       "zones.shp",
		ProjectAreaPath:     "area.shp",
		Events:              []domain.Event{"100"},
		Durations:           []domain.Duration{"24h"},
		ConfidenceIntervals: true,
	}
}

type fixture struct {
	zones    *mockZones
	fetcher  *mockFetcher
	mosaic   *mockMosaicker
	bounds   *mockBounds
	notifier *mockNotifier
	metrics  *observability.Metrics
	p        *pipeline.Pipeline
}

func newFixture(zones ...string) *fixture {
	f := &fixture{
		zones:    &mockZones{zones: zones},
		fetcher:  &mockFetcher{},
		mosaic:   &mockMosaicker{},
		bounds:   &mockBounds{},
		notifier: &mockNotifier{},
		metrics:  observability.NewMetricsForTesting(),
	}
	f.p = pipeline.New(domain.DefaultLimits(), f.zones, f.fetcher, f.mosaic, f.bounds,
		testLogger(), f.metrics, pipeline.WithNotifier(f.notifier))
	return f
}

// --- tests ---

func TestRun_InvalidRequestDoesNoIO(t *testing.T) {
	f := newFixture("se")
	req := validRequest(t.TempDir())
	req.Events = []domain.Event{"3"}

	res, err := f.p.Run(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, f.zones.calls)
	assert.Equal(t, 0, f.fetcher.calls)
	assert.Equal(t, []domain.Stage{domain.StageIdle}, res.Report.Stages)
	assert.Equal(t, "failed", res.Report.Status)
	require.Len(t, f.notifier.reports, 1)
	assert.Contains(t, f.notifier.reports[0].Error, "invalid recurrence intervals 3")
}

func TestRun_NoZones(t *testing.T) {
	f := newFixture()

	res, err := f.p.Run(context.Background(), validRequest(t.TempDir()))
	require.NoError(t, err)
	assert.True(t, res.NoZones)
	assert.Equal(t, 0, f.fetcher.calls)
	assert.Equal(t, []domain.Stage{domain.StageIdle, domain.StageZonesResolved, domain.StageDone}, res.Report.Stages)
	assert.Equal(t, "no_zones", res.Report.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues("no_zones")))
}

func TestRun_ZoneFailureAborts(t *testing.T) {
	f := newFixture()
	f.zones.err = fmt.Errorf("%w: zones.shp has no features", domain.ErrInvalidInput)

	_, err := f.p.Run(context.Background(), validRequest(t.TempDir()))
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "zone stage")
	assert.Equal(t, 0, f.fetcher.calls)
}

func TestRun_FetchFailureAborts(t *testing.T) {
	f := newFixture("se", "orb")
	f.fetcher.err = &domain.FetchError{Task: domain.GridTask{Zone: "orb", Event: "100", Duration: "24h"}, Attempts: 3, Err: errors.New("404")}

	res, err := f.p.Run(context.Background(), validRequest(t.TempDir()))
	require.ErrorIs(t, err, domain.ErrFetchExhausted)
	assert.Contains(t, err.Error(), "pipeline: fetch stage")
	assert.Contains(t, err.Error(), "orb/orb100yr24ha.zip")
	assert.Equal(t, 0, f.mosaic.calls)
	assert.Equal(t, 0, f.bounds.calls)
	assert.Equal(t, []domain.Stage{domain.StageIdle, domain.StageZonesResolved}, res.Report.Stages)
}

func TestRun_SingleZoneSkipsMosaic(t *testing.T) {
	base := t.TempDir()
	f := newFixture("se")

	res, err := f.p.Run(context.Background(), validRequest(base))
	require.NoError(t, err)

	assert.Equal(t, 0, f.mosaic.calls)
	assert.Equal(t, 1, f.bounds.calls)
	assert.Equal(t, filepath.Join(base, domain.GridsDir), f.bounds.dir)
	assert.Equal(t, filepath.Join(base, domain.GridsDir), res.Report.OutputDir)
	assert.Len(t, f.fetcher.tasks, 3)
	assert.Equal(t, []domain.Stage{
		domain.StageIdle, domain.StageZonesResolved, domain.StageGridsFetched,
		domain.StageConfidenceComputed, domain.StageDone,
	}, res.Report.Stages)
}

func TestRun_MultipleZonesMosaicThenConfidence(t *testing.T) {
	base := t.TempDir()
	f := newFixture("orb", "se")

	res, err := f.p.Run(context.Background(), validRequest(base))
	require.NoError(t, err)

	assert.Equal(t, 1, f.mosaic.calls)
	assert.Equal(t, filepath.Join(base, domain.MosaicDir), f.bounds.dir)
	assert.Equal(t, "done", res.Report.Status)
	assert.Equal(t, []domain.Stage{
		domain.StageIdle, domain.StageZonesResolved, domain.StageGridsFetched,
		domain.StageMosaicked, domain.StageConfidenceComputed, domain.StageDone,
	}, res.Report.Stages)
}

func TestRun_NoConfidenceWithoutEvent100(t *testing.T) {
	f := newFixture("se", "orb")
	req := validRequest(t.TempDir())
	req.Events = []domain.Event{"10"}

	_, err := f.p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, f.bounds.calls)
	assert.Len(t, f.fetcher.tasks, 2)
}

func TestRun_MosaicGroupFailureContained(t *testing.T) {
	f := newFixture("se", "orb")
	ge := &domain.GroupError{Event: "100", Duration: "24h", Variant: domain.VariantUpper, Err: domain.ErrPatternMismatch}
	f.mosaic.sum = mosaic.Summary{Groups: 3, Failed: []*domain.GroupError{ge}}
	f.mosaic.err = ge

	res, err := f.p.Run(context.Background(), validRequest(t.TempDir()))
	require.NoError(t, err)
	assert.True(t, res.Partial())
	assert.Equal(t, "partial", res.Report.Status)
	assert.Equal(t, 1, f.bounds.calls)
}

func TestRun_MosaicStructuralFailureAborts(t *testing.T) {
	f := newFixture("se", "orb")
	f.mosaic.err = errors.New("list NOAA_grids: permission denied")

	_, err := f.p.Run(context.Background(), validRequest(t.TempDir()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: mosaic stage")
	assert.Equal(t, 0, f.bounds.calls)
}

func TestRun_ReportTiming(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	f := newFixture()
	res, err := f.p.Run(context.Background(), validRequest(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, "run-20260301T120000.000", res.Report.RunID)
	assert.Equal(t, "0h 0m 0.00s", res.Report.Elapsed())
	require.NoError(t, f.p.CheckReadiness(context.Background()))
}

func TestCheckReadiness_BeforeRun(t *testing.T) {
	require.Error(t, newFixture().p.CheckReadiness(context.Background()))
}

// --- end to end ---

// gridServer serves zip archives holding a 1x2 ASCII grid. Zone "orb" sits
// one cell west of "se" so the two overlap on one column.
func gridServer(t *testing.T) *httptest.Server {
	t.Helper()
	west := map[string]float64{"se": -90, "orb": -91}
	values := map[string][2]float64{"a": {1000, 1100}, "au": {1300, 1400}, "al": {700, 800}}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zone, archive := path.Split(strings.TrimPrefix(r.URL.Path, "/"))
		zone = strings.TrimSuffix(zone, "/")
		x0, ok := west[zone]
		if !ok {
			http.NotFound(w, r)
			return
		}
		stem := strings.TrimSuffix(archive, ".zip")
		suffix := stem[strings.LastIndex(stem, "yr24h")+len("yr24h"):]
		v, ok := values[suffix]
		if !ok {
			http.NotFound(w, r)
			return
		}

		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		fw, err := zw.Create(stem + ".asc")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(fw, "ncols 2\nnrows 1\nxllcorner %g\nyllcorner 34\ncellsize 1\nNODATA_value -9\n%g %g\n", x0, v[0], v[1])
		if err := zw.Close(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(buf.Bytes())
	}))
}

func ascFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.asc"))
	require.NoError(t, err)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	sort.Strings(names)
	return names
}

func TestRun_EndToEnd(t *testing.T) {
	srv := gridServer(t)
	defer srv.Close()

	base := t.TempDir()
	logger := testLogger()
	metrics := observability.NewMetricsForTesting()
	limits := domain.DefaultLimits()
	limits.BackoffBase = 0
	limits.MosaicWorkers = 2

	client := hdsc.NewClient(srv.URL, limits, metrics, logger)
	p := pipeline.New(limits,
		&mockZones{zones: []string{"orb", "se"}},
		fetch.New(client, limits, metrics, logger),
		mosaic.New(limits, metrics, logger),
		confidence.NewEngine(metrics, logger),
		logger, metrics)

	res, err := p.Run(context.Background(), validRequest(base))
	require.NoError(t, err)
	assert.Equal(t, "done", res.Report.Status)
	assert.False(t, res.Partial())

	wantGrids := []string{
		"orb100yr24ha.asc", "orb100yr24hal.asc", "orb100yr24hau.asc",
		"se100yr24ha.asc", "se100yr24hal.asc", "se100yr24hau.asc",
	}
	if diff := cmp.Diff(wantGrids, ascFiles(t, filepath.Join(base, domain.GridsDir))); diff != "" {
		t.Errorf("NOAA_grids mismatch (-want +got):\n%s", diff)
	}
	wantMosaic := []string{
		"comb100yr24ha.asc", "comb100yr24ha_minus.asc", "comb100yr24ha_plus.asc",
		"comb100yr24hal.asc", "comb100yr24hau.asc",
	}
	if diff := cmp.Diff(wantMosaic, ascFiles(t, filepath.Join(base, domain.MosaicDir))); diff != "" {
		t.Errorf("NOAA_grids_mosaic mismatch (-want +got):\n%s", diff)
	}

	zips, err := filepath.Glob(filepath.Join(base, domain.GridsDir, "*.zip"))
	require.NoError(t, err)
	assert.Empty(t, zips, "archives are removed after extraction")

	comb, err := raster.Read(filepath.Join(base, domain.MosaicDir, "comb100yr24ha.asc"))
	require.NoError(t, err)
	// orb covers [-91,-89), se covers [-90,-88); the shared column takes the max.
	assert.Equal(t, []float64{1000, 1100, 1100}, comb.Data)

	plus, err := raster.Read(filepath.Join(base, domain.MosaicDir, "comb100yr24ha_plus.asc"))
	require.NoError(t, err)
	minus, err := raster.Read(filepath.Join(base, domain.MosaicDir, "comb100yr24ha_minus.asc"))
	require.NoError(t, err)
	for i, b := range comb.Data {
		assert.Greater(t, plus.Data[i], b)
		assert.Less(t, minus.Data[i], b)
	}

	_, err = os.Stat(filepath.Join(base, domain.MosaicDir))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, domain.MosaicDir), res.Report.OutputDir)
}
