// Command noaagrids downloads NOAA Atlas 14 precipitation-frequency grids for
// every zone a project area touches, composites multi-zone grids and derives
// 100-year confidence bounds.
//
// Usage:
//
//	go run ./cmd/noaagrids \
//	  -base-dir ./out \
//	  -zone-index data/NOAA_Atlas_14_CVs.shp \
//	  -area data/project.shp \
//	  -events "2 10 100" -durations all -ci
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/noaa-grids-etl/internal/adapter/http"
	"github.com/couchcryptid/noaa-grids-etl/internal/adapter/hdsc"
	kafkaadapter "github.com/couchcryptid/noaa-grids-etl/internal/adapter/kafka"
	"github.com/couchcryptid/noaa-grids-etl/internal/confidence"
	"github.com/couchcryptid/noaa-grids-etl/internal/config"
	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
	"github.com/couchcryptid/noaa-grids-etl/internal/fetch"
	"github.com/couchcryptid/noaa-grids-etl/internal/mosaic"
	"github.com/couchcryptid/noaa-grids-etl/internal/observability"
	"github.com/couchcryptid/noaa-grids-etl/internal/pipeline"
	"github.com/couchcryptid/noaa-grids-etl/internal/zones"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitPartial = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// options are the command-line inputs of one run.
type options struct {
	req     domain.Request
	logFile string
}

func parseArgs(args []string, limits domain.Limits, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("noaagrids", flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseDir := fs.String("base-dir", ".", "directory receiving NOAA_grids and NOAA_grids_mosaic")
	zoneIndex := fs.String("zone-index", "", "zone-index shapefile (.shp) with the NOAA14_cd attribute")
	area := fs.String("area", "", "project-area shapefile (.shp)")
	events := fs.String("events", "", `recurrence intervals in years, e.g. "2 10 100" or "all"`)
	durations := fs.String("durations", "", `storm durations, e.g. "06h,24h" or "all"`)
	ci := fs.Bool("ci", false, "derive 16th/84th percentile bounds for the 100-year event")
	logFile := fs.String("log-file", "", "also append logs to this file")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if *zoneIndex == "" || *area == "" {
		fs.Usage()
		return options{}, fmt.Errorf("%w: -zone-index and -area are required", domain.ErrInvalidInput)
	}

	return options{
		req: domain.Request{
			BaseDir:             *baseDir,
			ZoneIndexPath:       *zoneIndex,
			ProjectAreaPath:     *area,
			Events:              limits.ParseEvents(*events),
			Durations:           limits.ParseDurations(*durations),
			ConfidenceIntervals: *ci,
		},
		logFile: *logFile,
	}, nil
}

func run(args []string) int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFailed
	}
	limits := cfg.Limits()

	opts, err := parseArgs(args, limits, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	var logOut io.Writer = os.Stdout
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open log file:", err)
			return exitFailed
		}
		defer f.Close()
		logOut = io.MultiWriter(os.Stdout, f)
	}

	logger := observability.NewLogger(cfg, logOut)
	metrics := observability.NewMetrics()

	resolver, err := zones.NewResolver(logger)
	if err != nil {
		logger.Error("failed to build zone resolver", "error", err)
		return exitFailed
	}
	finder := &zones.Finder{Reader: zones.ShapefileReader{AllowMissingSHX: cfg.AllowMissingSHX}, Resolver: resolver}
	client := hdsc.NewClient(cfg.HDSCBaseURL, limits, metrics, logger)
	fetcher := fetch.New(client, limits, metrics, logger)
	mosaicker := mosaic.New(limits, metrics, logger)
	engine := confidence.NewEngine(metrics, logger)

	var popts []pipeline.Option
	var srv *httpadapter.Server
	ready := &pipelineReadiness{}
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, ready, logger)
		popts = append(popts, pipeline.WithNotifier(srv))
	}
	if cfg.ReportingEnabled() {
		writer := kafkaadapter.NewReportWriter(cfg, logger)
		popts = append(popts, pipeline.WithNotifier(writer))
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
	}

	p := pipeline.New(limits, finder, fetcher, mosaicker, engine, logger, metrics, popts...)
	ready.p = p

	if srv != nil {
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := p.Run(ctx, opts.req)
	if err != nil {
		logger.Error("run failed", "error", err)
		if errors.Is(err, domain.ErrInvalidInput) {
			return exitUsage
		}
		return exitFailed
	}

	fmt.Printf("Processing completed in %s\n", domain.FormatElapsed(res.Elapsed))
	if res.NoZones {
		fmt.Println("The project area does not intersect any Atlas 14 zone; no grids were downloaded.")
		return exitOK
	}
	fmt.Printf("Grids written to %s\n", res.Report.OutputDir)
	if res.Partial() {
		return exitPartial
	}
	return exitOK
}

// pipelineReadiness defers to the pipeline once it has been built.
type pipelineReadiness struct {
	p *pipeline.Pipeline
}

func (r *pipelineReadiness) CheckReadiness(ctx context.Context) error {
	if r.p == nil {
		return errors.New("pipeline not built")
	}
	return r.p.CheckReadiness(ctx)
}
