package confidence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/noaa-grids-etl/internal/domain"
	"github.com/couchcryptid/noaa-grids-etl/internal/observability"
	"github.com/couchcryptid/noaa-grids-etl/internal/raster"
)

// Status classifies a Locate result.
type Status int

const (
	// Found means exactly one base, upper and lower raster exist.
	Found Status = iota
	// NotFound means at least one of the three is absent.
	NotFound
	// Invalid means a role matched more than one raster.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "invalid"
	}
}

// Lookup is the result of locating the 100-year triple for one duration.
type Lookup struct {
	Duration domain.Duration
	Status   Status
	Base     string
	Upper    string
	Lower    string
	Reason   string
}

// Locate finds the 100-year base, upper and lower rasters for duration in dir.
func Locate(dir string, duration domain.Duration) (Lookup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Lookup{}, fmt.Errorf("list %s: %w", dir, err)
	}

	res := Lookup{Duration: duration, Status: Found}
	roles := []struct {
		variant domain.Variant
		dst     *string
	}{
		{domain.VariantBase, &res.Base},
		{domain.VariantUpper, &res.Upper},
		{domain.VariantLower, &res.Lower},
	}
	var missing, ambiguous []string
	for _, role := range roles {
		pattern := domain.GridPattern(domain.Event100, duration, role.variant)
		var matches []string
		for _, e := range entries {
			if e.Type().IsRegular() && pattern.MatchString(e.Name()) {
				matches = append(matches, e.Name())
			}
		}
		switch len(matches) {
		case 0:
			missing = append(missing, role.variant.String())
		case 1:
			*role.dst = filepath.Join(dir, matches[0])
		default:
			sort.Strings(matches)
			ambiguous = append(ambiguous, fmt.Sprintf("%s (%s)", role.variant, strings.Join(matches, ", ")))
		}
	}

	switch {
	case len(ambiguous) > 0:
		res.Status = Invalid
		res.Reason = "multiple rasters for " + strings.Join(ambiguous, "; ")
	case len(missing) > 0:
		res.Status = NotFound
		res.Reason = "missing " + strings.Join(missing, ", ")
	}
	return res, nil
}

// Summary reports the outcome of a confidence stage.
type Summary struct {
	Written []string
	Skipped []domain.Duration
	Failed  []*domain.DurationError
}

// Err joins the per-duration failures, nil when none failed.
func (s Summary) Err() error {
	errs := make([]error, len(s.Failed))
	for i, f := range s.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Engine computes bounds for each requested duration in turn.
type Engine struct {
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{metrics: metrics, logger: logger}
}

// Run processes durations sequentially against the rasters in dir. A
// duration with missing inputs is skipped with a warning; a failed
// duration is recorded and does not stop the rest.
func (e *Engine) Run(dir string, durations []domain.Duration) Summary {
	var sum Summary
	for _, d := range durations {
		plus, minus, err := e.runDuration(dir, d)
		switch {
		case errors.Is(err, domain.ErrMissingData):
			e.metrics.ConfidenceDurations.WithLabelValues("skipped").Inc()
			e.logger.Warn("missing files for duration", "duration", d, "error", err)
			sum.Skipped = append(sum.Skipped, d)
		case err != nil:
			e.metrics.ConfidenceDurations.WithLabelValues("failed").Inc()
			e.logger.Error("confidence bounds failed", "duration", d, "error", err)
			sum.Failed = append(sum.Failed, &domain.DurationError{Duration: d, Err: err})
		default:
			e.metrics.ConfidenceDurations.WithLabelValues("written").Inc()
			e.logger.Info("confidence bounds written", "duration", d,
				"plus", filepath.Base(plus), "minus", filepath.Base(minus))
			sum.Written = append(sum.Written, plus, minus)
		}
	}
	return sum
}

func (e *Engine) runDuration(dir string, d domain.Duration) (plusPath, minusPath string, err error) {
	lookup, err := Locate(dir, d)
	if err != nil {
		return "", "", err
	}
	switch lookup.Status {
	case NotFound:
		return "", "", fmt.Errorf("%w: %s", domain.ErrMissingData, lookup.Reason)
	case Invalid:
		return "", "", fmt.Errorf("%w: %s", domain.ErrPreconditionMismatch, lookup.Reason)
	}

	base, err := raster.Read(lookup.Base)
	if err != nil {
		return "", "", err
	}
	upper, err := raster.Read(lookup.Upper)
	if err != nil {
		return "", "", err
	}
	lower, err := raster.Read(lookup.Lower)
	if err != nil {
		return "", "", err
	}

	plus, minus, err := ComputeBounds(base, upper, lower)
	if err != nil {
		return "", "", err
	}

	stem := strings.TrimSuffix(lookup.Base, filepath.Ext(lookup.Base))
	plusPath, minusPath = stem+"_plus.asc", stem+"_minus.asc"
	if err := raster.Write(plusPath, plus); err != nil {
		return "", "", err
	}
	if err := raster.Write(minusPath, minus); err != nil {
		return "", "", err
	}
	return plusPath, minusPath, nil
}
