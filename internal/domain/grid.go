package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Event is a recurrence interval in years, as encoded in HDSC file names.
type Event string

// Duration is a precipitation accumulation window, as encoded in HDSC file names.
type Duration string

// Variant selects the central estimate or one of the 90% confidence bounds.
type Variant string

const (
	VariantBase  Variant = ""
	VariantUpper Variant = "u"
	VariantLower Variant = "l"
)

// Event100 is the only recurrence interval published with confidence-bound variants.
const Event100 Event = "100"

// LegacyZone is the zone-index code of the superseded Atlas 2 region.
const LegacyZone = "Atlas2"

// Directory names under a run's base directory.
const (
	GridsDir  = "NOAA_grids"
	MosaicDir = "NOAA_grids_mosaic"
)

const (
	archiveExt = ".zip"
	rasterExt  = ".asc"
	mosaicZone = "comb"
)

// String returns "base", "upper" or "lower".
func (v Variant) String() string {
	switch v {
	case VariantUpper:
		return "upper"
	case VariantLower:
		return "lower"
	default:
		return "base"
	}
}

// VariantsFor returns the variants published for an event. Upper and lower
// bounds exist only for the 100-year event and are included only when
// confidence intervals were requested.
func VariantsFor(e Event, withConfidence bool) []Variant {
	if e == Event100 && withConfidence {
		return []Variant{VariantBase, VariantUpper, VariantLower}
	}
	return []Variant{VariantBase}
}

// GridStem builds "<zone><event>yr<duration>a<variant>", the shared stem of
// archive and raster names.
func GridStem(zone string, e Event, d Duration, v Variant) string {
	return zone + string(e) + "yr" + string(d) + "a" + string(v)
}

// MosaicName is the file name of a merged raster for one group.
func MosaicName(e Event, d Duration, v Variant) string {
	return GridStem(mosaicZone, e, d, v) + rasterExt
}

// GridPattern matches raster file names of any zone for one
// (event, duration, variant) combination. The match is anchored so that
// e.g. the 100-year pattern never picks up 1000-year files.
func GridPattern(e Event, d Duration, v Variant) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`^[a-zA-Z]+%syr%sa%s\.asc$`,
		regexp.QuoteMeta(string(e)), regexp.QuoteMeta(string(d)), regexp.QuoteMeta(string(v))))
}

// GroupPattern matches any variant of one (event, duration) pair. Mosaic
// groups are validated against it before merging.
func GroupPattern(e Event, d Duration) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`^[a-zA-Z]+%syr%sa[ul]?\.asc$`,
		regexp.QuoteMeta(string(e)), regexp.QuoteMeta(string(d))))
}

// GridTask is one remote archive to fetch and unpack into Dir.
type GridTask struct {
	Zone     string
	Event    Event
	Duration Duration
	Variant  Variant
	Dir      string
}

// ArchiveName is the remote file name, e.g. "se100yr24hau.zip".
func (t GridTask) ArchiveName() string {
	return GridStem(t.Zone, t.Event, t.Duration, t.Variant) + archiveExt
}

// RasterName is the file name the archive unpacks to, e.g. "se100yr24hau.asc".
func (t GridTask) RasterName() string {
	return GridStem(t.Zone, t.Event, t.Duration, t.Variant) + rasterExt
}

func (t GridTask) String() string {
	return t.Zone + "/" + t.ArchiveName()
}

// SortEvents orders events numerically.
func SortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		a, _ := strconv.Atoi(string(events[i]))
		b, _ := strconv.Atoi(string(events[j]))
		return a < b
	})
}

// SortDurations orders durations minutes first, then hours, each ascending.
func SortDurations(durations []Duration) {
	sort.Slice(durations, func(i, j int) bool {
		return durationMinutes(durations[i]) < durationMinutes(durations[j])
	})
}

func durationMinutes(d Duration) int {
	s := string(d)
	if len(s) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(s[:len(s)-1])
	if strings.HasSuffix(s, "h") {
		return n * 60
	}
	return n
}
