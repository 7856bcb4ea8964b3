package domain

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Request is one pipeline run as collected by a front end.
type Request struct {
	BaseDir             string
	ZoneIndexPath       string
	ProjectAreaPath     string
	Events              []Event
	Durations           []Duration
	ConfidenceIntervals bool
}

// WantsConfidence reports whether the run derives 100-year confidence bounds.
func (r Request) WantsConfidence() bool {
	if !r.ConfidenceIntervals {
		return false
	}
	for _, e := range r.Events {
		if e == Event100 {
			return true
		}
	}
	return false
}

// Limits is the fixed run configuration handed to each component at
// construction. It is never mutated after Load.
type Limits struct {
	ValidEvents    []Event
	ValidDurations []Duration

	MaxAttempts    int
	RequestTimeout time.Duration
	BackoffBase    time.Duration
	ChunkSize      int
	FetchWorkers   int
	MosaicWorkers  int
}

// DefaultLimits returns the HDSC enumerations and the conservative fetch
// settings used against the public server.
func DefaultLimits() Limits {
	return Limits{
		ValidEvents:    []Event{"1", "2", "5", "10", "25", "50", "100", "200", "500", "1000"},
		ValidDurations: []Duration{"05m", "10m", "15m", "30m", "60m", "02h", "03h", "06h", "12h", "24h"},
		MaxAttempts:    3,
		RequestTimeout: 30 * time.Second,
		BackoffBase:    time.Second,
		ChunkSize:      1 << 20,
		FetchWorkers:   4,
		MosaicWorkers:  runtime.NumCPU(),
	}
}

// Validate checks that every requested event and duration belongs to the
// published enumerations. It performs no I/O.
func (l Limits) Validate(r Request) error {
	if len(r.Events) == 0 {
		return fmt.Errorf("%w: no recurrence intervals requested", ErrInvalidInput)
	}
	if len(r.Durations) == 0 {
		return fmt.Errorf("%w: no durations requested", ErrInvalidInput)
	}
	if bad := missing(r.Events, l.ValidEvents); len(bad) > 0 {
		return fmt.Errorf("%w: invalid recurrence intervals %s; valid options are %s",
			ErrInvalidInput, join(bad), join(l.ValidEvents))
	}
	if bad := missing(r.Durations, l.ValidDurations); len(bad) > 0 {
		return fmt.Errorf("%w: invalid durations %s; valid options are %s",
			ErrInvalidInput, join(bad), join(l.ValidDurations))
	}
	return nil
}

// ParseEvents splits a whitespace or comma separated list. "all" expands to
// every valid event in numeric order.
func (l Limits) ParseEvents(s string) []Event {
	fields := splitList(s)
	if len(fields) == 1 && strings.EqualFold(fields[0], "all") {
		out := append([]Event(nil), l.ValidEvents...)
		SortEvents(out)
		return out
	}
	out := make([]Event, 0, len(fields))
	for _, f := range fields {
		out = append(out, Event(f))
	}
	return out
}

// ParseDurations splits a whitespace or comma separated list. "all" expands
// to every valid duration, minutes before hours.
func (l Limits) ParseDurations(s string) []Duration {
	fields := splitList(s)
	if len(fields) == 1 && strings.EqualFold(fields[0], "all") {
		out := append([]Duration(nil), l.ValidDurations...)
		SortDurations(out)
		return out
	}
	out := make([]Duration, 0, len(fields))
	for _, f := range fields {
		out = append(out, Duration(strings.ToLower(f)))
	}
	return out
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

func missing[T comparable](requested, valid []T) []T {
	ok := make(map[T]bool, len(valid))
	for _, v := range valid {
		ok[v] = true
	}
	var bad []T
	for _, r := range requested {
		if !ok[r] {
			bad = append(bad, r)
		}
	}
	return bad
}

func join[T ~string](vals []T) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = string(v)
	}
	return strings.Join(s, ", ")
}
