package domain

import (
	"fmt"
	"time"
)

// Stage names a pipeline state.
type Stage string

const (
	StageIdle               Stage = "idle"
	StageZonesResolved      Stage = "zones_resolved"
	StageGridsFetched       Stage = "grids_fetched"
	StageMosaicked          Stage = "mosaicked"
	StageConfidenceComputed Stage = "confidence_computed"
	StageDone               Stage = "done"
)

// RunReport is the final status handed back to the front end and published
// to the report topic.
type RunReport struct {
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"` // done, partial, no_zones or failed
	Stages     []Stage    `json:"stages"`
	Zones      []string   `json:"zones"`
	Events     []Event    `json:"events"`
	Durations  []Duration `json:"durations"`
	OutputDir  string     `json:"output_dir,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Elapsed formats the run duration as "1h 2m 3.45s".
func (r RunReport) Elapsed() string {
	return FormatElapsed(r.FinishedAt.Sub(r.StartedAt))
}

// FormatElapsed renders d as hours, minutes and seconds rounded to hundredths.
func FormatElapsed(d time.Duration) string {
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	return fmt.Sprintf("%dh %dm %.2fs", h, m, d.Seconds())
}
