// Package output renders per-record status lines and run reports.
package output

import (
	"time"

	"github.com/ccollicutt/trafficlog/pkg/ingest"
	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// Report is the complete run output.
type Report struct {
	// Summary provides aggregate statistics.
	Summary Summary `json:"summary"`

	// Malformed holds the first malformed lines seen.
	Malformed []*telemetry.MalformedError `json:"malformed,omitempty"`

	// Metadata provides context about the run.
	Metadata Metadata `json:"metadata"`
}

// Summary provides aggregate statistics.
type Summary struct {
	LinesRead    int `json:"lines_read"`
	Records      int `json:"records"`
	SpeedEvents  int `json:"speed_events"`
	CountEvents  int `json:"count_events"`
	Snapshots    int `json:"snapshots"`
	Ignored      int `json:"ignored"`
	Malformed    int `json:"malformed"`
	SinkFailures int `json:"sink_failures"`

	// PendingDiscarded is set when an announcement was still waiting for its data line
	// at the end of the run or of a capture file.
	PendingDiscarded bool `json:"pending_discarded"`
}

// Metadata provides context about the run.
type Metadata struct {
	// RunID identifies the run in logs and webhook payloads.
	RunID string `json:"run_id"`

	// ConfigFile is the path to the configuration file used.
	ConfigFile string `json:"config_file,omitempty"`

	// Sources lists the transport or capture files that were read.
	Sources []string `json:"sources"`

	// StartedAt is when ingestion began.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the run took.
	Duration time.Duration `json:"duration"`
}

// NewReport creates a Report from ingestion stats.
func NewReport(stats *ingest.Stats, runID, configFile string, sources []string) *Report {
	return &Report{
		Summary: Summary{
			LinesRead:        stats.LinesRead,
			Records:          stats.Records(),
			SpeedEvents:      stats.SpeedEvents,
			CountEvents:      stats.CountEvents,
			Snapshots:        stats.Snapshots,
			Ignored:          stats.Ignored,
			Malformed:        stats.Malformed,
			SinkFailures:     stats.SinkFailures,
			PendingDiscarded: stats.PendingDiscarded,
		},
		Malformed: stats.MalformedSamples,
		Metadata: Metadata{
			RunID:      runID,
			ConfigFile: configFile,
			Sources:    sources,
			StartedAt:  stats.StartTime,
			Duration:   stats.Duration(),
		},
	}
}

// HasIssues returns true if malformed lines or sink failures were seen.
func (r *Report) HasIssues() bool {
	return r.Summary.Malformed > 0 || r.Summary.SinkFailures > 0
}
