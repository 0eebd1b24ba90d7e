// Package export runs export jobs: validation, narration synthesis, graph
// construction, encoding and delivery of the final file.
package export

import (
	"time"

	"github.com/voxreel/voxreel-agent/internal/cloud"
	"github.com/voxreel/voxreel-agent/internal/config"
)

// Stage is a step of the export pipeline.
type Stage string

const (
	StageValidating    Stage = "validating"
	StagePreprocessing Stage = "preprocessing"
	StageGraphBuilding Stage = "graph_building"
	StageEncoding      Stage = "encoding"
	StageFinalizing    Stage = "finalizing"
	StageCompleted     Stage = "completed"
	StageFailed        Stage = "failed"
	StageCancelled     Stage = "cancelled"
)

// IsTerminal reports whether no further transitions follow s.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// band is the overall percent range a stage reports within.
type band struct{ from, to float64 }

var stageBands = map[Stage]band{
	StageValidating:    {0, 5},
	StagePreprocessing: {5, 30},
	StageGraphBuilding: {30, 35},
	StageEncoding:      {35, 95},
	StageFinalizing:    {95, 100},
	StageCompleted:     {100, 100},
}

// percent maps progress within a stage (0..1) to overall percent.
func (s Stage) percent(fraction float64) float64 {
	b, ok := stageBands[s]
	if !ok {
		return 0
	}
	fraction = min(1, max(0, fraction))
	return b.from + (b.to-b.from)*fraction
}

const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Failure reasons recorded on failed jobs.
const (
	ReasonValidation    = "validation"
	ReasonPreprocessing = "preprocessing"
	ReasonGraph         = "graph_building"
	ReasonEncoding      = "encoding"
	ReasonFinalizing    = "finalizing"
	ReasonInterrupted   = "interrupted"
)

// Job is the persisted record of one export.
type Job struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Status      string     `json:"status"`
	Stage       Stage      `json:"stage"`
	Progress    int        `json:"progress"`
	Preset      string     `json:"preset"`
	OutputPath  string     `json:"output_path"`
	Reason      string     `json:"reason,omitempty"`
	Error       string     `json:"error,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Level grades an event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is a progress notification for subscribers.
type Event struct {
	JobID      string    `json:"job_id"`
	Stage      Stage     `json:"stage"`
	Message    string    `json:"message"`
	Percent    float64   `json:"percent"`
	ETASeconds float64   `json:"eta_seconds,omitempty"`
	Level      Level     `json:"level"`
	OutputPath string    `json:"output_path,omitempty"`
	Time       time.Time `json:"time"`
}

// Terminal reports whether the event ends the job's stream.
func (e Event) Terminal() bool {
	return e.Stage.IsTerminal()
}

// Options configure one export.
type Options struct {
	// Preset selects encode quality; empty uses the configured default.
	Preset config.Preset
	// OutputPath is the final file. Empty writes
	// <exports dir>/<project name>-<job>.mp4.
	OutputPath string
	// Captions burns narration captions into the video.
	Captions     bool
	CaptionStyle cloud.CaptionStyle
	// BestEffort overrides the configured skip-on-failure behavior.
	BestEffort *bool
}
