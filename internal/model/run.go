// Package model holds the run history records shared by the pipeline,
// the store and the HTTP API.
package model

import (
	"time"

	"github.com/sells-group/readmit-dqi/internal/audit"
	"github.com/sells-group/readmit-dqi/internal/remediate"
	"github.com/sells-group/readmit-dqi/internal/validate"
)

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusAuditing    RunStatus = "auditing"
	RunStatusRemediating RunStatus = "remediating"
	RunStatusValidating  RunStatus = "validating"
	RunStatusExporting   RunStatus = "exporting"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Terminal reports whether a run in this status will not change again.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// ErrorCategory classifies why a run failed.
type ErrorCategory string

const (
	ErrorSourceNotFound   ErrorCategory = "source_not_found"
	ErrorParse            ErrorCategory = "parse_error"
	ErrorInsufficientData ErrorCategory = "insufficient_data"
	ErrorInternal         ErrorCategory = "internal"
)

// RunError records a failed run.
type RunError struct {
	Message     string        `json:"message"`
	Category    ErrorCategory `json:"category"`
	FailedPhase string        `json:"failed_phase,omitempty"`
}

// Run represents a single audit and remediation run over one source.
type Run struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     *RunError  `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Artifact is a file or table a run produced.
type Artifact struct {
	Kind string `json:"kind"` // csv, parquet, postgres, report, plot
	Path string `json:"path"`
}

// RunResult holds the outcome of a run. The audit fields are filled as
// soon as scoring finishes, so a run that fails later keeps them.
type RunResult struct {
	Source        string                 `json:"source"`
	RawRows       int                    `json:"raw_rows"`
	RawDuplicates int                    `json:"raw_duplicates"`
	Rows          int                    `json:"rows"`
	BaselineDQI   float64                `json:"baseline_dqi"`
	DQI           audit.DQIComponents    `json:"dqi"`
	Profile       *audit.ClinicalProfile `json:"profile,omitempty"`
	Clean         *audit.CleanReport     `json:"clean,omitempty"`
	Remediation   *remediate.Metadata    `json:"remediation,omitempty"`
	Validation    []validate.Result      `json:"validation,omitempty"`
	Artifacts     []Artifact             `json:"artifacts,omitempty"`
	Phases        []PhaseResult          `json:"phases"`
	DurationMs    int64                  `json:"duration_ms"`
}

// RunPhase represents a phase within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
