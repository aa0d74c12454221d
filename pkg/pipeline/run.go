// Package pipeline sequences a tailoring run through its stages. Every
// transition returns a new Run value and is preceded by an immutable
// checkpoint on disk.
package pipeline

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Stage is a step of the run, in execution order.
type Stage string

const (
	StageInitialization   Stage = "initialization"
	StageInputPreparation Stage = "input_preparation"
	StageJDMatching       Stage = "jd_matching"
	StageWritingPolishing Stage = "writing_polishing"
	StageFactChecking     Stage = "fact_checking"
	StagePruning          Stage = "pruning"
	StageCompleted        Stage = "completed"
	StageFailed           Stage = "failed"
)

// Stages lists every stage in order.
var Stages = []Stage{
	StageInitialization,
	StageInputPreparation,
	StageJDMatching,
	StageWritingPolishing,
	StageFactChecking,
	StagePruning,
	StageCompleted,
	StageFailed,
}

func (s Stage) index() int { return slices.Index(Stages, s) }

// Critical stages fail the whole run when their producer fails.
func (s Stage) Critical() bool {
	return s == StageInputPreparation || s == StageJDMatching
}

// Terminal reports whether no further stage can follow s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Status is the overall state of a run.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

// ExitCode maps a final status to the process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusPartial:
		return 2
	default:
		return 1
	}
}

// Config is the run configuration captured at start.
type Config struct {
	MaxIterations        int           `json:"max_iterations"`
	QualityThreshold     float64       `json:"quality_threshold"`
	AIDetectionThreshold float64       `json:"ai_detection_threshold"`
	PoolSize             int           `json:"pool_size"`
	UnitTimeout          time.Duration `json:"unit_timeout"`
	TopN                 int           `json:"top_n"`
	ResumeTarget         int           `json:"resume_target"`
	CoverLetterTarget    int           `json:"cover_letter_target"`
	Agent                string        `json:"agent,omitempty"`
}

// ErrorRecord is one entry in the run's error log. Unit is empty for
// run-level errors.
type ErrorRecord struct {
	Stage   Stage     `json:"stage"`
	Unit    string    `json:"unit,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Run is a snapshot of a tailoring run. It is a value: transitions return
// a new Run and never modify the one passed in.
type Run struct {
	ID        string                    `json:"id"`
	Config    Config                    `json:"config"`
	Stage     Stage                     `json:"stage"`
	Status    Status                    `json:"status"`
	Data      map[Stage]json.RawMessage `json:"data"`
	Errors    []ErrorRecord             `json:"errors"`
	Units     []string                  `json:"units"`
	Failed    []string                  `json:"failed"`
	StartedAt time.Time                 `json:"started_at"`
	EndedAt   time.Time                 `json:"ended_at,omitzero"`
}

// Clone returns a deep copy of r.
func (r Run) Clone() Run {
	out := r
	out.Data = make(map[Stage]json.RawMessage, len(r.Data))
	for k, v := range r.Data {
		out.Data[k] = slices.Clone(v)
	}
	out.Errors = slices.Clone(r.Errors)
	out.Units = slices.Clone(r.Units)
	out.Failed = slices.Clone(r.Failed)
	return out
}

// Terminal reports whether the run has finished.
func (r Run) Terminal() bool { return r.Stage.Terminal() }

// Active returns the units that have not failed, in unit order.
func (r Run) Active() []string {
	failed := make(map[string]bool, len(r.Failed))
	for _, id := range r.Failed {
		failed[id] = true
	}
	var out []string
	for _, id := range r.Units {
		if !failed[id] {
			out = append(out, id)
		}
	}
	return out
}

// HasFailed reports whether unit id is in the failed list.
func (r Run) HasFailed(id string) bool { return slices.Contains(r.Failed, id) }

// Output decodes the output stored for stage into v.
func (r Run) Output(stage Stage, v any) error {
	raw, ok := r.Data[stage]
	if !ok {
		return fmt.Errorf("no output for stage %s", stage)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s output: %w", stage, err)
	}
	return nil
}

// Output is a typed wrapper around Run.Output.
func Output[T any](r Run, stage Stage) (T, error) {
	var v T
	err := r.Output(stage, &v)
	return v, err
}

func (r *Run) recordError(stage Stage, unit, msg string) {
	r.Errors = append(r.Errors, ErrorRecord{
		Stage:   stage,
		Unit:    unit,
		Message: msg,
		Time:    time.Now().UTC(),
	})
}

func (r *Run) markFailed(stage Stage, unit, reason string) {
	if !r.HasFailed(unit) {
		r.Failed = append(r.Failed, unit)
	}
	r.recordError(stage, unit, reason)
}

// finalStatus derives the end status from the unit outcomes.
func (r Run) finalStatus() Status {
	switch {
	case len(r.Failed) == 0:
		return StatusSuccess
	case len(r.Active()) > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Summary is the user-facing report of a run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Stage     Stage         `json:"stage"`
	Status    Status        `json:"status"`
	Processed int           `json:"processed"`
	Succeeded []string      `json:"succeeded"`
	Failed    []string      `json:"failed"`
	Errors    []ErrorRecord `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Summary reports which units succeeded and which failed, with the error
// detail recorded for each.
func (r Run) Summary() Summary {
	active := r.Active()
	end := r.EndedAt
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return Summary{
		RunID:     r.ID,
		Stage:     r.Stage,
		Status:    r.Status,
		Processed: len(active),
		Succeeded: active,
		Failed:    slices.Clone(r.Failed),
		Errors:    slices.Clone(r.Errors),
		Duration:  end.Sub(r.StartedAt),
	}
}

// UnitErrors groups the error log by unit.
func (s Summary) UnitErrors() map[string][]string {
	out := make(map[string][]string)
	for _, e := range s.Errors {
		if e.Unit != "" {
			out[e.Unit] = append(out[e.Unit], fmt.Sprintf("%s: %s", e.Stage, e.Message))
		}
	}
	return out
}

// CompletedStages returns the stages that have stored output, in order.
func (r Run) CompletedStages() []Stage {
	keys := slices.Collect(maps.Keys(r.Data))
	slices.SortFunc(keys, func(a, b Stage) int { return a.index() - b.index() })
	return keys
}
