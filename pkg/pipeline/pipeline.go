package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	clog "github.com/xrsl/tailor/pkg/log"
	"github.com/xrsl/tailor/pkg/pool"
)

var (
	// ErrTerminal is returned when advancing a run that already finished.
	ErrTerminal = errors.New("run already finished")
	// ErrStageOrder is returned for transitions that do not move forward.
	ErrStageOrder = errors.New("stage transition not allowed")
)

// UnitFailure reports one unit that failed during a stage.
type UnitFailure struct {
	Unit   string
	Reason string
}

// Outcome is what a stage producer returns.
type Outcome struct {
	// Output is stored as the stage's context data.
	Output any
	// Units, when non-nil, replaces the run's unit set (for example the
	// postings selected by matching).
	Units []string
	// Failures lists units that failed in this stage.
	Failures []UnitFailure
}

// Producer does the work of one stage. It receives a copy of the run and
// must not retain it.
type Producer func(ctx context.Context, run Run) (Outcome, error)

// Failures converts pool results into unit failures. Units that were not
// admitted because the run was cancelled are reported as "cancelled".
func Failures[T any](results []pool.Result[T]) []UnitFailure {
	var out []UnitFailure
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		reason := r.Err.Error()
		if errors.Is(r.Err, pool.ErrNotAdmitted) || errors.Is(r.Err, context.Canceled) {
			reason = "cancelled"
		}
		out = append(out, UnitFailure{Unit: r.ID, Reason: reason})
	}
	return out
}

// Pipeline creates runs under a base directory and moves them through
// their stages.
type Pipeline struct {
	dir string
}

// New returns a pipeline storing runs under dir.
func New(dir string) *Pipeline {
	return &Pipeline{dir: dir}
}

// RunDir returns the directory of run id.
func (p *Pipeline) RunDir(id string) string {
	return filepath.Join(p.dir, id)
}

// Start creates a run in the initialization stage and writes its first
// checkpoint.
func (p *Pipeline) Start(ctx context.Context, cfg Config) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Config:    cfg,
		Stage:     StageInitialization,
		Status:    StatusRunning,
		Data:      map[Stage]json.RawMessage{},
		StartedAt: time.Now().UTC(),
	}
	if err := p.checkpoint(run); err != nil {
		return Run{}, err
	}
	clog.Info("run started", "run", run.ID, "dir", p.RunDir(run.ID))
	return run, nil
}

// Advance runs produce for stage and returns the run moved to stage. The
// input run is left untouched; if the checkpoint cannot be written the
// error is returned and the caller keeps the previous run.
//
// A failing producer in a critical stage fails the run. In other stages it
// fails every active unit. The run also fails once no unit is left. A
// cancelled ctx does not finalize the run; the caller checks ctx after the
// stage checkpoint and calls Cancel once its own cleanup is done.
func (p *Pipeline) Advance(ctx context.Context, run Run, stage Stage, produce Producer) (Run, error) {
	if run.Terminal() {
		return run, fmt.Errorf("advance %s to %s: %w", run.ID, stage, ErrTerminal)
	}
	if stage.Terminal() || stage.index() <= run.Stage.index() {
		return run, fmt.Errorf("%w: %s -> %s", ErrStageOrder, run.Stage, stage)
	}

	log := clog.With("run", run.ID, "stage", stage)
	log.Info("stage started", "units", len(run.Active()))
	started := time.Now()

	out, err := produce(ctx, run.Clone())

	next := run.Clone()
	next.Stage = stage
	if err != nil {
		if stage.Critical() {
			log.Error("critical stage failed", "error", err)
			return p.failOrKeep(run, next, stage, fmt.Errorf("%s: %w", stage, err))
		}
		for _, id := range next.Active() {
			next.markFailed(stage, id, err.Error())
		}
		next.recordError(stage, "", err.Error())
	} else {
		if err := p.store(&next, stage, out); err != nil {
			return run, err
		}
	}

	if len(next.Failed) > 0 {
		next.Status = StatusPartial
	}
	unitsKnown := len(next.Units) > 0 || (err == nil && out.Units != nil)
	if unitsKnown && len(next.Active()) == 0 {
		return p.failOrKeep(run, next, stage, fmt.Errorf("%s: no unit left to process", stage))
	}

	if err := p.checkpoint(next); err != nil {
		return run, err
	}
	log.Info("stage finished",
		"duration", time.Since(started).Round(time.Millisecond),
		"active", len(next.Active()),
		"failed", len(next.Failed),
	)
	return next, nil
}

// failOrKeep fails next, or returns prev when the failure cannot be
// checkpointed.
func (p *Pipeline) failOrKeep(prev, next Run, stage Stage, reason error) (Run, error) {
	failed, err := p.fail(next, stage, reason)
	if err != nil {
		return prev, err
	}
	return failed, nil
}

func (p *Pipeline) store(next *Run, stage Stage, out Outcome) error {
	if out.Output != nil {
		raw, err := json.Marshal(out.Output)
		if err != nil {
			return fmt.Errorf("encode %s output: %w", stage, err)
		}
		next.Data[stage] = raw
	}
	if out.Units != nil {
		next.Units = append([]string(nil), out.Units...)
	}
	for _, f := range out.Failures {
		next.markFailed(stage, f.Unit, f.Reason)
	}
	return nil
}

// Complete finalizes the run as SUCCESS, PARTIAL or FAILED depending on
// how many units made it through.
func (p *Pipeline) Complete(ctx context.Context, run Run) (Run, error) {
	if run.Terminal() {
		return run, fmt.Errorf("complete %s: %w", run.ID, ErrTerminal)
	}
	next := run.Clone()
	next.Status = next.finalStatus()
	if next.Status == StatusFailed {
		return p.failOrKeep(run, next, next.Stage, errors.New("no unit completed"))
	}
	next.Stage = StageCompleted
	next.EndedAt = time.Now().UTC()
	if err := p.checkpoint(next); err != nil {
		return run, err
	}
	clog.Info("run completed",
		"run", next.ID,
		"status", next.Status,
		"processed", len(next.Active()),
		"failed", len(next.Failed),
	)
	return next, nil
}

// Fail moves the run to FAILED, recording reason.
func (p *Pipeline) Fail(ctx context.Context, run Run, reason error) (Run, error) {
	if run.Terminal() {
		return run, fmt.Errorf("fail %s: %w", run.ID, ErrTerminal)
	}
	return p.failOrKeep(run, run.Clone(), run.Stage, reason)
}

func (p *Pipeline) fail(next Run, stage Stage, reason error) (Run, error) {
	next.recordError(stage, "", reason.Error())
	next.Stage = StageFailed
	next.Status = StatusFailed
	next.EndedAt = time.Now().UTC()
	if err := p.checkpoint(next); err != nil {
		return Run{}, err
	}
	clog.Error("run failed", "run", next.ID, "stage", stage, "error", reason)
	return next, nil
}

// Cancel finalizes a run whose context was cancelled. The remaining stages
// are skipped; the run ends PARTIAL, or FAILED when no unit is left.
func (p *Pipeline) Cancel(ctx context.Context, run Run) (Run, error) {
	if run.Terminal() {
		return run, fmt.Errorf("cancel %s: %w", run.ID, ErrTerminal)
	}
	next := run.Clone()
	next.recordError(next.Stage, "", "run cancelled after "+string(next.Stage))
	clog.Warn("run cancelled", "run", next.ID, "after", next.Stage)
	if len(next.Active()) == 0 {
		return p.failOrKeep(run, next, next.Stage, context.Canceled)
	}
	// Skipped stages mean the run did not finish as requested.
	next.Status = StatusPartial
	next.Stage = StageCompleted
	next.EndedAt = time.Now().UTC()
	if err := p.checkpoint(next); err != nil {
		return run, err
	}
	return next, nil
}
