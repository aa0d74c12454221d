package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/xrsl/tailor/pkg/utils"
)

// errorTail is the number of error log entries copied into a checkpoint.
const errorTail = 10

// Checkpoint is the durable record written when a run reaches a stage.
type Checkpoint struct {
	Stage     Stage         `json:"stage"`
	Timestamp time.Time     `json:"timestamp"`
	Status    Status        `json:"status"`
	Run       Run           `json:"run"`
	ErrorTail []ErrorRecord `json:"error_tail"`
}

// ErrNoCheckpoint is returned when a run has no checkpoint on disk.
var ErrNoCheckpoint = errors.New("no checkpoint")

func (p *Pipeline) checkpointPath(runID string, stage Stage) string {
	return filepath.Join(p.RunDir(runID), "checkpoints", string(stage)+".json")
}

// checkpoint writes the checkpoint for run.Stage. Checkpoints are never
// overwritten.
func (p *Pipeline) checkpoint(run Run) error {
	tail := run.Errors
	if len(tail) > errorTail {
		tail = tail[len(tail)-errorTail:]
	}
	cp := Checkpoint{
		Stage:     run.Stage,
		Timestamp: time.Now().UTC(),
		Status:    run.Status,
		Run:       run,
		ErrorTail: tail,
	}
	if err := utils.WriteJSONOnce(p.checkpointPath(run.ID, run.Stage), cp); err != nil {
		return fmt.Errorf("checkpoint %s: %w", run.Stage, err)
	}
	return nil
}

// LoadCheckpoint reads the checkpoint of runID for stage.
func (p *Pipeline) LoadCheckpoint(runID string, stage Stage) (Checkpoint, error) {
	var cp Checkpoint
	if err := utils.ReadJSON(p.checkpointPath(runID, stage), &cp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Checkpoint{}, fmt.Errorf("%w: %s at %s", ErrNoCheckpoint, runID, stage)
		}
		return Checkpoint{}, err
	}
	return cp, nil
}

// Checkpoints returns every checkpoint of runID in stage order.
func (p *Pipeline) Checkpoints(runID string) ([]Checkpoint, error) {
	var out []Checkpoint
	for _, stage := range Stages {
		cp, err := p.LoadCheckpoint(runID, stage)
		if errors.Is(err, ErrNoCheckpoint) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoint, runID)
	}
	return out, nil
}

// Latest returns the most advanced checkpoint of runID.
func (p *Pipeline) Latest(runID string) (Checkpoint, error) {
	cps, err := p.Checkpoints(runID)
	if err != nil {
		return Checkpoint{}, err
	}
	return cps[len(cps)-1], nil
}

// Runs returns the latest checkpoint of every run under the pipeline
// directory, newest run first.
func (p *Pipeline) Runs() ([]Checkpoint, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Checkpoint
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		cp, err := p.Latest(e.Name())
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Checkpoint) int {
		return b.Run.StartedAt.Compare(a.Run.StartedAt)
	})
	return out, nil
}

// Restore rebuilds the run recorded in cp.
func Restore(cp Checkpoint) Run {
	run := cp.Run.Clone()
	run.Stage = cp.Stage
	run.Status = cp.Status
	return run
}
