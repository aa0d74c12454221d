// Package tailor runs the tailoring pipeline: it prepares the inputs, picks
// the best matching postings, writes and fact checks a resume and cover
// letter for each, prunes them to length and releases the result.
package tailor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/xrsl/tailor/pkg/agents"
	"github.com/xrsl/tailor/pkg/change"
	clog "github.com/xrsl/tailor/pkg/log"
	"github.com/xrsl/tailor/pkg/pipeline"
	"github.com/xrsl/tailor/pkg/pool"
	"github.com/xrsl/tailor/pkg/prune"
	"github.com/xrsl/tailor/pkg/schema"
)

// Agents is the set of generation operations a run depends on.
// *agents.Suite implements it.
type Agents interface {
	ParsePosting(ctx context.Context, source, text string) (schema.Posting, error)
	Match(ctx context.Context, resume string, posting schema.Posting) (agents.Match, error)
	Draft(ctx context.Context, doc agents.Document, resume string, posting schema.Posting) (string, error)
	Evaluate(ctx context.Context, doc agents.Document, draft string, posting schema.Posting) (agents.Evaluation, error)
	Polish(ctx context.Context, doc agents.Document, draft string, posting schema.Posting, issues []string) (string, error)
	FactCheck(ctx context.Context, draft, resume string) (agents.FactCheck, error)
	DetectAI(ctx context.Context, draft string) (agents.Detection, error)
	Humanize(ctx context.Context, doc agents.Document, draft string) (string, error)
	ProposeChanges(ctx context.Context, p prune.Proposal) (change.Batch, error)
}

// Input names the files a run starts from.
type Input struct {
	Resume   string
	Postings []string
}

// Tailor drives runs through a pipeline.
type Tailor struct {
	pipeline *pipeline.Pipeline
	agents   Agents
	reviewer prune.Reviewer
}

// Option configures a Tailor.
type Option func(*Tailor)

// WithReviewer consults r after every change applied while pruning. Calls
// are serialized across postings.
func WithReviewer(r prune.Reviewer) Option {
	return func(t *Tailor) { t.reviewer = &serialReviewer{next: r} }
}

// New creates a Tailor.
func New(p *pipeline.Pipeline, a Agents, opts ...Option) *Tailor {
	t := &Tailor{pipeline: p, agents: a, reviewer: prune.AutoReviewer{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// execution holds what the stages of one run share.
type execution struct {
	*Tailor
	in     Input
	pool   *pool.Pool
	runDir string
}

// Run executes a full run and returns its final state. The error is
// non-nil only when the run could not be recorded; failures of the run
// itself are reported through its status.
func (t *Tailor) Run(ctx context.Context, cfg pipeline.Config, in Input) (pipeline.Run, error) {
	run, err := t.pipeline.Start(ctx, cfg)
	if err != nil {
		return pipeline.Run{}, err
	}
	e := &execution{
		Tailor: t,
		in:     in,
		pool:   pool.New(cfg.PoolSize, pool.WithUnitTimeout(cfg.UnitTimeout)),
		runDir: t.pipeline.RunDir(run.ID),
	}

	closeLog, err := clog.AddFile(filepath.Join(e.runDir, "logs", "run.log"))
	if err != nil {
		return t.pipeline.Fail(ctx, run, err)
	}
	defer closeLog()

	steps := []struct {
		stage   pipeline.Stage
		produce pipeline.Producer
	}{
		{pipeline.StageInputPreparation, e.prepare},
		{pipeline.StageJDMatching, e.match},
		{pipeline.StageWritingPolishing, e.write},
		{pipeline.StageFactChecking, e.factCheck},
		{pipeline.StagePruning, e.pruneDocuments},
	}
	for _, s := range steps {
		run, err = t.pipeline.Advance(ctx, run, s.stage, s.produce)
		if err != nil {
			return run, err
		}
		if run.Terminal() {
			return run, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Pruned documents are released even when the run was interrupted.
	if run.Stage == pipeline.StagePruning {
		if _, err := e.release(run); err != nil {
			return t.pipeline.Fail(ctx, run, fmt.Errorf("release: %w", err))
		}
	}
	if ctx.Err() != nil {
		return t.pipeline.Cancel(ctx, run)
	}
	return t.pipeline.Complete(ctx, run)
}

// serialReviewer lets concurrent pruning units share one interactive
// reviewer.
type serialReviewer struct {
	mu   sync.Mutex
	next prune.Reviewer
}

func (s *serialReviewer) Review(ctx context.Context, r prune.Review) (prune.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Review(ctx, r)
}
