// Package prune shortens a document to a target length by applying ranked
// rewrites and removals one at a time, storing every accepted state as a
// new document version.
package prune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xrsl/tailor/pkg/change"
	clog "github.com/xrsl/tailor/pkg/log"
	"github.com/xrsl/tailor/pkg/version"
)

// State is a step of the pruning state machine.
type State string

const (
	StateCollecting  State = "COLLECTING_CHANGES"
	StateRanking     State = "RANKING"
	StateApplying    State = "APPLYING"
	StateCheckLength State = "CHECK_LENGTH"
	StateDone        State = "DONE"
	StateExhausted   State = "EXHAUSTED"
)

// DefaultMaxIterations bounds the number of proposal rounds.
const DefaultMaxIterations = 10

// Proposal is what a Proposer is asked to shorten.
type Proposal struct {
	DocumentID   string
	Content      string
	TargetLength int
	Iteration    int
}

// Proposer supplies candidate changes for the current document.
type Proposer interface {
	Propose(ctx context.Context, p Proposal) (change.Batch, error)
}

// ProposerFunc adapts a function to Proposer.
type ProposerFunc func(ctx context.Context, p Proposal) (change.Batch, error)

func (f ProposerFunc) Propose(ctx context.Context, p Proposal) (change.Batch, error) {
	return f(ctx, p)
}

// Request describes one document to prune.
type Request struct {
	DocumentID   string
	Content      string
	TargetLength int
	// QualityScore is recorded on the initial version.
	QualityScore float64
}

// Result is the outcome of a pruning run. Err holds the collaborator error
// when the loop stopped early; the document is still the best effort.
type Result struct {
	DocumentID string          `json:"document_id"`
	State      State           `json:"state"`
	Content    string          `json:"content"`
	Version    int             `json:"version"`
	Length     int             `json:"length"`
	Target     int             `json:"target_length"`
	Shortfall  int             `json:"shortfall"`
	Applied    int             `json:"changes_applied"`
	Skipped    int             `json:"changes_skipped"`
	Iterations int             `json:"iterations"`
	Threshold  float64         `json:"selection_threshold"`
	Rollbacks  []int           `json:"rollbacks,omitempty"`
	Ranking    *change.Ranking `json:"last_ranking,omitempty"`
	Error      string          `json:"error,omitempty"`
	Err        error           `json:"-"`
}

// Loop runs the pruning state machine. A Loop is safe to share between
// goroutines as long as each document is pruned by one caller at a time.
type Loop struct {
	store         *version.Store
	proposer      Proposer
	reviewer      Reviewer
	maxIterations int
}

// Option configures a Loop.
type Option func(*Loop)

// WithReviewer sets the reviewer consulted after every applied change.
func WithReviewer(r Reviewer) Option {
	return func(l *Loop) { l.reviewer = r }
}

// WithMaxIterations caps the number of proposal rounds.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// New creates a loop that stores versions in store and asks proposer for
// changes.
func New(store *version.Store, proposer Proposer, opts ...Option) *Loop {
	l := &Loop{
		store:         store,
		proposer:      proposer,
		reviewer:      AutoReviewer{},
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// run carries the mutable state of a single Run call.
type run struct {
	*Loop
	req     Request
	log     *slog.Logger
	content string
	current version.Version
	res     Result
}

// Run prunes req.Content until it fits req.TargetLength. Storage errors are
// returned; collaborator failures end the loop as EXHAUSTED.
func (l *Loop) Run(ctx context.Context, req Request) (Result, error) {
	if req.TargetLength <= 0 {
		return Result{}, fmt.Errorf("prune %s: target length must be positive, got %d", req.DocumentID, req.TargetLength)
	}

	initial, err := l.store.Save(req.DocumentID, req.Content, version.Metadata{
		QualityScore: req.QualityScore,
		Note:         "initial",
	})
	if err != nil {
		return Result{}, fmt.Errorf("prune %s: %w", req.DocumentID, err)
	}

	r := &run{
		Loop:    l,
		req:     req,
		log:     clog.With("document", req.DocumentID),
		content: req.Content,
		current: initial,
		res:     Result{DocumentID: req.DocumentID, Target: req.TargetLength},
	}
	return r.loop(ctx)
}

func (r *run) loop(ctx context.Context) (Result, error) {
	if r.fits() {
		return r.finish(StateDone, nil), nil
	}

	for r.res.Iterations < r.maxIterations {
		if err := ctx.Err(); err != nil {
			return r.finish(StateExhausted, err), nil
		}
		r.res.Iterations++
		iteration := r.res.Iterations

		r.log.Debug("pruning iteration", "state", StateCollecting, "iteration", iteration, "length", len(r.content))
		batch, err := r.proposer.Propose(ctx, Proposal{
			DocumentID:   r.req.DocumentID,
			Content:      r.content,
			TargetLength: r.req.TargetLength,
			Iteration:    iteration,
		})
		if err != nil {
			return r.finish(StateExhausted, fmt.Errorf("propose changes: %w", err)), nil
		}

		r.log.Debug("pruning iteration", "state", StateRanking, "proposals", batch.Len())
		ranking, err := change.Rank(batch.Changes())
		if err != nil {
			return r.finish(StateExhausted, fmt.Errorf("rank changes: %w", err)), nil
		}
		r.res.Threshold = ranking.Threshold
		r.res.Ranking = &ranking

		state, progressed, err := r.apply(ctx, ranking, iteration)
		if err != nil {
			return r.res, err
		}
		switch state {
		case StateDone:
			return r.finish(StateDone, nil), nil
		case StateExhausted:
			return r.finish(StateExhausted, r.res.Err), nil
		}
		if !progressed {
			r.log.Debug("no applicable changes left", "iteration", iteration)
			return r.finish(StateExhausted, nil), nil
		}
	}

	clog.Warn("pruning stopped at iteration limit",
		"document", r.req.DocumentID,
		"iterations", r.res.Iterations,
		"length", len(r.content),
		"target", r.req.TargetLength,
	)
	return r.finish(StateExhausted, nil), nil
}

// apply walks the recommended changes of one ranking. It returns the state
// the loop should move to (StateApplying to ask for a new batch) and
// whether the document changed.
func (r *run) apply(ctx context.Context, ranking change.Ranking, iteration int) (State, bool, error) {
	progressed := false
	for _, ranked := range ranking.Recommended() {
		next, ok := change.Apply(r.content, ranked.Change)
		if !ok {
			r.res.Skipped++
			continue
		}

		v, err := r.store.Save(r.req.DocumentID, next, version.Metadata{
			Iteration: iteration,
			Note:      fmt.Sprintf("%s (effectiveness %.4f)", ranked.Change.Kind(), ranked.Effectiveness),
			Parent:    r.current.Number,
		})
		if err != nil {
			return "", progressed, fmt.Errorf("prune %s: %w", r.req.DocumentID, err)
		}
		r.content, r.current = next, v
		r.res.Applied++
		progressed = true

		r.log.Debug("pruning iteration", "state", StateCheckLength, "version", v.Number, "length", len(next))
		if r.fits() {
			return StateDone, true, nil
		}

		decision, err := r.reviewer.Review(ctx, Review{
			DocumentID:   r.req.DocumentID,
			Version:      v,
			Change:       ranked.Change,
			TargetLength: r.req.TargetLength,
		})
		if err != nil {
			r.res.Err = fmt.Errorf("review: %w", err)
			return StateExhausted, true, nil
		}

		switch decision.Action {
		case ActionAccept:
			r.log.Debug("reviewer accepted current version", "version", v.Number)
			return StateDone, true, nil
		case ActionRollback:
			restored, err := r.store.Load(r.req.DocumentID, decision.Version)
			if err != nil {
				r.res.Err = fmt.Errorf("rollback to v%d: %w", decision.Version, err)
				return StateExhausted, true, nil
			}
			clog.Info("rolled back document",
				"document", r.req.DocumentID,
				"from", v.Number,
				"to", restored.Number,
			)
			r.content, r.current = restored.Content, restored
			r.res.Rollbacks = append(r.res.Rollbacks, restored.Number)
			// Remaining changes were ranked against the discarded text.
			return StateApplying, true, nil
		}
	}
	return StateApplying, progressed, nil
}

func (r *run) fits() bool {
	return len(r.content) <= r.req.TargetLength
}

func (r *run) finish(state State, err error) Result {
	r.res.State = state
	r.res.Content = r.content
	r.res.Version = r.current.Number
	r.res.Length = len(r.content)
	r.res.Shortfall = max(0, r.res.Length-r.req.TargetLength)
	r.res.Err = err
	if err != nil {
		r.res.Error = err.Error()
		if !errors.Is(err, context.Canceled) {
			clog.Warn("pruning ended early",
				"document", r.req.DocumentID,
				"version", r.current.Number,
				"error", err,
			)
		}
	}
	r.log.Debug("pruning finished",
		"state", state,
		"version", r.current.Number,
		"length", r.res.Length,
		"shortfall", r.res.Shortfall,
		"applied", r.res.Applied,
	)
	return r.res
}
