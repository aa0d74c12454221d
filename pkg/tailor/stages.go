package tailor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/xrsl/tailor/pkg/agents"
	clog "github.com/xrsl/tailor/pkg/log"
	"github.com/xrsl/tailor/pkg/pipeline"
	"github.com/xrsl/tailor/pkg/pool"
	"github.com/xrsl/tailor/pkg/prune"
	"github.com/xrsl/tailor/pkg/schema"
	"github.com/xrsl/tailor/pkg/utils"
	"github.com/xrsl/tailor/pkg/version"
)

// Prepared is the output of input preparation.
type Prepared struct {
	Resume   string                     `json:"resume"`
	Postings map[string]PreparedPosting `json:"postings"`
}

// PreparedPosting is one parsed posting.
type PreparedPosting struct {
	Source string         `json:"source"`
	Fields schema.Posting `json:"fields"`
}

// Matching is the output of posting matching.
type Matching struct {
	// Matches is sorted best first.
	Matches  []agents.Match `json:"matches"`
	Selected []string       `json:"selected"`
}

// Draft is one written document.
type Draft struct {
	Content       string   `json:"content"`
	Score         float64  `json:"score"`
	Iterations    int      `json:"iterations"`
	AIProbability float64  `json:"ai_probability,omitempty"`
	Humanized     bool     `json:"humanized,omitempty"`
	FactChecks    int      `json:"fact_checks,omitempty"`
	Corrections   []string `json:"corrections,omitempty"`
}

// Drafts holds the documents of one posting.
type Drafts map[agents.Document]Draft

// Pruned holds the pruning result of each document of one posting.
type Pruned map[agents.Document]prune.Result

// fanOut runs fn for every id through the run's pool and collects the
// successful values by id.
func fanOut[T any](ctx context.Context, p *pool.Pool, ids []string, fn func(ctx context.Context, id string) (T, error)) (map[string]T, []pipeline.UnitFailure) {
	units := make([]pool.Unit[T], len(ids))
	for i, id := range ids {
		units[i] = pool.Unit[T]{ID: id, Run: func(ctx context.Context) (T, error) { return fn(ctx, id) }}
	}
	results := pool.RunMany(ctx, p, units)
	out := make(map[string]T, len(results))
	for _, r := range results {
		if !r.Failed() {
			out[r.ID] = r.Value
		}
	}
	return out, pipeline.Failures(results)
}

func (e *execution) prepare(ctx context.Context, run pipeline.Run) (pipeline.Outcome, error) {
	resume, err := utils.ReadFile(e.in.Resume)
	if err != nil {
		return pipeline.Outcome{}, fmt.Errorf("read master resume: %w", err)
	}
	if strings.TrimSpace(resume) == "" {
		return pipeline.Outcome{}, fmt.Errorf("master resume %s is empty", e.in.Resume)
	}
	if len(e.in.Postings) == 0 {
		return pipeline.Outcome{}, fmt.Errorf("no job postings given")
	}

	ids := postingIDs(e.in.Postings)
	sources := make(map[string]string, len(ids))
	for i, id := range ids {
		sources[id] = e.in.Postings[i]
	}

	parsed, failures := fanOut(ctx, e.pool, ids, func(ctx context.Context, id string) (PreparedPosting, error) {
		text, err := readPosting(sources[id])
		if err != nil {
			return PreparedPosting{}, err
		}
		fields, err := e.agents.ParsePosting(ctx, sources[id], text)
		if err != nil {
			return PreparedPosting{}, err
		}
		return PreparedPosting{Source: sources[id], Fields: fields}, nil
	})

	return pipeline.Outcome{
		Output:   Prepared{Resume: resume, Postings: parsed},
		Units:    ids,
		Failures: failures,
	}, nil
}

func (e *execution) match(ctx context.Context, run pipeline.Run) (pipeline.Outcome, error) {
	in, err := pipeline.Output[Prepared](run, pipeline.StageInputPreparation)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	active := run.Active()

	// A single posting needs no ranking.
	if len(active) == 1 {
		return pipeline.Outcome{
			Output: Matching{Selected: active},
			Units:  active,
		}, nil
	}

	matches, failures := fanOut(ctx, e.pool, active, func(ctx context.Context, id string) (agents.Match, error) {
		m, err := e.agents.Match(ctx, in.Resume, in.Postings[id].Fields)
		m.Posting = id
		return m, err
	})

	ranked := make([]agents.Match, 0, len(matches))
	for _, id := range active {
		if m, ok := matches[id]; ok {
			ranked = append(ranked, m)
		}
	}
	// Stable so equal scores keep submission order.
	slices.SortStableFunc(ranked, func(a, b agents.Match) int {
		return cmp.Compare(b.MatchScore, a.MatchScore)
	})

	selected := make([]string, 0, run.Config.TopN)
	for _, m := range ranked[:min(len(ranked), max(1, run.Config.TopN))] {
		selected = append(selected, m.Posting)
	}
	clog.Info("postings selected", "run", run.ID, "selected", selected, "ranked", len(ranked))

	return pipeline.Outcome{
		Output:   Matching{Matches: ranked, Selected: selected},
		Units:    selected,
		Failures: failures,
	}, nil
}

func (e *execution) write(ctx context.Context, run pipeline.Run) (pipeline.Outcome, error) {
	in, err := pipeline.Output[Prepared](run, pipeline.StageInputPreparation)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	cfg := run.Config

	written, failures := fanOut(ctx, e.pool, run.Active(), func(ctx context.Context, id string) (Drafts, error) {
		out := Drafts{}
		for _, doc := range agents.Documents {
			d, err := e.writeDocument(ctx, cfg, doc, in.Resume, in.Postings[id].Fields)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", doc, err)
			}
			out[doc] = d
		}
		return out, nil
	})
	return pipeline.Outcome{Output: written, Failures: failures}, nil
}

// writeDocument drafts doc and polishes it until it reaches the quality
// threshold, the iteration limit, or a polish round makes it worse.
func (e *execution) writeDocument(ctx context.Context, cfg pipeline.Config, doc agents.Document, resume string, posting schema.Posting) (Draft, error) {
	content, err := e.agents.Draft(ctx, doc, resume, posting)
	if err != nil {
		return Draft{}, err
	}
	eval, err := e.agents.Evaluate(ctx, doc, content, posting)
	if err != nil {
		return Draft{}, err
	}
	best := Draft{Content: content, Score: eval.Score, Iterations: 1}

	for best.Iterations < cfg.MaxIterations && (eval.Score < cfg.QualityThreshold || eval.HasCriticalIssues) {
		polished, err := e.agents.Polish(ctx, doc, best.Content, posting, eval.Issues)
		if err != nil {
			return Draft{}, err
		}
		next, err := e.agents.Evaluate(ctx, doc, polished, posting)
		if err != nil {
			return Draft{}, err
		}
		if next.Score < best.Score {
			clog.Debug("polish lowered score, keeping previous draft", "document", doc, "previous", best.Score, "score", next.Score)
			break
		}
		best = Draft{Content: polished, Score: next.Score, Iterations: best.Iterations + 1}
		eval = next
	}

	if doc == agents.CoverLetter {
		det, err := e.agents.DetectAI(ctx, best.Content)
		if err != nil {
			return Draft{}, err
		}
		best.AIProbability = det.Probability
		if det.Probability > cfg.AIDetectionThreshold {
			human, err := e.agents.Humanize(ctx, doc, best.Content)
			if err != nil {
				return Draft{}, err
			}
			best.Content = human
			best.Humanized = true
		}
	}
	return best, nil
}

func (e *execution) factCheck(ctx context.Context, run pipeline.Run) (pipeline.Outcome, error) {
	in, err := pipeline.Output[Prepared](run, pipeline.StageInputPreparation)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	written, err := pipeline.Output[map[string]Drafts](run, pipeline.StageWritingPolishing)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	limit := max(1, run.Config.MaxIterations)

	checked, failures := fanOut(ctx, e.pool, run.Active(), func(ctx context.Context, id string) (Drafts, error) {
		out := Drafts{}
		for _, doc := range agents.Documents {
			d, err := e.checkDocument(ctx, written[id][doc], in.Resume, limit)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", doc, err)
			}
			out[doc] = d
		}
		return out, nil
	})
	return pipeline.Outcome{Output: checked, Failures: failures}, nil
}

// checkDocument fact checks d, applying corrections, until it passes or
// limit checks were made.
func (e *execution) checkDocument(ctx context.Context, d Draft, resume string, limit int) (Draft, error) {
	if d.Content == "" {
		return Draft{}, fmt.Errorf("no draft to check")
	}
	var issues []string
	for d.FactChecks < limit {
		fc, err := e.agents.FactCheck(ctx, d.Content, resume)
		if err != nil {
			return Draft{}, err
		}
		d.FactChecks++
		if !fc.HasFalseFacts {
			return d, nil
		}
		issues = fc.Issues
		d.Corrections = append(d.Corrections, fc.Issues...)
		if fc.Corrected == "" {
			break
		}
		d.Content = fc.Corrected
	}
	return Draft{}, fmt.Errorf("unsupported claims remain after %d checks: %s", d.FactChecks, strings.Join(issues, "; "))
}

func (e *execution) pruneDocuments(ctx context.Context, run pipeline.Run) (pipeline.Outcome, error) {
	checked, err := pipeline.Output[map[string]Drafts](run, pipeline.StageFactChecking)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	cfg := run.Config
	loop := prune.New(
		version.NewStore(e.versionsDir()),
		prune.ProposerFunc(e.agents.ProposeChanges),
		prune.WithReviewer(e.reviewer),
		prune.WithMaxIterations(cfg.MaxIterations),
	)
	targets := map[agents.Document]int{
		agents.Resume:      cfg.ResumeTarget,
		agents.CoverLetter: cfg.CoverLetterTarget,
	}

	pruned, failures := fanOut(ctx, e.pool, run.Active(), func(ctx context.Context, id string) (Pruned, error) {
		out := Pruned{}
		for _, doc := range agents.Documents {
			d := checked[id][doc]
			res, err := loop.Run(ctx, prune.Request{
				DocumentID:   documentID(id, doc),
				Content:      d.Content,
				TargetLength: targets[doc],
				QualityScore: d.Score,
			})
			if err != nil {
				return nil, fmt.Errorf("%s: %w", doc, err)
			}
			if res.State == prune.StateExhausted {
				clog.Warn("document still over target", "posting", id, "document", doc, "length", res.Length, "target", res.Target, "reason", res.Error)
			}
			out[doc] = res
		}
		return out, nil
	})
	return pipeline.Outcome{Output: pruned, Failures: failures}, nil
}

// documentID names the version history of one document of a posting.
func documentID(posting string, doc agents.Document) string {
	return posting + "-" + string(doc)
}
