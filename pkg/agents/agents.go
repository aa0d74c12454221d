// Package agents turns prompt workflows and a text generator into the typed
// operations of a tailoring run: posting parsing, matching, drafting,
// evaluation, fact checking, AI detection and change proposals.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xrsl/tailor/pkg/change"
	clog "github.com/xrsl/tailor/pkg/log"
	"github.com/xrsl/tailor/pkg/prune"
	"github.com/xrsl/tailor/pkg/schema"
	"github.com/xrsl/tailor/pkg/workflow"
)

// Generator produces a completion for a prompt. ai.Client satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// systemGenerator is implemented by generators that accept a separate
// system prompt, which providers cache across calls.
type systemGenerator interface {
	GenerateContentWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// systemPrompt is shared by every operation.
const systemPrompt = `You are a careful career writer tailoring application documents to job postings.
Only use facts present in the master resume. Never invent employers, titles, dates, degrees or metrics.
When asked for JSON, reply with a single JSON object and nothing else.`

// Document is the kind of document being written.
type Document string

const (
	Resume      Document = "resume"
	CoverLetter Document = "cover_letter"
)

// Documents lists every document written per posting.
var Documents = []Document{Resume, CoverLetter}

// Label is the human name used in prompts.
func (d Document) Label() string {
	return strings.ReplaceAll(string(d), "_", " ")
}

// Match is the fit between the master resume and one posting.
type Match struct {
	Posting         string   `json:"posting"`
	MatchScore      float64  `json:"match_score"`
	RelevanceScore  float64  `json:"relevance_score"`
	MatchedKeywords []string `json:"matched_keywords"`
	MissingSkills   []string `json:"missing_skills"`
	Recommendation  string   `json:"recommendation"`
}

// Evaluation is a quality assessment of a draft.
type Evaluation struct {
	Score             float64  `json:"score"`
	HasCriticalIssues bool     `json:"has_critical_issues"`
	Issues            []string `json:"issues"`
	Notes             string   `json:"notes"`
}

// FactCheck reports claims not supported by the master resume.
type FactCheck struct {
	HasFalseFacts bool     `json:"has_false_facts"`
	Issues        []string `json:"issues"`
	Corrected     string   `json:"corrected"`
}

// Detection is the estimated probability that a text is AI written.
type Detection struct {
	Probability float64  `json:"probability"`
	Signals     []string `json:"signals"`
}

// promptData is the value every workflow template is rendered with.
type promptData struct {
	Document  string
	Draft     string
	Resume    string
	Posting   string
	Issues    []string
	Length    int
	Target    int
	Excess    int
	Iteration int
}

// Suite runs the tailoring operations against one generator.
type Suite struct {
	gen     Generator
	prompts *workflow.Set
	schema  *schema.Schema
}

// New creates a suite. prompts and sch may be nil to use the embedded
// defaults.
func New(gen Generator, prompts *workflow.Set, sch *schema.Schema) (*Suite, error) {
	var err error
	if prompts == nil {
		if prompts, err = workflow.Load(""); err != nil {
			return nil, err
		}
	}
	if sch == nil {
		if sch, err = schema.LoadDefault(); err != nil {
			return nil, err
		}
	}
	return &Suite{gen: gen, prompts: prompts, schema: sch}, nil
}

// Schema returns the posting schema used for parsing.
func (s *Suite) Schema() *schema.Schema { return s.schema }

func (s *Suite) generate(ctx context.Context, op, prompt string) (string, error) {
	start := time.Now()
	var resp string
	var err error
	if sg, ok := s.gen.(systemGenerator); ok {
		resp, err = sg.GenerateContentWithSystem(ctx, systemPrompt, prompt)
	} else {
		resp, err = s.gen.GenerateContent(ctx, prompt)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	clog.Debug("generated", "op", op, "prompt_chars", len(prompt), "response_chars", len(resp), "duration", time.Since(start).Round(time.Millisecond))
	return resp, nil
}

func (s *Suite) render(name string, data promptData) (string, error) {
	return s.prompts.Render(name, data)
}

// generateJSON renders name, generates and decodes the JSON response into v.
func (s *Suite) generateJSON(ctx context.Context, name string, data promptData, v any) error {
	prompt, err := s.render(name, data)
	if err != nil {
		return err
	}
	resp, err := s.generate(ctx, name, prompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSON(resp)), v); err != nil {
		return fmt.Errorf("%s: parse response: %w", name, err)
	}
	return nil
}

// generateText renders name and returns the response with any code fence
// removed.
func (s *Suite) generateText(ctx context.Context, name string, data promptData) (string, error) {
	prompt, err := s.render(name, data)
	if err != nil {
		return "", err
	}
	resp, err := s.generate(ctx, name, prompt)
	if err != nil {
		return "", err
	}
	text := stripFence(resp)
	if text == "" {
		return "", fmt.Errorf("%s: empty response", name)
	}
	return text, nil
}

// ParsePosting extracts the schema fields from a raw posting.
func (s *Suite) ParsePosting(ctx context.Context, source, text string) (schema.Posting, error) {
	resp, err := s.generate(ctx, "parse_posting", s.schema.GeneratePrompt(source, text))
	if err != nil {
		return nil, err
	}
	p, err := s.schema.Decode([]byte(extractJSON(resp)))
	if err != nil {
		return nil, fmt.Errorf("parse_posting %s: %w", source, err)
	}
	return p, nil
}

// Match rates the master resume against a posting.
func (s *Suite) Match(ctx context.Context, resume string, posting schema.Posting) (Match, error) {
	var m Match
	data := promptData{Resume: resume, Posting: s.schema.Render(posting)}
	if err := s.generateJSON(ctx, workflow.Match, data, &m); err != nil {
		return Match{}, err
	}
	if err := unit("match_score", m.MatchScore); err != nil {
		return Match{}, err
	}
	if err := unit("relevance_score", m.RelevanceScore); err != nil {
		return Match{}, err
	}
	return m, nil
}

// Draft writes the first version of doc for a posting.
func (s *Suite) Draft(ctx context.Context, doc Document, resume string, posting schema.Posting) (string, error) {
	name := workflow.DraftResume
	if doc == CoverLetter {
		name = workflow.DraftCoverLetter
	}
	return s.generateText(ctx, name, promptData{
		Document: doc.Label(),
		Resume:   resume,
		Posting:  s.schema.Render(posting),
	})
}

// Evaluate scores a draft against the posting.
func (s *Suite) Evaluate(ctx context.Context, doc Document, draft string, posting schema.Posting) (Evaluation, error) {
	var e Evaluation
	data := promptData{Document: doc.Label(), Draft: draft, Posting: s.schema.Render(posting)}
	if err := s.generateJSON(ctx, workflow.Evaluate, data, &e); err != nil {
		return Evaluation{}, err
	}
	if err := unit("score", e.Score); err != nil {
		return Evaluation{}, err
	}
	return e, nil
}

// Polish revises a draft to address issues.
func (s *Suite) Polish(ctx context.Context, doc Document, draft string, posting schema.Posting, issues []string) (string, error) {
	return s.generateText(ctx, workflow.Polish, promptData{
		Document: doc.Label(),
		Draft:    draft,
		Posting:  s.schema.Render(posting),
		Issues:   issues,
	})
}

// FactCheck compares a draft with the master resume.
func (s *Suite) FactCheck(ctx context.Context, draft, resume string) (FactCheck, error) {
	var fc FactCheck
	if err := s.generateJSON(ctx, workflow.FactCheck, promptData{Draft: draft, Resume: resume}, &fc); err != nil {
		return FactCheck{}, err
	}
	fc.Corrected = stripFence(fc.Corrected)
	return fc, nil
}

// DetectAI estimates how likely draft is to be flagged as AI written.
func (s *Suite) DetectAI(ctx context.Context, draft string) (Detection, error) {
	var d Detection
	if err := s.generateJSON(ctx, workflow.DetectAI, promptData{Draft: draft}, &d); err != nil {
		return Detection{}, err
	}
	if err := unit("probability", d.Probability); err != nil {
		return Detection{}, err
	}
	return d, nil
}

// Humanize rewrites a draft to read less machine written.
func (s *Suite) Humanize(ctx context.Context, doc Document, draft string) (string, error) {
	return s.generateText(ctx, workflow.Humanize, promptData{Document: doc.Label(), Draft: draft})
}

// ProposeChanges asks for rewrites and removals that bring p.Content
// closer to p.TargetLength. Length reductions are recomputed from the
// texts and proposals that cannot be valid are dropped.
func (s *Suite) ProposeChanges(ctx context.Context, p prune.Proposal) (change.Batch, error) {
	data := promptData{
		Draft:     p.Content,
		Length:    len(p.Content),
		Target:    p.TargetLength,
		Excess:    max(0, len(p.Content)-p.TargetLength),
		Iteration: p.Iteration,
	}
	var raw change.Batch
	if err := s.generateJSON(ctx, workflow.ProposeChanges, data, &raw); err != nil {
		return change.Batch{}, err
	}
	return sanitize(p.DocumentID, raw), nil
}

// Proposer adapts the suite to the pruning loop.
func (s *Suite) Proposer() prune.Proposer {
	return prune.ProposerFunc(s.ProposeChanges)
}

func sanitize(docID string, raw change.Batch) change.Batch {
	log := clog.With("document", docID)
	var out change.Batch
	for _, r := range raw.Rewrites {
		r.LengthReduction = len(r.OriginalText) - len(r.RewrittenText)
		if err := r.Validate(); err != nil {
			log.Warn("dropping proposed rewrite", "error", err)
			continue
		}
		out.Rewrites = append(out.Rewrites, r)
	}
	for _, r := range raw.Removals {
		r.LengthReduction = len(r.TextToRemove)
		if err := r.Validate(); err != nil {
			log.Warn("dropping proposed removal", "error", err)
			continue
		}
		out.Removals = append(out.Removals, r)
	}
	return out
}

func unit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s %.3f outside [0, 1]", name, v)
	}
	return nil
}

// extractJSON attempts to extract JSON from a response that may contain markdown
func extractJSON(s string) string {
	s = stripFence(s)

	// Find first { and last }
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end != -1 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// stripFence removes a surrounding markdown code block if present.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string ("json", "markdown")
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	} else {
		s = ""
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
