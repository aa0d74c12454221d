// Package change models the length-reducing edits proposed for a draft,
// applies them to text, and ranks them by quality gained per byte saved.
package change

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind distinguishes the two change variants.
type Kind string

const (
	KindRewrite Kind = "rewrite"
	KindRemoval Kind = "removal"
)

// ErrInvalidChange is returned for changes that violate the model
// invariants (no length reduction, scores out of range, empty target).
var ErrInvalidChange = errors.New("invalid change")

// Change is a proposed edit to a draft. It is implemented only by Rewrite
// and Removal.
type Change interface {
	Kind() Kind
	// Target is the text that must occur in the draft for the change to apply.
	Target() string
	Reduction() int
	Delta() float64
	Validate() error

	sealed()
}

// Rewrite replaces OriginalText with a shorter RewrittenText.
type Rewrite struct {
	OriginalText    string  `json:"original_text"`
	RewrittenText   string  `json:"rewritten_text"`
	LengthReduction int     `json:"length_reduction"`
	QualityDelta    float64 `json:"quality_delta"`
	Rationale       string  `json:"rationale,omitempty"`
}

// Removal deletes TextToRemove. ImpactScore rates how important the
// removed content is (0 negligible, 1 critical).
type Removal struct {
	TextToRemove    string  `json:"text_to_remove"`
	LengthReduction int     `json:"length_reduction"`
	QualityDelta    float64 `json:"quality_delta"`
	ImpactScore     float64 `json:"impact_score"`
	Rationale       string  `json:"rationale,omitempty"`
}

// NewRewrite builds a rewrite and checks its invariants.
func NewRewrite(original, rewritten string, reduction int, delta float64) (Rewrite, error) {
	r := Rewrite{
		OriginalText:    original,
		RewrittenText:   rewritten,
		LengthReduction: reduction,
		QualityDelta:    delta,
	}
	return r, r.Validate()
}

// NewRemoval builds a removal and checks its invariants.
func NewRemoval(text string, reduction int, delta, impact float64) (Removal, error) {
	r := Removal{
		TextToRemove:    text,
		LengthReduction: reduction,
		QualityDelta:    delta,
		ImpactScore:     impact,
	}
	return r, r.Validate()
}

func (r Rewrite) Kind() Kind { return KindRewrite }
func (r Rewrite) Target() string { return r.OriginalText }
func (r Rewrite) Reduction() int { return r.LengthReduction }
func (r Rewrite) Delta() float64 { return r.QualityDelta }
func (Rewrite) sealed() {}
func (r Removal) Kind() Kind { return KindRemoval }
func (r Removal) Target() string { return r.TextToRemove }
func (r Removal) Reduction() int { return r.LengthReduction }
func (r Removal) Delta() float64 { return r.QualityDelta }
func (Removal) sealed() {}

// Validate checks the rewrite invariants.
func (r Rewrite) Validate() error {
	if r.OriginalText == "" {
		return fmt.Errorf("%w: rewrite has empty original_text", ErrInvalidChange)
	}
	return validateCommon(r.LengthReduction, r.QualityDelta)
}

// Validate checks the removal invariants.
func (r Removal) Validate() error {
	if r.TextToRemove == "" {
		return fmt.Errorf("%w: removal has empty text_to_remove", ErrInvalidChange)
	}
	if r.ImpactScore < 0 || r.ImpactScore > 1 {
		return fmt.Errorf("%w: impact_score %.3f outside [0, 1]", ErrInvalidChange, r.ImpactScore)
	}
	return validateCommon(r.LengthReduction, r.QualityDelta)
}

func validateCommon(reduction int, delta float64) error {
	if reduction <= 0 {
		return fmt.Errorf("%w: length_reduction must be > 0, got %d", ErrInvalidChange, reduction)
	}
	if delta < -1 || delta > 1 {
		return fmt.Errorf("%w: quality_delta %.3f outside [-1, 1]", ErrInvalidChange, delta)
	}
	return nil
}

// Batch is one round of proposals from the change collaborators.
type Batch struct {
	Rewrites []Rewrite `json:"rewrites"`
	Removals []Removal `json:"removals"`
}

// Changes flattens the batch, rewrites first, preserving input order.
func (b Batch) Changes() []Change {
	out := make([]Change, 0, len(b.Rewrites)+len(b.Removals))
	for _, r := range b.Rewrites {
		out = append(out, r)
	}
	for _, r := range b.Removals {
		out = append(out, r)
	}
	return out
}

// Len reports the number of proposals in the batch.
func (b Batch) Len() int {
	return len(b.Rewrites) + len(b.Removals)
}

// envelope is the tagged wire form used when a Change is serialized on its
// own (checkpoints, ranking output).
type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"change"`
}

// Marshal encodes c with its variant tag.
func Marshal(c Change) ([]byte, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: c.Kind(), Payload: payload})
}

// Unmarshal decodes a tagged change produced by Marshal.
func Unmarshal(data []byte) (Change, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode change: %w", err)
	}
	switch env.Type {
	case KindRewrite:
		var r Rewrite
		if err := json.Unmarshal(env.Payload, &r); err != nil {
			return nil, fmt.Errorf("decode rewrite: %w", err)
		}
		return r, nil
	case KindRemoval:
		var r Removal
		if err := json.Unmarshal(env.Payload, &r); err != nil {
			return nil, fmt.Errorf("decode removal: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown change type %q", ErrInvalidChange, env.Type)
	}
}
