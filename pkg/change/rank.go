package change

import (
	"encoding/json"
	"fmt"
	"sort"

	clog "github.com/xrsl/tailor/pkg/log"
)

// Recommendation bands for the accept/reject rule.
const (
	lowImpact          = 0.3
	highImpact         = 0.6
	strongImprovement  = 0.1
	severeQualityLoss  = -0.3
	thresholdAllowance = 0.01
)

// Ranked is a change scored for selection.
type Ranked struct {
	Change        Change
	Effectiveness float64
	Recommended   bool
	// Index is the change's position in the ranker input.
	Index int
}

// MarshalJSON writes the ranked change with its variant tag.
func (r Ranked) MarshalJSON() ([]byte, error) {
	payload, err := Marshal(r.Change)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Change        json.RawMessage `json:"change"`
		Effectiveness float64         `json:"effectiveness_score"`
		Recommended   bool            `json:"recommended"`
		Index         int             `json:"index"`
	}{payload, r.Effectiveness, r.Recommended, r.Index})
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (r *Ranked) UnmarshalJSON(data []byte) error {
	var raw struct {
		Change        json.RawMessage `json:"change"`
		Effectiveness float64         `json:"effectiveness_score"`
		Recommended   bool            `json:"recommended"`
		Index         int             `json:"index"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c, err := Unmarshal(raw.Change)
	if err != nil {
		return err
	}
	*r = Ranked{Change: c, Effectiveness: raw.Effectiveness, Recommended: raw.Recommended, Index: raw.Index}
	return nil
}

// Ranking is the output of one ranking pass.
type Ranking struct {
	Changes []Ranked `json:"ranked_changes"`
	// Threshold is the lowest quality delta still considered acceptable:
	// the minimum delta among recommended changes minus 0.01, or 0 when
	// nothing is recommended. It is informational only.
	Threshold float64 `json:"selection_threshold"`
}

// Recommended returns the recommended changes in ranked order.
func (r Ranking) Recommended() []Ranked {
	var out []Ranked
	for _, c := range r.Changes {
		if c.Recommended {
			out = append(out, c)
		}
	}
	return out
}

// Recommend applies the accept/reject rule to a single change. Changes
// that match neither the accept nor the reject band are accepted.
func Recommend(c Change) bool {
	delta := c.Delta()
	impact, isRemoval := 0.0, false
	if r, ok := c.(Removal); ok {
		impact, isRemoval = r.ImpactScore, true
	}

	lowRisk := delta >= 0 && (!isRemoval || impact < lowImpact)
	if lowRisk || delta > strongImprovement {
		return true
	}
	if delta < severeQualityLoss || (isRemoval && impact > highImpact) {
		return false
	}
	return true
}

// Rank scores, classifies and orders changes. Effectiveness is quality
// delta per byte removed; the sort is stable so equal scores keep input
// order. Any change violating the model invariants fails the whole pass.
func Rank(changes []Change) (Ranking, error) {
	ranked := make([]Ranked, 0, len(changes))
	for i, c := range changes {
		if c == nil {
			return Ranking{}, fmt.Errorf("%w: nil change at index %d", ErrInvalidChange, i)
		}
		if err := c.Validate(); err != nil {
			return Ranking{}, fmt.Errorf("change %d: %w", i, err)
		}
		ranked = append(ranked, Ranked{
			Change:        c,
			Effectiveness: c.Delta() / float64(c.Reduction()),
			Recommended:   Recommend(c),
			Index:         i,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Effectiveness > ranked[j].Effectiveness
	})

	out := Ranking{Changes: ranked, Threshold: threshold(ranked)}
	clog.Debug("ranked changes",
		"total", len(ranked),
		"recommended", len(out.Recommended()),
		"threshold", out.Threshold,
	)
	return out, nil
}

func threshold(ranked []Ranked) float64 {
	found := false
	lowest := 0.0
	for _, r := range ranked {
		if !r.Recommended {
			continue
		}
		if !found || r.Change.Delta() < lowest {
			lowest = r.Change.Delta()
			found = true
		}
	}
	if !found {
		return 0.0
	}
	return lowest - thresholdAllowance
}
