package change

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resume = `Jane Doe
Senior Engineer

Led migration of billing platform to Go, cutting latency by 40%.
Led migration of billing platform to Go, cutting latency by 40%.

Hobbies: chess, hiking, sourdough.
`

func TestApplyRewriteFirstOccurrence(t *testing.T) {
	rw := Rewrite{
		OriginalText:    "Led migration of billing platform to Go, cutting latency by 40%.",
		RewrittenText:   "Moved billing to Go (-40% latency).",
		LengthReduction: 29,
		QualityDelta:    0.02,
	}

	out, applied := Apply(resume, rw)
	require.True(t, applied)
	assert.Equal(t, 1, strings.Count(out, "Moved billing to Go (-40% latency)."))
	assert.Equal(t, 1, strings.Count(out, rw.OriginalText), "second occurrence must be untouched")
	assert.True(t, strings.Index(out, rw.RewrittenText) < strings.Index(out, rw.OriginalText))
}

func TestApplyNotFoundIsIdentity(t *testing.T) {
	tests := []struct {
		name   string
		change Change
	}{
		{"rewrite", Rewrite{OriginalText: "Kubernetes operator", RewrittenText: "k8s", LengthReduction: 16}},
		{"removal", Removal{TextToRemove: "Volunteer work", LengthReduction: 14}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := "line with trailing space   \n\n\n\nkept as is"
			out, applied := Apply(doc, tt.change)
			assert.False(t, applied)
			assert.Equal(t, doc, out, "document must be byte-identical")
		})
	}
}

func TestApplyRemovalNormalizesWhitespace(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		remove string
		want   string
	}{
		{
			name:   "collapses blank run left by removal",
			doc:    "Summary\n\nHobbies: chess\n\nExperience",
			remove: "Hobbies: chess",
			want:   "Summary\n\nExperience",
		},
		{
			name:   "strips trailing whitespace",
			doc:    "Skills: Go   \nTEMP\nTools: git\t",
			remove: "TEMP",
			want:   "Skills: Go\n\nTools: git",
		},
		{
			name:   "whitespace-only lines count as blank",
			doc:    "A\n  \nREMOVE\n\n\n\nB",
			remove: "REMOVE",
			want:   "A\n\nB",
		},
		{
			name:   "only first occurrence removed",
			doc:    "x\nDUP\ny\nDUP\n",
			remove: "DUP\n",
			want:   "x\ny\nDUP\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, applied := Apply(tt.doc, Removal{TextToRemove: tt.remove, LengthReduction: len(tt.remove)})
			require.True(t, applied)
			assert.Equal(t, tt.want, out)
			assert.NotContains(t, out, "\n\n\n")
			for _, line := range strings.Split(out, "\n") {
				assert.Equal(t, strings.TrimRight(line, " \t"), line)
			}
		})
	}
}

func TestRecommendBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		change Change
		want   bool
	}{
		{"removal high impact neutral delta", Removal{TextToRemove: "x", LengthReduction: 1, QualityDelta: 0.0, ImpactScore: 0.61}, false},
		{"rewrite strong improvement", Rewrite{OriginalText: "x", LengthReduction: 1, QualityDelta: 0.11}, true},
		{"removal strong improvement beats impact", Removal{TextToRemove: "x", LengthReduction: 1, QualityDelta: 0.2, ImpactScore: 0.9}, true},
		{"removal low impact no loss", Removal{TextToRemove: "x", LengthReduction: 1, QualityDelta: 0.0, ImpactScore: 0.29}, true},
		{"rewrite no loss", Rewrite{OriginalText: "x", LengthReduction: 1, QualityDelta: 0.0}, true},
		{"rewrite severe loss", Rewrite{OriginalText: "x", LengthReduction: 1, QualityDelta: -0.31}, false},
		{"removal gap band defaults to accept", Removal{TextToRemove: "x", LengthReduction: 1, QualityDelta: -0.1, ImpactScore: 0.5}, true},
		{"rewrite mild loss defaults to accept", Rewrite{OriginalText: "x", LengthReduction: 1, QualityDelta: -0.2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recommend(tt.change))
		})
	}
}

func TestRankOrderingAndThreshold(t *testing.T) {
	changes := []Change{
		Rewrite{OriginalText: "a", LengthReduction: 10, QualityDelta: 0.05},
		Removal{TextToRemove: "b", LengthReduction: 100, QualityDelta: -0.5, ImpactScore: 0.2},
		Removal{TextToRemove: "c", LengthReduction: 50, QualityDelta: 0.2, ImpactScore: 0.9},
	}

	ranking, err := Rank(changes)
	require.NoError(t, err)
	require.Len(t, ranking.Changes, 3)

	got := []int{ranking.Changes[0].Index, ranking.Changes[1].Index, ranking.Changes[2].Index}
	assert.Equal(t, []int{0, 2, 1}, got)
	for i := 1; i < len(ranking.Changes); i++ {
		assert.GreaterOrEqual(t, ranking.Changes[i-1].Effectiveness, ranking.Changes[i].Effectiveness)
	}

	assert.False(t, ranking.Changes[2].Recommended)
	assert.Len(t, ranking.Recommended(), 2)
	assert.InDelta(t, 0.04, ranking.Threshold, 1e-9)
}

func TestRankStableTies(t *testing.T) {
	changes := []Change{
		Rewrite{OriginalText: "first", LengthReduction: 10, QualityDelta: 0.5},
		Rewrite{OriginalText: "second", LengthReduction: 5, QualityDelta: 0.25},
		Rewrite{OriginalText: "third", LengthReduction: 15, QualityDelta: 0.75},
	}
	ranking, err := Rank(changes)
	require.NoError(t, err)
	for i, r := range ranking.Changes {
		assert.Equal(t, i, r.Index)
	}
}

func TestRankEdgeCases(t *testing.T) {
	t.Run("empty batch", func(t *testing.T) {
		ranking, err := Rank(nil)
		require.NoError(t, err)
		assert.Empty(t, ranking.Changes)
		assert.Equal(t, 0.0, ranking.Threshold)
	})

	t.Run("all rejected", func(t *testing.T) {
		ranking, err := Rank([]Change{
			Rewrite{OriginalText: "a", LengthReduction: 10, QualityDelta: -0.5},
			Removal{TextToRemove: "b", LengthReduction: 10, QualityDelta: 0.0, ImpactScore: 0.61},
		})
		require.NoError(t, err)
		assert.Len(t, ranking.Changes, 2, "rejected changes stay visible")
		assert.Empty(t, ranking.Recommended())
		assert.Equal(t, 0.0, ranking.Threshold)
	})

	t.Run("zero length reduction", func(t *testing.T) {
		_, err := Rank([]Change{Rewrite{OriginalText: "a", LengthReduction: 0, QualityDelta: 0.5}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidChange))
	})
}

func TestConstructorsValidate(t *testing.T) {
	_, err := NewRewrite("long text", "short", 4, 0.1)
	assert.NoError(t, err)

	_, err = NewRemoval("text", 4, 0.0, 1.5)
	assert.ErrorIs(t, err, ErrInvalidChange)

	_, err = NewRemoval("", 4, 0.0, 0.1)
	assert.ErrorIs(t, err, ErrInvalidChange)
}

func TestMarshalTagged(t *testing.T) {
	in := Removal{TextToRemove: "Hobbies", LengthReduction: 7, QualityDelta: 0.01, ImpactScore: 0.1}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"removal"`)

	out, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = Unmarshal([]byte(`{"type":"merge","change":{}}`))
	assert.ErrorIs(t, err, ErrInvalidChange)
}
