package prune

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xrsl/tailor/pkg/change"
	"github.com/xrsl/tailor/pkg/version"
)

const draft = "Summary\n\nAlpha alpha alpha.\n\nBeta beta beta.\n\nGamma gamma gamma.\n"

func batch() change.Batch {
	return change.Batch{
		Rewrites: []change.Rewrite{
			{OriginalText: "Gamma gamma gamma.", RewrittenText: "Gamma.", LengthReduction: 12, QualityDelta: 0.05},
		},
		Removals: []change.Removal{
			{TextToRemove: "Alpha alpha alpha.", LengthReduction: 20, QualityDelta: 0.0, ImpactScore: 0.1},
			{TextToRemove: "Beta beta beta.", LengthReduction: 17, QualityDelta: 0.0, ImpactScore: 0.1},
		},
	}
}

func fixed(b change.Batch) ProposerFunc {
	return func(context.Context, Proposal) (change.Batch, error) { return b, nil }
}

type reviewFunc func(Review) Decision

func (f reviewFunc) Review(_ context.Context, r Review) (Decision, error) { return f(r), nil }

func TestRunAlreadyFits(t *testing.T) {
	store := version.NewStore(t.TempDir())
	called := false
	loop := New(store, ProposerFunc(func(context.Context, Proposal) (change.Batch, error) {
		called = true
		return change.Batch{}, nil
	}))

	res, err := loop.Run(context.Background(), Request{DocumentID: "doc", Content: draft, TargetLength: 100})
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, 0, res.Shortfall)
	assert.False(t, called, "proposer must not run when the draft already fits")
}

func TestRunAppliesInRankedOrder(t *testing.T) {
	store := version.NewStore(t.TempDir())
	loop := New(store, fixed(batch()))

	res, err := loop.Run(context.Background(), Request{DocumentID: "doc", Content: draft, TargetLength: 40})
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "Summary\n\nBeta beta beta.\n\nGamma.\n", res.Content)
	assert.Equal(t, 33, res.Length)
	assert.Equal(t, 3, res.Version)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Iterations)

	versions, err := store.List("doc")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, draft, versions[0].Content)
	assert.Contains(t, versions[1].Content, "Gamma.\n", "best effectiveness applied first")
	assert.Equal(t, 1, versions[1].Metadata.Parent)
	assert.Equal(t, 2, versions[2].Metadata.Parent)
}

func TestRunRollbackBranches(t *testing.T) {
	store := version.NewStore(t.TempDir())
	rolledBack := false
	reviewer := reviewFunc(func(r Review) Decision {
		if !rolledBack && r.Version.Number == 2 {
			rolledBack = true
			return RollbackTo(1)
		}
		return Continue()
	})

	var proposed []string
	proposer := ProposerFunc(func(_ context.Context, p Proposal) (change.Batch, error) {
		proposed = append(proposed, p.Content)
		return batch(), nil
	})

	loop := New(store, proposer, WithReviewer(reviewer))
	res, err := loop.Run(context.Background(), Request{DocumentID: "doc", Content: draft, TargetLength: 20})
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "Summary\n\nGamma.\n", res.Content)
	assert.Equal(t, []int{1}, res.Rollbacks)
	require.Len(t, proposed, 2)
	assert.Equal(t, draft, proposed[1], "second batch is proposed against the restored version")

	versions, err := store.List("doc")
	require.NoError(t, err)
	require.Len(t, versions, 5)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Number, "numbers strictly increasing without gaps")
	}
	assert.Equal(t, 1, versions[2].Metadata.Parent, "first version after rollback branches from v1")
	assert.Equal(t, versions[1].Content, versions[2].Content)
	assert.Equal(t, 5, res.Version)
}

func TestRunProposerFailureIsExhausted(t *testing.T) {
	store := version.NewStore(t.TempDir())
	calls := 0
	proposer := ProposerFunc(func(context.Context, Proposal) (change.Batch, error) {
		calls++
		if calls > 1 {
			return change.Batch{}, errors.New("generation service unavailable")
		}
		return change.Batch{Rewrites: batch().Rewrites}, nil
	})

	res, err := New(store, proposer).Run(context.Background(), Request{DocumentID: "doc", Content: draft, TargetLength: 20})
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	require.Error(t, res.Err)
	assert.Contains(t, res.Error, "generation service unavailable")
	assert.Equal(t, 2, res.Version, "applied change is kept")
	assert.Equal(t, 53, res.Length)
	assert.Equal(t, 33, res.Shortfall)
}

func TestRunNoProgressIsExhausted(t *testing.T) {
	tests := []struct {
		name  string
		batch change.Batch
	}{
		{"target not found", change.Batch{Removals: []change.Removal{{TextToRemove: "Volunteer", LengthReduction: 9, ImpactScore: 0.1}}}},
		{"nothing recommended", change.Batch{Removals: []change.Removal{{TextToRemove: "Beta beta beta.", LengthReduction: 17, ImpactScore: 0.9}}}},
		{"empty batch", change.Batch{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := version.NewStore(t.TempDir())
			res, err := New(store, fixed(tt.batch)).Run(context.Background(), Request{DocumentID: "doc", Content: draft, TargetLength: 20})
			require.NoError(t, err)
			assert.Equal(t, StateExhausted, res.State)
			assert.NoError(t, res.Err)
			assert.Equal(t, draft, res.Content)
			assert.Equal(t, 1, res.Version)
			assert.Equal(t, 1, res.Iterations)
		})
	}
}

func TestRunInvalidChangeIsExhausted(t *testing.T) {
	store := version.NewStore(t.TempDir())
	bad := change.Batch{Rewrites: []change.Rewrite{{OriginalText: "Summary", RewrittenText: "S", LengthReduction: 0}}}

	res, err := New(store, fixed(bad)).Run(context.Background(), Request{DocumentID: "doc", Content: draft, TargetLength: 20})
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, res.State)
	assert.ErrorIs(t, res.Err, change.ErrInvalidChange)
}

func TestRunIterationLimit(t *testing.T) {
	store := version.NewStore(t.TempDir())
	shave := fixed(change.Batch{Rewrites: []change.Rewrite{{OriginalText: "a", RewrittenText: "", LengthReduction: 1}}})

	res, err := New(store, shave, WithMaxIterations(2)).Run(context.Background(), Request{DocumentID: "doc", Content: draft, TargetLength: 10})
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 3, res.Version)
	assert.Equal(t, len(draft)-2, res.Length)
}

func TestRunReviewerAccepts(t *testing.T) {
	store := version.NewStore(t.TempDir())
	accept := reviewFunc(func(Review) Decision { return Accept() })

	res, err := New(store, fixed(batch()), WithReviewer(accept)).Run(context.Background(), Request{DocumentID: "doc", Content: draft, TargetLength: 20})
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, res.Version)
	assert.Equal(t, 33, res.Shortfall)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := version.NewStore(t.TempDir())
	res, err := New(store, fixed(batch())).Run(ctx, Request{DocumentID: "doc", Content: draft, TargetLength: 20})
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, res.Version)
}

func TestRunRejectsBadTarget(t *testing.T) {
	_, err := New(version.NewStore(t.TempDir()), fixed(batch())).Run(context.Background(), Request{DocumentID: "doc", Content: draft})
	assert.Error(t, err)
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in      string
		want    Decision
		wantErr bool
	}{
		{"", Continue(), false},
		{"c", Continue(), false},
		{"Accept", Accept(), false},
		{"r 2", RollbackTo(2), false},
		{"rollback v1", RollbackTo(1), false},
		{"r 5", Decision{}, true},
		{"r", Decision{}, true},
		{"maybe", Decision{}, true},
	}
	for _, tt := range tests {
		got, err := parseDecision(tt.in, 5)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestTerminalReviewer(t *testing.T) {
	in := strings.NewReader("what\nr 1\n")
	var out bytes.Buffer
	rv := NewTerminalReviewer(in, &out)

	d, err := rv.Review(context.Background(), Review{
		DocumentID:   "acme-resume",
		Version:      version.Version{Number: 3, Length: 900},
		Change:       change.Removal{TextToRemove: "Hobbies", LengthReduction: 7},
		TargetLength: 800,
	})
	require.NoError(t, err)
	assert.Equal(t, RollbackTo(1), d)
	assert.Contains(t, out.String(), "acme-resume")
	assert.Contains(t, out.String(), "unknown answer")

	_, err = rv.Review(context.Background(), Review{Version: version.Version{Number: 4}, Change: change.Removal{TextToRemove: "x", LengthReduction: 1}})
	assert.Error(t, err, "EOF ends the review")
}

func TestOneLineKeepsRunes(t *testing.T) {
	assert.Equal(t, "Led the team in Zürich", oneLine("Led the team\n  in Zürich"))

	long := strings.Repeat("résumé ", 20)
	got := oneLine(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, []rune(got), 75)
	assert.NotContains(t, got, "�")
	assert.True(t, utf8.ValidString(got))
}
