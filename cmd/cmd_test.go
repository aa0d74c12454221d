package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xrsl/tailor/pkg/pipeline"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"short", "short"},
		{"line one\n\n  line two", "line one line two"},
		{strings.Repeat("x", 60), strings.Repeat("x", 47) + "..."},
		{strings.Repeat("é", 60), strings.Repeat("é", 47) + "..."},
	}
	for _, tt := range tests {
		if got := preview(tt.in); got != tt.want {
			t.Errorf("preview(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveRun(t *testing.T) {
	p := pipeline.New(t.TempDir())
	run, err := p.Start(context.Background(), pipeline.Config{})
	if err != nil {
		t.Fatal(err)
	}

	got, err := resolveRun(p, run.ID[:6])
	if err != nil {
		t.Fatalf("resolveRun() error: %v", err)
	}
	if got != run.ID {
		t.Errorf("resolveRun() = %s, want %s", got, run.ID)
	}

	if _, err := resolveRun(p, "zzzz"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestExitError(t *testing.T) {
	err := fmt.Errorf("run: %w", &exitError{code: 2})
	var exit *exitError
	if !errors.As(err, &exit) || exit.code != 2 {
		t.Errorf("errors.As() did not find exit code 2 in %v", err)
	}
}

func TestRankCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.json")
	batch := `{
  "rewrites": [{"original_text": "long text", "rewritten_text": "short", "length_reduction": 4, "quality_delta": 0}],
  "removals": [{"text_to_remove": "filler", "length_reduction": 6, "quality_delta": -0.05, "impact_score": 0.1}]
}`
	if err := os.WriteFile(path, []byte(batch), 0644); err != nil {
		t.Fatal(err)
	}

	rootCmd.SetArgs([]string{"rank", path, "--json"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("rank error: %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"removals":[{"text_to_remove":"x","length_reduction":0}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	rootCmd.SetArgs([]string{"rank", bad})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error for invalid change")
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "prune", "rank", "versions", "status", "config", "init", "doctor", "version", "completion"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}
