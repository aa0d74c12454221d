package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints", "jd_matching.json")

	if err := WriteJSONOnce(path, map[string]int{"v": 1}); err != nil {
		t.Fatalf("first write: %v", err)
	}

	err := WriteJSONOnce(path, map[string]int{"v": 2})
	if !errors.Is(err, ErrRecordExists) {
		t.Fatalf("expected ErrRecordExists, got %v", err)
	}

	var got map[string]int
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got["v"] != 1 {
		t.Errorf("record was overwritten: %v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestEnsureGitignore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".tailor")
	if err := EnsureGitignore(dir); err != nil {
		t.Fatalf("EnsureGitignore: %v", err)
	}
	content, err := ReadFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	if content != "*\n" {
		t.Errorf("unexpected .gitignore content %q", content)
	}
}
