package workflow

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/xrsl/tailor/pkg/schema"
	"github.com/xrsl/tailor/pkg/utils"
)

//go:embed defaults/*.md
var defaults embed.FS

const (
	Dir               = ".tailor/workflows"
	DefaultSchemaPath = ".tailor/posting-schema.yaml"
)

// Prompt names
const (
	Match            = "match"
	DraftResume      = "draft_resume"
	DraftCoverLetter = "draft_cover_letter"
	Evaluate         = "evaluate"
	Polish           = "polish"
	FactCheck        = "fact_check"
	DetectAI         = "detect_ai"
	Humanize         = "humanize"
	ProposeChanges   = "propose_changes"
)

// Names lists every prompt in the set.
var Names = []string{
	Match, DraftResume, DraftCoverLetter, Evaluate, Polish,
	FactCheck, DetectAI, Humanize, ProposeChanges,
}

// Default returns the embedded prompt text for name.
func Default(name string) (string, error) {
	b, err := defaults.ReadFile("defaults/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("unknown workflow %q", name)
	}
	return string(b), nil
}

// Init creates the .tailor/ directory structure with default workflow
// files. Existing files are kept. If schemaPath is empty, uses
// DefaultSchemaPath.
func Init(dir, schemaPath string) error {
	if schemaPath == "" {
		schemaPath = DefaultSchemaPath
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(schemaPath), 0755); err != nil {
		return err
	}
	if !utils.FileExists(schemaPath) {
		if err := os.WriteFile(schemaPath, schema.DefaultSchemaYAML(), 0644); err != nil {
			return err
		}
	}
	return write(dir, false)
}

// Reset overwrites workflow files with defaults
func Reset(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return write(dir, true)
}

func write(dir string, overwrite bool) error {
	for _, name := range Names {
		path := filepath.Join(dir, name+".md")
		if !overwrite && utils.FileExists(path) {
			continue
		}
		text, err := Default(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(text), 0644); err != nil {
			return err
		}
	}
	return nil
}

// Set is a parsed collection of prompt templates.
type Set struct {
	templates map[string]*template.Template
}

// Load parses every prompt, preferring files in dir over the embedded
// defaults. An empty dir loads only the defaults.
func Load(dir string) (*Set, error) {
	s := &Set{templates: make(map[string]*template.Template, len(Names))}
	for _, name := range Names {
		text, err := source(dir, name)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse workflow %s: %w", name, err)
		}
		s.templates[name] = tmpl
	}
	return s, nil
}

func source(dir, name string) (string, error) {
	if dir != "" {
		content, err := os.ReadFile(filepath.Join(dir, name+".md"))
		if err == nil {
			return string(content), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read workflow %s: %w", name, err)
		}
	}
	return Default(name)
}

// Render executes prompt name with data.
func (s *Set) Render(name string, data any) (string, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown workflow %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render workflow %s: %w", name, err)
	}
	return buf.String(), nil
}
