// Package schema describes the fields extracted from a job posting. The
// format follows GitHub issue forms so the same file can double as an
// issue template.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field represents a single posting field
type Field struct {
	ID          string
	Label       string
	Placeholder string
	Required    bool
	Type        string // "input" or "textarea"
}

// Schema represents a parsed posting schema
type Schema struct {
	Name        string
	Description string
	Fields      []Field
}

type rawTemplate struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Body        []rawField `yaml:"body"`
}

type rawField struct {
	Type       string `yaml:"type"`
	ID         string `yaml:"id"`
	Attributes struct {
		Label       string `yaml:"label"`
		Placeholder string `yaml:"placeholder"`
	} `yaml:"attributes"`
	Validations struct {
		Required bool `yaml:"required"`
	} `yaml:"validations"`
}

// Load parses a schema file. An empty path returns the bundled default.
func Load(path string) (*Schema, error) {
	if path == "" {
		return LoadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Schema, error) {
	var raw rawTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	schema := &Schema{
		Name:        raw.Name,
		Description: raw.Description,
	}
	for _, f := range raw.Body {
		// Only support input and textarea types
		if f.Type != "input" && f.Type != "textarea" {
			continue
		}
		if f.ID == "" {
			return nil, fmt.Errorf("failed to parse schema: %s field %q has no id", f.Type, f.Attributes.Label)
		}
		schema.Fields = append(schema.Fields, Field{
			ID:          f.ID,
			Label:       f.Attributes.Label,
			Placeholder: f.Attributes.Placeholder,
			Required:    f.Validations.Required,
			Type:        f.Type,
		})
	}
	if len(schema.Fields) == 0 {
		return nil, fmt.Errorf("failed to parse schema: no input or textarea fields")
	}
	return schema, nil
}

// Posting holds the values extracted for each schema field.
type Posting map[string]any

// GeneratePrompt creates an AI prompt for extracting fields
func (s *Schema) GeneratePrompt(source, text string) string {
	var sb strings.Builder

	sb.WriteString("Extract job posting info. Return ONLY valid JSON with these exact keys:\n")
	for _, f := range s.Fields {
		hint := f.Placeholder
		if hint == "" {
			hint = f.Label
		}
		nullHint := ""
		if !f.Required {
			nullHint = " or null if not found"
		}
		fmt.Fprintf(&sb, "- %s: %s%s\n", f.ID, hint, nullHint)
	}
	fmt.Fprintf(&sb, "\nSource: %s\n\nJob posting:\n%s", source, text)

	return sb.String()
}

// Decode parses a model response into a posting and checks that every
// required field is present.
func (s *Schema) Decode(data []byte) (Posting, error) {
	var p Posting
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode posting: %w", err)
	}
	var missing []string
	for _, f := range s.Fields {
		if f.Required && isEmpty(p[f.ID]) {
			missing = append(missing, f.ID)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("posting is missing required fields: %s", strings.Join(missing, ", "))
	}
	return p, nil
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	default:
		return false
	}
}

// Render formats a posting as markdown, one section per field.
func (s *Schema) Render(p Posting) string {
	var sb strings.Builder

	for _, f := range s.Fields {
		fmt.Fprintf(&sb, "### %s\n\n", f.Label)
		val, ok := p[f.ID]
		if !ok || isEmpty(val) {
			sb.WriteString("_No response_")
		} else {
			sb.WriteString(format(val))
		}
		sb.WriteString("\n\n")
	}

	return strings.TrimSuffix(sb.String(), "\n\n")
}

func format(v any) string {
	list, ok := v.([]any)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	lines := make([]string, len(list))
	for i, item := range list {
		lines[i] = fmt.Sprintf("- %v", item)
	}
	return strings.Join(lines, "\n")
}

// Title returns the posting title (uses "title" or the first required input field)
func (s *Schema) Title(p Posting) string {
	for _, key := range []string{"title", "job-title", "position"} {
		if val, ok := p[key]; ok && !isEmpty(val) {
			return fmt.Sprintf("%v", val)
		}
	}
	for _, f := range s.Fields {
		if f.Required && f.Type == "input" && !strings.Contains(strings.ToLower(f.ID), "url") {
			if val, ok := p[f.ID]; ok && !isEmpty(val) {
				return fmt.Sprintf("%v", val)
			}
		}
	}
	return "Job Posting"
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a name into a lowercase identifier safe for file names.
func Slug(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	if s == "" {
		return "posting"
	}
	return s
}
