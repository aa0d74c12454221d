package schema

import (
	_ "embed"
)

//go:embed default_template.yml
var defaultSchemaYAML []byte

// DefaultSchemaYAML returns the raw default schema YAML bytes
func DefaultSchemaYAML() []byte {
	return defaultSchemaYAML
}

// LoadDefault returns the bundled default schema
func LoadDefault() (*Schema, error) {
	return parse(defaultSchemaYAML)
}
