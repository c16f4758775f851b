// Package importer loads hand-written todo outlines. An outline nests
// children inside their parents and gives estimates as duration strings, so
// it is easier to write than the flat record list `todotree export` emits.
package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutlineSchema is the top-level structure of an outline file.
type OutlineSchema struct {
	Defaults *DefaultsImport `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Todos    []TodoImport    `json:"todos" yaml:"todos"`
}

// DefaultsImport holds values that cascade to every todo in the file.
type DefaultsImport struct {
	// Estimate applies to leaf todos that set none.
	Estimate string `json:"estimate,omitempty" yaml:"estimate,omitempty"`
	// Attributes are merged under each todo's own attributes.
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// TodoImport is one todo and its subtree.
type TodoImport struct {
	// Ref becomes the todo id, so importing the same outline twice updates
	// the todos in place. Todos without a ref get a fresh id.
	Ref        string            `json:"ref,omitempty" yaml:"ref,omitempty"`
	Name       string            `json:"name" yaml:"name"`
	Estimate   string            `json:"estimate,omitempty" yaml:"estimate,omitempty"`
	Completed  bool              `json:"completed,omitempty" yaml:"completed,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Children   []TodoImport      `json:"children,omitempty" yaml:"children,omitempty"`
}

// LoadOutline reads an outline file. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON.
func LoadOutline(path string) (*OutlineSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseOutline(data, filepath.Ext(path))
}

// ParseOutline decodes data in the format named by ext (".json", ".yaml"
// or ".yml").
func ParseOutline(data []byte, ext string) (*OutlineSchema, error) {
	var schema OutlineSchema
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("parsing outline: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("parsing outline: %w", err)
		}
	}
	return &schema, nil
}
