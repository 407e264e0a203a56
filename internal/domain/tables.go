package domain

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTablesYAML []byte

// CategoryRule maps a category name to its trigger keywords.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// DocumentTypeRule maps a filename keyword to a document type.
type DocumentTypeRule struct {
	Keyword string       `yaml:"keyword"`
	Type    DocumentType `yaml:"type"`
}

// Replacement is a literal find/replace pair.
type Replacement struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// EntityTables lists the whole words reported as entities. AmountUnits may
// precede or follow a number; a trailing "." only counts before it.
type EntityTables struct {
	Organizations []string `yaml:"organizations"`
	Positions     []string `yaml:"positions"`
	AmountUnits   []string `yaml:"amount_units"`
}

// Tables is the versioned keyword resource used for categorization, type
// detection, entity extraction and OCR cleanup.
type Tables struct {
	Version             string             `yaml:"version"`
	DefaultCategory     string             `yaml:"default_category"`
	DefaultDocumentType DocumentType       `yaml:"default_document_type"`
	Categories          []CategoryRule     `yaml:"categories"`
	DocumentTypes       []DocumentTypeRule `yaml:"document_types"`
	Entities            EntityTables       `yaml:"entities"`
	OCRFixes            []Replacement      `yaml:"ocr_fixes"`
}

var (
	defaultTablesOnce sync.Once
	defaultTables     *Tables
)

// DefaultTables returns the embedded tables, parsed once per process.
func DefaultTables() *Tables {
	defaultTablesOnce.Do(func() {
		t, err := ParseTables(defaultTablesYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded tables.yaml is invalid: %v", err))
		}
		defaultTables = t
	})
	return defaultTables
}

// ParseTables decodes and validates a tables document.
func ParseTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse tables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the tables are usable.
func (t *Tables) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("tables version is required")
	}
	if t.DefaultCategory == "" {
		return fmt.Errorf("tables default_category is required")
	}
	if t.DefaultDocumentType == "" {
		return fmt.Errorf("tables default_document_type is required")
	}

	seen := make(map[string]bool, len(t.Categories))
	for i, c := range t.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("category %q declared twice", c.Name)
		}
		seen[c.Name] = true
		if len(c.Keywords) == 0 {
			return fmt.Errorf("category %q has no keywords", c.Name)
		}
	}

	for i, r := range t.DocumentTypes {
		if r.Keyword == "" || r.Type == "" {
			return fmt.Errorf("document type rule %d is incomplete", i)
		}
	}

	for field, words := range map[string][]string{
		"organizations": t.Entities.Organizations,
		"positions":     t.Entities.Positions,
		"amount_units":  t.Entities.AmountUnits,
	} {
		for i, w := range words {
			if strings.TrimSpace(w) == "" {
				return fmt.Errorf("entities %s entry %d is empty", field, i)
			}
		}
	}

	for i, r := range t.OCRFixes {
		if r.From == "" {
			return fmt.Errorf("ocr fix %d has an empty pattern", i)
		}
	}

	return nil
}

// CategoryNames lists the categories in declaration order, followed by the default if it is not declared.
func (t *Tables) CategoryNames() []string {
	names := make([]string, 0, len(t.Categories)+1)
	hasDefault := false
	for _, c := range t.Categories {
		names = append(names, c.Name)
		if c.Name == t.DefaultCategory {
			hasDefault = true
		}
	}
	if !hasDefault {
		names = append(names, t.DefaultCategory)
	}
	return names
}
