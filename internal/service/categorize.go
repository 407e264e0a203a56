package service

import (
	"strings"

	"github.com/cloo-solutions/policyrag/internal/domain"
)

type categoryKeywords struct {
	name     string
	keywords []string
}

type typeKeyword struct {
	keyword string
	docType domain.DocumentType
}

// Categorizer assigns categories and document types from the keyword tables.
// Matching is positional: the first table entry with any matching keyword wins.
type Categorizer struct {
	categories      []categoryKeywords
	types           []typeKeyword
	defaultCategory string
	defaultType     domain.DocumentType
	tables          *domain.Tables
}

// NewCategorizer builds a Categorizer from tables, lower-casing keywords once.
func NewCategorizer(tables *domain.Tables) *Categorizer {
	if tables == nil {
		tables = domain.DefaultTables()
	}

	c := &Categorizer{
		defaultCategory: tables.DefaultCategory,
		defaultType:     tables.DefaultDocumentType,
		tables:          tables,
	}
	for _, rule := range tables.Categories {
		kws := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		c.categories = append(c.categories, categoryKeywords{name: rule.Name, keywords: kws})
	}
	for _, rule := range tables.DocumentTypes {
		c.types = append(c.types, typeKeyword{keyword: strings.ToLower(rule.Keyword), docType: rule.Type})
	}
	return c
}

// Categorize returns the first category whose keyword appears in text or filename.
func (c *Categorizer) Categorize(text, filename string) string {
	textLower := strings.ToLower(text)
	filenameLower := strings.ToLower(filename)

	for _, cat := range c.categories {
		for _, kw := range cat.keywords {
			if strings.Contains(textLower, kw) || strings.Contains(filenameLower, kw) {
				return cat.name
			}
		}
	}
	return c.defaultCategory
}

// DocumentType derives the document type from the filename alone.
func (c *Categorizer) DocumentType(filename string) domain.DocumentType {
	filenameLower := strings.ToLower(filename)
	for _, t := range c.types {
		if strings.Contains(filenameLower, t.keyword) {
			return t.docType
		}
	}
	return c.defaultType
}

// Categories lists every category the table can produce.
func (c *Categorizer) Categories() []string {
	names := make([]string, 0, len(c.categories)+1)
	seenDefault := false
	for _, cat := range c.categories {
		names = append(names, cat.name)
		seenDefault = seenDefault || cat.name == c.defaultCategory
	}
	if !seenDefault {
		names = append(names, c.defaultCategory)
	}
	return names
}
