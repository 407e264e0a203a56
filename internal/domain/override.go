package domain

import (
	"fmt"
	"strings"
)

const (
	// OverrideSourceBuiltin marks rules shipped with the service.
	OverrideSourceBuiltin = "Custom Policy Knowledge Base"
	// OverrideSourceDynamic marks rules registered at runtime.
	OverrideSourceDynamic = "Dynamically Added Custom Policy"
)

// OverrideRule is a keyword-triggered canned answer that bypasses retrieval.
type OverrideRule struct {
	Key        string   `json:"key" yaml:"key"`
	Keywords   []string `json:"keywords" yaml:"keywords"`
	Response   string   `json:"response" yaml:"response"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Source     string   `json:"source" yaml:"source"`
}

// OverrideMatch describes which rule fired and on which keyword.
type OverrideMatch struct {
	Rule    OverrideRule `json:"rule"`
	Keyword string       `json:"keyword"`
}

// Validate checks that a rule can ever match and has an answer.
func (r *OverrideRule) Validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return Wrap(ErrInvalidRule, fmt.Errorf("key is required"))
	}
	if strings.TrimSpace(r.Response) == "" {
		return Wrap(ErrInvalidRule, fmt.Errorf("rule %q has no response", r.Key))
	}
	hasKeyword := false
	for _, kw := range r.Keywords {
		if strings.TrimSpace(kw) != "" {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return Wrap(ErrInvalidRule, fmt.Errorf("rule %q has no keywords", r.Key))
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return Wrap(ErrInvalidRule, fmt.Errorf("rule %q confidence %v outside [0,1]", r.Key, r.Confidence))
	}
	return nil
}
