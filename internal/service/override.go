package service

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed override_rules.yaml
var builtinRulesYAML []byte

type rulesFile struct {
	Rules []domain.OverrideRule `yaml:"rules"`
}

// OverrideRuleStore is an immutable, ordered set of override rules.
// Register returns a new store and never changes the receiver, so a store can be
// shared between goroutines without locking.
type OverrideRuleStore struct {
	rules []domain.OverrideRule
}

// NewOverrideRuleStore creates a store holding rules in the given order.
func NewOverrideRuleStore(rules ...domain.OverrideRule) (*OverrideRuleStore, error) {
	store := &OverrideRuleStore{}
	for _, r := range rules {
		next, err := store.register(r, domain.OverrideSourceBuiltin)
		if err != nil {
			return nil, err
		}
		store = next
	}
	return store, nil
}

// DefaultOverrideRules returns the built-in rule set.
func DefaultOverrideRules() *OverrideRuleStore {
	store, err := ParseOverrideRules(builtinRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in override rules are invalid: %v", err))
	}
	return store
}

// ParseOverrideRules decodes a YAML rules document.
func ParseOverrideRules(data []byte) (*OverrideRuleStore, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.Wrap(domain.ErrInvalidRule, fmt.Errorf("failed to parse rules: %w", err))
	}
	return NewOverrideRuleStore(file.Rules...)
}

// LoadOverrideRules reads rules from path, or returns the built-in rules when path is empty.
func LoadOverrideRules(path string) (*OverrideRuleStore, error) {
	if path == "" {
		return DefaultOverrideRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseOverrideRules(data)
}

// Register returns a store with rule added. A rule with an existing key replaces
// it in place; a new key is appended after the existing rules.
func (s *OverrideRuleStore) Register(rule domain.OverrideRule) (*OverrideRuleStore, error) {
	return s.register(rule, domain.OverrideSourceDynamic)
}

func (s *OverrideRuleStore) register(rule domain.OverrideRule, defaultSource string) (*OverrideRuleStore, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if rule.Source == "" {
		rule.Source = defaultSource
	}
	rule.Keywords = append([]string(nil), rule.Keywords...)

	rules := make([]domain.OverrideRule, 0, len(s.rules)+1)
	replaced := false
	for _, existing := range s.rules {
		if existing.Key == rule.Key {
			rules = append(rules, rule)
			replaced = true
			continue
		}
		rules = append(rules, existing)
	}
	if !replaced {
		rules = append(rules, rule)
	}
	return &OverrideRuleStore{rules: rules}, nil
}

// Remove returns a store without the rule named key.
func (s *OverrideRuleStore) Remove(key string) (*OverrideRuleStore, error) {
	rules := make([]domain.OverrideRule, 0, len(s.rules))
	found := false
	for _, existing := range s.rules {
		if existing.Key == key {
			found = true
			continue
		}
		rules = append(rules, existing)
	}
	if !found {
		return nil, domain.ErrRuleNotFound
	}
	return &OverrideRuleStore{rules: rules}, nil
}

// Match returns the first rule, in store order, with a keyword contained in question.
// Matching is case-insensitive.
func (s *OverrideRuleStore) Match(question string) (*domain.OverrideMatch, bool) {
	q := strings.ToLower(question)
	for _, rule := range s.rules {
		for _, kw := range rule.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if strings.Contains(q, kw) {
				return &domain.OverrideMatch{Rule: rule, Keyword: kw}, true
			}
		}
	}
	return nil, false
}

// Rules returns a copy of the rules in match order.
func (s *OverrideRuleStore) Rules() []domain.OverrideRule {
	out := make([]domain.OverrideRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules.
func (s *OverrideRuleStore) Len() int {
	return len(s.rules)
}
