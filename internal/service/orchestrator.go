package service

import (
	"context"
	"log"
	"strings"
	"sync/atomic"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/telemetry"
)

const (
	// DefaultMaxDocumentsPerQuery is the number of documents requested from the index.
	DefaultMaxDocumentsPerQuery = 5
	// DefaultSimilarityCutoff is the orchestrator floor; it is looser than the index floor.
	DefaultSimilarityCutoff = 0.2

	EmptyQuestionMessage = "Please provide a question about KFG policies."
	NoResultsMessage     = "I couldn't find any relevant policy information for your question. " +
		"Please try rephrasing your question or ask about a different policy topic."
)

// QueryStatus tags how a query was resolved.
type QueryStatus string

const (
	QueryStatusEmpty     QueryStatus = "empty"
	QueryStatusOverride  QueryStatus = "override"
	QueryStatusNoResults QueryStatus = "no_results"
	QueryStatusResults   QueryStatus = "results"
)

// DocumentSearcher is the retrieval surface the orchestrator needs.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
	SearchByCategory(ctx context.Context, query, category string, k int) ([]domain.SearchResult, error)
	SearchByType(ctx context.Context, query string, docType domain.DocumentType, k int) ([]domain.SearchResult, error)
}

// OrchestratorConfig controls retrieval for a query.
type OrchestratorConfig struct {
	MaxDocumentsPerQuery    int
	SimilarityCutoff        float64
	EnableCategoryFiltering bool
	EnableTypeFiltering     bool
}

// DefaultOrchestratorConfig returns the stock query settings.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxDocumentsPerQuery:    DefaultMaxDocumentsPerQuery,
		SimilarityCutoff:        DefaultSimilarityCutoff,
		EnableCategoryFiltering: true,
		EnableTypeFiltering:     true,
	}
}

// QueryRequest is a question with at most one optional filter.
type QueryRequest struct {
	Question       string
	CategoryFilter string
	TypeFilter     string
}

// QueryResult is the outcome of a query. Message is set for the empty,
// override and no-results outcomes.
type QueryResult struct {
	Status   QueryStatus
	Message  string
	Override *domain.OverrideMatch
	Results  []domain.SearchResult
	Sources  []domain.Source
}

// QueryOrchestrator resolves a question to an override answer or a ranked result set.
type QueryOrchestrator struct {
	searcher DocumentSearcher
	rules    atomic.Pointer[OverrideRuleStore]
	cfg      OrchestratorConfig
}

// NewQueryOrchestrator creates an orchestrator. A nil rules store means no overrides.
func NewQueryOrchestrator(searcher DocumentSearcher, rules *OverrideRuleStore, cfg OrchestratorConfig) *QueryOrchestrator {
	if cfg.MaxDocumentsPerQuery <= 0 {
		cfg.MaxDocumentsPerQuery = DefaultMaxDocumentsPerQuery
	}
	if rules == nil {
		rules = &OverrideRuleStore{}
	}
	o := &QueryOrchestrator{searcher: searcher, cfg: cfg}
	o.rules.Store(rules)
	return o
}

// Rules returns the current rule store.
func (o *QueryOrchestrator) Rules() *OverrideRuleStore {
	return o.rules.Load()
}

// SetRules swaps in a new rule store.
func (o *QueryOrchestrator) SetRules(rules *OverrideRuleStore) {
	o.rules.Store(rules)
}

// RegisterRule adds or replaces a rule at runtime.
func (o *QueryOrchestrator) RegisterRule(rule domain.OverrideRule) (*OverrideRuleStore, error) {
	for {
		current := o.rules.Load()
		next, err := current.Register(rule)
		if err != nil {
			return nil, err
		}
		if o.rules.CompareAndSwap(current, next) {
			return next, nil
		}
	}
}

// RemoveRule drops the rule named key from the live rule set.
func (o *QueryOrchestrator) RemoveRule(key string) (*OverrideRuleStore, error) {
	for {
		current := o.rules.Load()
		next, err := current.Remove(key)
		if err != nil {
			return nil, err
		}
		if o.rules.CompareAndSwap(current, next) {
			return next, nil
		}
	}
}

// Query runs the override check and, failing that, a similarity search.
// Index failures are logged and reported as no results; only conflicting
// filters produce an error.
func (o *QueryOrchestrator) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return &QueryResult{Status: QueryStatusEmpty, Message: EmptyQuestionMessage, Sources: []domain.Source{}}, nil
	}

	if match, ok := o.rules.Load().Match(question); ok {
		return &QueryResult{
			Status:   QueryStatusOverride,
			Message:  match.Rule.Response,
			Override: match,
			Sources:  []domain.Source{},
		}, nil
	}

	category := strings.TrimSpace(req.CategoryFilter)
	docType := strings.TrimSpace(req.TypeFilter)
	if category != "" && docType != "" {
		return nil, domain.ErrConflictingFilters
	}
	if category != "" && !o.cfg.EnableCategoryFiltering {
		log.Printf("orchestrator: category filtering disabled, ignoring filter %q", category)
		category = ""
	}
	if docType != "" && !o.cfg.EnableTypeFiltering {
		log.Printf("orchestrator: type filtering disabled, ignoring filter %q", docType)
		docType = ""
	}

	ctx, span := telemetry.StartSpan(ctx, "QueryOrchestrator.Query", telemetry.SpanAttributes{
		Category:     category,
		DocumentType: docType,
		Operation:    "query",
	})
	defer span.End()

	k := o.cfg.MaxDocumentsPerQuery
	var results []domain.SearchResult
	var err error
	switch {
	case category != "":
		results, err = o.searcher.SearchByCategory(ctx, question, category, k)
	case docType != "":
		results, err = o.searcher.SearchByType(ctx, question, domain.DocumentType(docType), k)
	default:
		results, err = o.searcher.Search(ctx, question, k)
	}
	if err != nil {
		log.Printf("orchestrator: search failed: %v", err)
		span.SetError(err)
		results = nil
	}

	kept := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity >= o.cfg.SimilarityCutoff {
			kept = append(kept, r)
		}
	}
	span.SetCount("results_kept", len(kept))

	if len(kept) == 0 {
		return &QueryResult{Status: QueryStatusNoResults, Message: NoResultsMessage, Sources: []domain.Source{}}, nil
	}

	sources := make([]domain.Source, len(kept))
	for i, r := range kept {
		sources[i] = domain.SourceFromResult(r)
	}
	return &QueryResult{Status: QueryStatusResults, Results: kept, Sources: sources}, nil
}
