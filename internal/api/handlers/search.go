package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/policyrag/internal/api"
	"github.com/cloo-solutions/policyrag/internal/domain"
)

const (
	defaultSearchLimit = 5
	defaultMaxResults  = 10
)

type IndexReader interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
	SearchByCategory(ctx context.Context, query, category string, k int) ([]domain.SearchResult, error)
	SearchByType(ctx context.Context, query string, docType domain.DocumentType, k int) ([]domain.SearchResult, error)
	Categories(ctx context.Context) ([]string, error)
	Types(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (domain.IndexStats, error)
}

type SearchHandler struct {
	index      IndexReader
	maxResults int
}

// NewSearchHandler creates a SearchHandler. Requested limits above maxResults are capped.
func NewSearchHandler(index IndexReader, maxResults int) *SearchHandler {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &SearchHandler{index: index, maxResults: maxResults}
}

type SearchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Limit    int    `json:"limit"`
}

type SearchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

type ListResponse struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Category != "" && req.Type != "" {
		api.HandleError(w, domain.ErrConflictingFilters)
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > h.maxResults {
		limit = h.maxResults
	}

	var (
		results []domain.SearchResult
		err     error
	)
	switch {
	case req.Category != "":
		results, err = h.index.SearchByCategory(r.Context(), query, req.Category, limit)
	case req.Type != "":
		results, err = h.index.SearchByType(r.Context(), query, domain.DocumentType(req.Type), limit)
	default:
		results, err = h.index.Search(r.Context(), query, limit)
	}
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	api.Success(w, http.StatusOK, SearchResponse{Query: query, Results: results, Count: len(results)})
}

func (h *SearchHandler) Categories(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.index.Categories)
}

func (h *SearchHandler) Types(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.index.Types)
}

func (h *SearchHandler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context) ([]string, error)) {
	items, err := fn(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if items == nil {
		items = []string{}
	}
	api.Success(w, http.StatusOK, ListResponse{Items: items, Total: len(items)})
}

func (h *SearchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, stats)
}
