package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/policyrag/internal/api"
	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/service"
	"github.com/go-chi/chi/v5"
)

type ChatService interface {
	Chat(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error)
	Rules() []domain.OverrideRule
	RegisterRule(rule domain.OverrideRule) (*service.OverrideRuleStore, error)
	RemoveRule(key string) (*service.OverrideRuleStore, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Question       string               `json:"question"`
	CategoryFilter string               `json:"category_filter"`
	TypeFilter     string               `json:"type_filter"`
	History        []domain.ChatMessage `json:"history"`
}

type RulesResponse struct {
	Rules []domain.OverrideRule `json:"rules"`
	Total int                   `json:"total"`
}

type RuleResponse struct {
	Rule       domain.OverrideRule `json:"rule"`
	TotalRules int                 `json:"total_rules"`
}

// Chat answers a question. An empty question is not an error: the chat
// contract carries the prompt to ask again.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.svc.Chat(r.Context(), service.ChatRequest{
		Question:       req.Question,
		CategoryFilter: req.CategoryFilter,
		TypeFilter:     req.TypeFilter,
		History:        req.History,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *ChatHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.svc.Rules()
	api.Success(w, http.StatusOK, RulesResponse{Rules: rules, Total: len(rules)})
}

func (h *ChatHandler) RegisterRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.OverrideRule
	if !api.DecodeJSON(w, r, &rule) {
		return
	}

	store, err := h.svc.RegisterRule(rule)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	stored := rule
	for _, existing := range store.Rules() {
		if existing.Key == rule.Key {
			stored = existing
			break
		}
	}

	api.Success(w, http.StatusCreated, RuleResponse{Rule: stored, TotalRules: store.Len()})
}

func (h *ChatHandler) RemoveRule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		api.Error(w, http.StatusBadRequest, "key is required")
		return
	}

	if _, err := h.svc.RemoveRule(key); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
