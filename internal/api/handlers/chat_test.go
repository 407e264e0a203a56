package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Chat(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChatResponse), args.Error(1)
}

func (m *MockChatService) Rules() []domain.OverrideRule {
	args := m.Called()
	return args.Get(0).([]domain.OverrideRule)
}

func (m *MockChatService) RegisterRule(rule domain.OverrideRule) (*service.OverrideRuleStore, error) {
	args := m.Called(rule)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.OverrideRuleStore), args.Error(1)
}

func (m *MockChatService) RemoveRule(key string) (*service.OverrideRuleStore, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.OverrideRuleStore), args.Error(1)
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestChatHandler_Chat_Success(t *testing.T) {
	mockSvc := new(MockChatService)
	handler := NewChatHandler(mockSvc)

	mockSvc.On("Chat", mock.Anything, mock.MatchedBy(func(req service.ChatRequest) bool {
		return req.Question == "How many casual days?" && req.CategoryFilter == "leave" && len(req.History) == 1
	})).Return(&service.ChatResponse{
		Response:      "Ten days.",
		Sources:       []domain.Source{{Filename: "leave_organized.txt", Similarity: 0.8, Category: "leave", DocumentType: domain.DocumentTypePolicy, Date: "2023-01-01"}},
		DocumentsUsed: 1,
	}, nil)

	body := `{"question":"How many casual days?","category_filter":"leave","history":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Chat(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp service.ChatResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "Ten days.", resp.Response)
	assert.Equal(t, 1, resp.DocumentsUsed)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "leave_organized.txt", resp.Sources[0].Filename)
	assert.Nil(t, resp.Error)
	mockSvc.AssertExpectations(t)
}

func TestChatHandler_Chat_InvalidBody(t *testing.T) {
	handler := NewChatHandler(new(MockChatService))

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()

	handler.Chat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", decodeError(t, w)["error"])
}

func TestChatHandler_Chat_ConflictingFilters(t *testing.T) {
	mockSvc := new(MockChatService)
	handler := NewChatHandler(mockSvc)

	mockSvc.On("Chat", mock.Anything, mock.Anything).Return(nil, domain.ErrConflictingFilters)

	body := `{"question":"bonus","category_filter":"salary","type_filter":"Policy"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.Chat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrCodeValidation, decodeError(t, w)["code"])
}

func TestChatHandler_ListRules(t *testing.T) {
	mockSvc := new(MockChatService)
	handler := NewChatHandler(mockSvc)

	rules := service.DefaultOverrideRules().Rules()
	mockSvc.On("Rules").Return(rules)

	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	w := httptest.NewRecorder()

	handler.ListRules(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp RulesResponse
	decodeData(t, w, &resp)
	assert.Equal(t, len(rules), resp.Total)
	assert.Equal(t, rules[0].Key, resp.Rules[0].Key)
}

func TestChatHandler_RegisterRule(t *testing.T) {
	mockSvc := new(MockChatService)
	handler := NewChatHandler(mockSvc)

	rule := domain.OverrideRule{Key: "bonus", Keywords: []string{"festival bonus"}, Response: "Two per year.", Confidence: 0.9}
	store, err := service.DefaultOverrideRules().Register(rule)
	require.NoError(t, err)
	mockSvc.On("RegisterRule", rule).Return(store, nil)

	body := `{"key":"bonus","keywords":["festival bonus"],"response":"Two per year.","confidence":0.9}`
	req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	handler.RegisterRule(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp RuleResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "bonus", resp.Rule.Key)
	assert.Equal(t, domain.OverrideSourceDynamic, resp.Rule.Source)
	assert.Equal(t, store.Len(), resp.TotalRules)
}

func TestChatHandler_RegisterRule_Invalid(t *testing.T) {
	mockSvc := new(MockChatService)
	handler := NewChatHandler(mockSvc)

	mockSvc.On("RegisterRule", mock.Anything).Return(nil, domain.ErrInvalidRule)

	req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewReader([]byte(`{"key":"x"}`)))
	w := httptest.NewRecorder()

	handler.RegisterRule(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_RemoveRule(t *testing.T) {
	t.Run("removed", func(t *testing.T) {
		mockSvc := new(MockChatService)
		handler := NewChatHandler(mockSvc)
		mockSvc.On("RemoveRule", "leave_policy").Return(&service.OverrideRuleStore{}, nil)

		r := chi.NewRouter()
		r.Delete("/rules/{key}", handler.RemoveRule)
		req := httptest.NewRequest(http.MethodDelete, "/rules/leave_policy", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("unknown key", func(t *testing.T) {
		mockSvc := new(MockChatService)
		handler := NewChatHandler(mockSvc)
		mockSvc.On("RemoveRule", "nope").Return(nil, domain.ErrRuleNotFound)

		r := chi.NewRouter()
		r.Delete("/rules/{key}", handler.RemoveRule)
		req := httptest.NewRequest(http.MethodDelete, "/rules/nope", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
