package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/telemetry"
)

// DefaultMaxContextLength bounds the characters of document text sent for completion.
const DefaultMaxContextLength = 8000

const chatSystemPrompt = `You are an assistant that answers questions about company HR and administrative policies.
Answer only from the policy documents provided in the context. Quote amounts, job groups and dates exactly as written.
If the documents do not contain the answer, say that the information is not available in the indexed policies.`

// Completer generates a completion for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// ChatRequest is a question with optional filters and prior conversation turns.
type ChatRequest struct {
	Question       string               `json:"question"`
	CategoryFilter string               `json:"category_filter,omitempty"`
	TypeFilter     string               `json:"type_filter,omitempty"`
	History        []domain.ChatMessage `json:"history,omitempty"`
}

// OverrideInfo records which override rule answered a question.
type OverrideInfo struct {
	Key        string  `json:"key"`
	Keyword    string  `json:"keyword"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ChatResponse is the chat contract returned to callers.
type ChatResponse struct {
	Response      string          `json:"response"`
	Sources       []domain.Source `json:"sources"`
	Error         *string         `json:"error"`
	DocumentsUsed int             `json:"documents_used"`
	Override      *OverrideInfo   `json:"override,omitempty"`
}

// ChatConfig controls context assembly.
type ChatConfig struct {
	MaxContextLength int
}

// ChatService answers questions using the orchestrator and an optional completer.
type ChatService struct {
	orchestrator *QueryOrchestrator
	completer    Completer
	cfg          ChatConfig
}

// NewChatService creates a ChatService. With a nil completer answers list the retrieved sources.
func NewChatService(orchestrator *QueryOrchestrator, completer Completer, cfg ChatConfig) *ChatService {
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = DefaultMaxContextLength
	}
	return &ChatService{
		orchestrator: orchestrator,
		completer:    completer,
		cfg:          cfg,
	}
}

// Chat answers req. Only invalid requests return an error; completion failures
// are reported inside the response.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChatService.Chat", telemetry.SpanAttributes{
		Category:     req.CategoryFilter,
		DocumentType: req.TypeFilter,
		Operation:    "chat",
	})
	defer span.End()

	result, err := s.orchestrator.Query(ctx, QueryRequest{
		Question:       req.Question,
		CategoryFilter: req.CategoryFilter,
		TypeFilter:     req.TypeFilter,
	})
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case QueryStatusEmpty, QueryStatusNoResults:
		return &ChatResponse{Response: result.Message, Sources: []domain.Source{}}, nil
	case QueryStatusOverride:
		return &ChatResponse{
			Response: result.Message,
			Sources:  []domain.Source{},
			Override: &OverrideInfo{
				Key:        result.Override.Rule.Key,
				Keyword:    result.Override.Keyword,
				Confidence: result.Override.Rule.Confidence,
				Source:     result.Override.Rule.Source,
			},
		}, nil
	}

	if s.completer == nil {
		return &ChatResponse{
			Response:      retrievalOnlyResponse(result.Sources),
			Sources:       result.Sources,
			DocumentsUsed: len(result.Results),
		}, nil
	}

	messages := s.buildMessages(req, result.Results)
	answer, err := s.completer.Complete(ctx, messages)
	if err != nil {
		log.Printf("chat: completion failed: %v", err)
		span.SetError(err)
		msg := err.Error()
		return &ChatResponse{
			Response: fmt.Sprintf("An error occurred while processing your question: %s", msg),
			Sources:  []domain.Source{},
			Error:    &msg,
		}, nil
	}

	return &ChatResponse{
		Response:      answer,
		Sources:       result.Sources,
		DocumentsUsed: len(result.Results),
	}, nil
}

// RegisterRule adds an override rule to the live rule set.
func (s *ChatService) RegisterRule(rule domain.OverrideRule) (*OverrideRuleStore, error) {
	return s.orchestrator.RegisterRule(rule)
}

// RemoveRule drops an override rule from the live rule set.
func (s *ChatService) RemoveRule(key string) (*OverrideRuleStore, error) {
	return s.orchestrator.RemoveRule(key)
}

// Rules returns the live override rules.
func (s *ChatService) Rules() []domain.OverrideRule {
	return s.orchestrator.Rules().Rules()
}

func (s *ChatService) buildMessages(req ChatRequest, results []domain.SearchResult) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(req.History)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: chatSystemPrompt})
	for _, m := range req.History {
		if m.Role == domain.RoleUser || m.Role == domain.RoleAssistant {
			messages = append(messages, m)
		}
	}

	prompt := fmt.Sprintf("Policy documents:\n\n%s\nQuestion: %s",
		BuildContext(results, s.cfg.MaxContextLength),
		strings.TrimSpace(req.Question),
	)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: prompt})
	return messages
}

// BuildContext renders ranked documents for the completion prompt, keeping the
// document text within maxChars characters. Later documents are cut first.
func BuildContext(results []domain.SearchResult, maxChars int) string {
	var b strings.Builder
	remaining := maxChars

	for i, r := range results {
		if remaining <= 0 {
			break
		}
		text := r.Document
		if n := utf8.RuneCountInString(text); n > remaining {
			text = string([]rune(text)[:remaining])
		}
		remaining -= utf8.RuneCountInString(text)

		fmt.Fprintf(&b, "[Document %d] %s (category: %s, type: %s, date: %s, similarity: %.3f)\n%s\n\n",
			i+1,
			r.Metadata.Filename(),
			r.Metadata.Category(),
			r.Metadata.DocumentType(),
			r.Metadata.Date(),
			r.Similarity,
			text,
		)
	}
	return b.String()
}

func retrievalOnlyResponse(sources []domain.Source) string {
	var b strings.Builder
	b.WriteString("Relevant policy documents:\n")
	for _, src := range sources {
		fmt.Fprintf(&b, "- %s (%s, %s, similarity %.2f)\n", src.Filename, src.Category, src.DocumentType, src.Similarity)
	}
	return strings.TrimRight(b.String(), "\n")
}
