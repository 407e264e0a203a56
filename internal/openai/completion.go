package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/policyrag/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultCompletionBaseURL     = "https://api.deepseek.com/v1"
	DefaultCompletionModel       = "deepseek-chat"
	DefaultCompletionMaxTokens   = 4096
	DefaultCompletionTemperature = 0.1
)

// ErrNoChoices is returned when the completion response carries no message
var ErrNoChoices = errors.New("completion returned no choices")

// ChatAPI is the chat completion call the client depends on.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type CompletionConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// CompletionClient answers prompts through an OpenAI-compatible chat endpoint.
type CompletionClient struct {
	api         ChatAPI
	model       string
	maxTokens   int
	temperature float32
}

// NewCompletionClient creates a completion client. Zero values fall back to the defaults.
func NewCompletionClient(cfg CompletionConfig) *CompletionClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultCompletionBaseURL
	}
	return newCompletionClient(openai.NewClientWithConfig(clientConfig(cfg.APIKey, baseURL)), cfg)
}

func newCompletionClient(api ChatAPI, cfg CompletionConfig) *CompletionClient {
	c := &CompletionClient{
		api:         api,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if c.model == "" {
		c.model = DefaultCompletionModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultCompletionMaxTokens
	}
	if c.temperature <= 0 {
		c.temperature = DefaultCompletionTemperature
	}
	return c
}

// Complete sends the conversation and returns the first choice's text.
func (c *CompletionClient) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptyText
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
