// Package openai talks to OpenAI-compatible endpoints for embeddings and
// chat completions.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the model used for document and query embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings
	DefaultEmbeddingDimensions = 1536
	// DefaultMaxInputRunes keeps a request under the 8191 token input limit
	// of the embedding models for typical policy text.
	DefaultMaxInputRunes = 24000
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	APIKey string
	// BaseURL selects an OpenAI-compatible server; empty means api.openai.com.
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	// MaxInputRunes truncates longer texts before they are sent.
	MaxInputRunes int
}

// Client generates embeddings and checks their dimensions
type Client struct {
	api           EmbeddingAPI
	dimensions    int
	maxInputRunes int
}

// NewClient creates an embedding client for api.openai.com with defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new embedding client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if cfg.MaxInputRunes <= 0 {
		cfg.MaxInputRunes = DefaultMaxInputRunes
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Client{
		api: &embeddingsAdapter{
			client:     openai.NewClientWithConfig(apiCfg),
			model:      cfg.EmbeddingModel,
			dimensions: cfg.EmbeddingDimensions,
		},
		dimensions:    cfg.EmbeddingDimensions,
		maxInputRunes: cfg.MaxInputRunes,
	}
}

// Dimensions returns the embedding size the client enforces.
func (c *Client) Dimensions() int {
	if c.dimensions <= 0 {
		return DefaultEmbeddingDimensions
	}
	return c.dimensions
}

// GenerateEmbedding generates an embedding for the given text. Text beyond
// the configured rune budget is dropped.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, truncateRunes(text, c.maxInputRunes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(embedding) != c.Dimensions() {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.Dimensions(), len(embedding))
	}

	return embedding, nil
}

// truncateRunes returns the first limit runes of s. limit <= 0 means no limit.
func truncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

type embeddingsAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// CreateEmbeddings calls the API to create embeddings
func (a *embeddingsAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	}
	// ada-002 rejects the dimensions parameter
	if a.model != openai.AdaEmbeddingV2 {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("embeddings endpoint returned %d: %w", apiErr.HTTPStatusCode, err)
		}
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}
