package service

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/repository"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const fakeEmbeddingDims = 16

// fakeEmbedder returns fixed vectors for known texts and a bag-of-words hash otherwise.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return hashEmbedding(text), nil
}

func hashEmbedding(text string) []float32 {
	vec := make([]float32, fakeEmbeddingDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%fakeEmbeddingDims]++
	}
	return vec
}

func newTestCollection(t *testing.T) *repository.BadgerCollection {
	t.Helper()
	store, err := repository.OpenBadgerStore("", true, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.Collection("kfg_policies_test")
}

func newTestIndex(t *testing.T, embedder EmbeddingClient, minScore float64) *VectorIndex {
	t.Helper()
	return NewVectorIndex(newTestCollection(t), embedder, VectorIndexConfig{
		MinSimilarityScore: minScore,
		MaxCandidates:      DefaultMaxCandidates,
	})
}

func testMetadata(filename, category string, docType domain.DocumentType) *domain.DocumentMetadata {
	return &domain.DocumentMetadata{
		Filename:         filename,
		OriginalFilename: filename,
		Category:         category,
		DocumentType:     docType,
		Date:             domain.DateUnknown,
		Entities:         domain.Entities{Organizations: []string{}, Positions: []string{}, Amounts: []string{}},
		Version:          domain.MetadataVersion,
		Status:           domain.StatusProcessed,
	}
}

// MockCollection is a mock implementation of Collection
type MockCollection struct {
	mock.Mock
}

func (m *MockCollection) Name() string {
	return "mock"
}

func (m *MockCollection) Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []domain.FlatMetadata) error {
	args := m.Called(ctx, ids, embeddings, documents, metadatas)
	return args.Error(0)
}

func (m *MockCollection) Query(ctx context.Context, embedding []float32, k int, where domain.FlatMetadata) ([]domain.VectorHit, error) {
	args := m.Called(ctx, embedding, k, where)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.VectorHit), args.Error(1)
}

func (m *MockCollection) Get(ctx context.Context, where domain.FlatMetadata) ([]domain.VectorRecord, error) {
	args := m.Called(ctx, where)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.VectorRecord), args.Error(1)
}

func (m *MockCollection) Delete(ctx context.Context, ids []string, where domain.FlatMetadata) error {
	args := m.Called(ctx, ids, where)
	return args.Error(0)
}

func (m *MockCollection) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
