package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/telemetry"
)

const (
	// DefaultMinSimilarityScore is the index-level similarity floor for unfiltered search.
	DefaultMinSimilarityScore = 0.3
	// DefaultMaxCandidates caps the over-fetch performed before filtering.
	DefaultMaxCandidates = 15
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Collection is the storage contract the vector index needs.
// Delete must reject a call with neither ids nor a where clause.
type Collection interface {
	Name() string
	Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []domain.FlatMetadata) error
	Query(ctx context.Context, embedding []float32, k int, where domain.FlatMetadata) ([]domain.VectorHit, error)
	Get(ctx context.Context, where domain.FlatMetadata) ([]domain.VectorRecord, error)
	Delete(ctx context.Context, ids []string, where domain.FlatMetadata) error
	Count(ctx context.Context) (int, error)
}

// VectorIndexConfig holds search tuning for the vector index.
type VectorIndexConfig struct {
	MinSimilarityScore float64
	MaxCandidates      int
}

// DefaultVectorIndexConfig returns the stock search tuning.
func DefaultVectorIndexConfig() VectorIndexConfig {
	return VectorIndexConfig{
		MinSimilarityScore: DefaultMinSimilarityScore,
		MaxCandidates:      DefaultMaxCandidates,
	}
}

// VectorIndex stores one normalized embedding per document and ranks documents against queries.
// Add, Delete and Clear hold the write lock; searches share the read lock.
type VectorIndex struct {
	mu         sync.RWMutex
	collection Collection
	embedder   EmbeddingClient
	cfg        VectorIndexConfig
}

// NewVectorIndex creates a VectorIndex over collection.
func NewVectorIndex(collection Collection, embedder EmbeddingClient, cfg VectorIndexConfig) *VectorIndex {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	return &VectorIndex{
		collection: collection,
		embedder:   embedder,
		cfg:        cfg,
	}
}

// MinSimilarityScore returns the configured unfiltered-search floor.
func (v *VectorIndex) MinSimilarityScore() float64 {
	return v.cfg.MinSimilarityScore
}

// Add embeds the whole document and replaces any vectors previously stored for id.
// It returns the number of vectors written.
func (v *VectorIndex) Add(ctx context.Context, id, text string, meta *domain.DocumentMetadata) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "VectorIndex.Add", telemetry.SpanAttributes{
		DocumentID: id,
		Collection: v.collection.Name(),
		Operation:  "add",
	})
	defer span.End()

	flat, err := domain.EncodeMetadata(id, meta)
	if err != nil {
		span.SetError(err)
		return 0, err
	}

	embedding, err := v.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		err = domain.Wrap(domain.ErrEmbeddingFailed, err)
		span.SetError(err)
		return 0, err
	}
	embedding = L2Normalize(embedding)

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.collection.Delete(ctx, nil, domain.FlatMetadata{domain.MetaDocumentID: id}); err != nil {
		err = domain.Wrap(domain.ErrStoreFailed, fmt.Errorf("failed to remove previous vectors for %s: %w", id, err))
		span.SetError(err)
		return 0, err
	}

	if err := v.collection.Add(ctx,
		[]string{domain.ChunkID(id)},
		[][]float32{embedding},
		[]string{text},
		[]domain.FlatMetadata{flat},
	); err != nil {
		err = domain.Wrap(domain.ErrStoreFailed, fmt.Errorf("failed to add %s: %w", id, err))
		span.SetError(err)
		return 0, err
	}

	return 1, nil
}

// Search returns the top k documents for query whose similarity reaches the configured floor.
// Similarity is max(0, 1 - d²/2), the cosine similarity of unit vectors at L2 distance d.
func (v *VectorIndex) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "VectorIndex.Search", telemetry.SpanAttributes{
		Collection: v.collection.Name(),
		Operation:  "search",
	})
	defer span.End()

	hits, err := v.query(ctx, query, k, nil)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		sim := SimilarityFromDistance(hit.Distance)
		if sim < v.cfg.MinSimilarityScore {
			continue
		}
		results = append(results, toSearchResult(hit, sim))
	}
	span.SetCount("candidates", len(hits))
	span.SetCount("above_floor", len(results))
	return rankAndTruncate(results, k), nil
}

// SearchByCategory ranks only documents of category. Similarity is 1 - d with no floor.
func (v *VectorIndex) SearchByCategory(ctx context.Context, query, category string, k int) ([]domain.SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "VectorIndex.SearchByCategory", telemetry.SpanAttributes{
		Category:   category,
		Collection: v.collection.Name(),
		Operation:  "search_by_category",
	})
	defer span.End()

	results, err := v.searchFiltered(ctx, query, k, domain.FlatMetadata{domain.MetaCategory: category})
	if err != nil {
		span.SetError(err)
	}
	return results, err
}

// SearchByType ranks only documents of docType. Similarity is 1 - d with no floor.
func (v *VectorIndex) SearchByType(ctx context.Context, query string, docType domain.DocumentType, k int) ([]domain.SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "VectorIndex.SearchByType", telemetry.SpanAttributes{
		DocumentType: string(docType),
		Collection:   v.collection.Name(),
		Operation:    "search_by_type",
	})
	defer span.End()

	results, err := v.searchFiltered(ctx, query, k, domain.FlatMetadata{domain.MetaDocumentType: string(docType)})
	if err != nil {
		span.SetError(err)
	}
	return results, err
}

func (v *VectorIndex) searchFiltered(ctx context.Context, query string, k int, where domain.FlatMetadata) ([]domain.SearchResult, error) {
	hits, err := v.query(ctx, query, k, where)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, toSearchResult(hit, FilteredSimilarityFromDistance(hit.Distance)))
	}
	return rankAndTruncate(results, k), nil
}

func (v *VectorIndex) query(ctx context.Context, query string, k int, where domain.FlatMetadata) ([]domain.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}

	embedding, err := v.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbeddingFailed, err)
	}
	embedding = L2Normalize(embedding)

	v.mu.RLock()
	defer v.mu.RUnlock()

	hits, err := v.collection.Query(ctx, embedding, v.candidateCount(k), where)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreFailed, err)
	}
	return hits, nil
}

func (v *VectorIndex) candidateCount(k int) int {
	return min(2*k, v.cfg.MaxCandidates)
}

// Delete removes every vector stored for the document id.
func (v *VectorIndex) Delete(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.collection.Delete(ctx, nil, domain.FlatMetadata{domain.MetaDocumentID: id}); err != nil {
		return domain.Wrap(domain.ErrStoreFailed, err)
	}
	return nil
}

// Clear removes every vector. Stores that refuse an empty-predicate delete are
// cleared by listing all records and deleting them by id.
func (v *VectorIndex) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	err := v.collection.Delete(ctx, nil, nil)
	if err == nil {
		return nil
	}
	log.Printf("vector index: bulk delete rejected, deleting by id: %v", err)

	records, err := v.collection.Get(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.ErrStoreFailed, fmt.Errorf("failed to list vectors: %w", err))
	}
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := v.collection.Delete(ctx, ids, nil); err != nil {
		return domain.Wrap(domain.ErrStoreFailed, fmt.Errorf("failed to delete vectors: %w", err))
	}
	return nil
}

// Stats reports the vector count and collection identity.
func (v *VectorIndex) Stats(ctx context.Context) (domain.IndexStats, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	count, err := v.collection.Count(ctx)
	if err != nil {
		return domain.IndexStats{}, domain.Wrap(domain.ErrStoreFailed, err)
	}
	return domain.IndexStats{TotalVectors: count, Collection: v.collection.Name()}, nil
}

// Categories lists the distinct categories present in the index, sorted.
func (v *VectorIndex) Categories(ctx context.Context) ([]string, error) {
	return v.distinct(ctx, domain.MetaCategory)
}

// Types lists the distinct document types present in the index, sorted.
func (v *VectorIndex) Types(ctx context.Context) ([]string, error) {
	return v.distinct(ctx, domain.MetaDocumentType)
}

func (v *VectorIndex) distinct(ctx context.Context, key string) ([]string, error) {
	v.mu.RLock()
	records, err := v.collection.Get(ctx, nil)
	v.mu.RUnlock()
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreFailed, err)
	}

	seen := make(map[string]bool)
	values := []string{}
	for _, r := range records {
		value := r.Metadata[key]
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		values = append(values, value)
	}
	sort.Strings(values)
	return values, nil
}

// Get returns the stored record for the document id.
func (v *VectorIndex) Get(ctx context.Context, id string) (*domain.VectorRecord, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	records, err := v.collection.Get(ctx, domain.FlatMetadata{domain.MetaDocumentID: id})
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreFailed, err)
	}
	if len(records) == 0 {
		return nil, domain.ErrDocumentNotFound
	}
	return &records[0], nil
}

// SimilarityFromDistance converts the L2 distance between unit vectors to cosine similarity, floored at 0.
func SimilarityFromDistance(d float64) float64 {
	return math.Max(0, 1-(d*d)/2)
}

// FilteredSimilarityFromDistance is the linear score used by category and type searches.
// Callers calibrated against its range depend on it staying 1 - d.
func FilteredSimilarityFromDistance(d float64) float64 {
	return 1 - d
}

// L2Normalize returns a unit-length copy of vec. A zero vector is returned unchanged.
func L2Normalize(vec []float32) []float32 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return vec
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, x := range vec {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func toSearchResult(hit domain.VectorHit, similarity float64) domain.SearchResult {
	return domain.SearchResult{
		ID:         hit.ID,
		Document:   hit.Document,
		Metadata:   hit.Metadata,
		Similarity: similarity,
		Distance:   hit.Distance,
	}
}

func rankAndTruncate(results []domain.SearchResult, k int) []domain.SearchResult {
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return 0
		}
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}
