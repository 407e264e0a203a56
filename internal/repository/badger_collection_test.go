package repository

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryCollection(t *testing.T, name string) *BadgerCollection {
	t.Helper()
	store, err := OpenBadgerStore("", true, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.Collection(name)
}

func addRecord(t *testing.T, c *BadgerCollection, id string, vec []float32, meta domain.FlatMetadata) {
	t.Helper()
	err := c.Add(context.Background(), []string{id}, [][]float32{vec}, []string{"text of " + id}, []domain.FlatMetadata{meta})
	require.NoError(t, err)
}

func TestBadgerCollection_AddAndGet(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCollection(t, "policies")

	addRecord(t, c, "a_chunk_0", []float32{1, 0}, domain.FlatMetadata{"document_id": "a", "category": "leave"})
	addRecord(t, c, "b_chunk_0", []float32{0, 1}, domain.FlatMetadata{"document_id": "b", "category": "medical"})

	all, err := c.Get(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a_chunk_0", all[0].ID)
	assert.Equal(t, []float32{1, 0}, all[0].Embedding)
	assert.Equal(t, "text of a_chunk_0", all[0].Document)

	medical, err := c.Get(ctx, domain.FlatMetadata{"category": "medical"})
	require.NoError(t, err)
	require.Len(t, medical, 1)
	assert.Equal(t, "b", medical[0].Metadata.DocumentID())

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBadgerCollection_AddUpserts(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCollection(t, "policies")

	addRecord(t, c, "a_chunk_0", []float32{1, 0}, domain.FlatMetadata{"document_id": "a"})
	addRecord(t, c, "a_chunk_0", []float32{0, 1}, domain.FlatMetadata{"document_id": "a"})

	all, err := c.Get(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []float32{0, 1}, all[0].Embedding)
}

func TestBadgerCollection_AddRejectsMismatchedBatch(t *testing.T) {
	c := newMemoryCollection(t, "policies")
	err := c.Add(context.Background(), []string{"a", "b"}, [][]float32{{1}}, []string{"x"}, []domain.FlatMetadata{nil})
	assert.Error(t, err)
}

func TestBadgerCollection_QueryOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCollection(t, "policies")

	addRecord(t, c, "far", []float32{-1, 0}, domain.FlatMetadata{"category": "leave"})
	addRecord(t, c, "near", []float32{1, 0}, domain.FlatMetadata{"category": "leave"})
	addRecord(t, c, "mid", []float32{0, 1}, domain.FlatMetadata{"category": "medical"})

	hits, err := c.Query(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ID)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
	assert.Equal(t, "mid", hits[1].ID)
	assert.InDelta(t, math.Sqrt2, hits[1].Distance, 1e-9)

	filtered, err := c.Query(ctx, []float32{1, 0}, 5, domain.FlatMetadata{"category": "leave"})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "near", filtered[0].ID)
	assert.Equal(t, "far", filtered[1].ID)
	assert.InDelta(t, 2.0, filtered[1].Distance, 1e-9)
}

func TestBadgerCollection_QueryZeroK(t *testing.T) {
	c := newMemoryCollection(t, "policies")
	addRecord(t, c, "a", []float32{1}, nil)

	hits, err := c.Query(context.Background(), []float32{1}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBadgerCollection_Delete(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCollection(t, "policies")

	addRecord(t, c, "a_chunk_0", []float32{1}, domain.FlatMetadata{"document_id": "a"})
	addRecord(t, c, "b_chunk_0", []float32{1}, domain.FlatMetadata{"document_id": "b"})
	addRecord(t, c, "c_chunk_0", []float32{1}, domain.FlatMetadata{"document_id": "c"})

	require.NoError(t, c.Delete(ctx, nil, domain.FlatMetadata{"document_id": "a"}))
	require.NoError(t, c.Delete(ctx, []string{"b_chunk_0"}, nil))

	remaining, err := c.Get(ctx, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "c_chunk_0", remaining[0].ID)
}

func TestBadgerCollection_DeleteRejectsEmptyPredicate(t *testing.T) {
	c := newMemoryCollection(t, "policies")
	addRecord(t, c, "a", []float32{1}, nil)

	err := c.Delete(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, domain.ErrEmptyDeletePredicate))

	count, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBadgerCollection_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, err := OpenBadgerStore("", true, false)
	require.NoError(t, err)
	defer store.Close()

	first := store.Collection("first")
	second := store.Collection("second")
	addRecord(t, first, "a", []float32{1}, nil)

	count, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBadgerCollection_NestedNamesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store, err := OpenBadgerStore("", true, false)
	require.NoError(t, err)
	defer store.Close()

	outer := store.Collection("a")
	inner := store.Collection("a:b")
	addRecord(t, inner, "x", []float32{1}, domain.FlatMetadata{"category": "leave"})

	count, err := outer.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	got, err := outer.Query(ctx, []float32{1}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, outer.Delete(ctx, nil, domain.FlatMetadata{"category": "leave"}))
	count, err = inner.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOpenBadgerStore_Persists(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vectors")

	store, err := OpenBadgerStore(dir, false, false)
	require.NoError(t, err)
	addRecord(t, store.Collection("policies"), "a", []float32{0.5, 0.5}, domain.FlatMetadata{"document_id": "a"})
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStore(dir, false, false)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Collection("policies").Get(ctx, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []float32{0.5, 0.5}, records[0].Embedding)
}

func TestL2Distance(t *testing.T) {
	assert.InDelta(t, 0.0, l2Distance([]float32{1, 2}, []float32{1, 2}), 1e-9)
	assert.InDelta(t, 5.0, l2Distance([]float32{0, 0}, []float32{3, 4}), 1e-9)
	assert.InDelta(t, 1.0, l2Distance([]float32{1}, []float32{1, 1}), 1e-9)
}
