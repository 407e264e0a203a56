package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"slices"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const vectorKeyPrefix = "vec:"

// BadgerStore wraps an embedded Badger database shared by one or more collections.
type BadgerStore struct {
	db *badger.DB
}

// badgerLogger routes badger output through the standard logger.
type badgerLogger struct {
	debug bool
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any) {
	log.Printf("badger: error: "+msg, items...)
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	log.Printf("badger: warning: "+msg, items...)
}

func (l *badgerLogger) Infof(msg string, items ...any) {
	if l.debug {
		log.Printf("badger: "+msg, items...)
	}
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	if l.debug {
		log.Printf("badger: debug: "+msg, items...)
	}
}

// OpenBadgerStore opens a Badger database at path, creating the directory if needed.
// With inMemory set the path is ignored and nothing touches disk.
func OpenBadgerStore(path string, inMemory bool, debug bool) (*BadgerStore, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, err
			}
		} else if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", path)
		}
		opts = badger.DefaultOptions(path)
	}

	opts.Logger = &badgerLogger{debug: debug}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Collection returns a named collection backed by this store.
func (s *BadgerStore) Collection(name string) *BadgerCollection {
	return &BadgerCollection{store: s, name: name}
}

// BadgerCollection is an embedded vector collection searched by brute-force L2 scan.
type BadgerCollection struct {
	store *BadgerStore
	name  string
}

type badgerRecord struct {
	ID        string              `json:"id"`
	Embedding []float32           `json:"embedding"`
	Document  string              `json:"document"`
	Metadata  domain.FlatMetadata `json:"metadata"`
}

// prefix is vec:<len(name)>:<name>: so that no collection name can extend
// another's prefix.
func (c *BadgerCollection) prefix() []byte {
	return fmt.Appendf(nil, "%s%d:%s:", vectorKeyPrefix, len(c.name), c.name)
}

func (c *BadgerCollection) key(id string) []byte {
	return append(c.prefix(), id...)
}

// Name returns the collection identity.
func (c *BadgerCollection) Name() string {
	return c.name
}

// Add upserts records by id in a single transaction.
func (c *BadgerCollection) Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []domain.FlatMetadata) error {
	if err := checkBatch(ids, embeddings, documents, metadatas); err != nil {
		return err
	}

	return c.store.db.Update(func(txn *badger.Txn) error {
		for i, id := range ids {
			value, err := json.Marshal(badgerRecord{
				ID:        id,
				Embedding: embeddings[i],
				Document:  documents[i],
				Metadata:  metadataOrEmpty(metadatas[i]),
			})
			if err != nil {
				return fmt.Errorf("failed to encode record %s: %w", id, err)
			}
			if err := txn.Set(c.key(id), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query returns the k records nearest to embedding by L2 distance.
func (c *BadgerCollection) Query(ctx context.Context, embedding []float32, k int, where domain.FlatMetadata) ([]domain.VectorHit, error) {
	if k <= 0 {
		return []domain.VectorHit{}, nil
	}

	hits := make([]domain.VectorHit, 0)
	err := c.scan(ctx, where, func(r badgerRecord) {
		hits = append(hits, domain.VectorHit{
			VectorRecord: toVectorRecord(r),
			Distance:     l2Distance(embedding, r.Embedding),
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(hits, func(a, b domain.VectorHit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Get returns every record matching where, ordered by id.
func (c *BadgerCollection) Get(ctx context.Context, where domain.FlatMetadata) ([]domain.VectorRecord, error) {
	records := make([]domain.VectorRecord, 0)
	err := c.scan(ctx, where, func(r badgerRecord) {
		records = append(records, toVectorRecord(r))
	})
	return records, err
}

// Delete removes records by id and/or metadata match. At least one predicate is required.
func (c *BadgerCollection) Delete(ctx context.Context, ids []string, where domain.FlatMetadata) error {
	if len(ids) == 0 && len(where) == 0 {
		return domain.ErrEmptyDeletePredicate
	}

	var targets []string
	if len(where) > 0 {
		idSet := make(map[string]bool, len(ids))
		for _, id := range ids {
			idSet[id] = true
		}
		err := c.scan(ctx, where, func(r badgerRecord) {
			if len(ids) == 0 || idSet[r.ID] {
				targets = append(targets, r.ID)
			}
		})
		if err != nil {
			return err
		}
	} else {
		targets = ids
	}

	if len(targets) == 0 {
		return nil
	}
	return c.store.db.Update(func(txn *badger.Txn) error {
		for _, id := range targets {
			if err := txn.Delete(c.key(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of stored records.
func (c *BadgerCollection) Count(ctx context.Context) (int, error) {
	count := 0
	err := c.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = c.prefix()
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (c *BadgerCollection) scan(ctx context.Context, where domain.FlatMetadata, fn func(badgerRecord)) error {
	return c.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = c.prefix()
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var record badgerRecord
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("failed to decode record %s: %w", iter.Item().Key(), err)
			}
			if matchesWhere(record.Metadata, where) {
				fn(record)
			}
		}
		return nil
	})
}

func matchesWhere(meta, where domain.FlatMetadata) bool {
	for k, v := range where {
		if meta[k] != v {
			return false
		}
	}
	return true
}

func toVectorRecord(r badgerRecord) domain.VectorRecord {
	return domain.VectorRecord{
		ID:        r.ID,
		Embedding: r.Embedding,
		Document:  r.Document,
		Metadata:  r.Metadata,
	}
}

func l2Distance(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	for _, x := range a[n:] {
		sum += float64(x) * float64(x)
	}
	for _, x := range b[n:] {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
