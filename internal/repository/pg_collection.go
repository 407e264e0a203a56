package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgCollection stores policy vectors in PostgreSQL with pgvector.
// Several collections share the policy_vectors table, partitioned by name.
type PgCollection struct {
	db   dbtx
	name string
}

func NewPgCollection(pool *pgxpool.Pool, name string) *PgCollection {
	return &PgCollection{db: pool, name: name}
}

func NewPgCollectionWithTx(tx dbtx, name string) *PgCollection {
	return &PgCollection{db: tx, name: name}
}

// Name returns the collection identity.
func (c *PgCollection) Name() string {
	return c.name
}

// Add upserts records by id.
func (c *PgCollection) Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []domain.FlatMetadata) error {
	if err := checkBatch(ids, embeddings, documents, metadatas); err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, c.db, func(tx pgx.Tx) error {
		for i, id := range ids {
			meta, err := json.Marshal(metadataOrEmpty(metadatas[i]))
			if err != nil {
				return fmt.Errorf("failed to encode metadata for %s: %w", id, err)
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO policy_vectors (collection, id, document_id, document, metadata, embedding)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (collection, id) DO UPDATE SET
					document_id = EXCLUDED.document_id,
					document = EXCLUDED.document,
					metadata = EXCLUDED.metadata,
					embedding = EXCLUDED.embedding,
					updated_at = now()`,
				c.name,
				id,
				metadatas[i].DocumentID(),
				documents[i],
				meta,
				pgvector.NewVector(embeddings[i]),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Query returns the k records nearest to embedding by L2 distance, optionally filtered by exact metadata match.
func (c *PgCollection) Query(ctx context.Context, embedding []float32, k int, where domain.FlatMetadata) ([]domain.VectorHit, error) {
	if k <= 0 {
		return []domain.VectorHit{}, nil
	}

	filter, err := json.Marshal(metadataOrEmpty(where))
	if err != nil {
		return nil, err
	}

	rows, err := c.db.Query(ctx,
		`SELECT id, document, metadata, embedding::text, embedding <-> $2 AS distance
		 FROM policy_vectors
		 WHERE collection = $1 AND metadata @> $3::jsonb
		 ORDER BY distance
		 LIMIT $4`,
		c.name, pgvector.NewVector(embedding), string(filter), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := make([]domain.VectorHit, 0, k)
	for rows.Next() {
		var hit domain.VectorHit
		var vec pgvector.Vector
		if err := rows.Scan(&hit.ID, &hit.Document, &hit.Metadata, &vec, &hit.Distance); err != nil {
			return nil, err
		}
		hit.Embedding = vec.Slice()
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Get returns every record matching where, or all records when where is empty.
func (c *PgCollection) Get(ctx context.Context, where domain.FlatMetadata) ([]domain.VectorRecord, error) {
	filter, err := json.Marshal(metadataOrEmpty(where))
	if err != nil {
		return nil, err
	}

	rows, err := c.db.Query(ctx,
		`SELECT id, document, metadata, embedding::text
		 FROM policy_vectors
		 WHERE collection = $1 AND metadata @> $2::jsonb
		 ORDER BY id`,
		c.name, string(filter),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.VectorRecord, 0)
	for rows.Next() {
		var r domain.VectorRecord
		var vec pgvector.Vector
		if err := rows.Scan(&r.ID, &r.Document, &r.Metadata, &vec); err != nil {
			return nil, err
		}
		r.Embedding = vec.Slice()
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delete removes records by id and/or metadata match. At least one predicate is required.
func (c *PgCollection) Delete(ctx context.Context, ids []string, where domain.FlatMetadata) error {
	if len(ids) == 0 && len(where) == 0 {
		return domain.ErrEmptyDeletePredicate
	}

	clauses := []string{"collection = $1"}
	args := []any{c.name}
	if len(ids) > 0 {
		args = append(args, ids)
		clauses = append(clauses, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if len(where) > 0 {
		filter, err := json.Marshal(where)
		if err != nil {
			return err
		}
		args = append(args, string(filter))
		clauses = append(clauses, fmt.Sprintf("metadata @> $%d::jsonb", len(args)))
	}

	_, err := c.db.Exec(ctx, "DELETE FROM policy_vectors WHERE "+strings.Join(clauses, " AND "), args...)
	return err
}

// Count returns the number of stored records.
func (c *PgCollection) Count(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM policy_vectors WHERE collection = $1`,
		c.name,
	).Scan(&count)
	return count, err
}

func metadataOrEmpty(m domain.FlatMetadata) domain.FlatMetadata {
	if m == nil {
		return domain.FlatMetadata{}
	}
	return m
}

func checkBatch(ids []string, embeddings [][]float32, documents []string, metadatas []domain.FlatMetadata) error {
	n := len(ids)
	if len(embeddings) != n || len(documents) != n || len(metadatas) != n {
		return fmt.Errorf("batch length mismatch: %d ids, %d embeddings, %d documents, %d metadatas",
			n, len(embeddings), len(documents), len(metadatas))
	}
	for _, id := range ids {
		if id == "" {
			return domain.ErrMissingRequiredField
		}
	}
	return nil
}
