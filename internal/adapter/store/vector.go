package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/port"
)

var _ port.DocumentStore = (*VectorStore)(nil)

// pgUniqueViolation is the SQLSTATE Postgres reports for a broken UNIQUE constraint.
const pgUniqueViolation = "23505"

// VectorStore handles pgvector-specific operations for chunk embeddings. Document
// and audit operations come from the embedded PostgresStore.
type VectorStore struct {
	*PostgresStore
	dimension int
}

// NewVectorStore creates the chunk table for the given dimension and checks it against the
// dimension recorded when the store was first opened.
func NewVectorStore(ctx context.Context, store *PostgresStore, dimension int) (*VectorStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", port.ErrConfiguration, dimension)
	}

	schema := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
	owner_id    TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	content     TEXT NOT NULL,
	embedding   vector(%d) NOT NULL,
	metadata    JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (document_id, ordinal)
);
CREATE INDEX IF NOT EXISTS idx_chunks_owner ON chunks (owner_id);`, dimension)

	if _, err := store.db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate vector store: %w", err)
	}

	if _, err := store.db.ExecContext(ctx,
		`INSERT INTO store_meta (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		metaDimensionKey, strconv.Itoa(dimension),
	); err != nil {
		return nil, fmt.Errorf("record dimension: %w", err)
	}

	var recorded string
	if err := store.db.QueryRowContext(ctx,
		`SELECT value FROM store_meta WHERE key = $1`, metaDimensionKey,
	).Scan(&recorded); err != nil {
		return nil, fmt.Errorf("read dimension: %w", err)
	}
	if err := checkDimension(recorded, dimension); err != nil {
		return nil, err
	}

	return &VectorStore{PostgresStore: store, dimension: dimension}, nil
}

// Dimension returns the embedding length every chunk must have.
func (v *VectorStore) Dimension() int {
	return v.dimension
}

// AppendChunk inserts one chunk. The insert selects from documents so a missing document
// or one owned by someone else inserts nothing.
func (v *VectorStore) AppendChunk(ctx context.Context, in domain.ChunkInput) (string, error) {
	if err := validateChunk(in, v.dimension); err != nil {
		return "", fmt.Errorf("append chunk: %w", err)
	}
	meta, err := encodeMetadata(in.Metadata)
	if err != nil {
		return "", fmt.Errorf("append chunk: %w", err)
	}

	id := uuid.NewString()
	query := `INSERT INTO chunks (id, document_id, owner_id, ordinal, content, embedding, metadata)
	          SELECT $1::text, d.id, d.owner_id, $4::integer, $5::text, $6::vector, $7::jsonb
	          FROM documents d WHERE d.id = $2 AND d.owner_id = $3`

	res, err := v.db.ExecContext(ctx, query,
		id, in.DocumentID, in.OwnerID, in.Ordinal, in.Content, pgvector.NewVector(in.Embedding), meta,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return "", fmt.Errorf("append chunk %d: %w", in.Ordinal, port.ErrOrdinalConflict)
		}
		return "", fmt.Errorf("append chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("append chunk: %w", port.ErrDocumentNotFound)
	}
	return id, nil
}

// FindSimilarChunks performs an exact cosine similarity scan over the owner's chunks.
func (v *VectorStore) FindSimilarChunks(ctx context.Context, ownerID string, queryVector []float32, topK int, minScore float64) ([]domain.ScoredChunk, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	if len(queryVector) != v.dimension {
		return nil, fmt.Errorf("find similar: %w: got %d, store expects %d",
			port.ErrDimensionMismatch, len(queryVector), v.dimension)
	}
	// pgvector yields NaN for a zero query, and NaN sorts above every threshold.
	if topK <= 0 || norm(queryVector) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	query := `SELECT c.id, c.document_id, c.owner_id, c.ordinal, c.content, c.metadata, c.created_at,
	                 1 - (c.embedding <=> $1::vector) AS similarity
	          FROM chunks c
	          WHERE c.owner_id = $2 AND 1 - (c.embedding <=> $1::vector) >= $3
	          ORDER BY c.embedding <=> $1::vector, c.ordinal, c.document_id
	          LIMIT $4`

	rows, err := v.db.QueryContext(ctx, query, pgvector.NewVector(queryVector), ownerID, minScore, topK)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	defer rows.Close()

	results := []domain.ScoredChunk{}
	for rows.Next() {
		var (
			sc   domain.ScoredChunk
			meta []byte
		)
		if err := rows.Scan(
			&sc.ID, &sc.DocumentID, &sc.OwnerID, &sc.Ordinal, &sc.Content, &meta, &sc.CreatedAt, &sc.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		sc.Metadata = decodeMetadata(meta)
		results = append(results, sc)
	}
	return results, rows.Err()
}

// ListChunks returns a document's chunks in ordinal order, embeddings included.
func (v *VectorStore) ListChunks(ctx context.Context, ownerID, documentID string) ([]domain.Chunk, error) {
	if _, err := v.GetDocument(ctx, ownerID, documentID); err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	query := `SELECT id, document_id, owner_id, ordinal, content, embedding, metadata, created_at
	          FROM chunks WHERE document_id = $1 AND owner_id = $2 ORDER BY ordinal`

	rows, err := v.db.QueryContext(ctx, query, documentID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		var (
			c    domain.Chunk
			vec  pgvector.Vector
			meta []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.Ordinal, &c.Content, &vec, &meta, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = vec.Slice()
		c.Metadata = decodeMetadata(meta)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
