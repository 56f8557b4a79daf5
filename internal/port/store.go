package port

import (
	"context"

	"github.com/arturoeanton/design-copilot/internal/domain"
)

// DocumentStore persists documents and their embedded chunks.
// Every read is scoped to an owner; a chunk of another owner is never returned.
type DocumentStore interface {
	// CreateDocument registers a document before any of its chunks are written.
	CreateDocument(ctx context.Context, ownerID, filename string, size int64, metadata map[string]string) (string, error)

	// AppendChunk stores one chunk. Fails with ErrDocumentNotFound, ErrDimensionMismatch
	// or ErrOrdinalConflict. Safe to call concurrently for different ordinals.
	AppendChunk(ctx context.Context, in domain.ChunkInput) (string, error)

	// UpdateChunkCount records how many chunks a finished ingestion stored.
	UpdateChunkCount(ctx context.Context, documentID string, count int) error

	// FindSimilarChunks returns up to topK of the owner's chunks scoring at least minScore,
	// ordered by descending cosine similarity and then ascending ordinal.
	FindSimilarChunks(ctx context.Context, ownerID string, query []float32, topK int, minScore float64) ([]domain.ScoredChunk, error)

	GetDocument(ctx context.Context, ownerID, documentID string) (*domain.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error)
	ListChunks(ctx context.Context, ownerID, documentID string) ([]domain.Chunk, error)

	// DeleteDocument removes a document and, by cascade, all of its chunks.
	DeleteDocument(ctx context.Context, ownerID, documentID string) error

	// Dimension is the embedding length every stored chunk must have.
	Dimension() int

	Close() error
}

// AuditStore persists and lists audit records.
type AuditStore interface {
	WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error
	ListAuditLogs(ctx context.Context, userID string, limit int, action string) ([]domain.AuditLog, error)
}
