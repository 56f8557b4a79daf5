package domain

import "time"

// Document is one ingested source file or text blob. Its chunks are owned exclusively by it.
type Document struct {
	ID         string            `json:"id"          db:"id"`
	OwnerID    string            `json:"owner_id"    db:"owner_id"`
	Filename   string            `json:"filename"    db:"filename"`
	SizeBytes  int64             `json:"size_bytes"  db:"size_bytes"`
	ChunkCount int               `json:"chunk_count" db:"chunk_count"`
	Metadata   map[string]string `json:"metadata"    db:"metadata"` // JSON blob
	CreatedAt  time.Time         `json:"created_at"  db:"created_at"`
}

// Chunk is a contiguous, possibly overlapping slice of a document's text with its embedding.
type Chunk struct {
	ID         string            `json:"id"          db:"id"`
	DocumentID string            `json:"document_id" db:"document_id"`
	OwnerID    string            `json:"owner_id"    db:"owner_id"`
	Ordinal    int               `json:"ordinal"     db:"ordinal"`
	Content    string            `json:"content"     db:"content"`
	Embedding  []float32         `json:"-"           db:"embedding"`
	Metadata   map[string]string `json:"metadata"    db:"metadata"`
	CreatedAt  time.Time         `json:"created_at"  db:"created_at"`
}

// ChunkInput carries everything needed to append one chunk to a document.
type ChunkInput struct {
	DocumentID string
	OwnerID    string
	Ordinal    int
	Content    string
	Embedding  []float32
	Metadata   map[string]string
}

// ScoredChunk is returned by similarity search, including the cosine similarity score.
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// Ingestion status values reported in IngestResult.
const (
	IngestStatusCompleted = "completed"
	IngestStatusPartial   = "partial"
	IngestStatusFailed    = "failed"
)

// IngestResult reports how many chunks of a document made it into the store.
type IngestResult struct {
	DocumentID   string `json:"documentId"`
	ChunksStored int    `json:"chunksStored"`
	ChunksFailed int    `json:"chunksFailed"`
	Status       string `json:"status"`
}

// Answer is the grounded completion for a question plus the chunks it was grounded on.
type Answer struct {
	Text    string        `json:"answer"`
	Sources []ScoredChunk `json:"sources"`
}
