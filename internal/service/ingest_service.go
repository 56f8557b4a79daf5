package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arturoeanton/design-copilot/internal/chunker"
	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/port"
)

// IngestConfig tunes chunking and the embedding fan-out.
type IngestConfig struct {
	ChunkSize int
	Overlap   int
	// BatchSize is the number of chunks sent per EmbedBatch call.
	BatchSize int
	// Workers bounds the number of batches in flight for one document.
	Workers int
	// StoreTimeout bounds each AppendChunk call; 0 disables it.
	StoreTimeout time.Duration
}

// DefaultIngestConfig returns 800/150 word windows, batches of 16 and 4 workers.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		ChunkSize:    chunker.DefaultChunkSize,
		Overlap:      chunker.DefaultOverlap,
		BatchSize:    16,
		Workers:      4,
		StoreTimeout: 10 * time.Second,
	}
}

// ProgressFunc is called once per chunk outcome with the number of chunks settled so far.
type ProgressFunc func(done, total int)

// IngestRequest is one text payload to chunk, embed and store for an owner.
type IngestRequest struct {
	OwnerID   string
	Filename  string
	Text      string
	SizeBytes int64
	Metadata  map[string]string
	Progress  ProgressFunc
}

// IngestService runs the chunk → embed → store pipeline.
type IngestService struct {
	store    port.DocumentStore
	embedder port.Embedder
	cfg      IngestConfig
}

// NewIngestService validates the chunker parameters and returns the pipeline.
func NewIngestService(store port.DocumentStore, embedder port.Embedder, cfg IngestConfig) (*IngestService, error) {
	if err := chunker.Validate(cfg.ChunkSize, cfg.Overlap); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &IngestService{store: store, embedder: embedder, cfg: cfg}, nil
}

// pendingChunk is a chunk with its ordinal fixed before dispatch.
type pendingChunk struct {
	ordinal int
	content string
}

// tally collects per-chunk outcomes from concurrent batches.
type tally struct {
	mu       sync.Mutex
	stored   int
	failed   int
	total    int
	progress ProgressFunc
}

func (t *tally) record(ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ok {
		t.stored++
	} else {
		t.failed++
	}
	if t.progress != nil {
		t.progress(t.stored+t.failed, t.total)
	}
}

// Ingest creates the document, then embeds and appends its chunks with bounded parallelism.
//
// A chunk that fails to embed or store is logged and counted; the rest of the document
// still goes through. A dimension mismatch, a configuration error or rejected provider
// credentials abort the run, as does cancelling ctx. Chunks written before an abort are kept: there is no rollback, and
// re-ingesting creates a new document.
//
// When nothing could be stored, the result is returned together with port.ErrIngestionFailed.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*domain.IngestResult, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, fmt.Errorf("ingest: %w: owner id is required", port.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("ingest: %w: text is empty", port.ErrInvalidInput)
	}
	if req.Filename == "" {
		req.Filename = "untitled.txt"
	}
	if req.SizeBytes <= 0 {
		req.SizeBytes = int64(len(req.Text))
	}

	docID, err := s.store.CreateDocument(ctx, req.OwnerID, req.Filename, req.SizeBytes, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("ingest: create document: %w", err)
	}

	texts, err := chunker.Split(req.Text, s.cfg.ChunkSize, s.cfg.Overlap)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	chunks := make([]pendingChunk, len(texts))
	for i, t := range texts {
		chunks[i] = pendingChunk{ordinal: i, content: t}
	}

	slog.Info("ingesting document",
		"owner_id", req.OwnerID, "document_id", docID, "filename", req.Filename, "chunks", len(chunks))

	t := &tally{total: len(chunks), progress: req.Progress}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		batch := chunks[start:min(start+s.cfg.BatchSize, len(chunks))]
		g.Go(func() error {
			return s.ingestBatch(gctx, req, docID, batch, t)
		})
	}
	runErr := g.Wait()

	result := &domain.IngestResult{
		DocumentID:   docID,
		ChunksStored: t.stored,
		ChunksFailed: t.failed,
	}
	switch {
	case t.stored == 0:
		result.Status = domain.IngestStatusFailed
	case t.stored < len(chunks):
		result.Status = domain.IngestStatusPartial
	default:
		result.Status = domain.IngestStatusCompleted
	}

	// The count must reflect what is in the store even when the run was aborted.
	if err := s.store.UpdateChunkCount(context.WithoutCancel(ctx), docID, t.stored); err != nil {
		return result, fmt.Errorf("ingest: update chunk count: %w", err)
	}

	if runErr != nil {
		slog.Error("ingestion aborted",
			"owner_id", req.OwnerID, "document_id", docID, "stored", t.stored, "error", runErr)
		if ctx.Err() != nil {
			return result, fmt.Errorf("ingest: %w", ctx.Err())
		}
		return result, fmt.Errorf("ingest: %w", runErr)
	}

	if t.stored == 0 {
		slog.Error("ingestion stored no chunks",
			"owner_id", req.OwnerID, "document_id", docID, "failed", t.failed)
		return result, fmt.Errorf("ingest %s: %w: all %d chunks failed", docID, port.ErrIngestionFailed, t.failed)
	}

	slog.Info("document ingested",
		"owner_id", req.OwnerID, "document_id", docID,
		"stored", t.stored, "failed", t.failed, "status", result.Status)
	return result, nil
}

// ingestBatch embeds one batch and appends each chunk. Only fatal errors are returned.
func (s *IngestService) ingestBatch(ctx context.Context, req IngestRequest, docID string, batch []pendingChunk, t *tally) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var vectors [][]float32
	if len(batch) > 1 {
		v, err := s.embedBatch(ctx, batch)
		switch {
		case err == nil:
			vectors = v
		case fatal(ctx, err):
			return err
		default:
			// Fall back to one call per chunk so a single bad chunk only fails itself.
			slog.Warn("batch embed failed, retrying chunks one by one",
				"owner_id", req.OwnerID, "document_id", docID,
				"first_ordinal", batch[0].ordinal, "size", len(batch), "error", err)
		}
	}

	for i, c := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		var vec []float32
		if vectors != nil {
			vec = vectors[i]
		} else {
			var err error
			vec, err = s.embedder.Embed(ctx, c.content)
			if err != nil {
				if fatal(ctx, err) {
					return err
				}
				logChunkFailure(req.OwnerID, docID, c.ordinal, "embed", err)
				t.record(false)
				continue
			}
		}

		if err := s.appendChunk(ctx, req, docID, c, vec); err != nil {
			if errors.Is(err, port.ErrDimensionMismatch) {
				return fmt.Errorf("%w: %w", port.ErrConfiguration, err)
			}
			if fatal(ctx, err) {
				return err
			}
			logChunkFailure(req.OwnerID, docID, c.ordinal, "store", err)
			t.record(false)
			continue
		}
		t.record(true)
	}
	return nil
}

func (s *IngestService) embedBatch(ctx context.Context, batch []pendingChunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", port.ErrProviderUnavailable, len(vectors), len(batch))
	}
	return vectors, nil
}

func (s *IngestService) appendChunk(ctx context.Context, req IngestRequest, docID string, c pendingChunk, vec []float32) error {
	if s.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()
	}
	_, err := s.store.AppendChunk(ctx, domain.ChunkInput{
		DocumentID: docID,
		OwnerID:    req.OwnerID,
		Ordinal:    c.ordinal,
		Content:    c.content,
		Embedding:  vec,
		Metadata:   map[string]string{"filename": req.Filename},
	})
	return err
}

// fatal reports whether err must stop the whole ingestion instead of a single chunk.
func fatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, port.ErrConfiguration) ||
		errors.Is(err, port.ErrDimensionMismatch) ||
		errors.Is(err, port.ErrProviderAuth)
}

// logChunkFailure never includes chunk content.
func logChunkFailure(ownerID, docID string, ordinal int, stage string, err error) {
	slog.Warn("chunk ingestion failed",
		"owner_id", ownerID,
		"document_id", docID,
		"ordinal", ordinal,
		"stage", stage,
		"error_class", errorClass(err),
		"error", err,
	)
}

// errorClass names the taxonomy bucket of err for logs.
func errorClass(err error) string {
	switch {
	case errors.Is(err, port.ErrProviderRateLimited):
		return "provider_rate_limited"
	case errors.Is(err, port.ErrProviderAuth):
		return "provider_auth"
	case errors.Is(err, port.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, port.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, port.ErrOrdinalConflict):
		return "ordinal_conflict"
	case errors.Is(err, port.ErrDocumentNotFound):
		return "document_not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
