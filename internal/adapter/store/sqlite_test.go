package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/port"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustDocument(t *testing.T, s *SQLiteStore, owner, name string) string {
	t.Helper()
	id, err := s.CreateDocument(context.Background(), owner, name, 42, map[string]string{"source": "test"})
	require.NoError(t, err)
	return id
}

func mustChunk(t *testing.T, s *SQLiteStore, owner, docID string, ordinal int, content string, vec []float32) {
	t.Helper()
	_, err := s.AppendChunk(context.Background(), domain.ChunkInput{
		DocumentID: docID,
		OwnerID:    owner,
		Ordinal:    ordinal,
		Content:    content,
		Embedding:  vec,
	})
	require.NoError(t, err)
}

func TestSQLite_CreateAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustDocument(t, s, "alice", "brand.md")

	doc, err := s.GetDocument(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, "alice", doc.OwnerID)
	assert.Equal(t, "brand.md", doc.Filename)
	assert.Equal(t, int64(42), doc.SizeBytes)
	assert.Equal(t, 0, doc.ChunkCount)
	assert.Equal(t, map[string]string{"source": "test"}, doc.Metadata)
	assert.False(t, doc.CreatedAt.IsZero())

	_, err = s.GetDocument(ctx, "bob", id)
	assert.ErrorIs(t, err, port.ErrDocumentNotFound)
}

func TestSQLite_CreateDocumentRequiresOwner(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateDocument(context.Background(), "  ", "x.txt", 0, nil)
	assert.ErrorIs(t, err, port.ErrOwnerRequired)
}

func TestSQLite_AppendChunkErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := mustDocument(t, s, "alice", "a.txt")
	mustChunk(t, s, "alice", docID, 0, "first", []float32{1, 0, 0})

	tests := []struct {
		name string
		in   domain.ChunkInput
		want error
	}{
		{"ordinal taken", domain.ChunkInput{DocumentID: docID, OwnerID: "alice", Ordinal: 0, Content: "dup", Embedding: []float32{1, 0, 0}}, port.ErrOrdinalConflict},
		{"wrong dimension", domain.ChunkInput{DocumentID: docID, OwnerID: "alice", Ordinal: 1, Content: "x", Embedding: []float32{1, 0}}, port.ErrDimensionMismatch},
		{"unknown document", domain.ChunkInput{DocumentID: "missing", OwnerID: "alice", Ordinal: 0, Content: "x", Embedding: []float32{1, 0, 0}}, port.ErrDocumentNotFound},
		{"other owner's document", domain.ChunkInput{DocumentID: docID, OwnerID: "bob", Ordinal: 5, Content: "x", Embedding: []float32{1, 0, 0}}, port.ErrDocumentNotFound},
		{"no owner", domain.ChunkInput{DocumentID: docID, Ordinal: 6, Content: "x", Embedding: []float32{1, 0, 0}}, port.ErrOwnerRequired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.AppendChunk(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	chunks, err := s.ListChunks(ctx, "alice", docID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "first", chunks[0].Content)
}

func TestSQLite_ConcurrentAppendDistinctOrdinals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := mustDocument(t, s, "alice", "big.txt")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendChunk(ctx, domain.ChunkInput{
				DocumentID: docID, OwnerID: "alice", Ordinal: i,
				Content: fmt.Sprintf("chunk %d", i), Embedding: []float32{float32(i), 1, 0},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	chunks, err := s.ListChunks(ctx, "alice", docID)
	require.NoError(t, err)
	require.Len(t, chunks, 20)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
	}
}

func TestSQLite_FindSimilarIsOwnerScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	aliceDoc := mustDocument(t, s, "alice", "a.txt")
	bobDoc := mustDocument(t, s, "bob", "b.txt")
	mustChunk(t, s, "alice", aliceDoc, 0, "alice colours", []float32{1, 0, 0})
	mustChunk(t, s, "bob", bobDoc, 0, "bob colours", []float32{1, 0, 0})

	results, err := s.FindSimilarChunks(ctx, "alice", []float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].OwnerID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)

	results, err = s.FindSimilarChunks(ctx, "carol", []float32{1, 0, 0}, 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	_, err = s.FindSimilarChunks(ctx, "", []float32{1, 0, 0}, 10, 0)
	assert.ErrorIs(t, err, port.ErrOwnerRequired)
}

func TestSQLite_FindSimilarOrderingThresholdAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := mustDocument(t, s, "alice", "a.txt")

	mustChunk(t, s, "alice", docID, 0, "orthogonal", []float32{0, 1, 0})
	mustChunk(t, s, "alice", docID, 1, "close", []float32{0.9, 0.1, 0})
	mustChunk(t, s, "alice", docID, 2, "exact", []float32{2, 0, 0})
	mustChunk(t, s, "alice", docID, 3, "exact twin", []float32{1, 0, 0})
	mustChunk(t, s, "alice", docID, 4, "opposite", []float32{-1, 0, 0})

	results, err := s.FindSimilarChunks(ctx, "alice", []float32{1, 0, 0}, 10, 0.5)
	require.NoError(t, err)

	var contents []string
	for i, r := range results {
		contents = append(contents, r.Content)
		assert.GreaterOrEqual(t, r.Similarity, 0.5)
		if i > 0 {
			assert.LessOrEqual(t, r.Similarity, results[i-1].Similarity)
		}
	}
	// equal scores fall back to ascending ordinal
	assert.Equal(t, []string{"exact", "exact twin", "close"}, contents)

	results, err = s.FindSimilarChunks(ctx, "alice", []float32{1, 0, 0}, 2, -1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Ordinal)
	assert.Equal(t, 3, results[1].Ordinal)

	results, err = s.FindSimilarChunks(ctx, "alice", []float32{1, 0, 0}, 10, 0.999)
	require.NoError(t, err)
	assert.Len(t, results, 2, "never padded below the threshold")
}

func TestSQLite_FindSimilarEdgeCases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := mustDocument(t, s, "alice", "a.txt")
	mustChunk(t, s, "alice", docID, 0, "x", []float32{1, 0, 0})

	results, err := s.FindSimilarChunks(ctx, "alice", []float32{1, 0, 0}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.FindSimilarChunks(ctx, "alice", []float32{0, 0, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = s.FindSimilarChunks(ctx, "alice", []float32{1, 0}, 5, 0)
	assert.ErrorIs(t, err, port.ErrDimensionMismatch)
}

func TestSQLite_DeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := mustDocument(t, s, "alice", "a.txt")
	mustChunk(t, s, "alice", docID, 0, "x", []float32{1, 0, 0})
	mustChunk(t, s, "alice", docID, 1, "y", []float32{0, 1, 0})

	assert.ErrorIs(t, s.DeleteDocument(ctx, "bob", docID), port.ErrDocumentNotFound)
	require.NoError(t, s.DeleteDocument(ctx, "alice", docID))

	results, err := s.FindSimilarChunks(ctx, "alice", []float32{1, 0, 0}, 10, -1)
	require.NoError(t, err)
	assert.Empty(t, results)

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n))
	assert.Equal(t, 0, n)

	assert.ErrorIs(t, s.DeleteDocument(ctx, "alice", docID), port.ErrDocumentNotFound)
}

func TestSQLite_UpdateChunkCountAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := mustDocument(t, s, "alice", "first.txt")
	second := mustDocument(t, s, "alice", "second.txt")
	mustDocument(t, s, "bob", "bob.txt")

	require.NoError(t, s.UpdateChunkCount(ctx, first, 4))
	assert.ErrorIs(t, s.UpdateChunkCount(ctx, "missing", 1), port.ErrDocumentNotFound)

	docs, err := s.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	ids := []string{docs[0].ID, docs[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)
	for _, d := range docs {
		if d.ID == first {
			assert.Equal(t, 4, d.ChunkCount)
		}
	}
}

func TestSQLite_DimensionIsFixedAtFirstOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copilot.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path, 3)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenSQLite(ctx, path, 4)
	assert.ErrorIs(t, err, port.ErrConfiguration)

	s, err = OpenSQLite(ctx, path, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Dimension())
	require.NoError(t, s.Close())
}

func TestSQLite_Audit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteAudit("alice", domain.AuditActionAsk, "/api/v1/ask", "", "", "127.0.0.1", "test"))
	require.NoError(t, s.WriteAudit("alice", domain.AuditActionHTTPRequest, "/api/v1/documents", "", `{"status":200}`, "127.0.0.1", "test"))
	require.NoError(t, s.WriteAudit("bob", domain.AuditActionAsk, "/api/v1/ask", "", "", "127.0.0.1", "test"))

	logs, err := s.ListAuditLogs(ctx, "alice", 10, "")
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = s.ListAuditLogs(ctx, "alice", 10, domain.AuditActionAsk)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "{}", logs[0].Details)
}
