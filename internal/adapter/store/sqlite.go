package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/port"
)

var (
	_ port.DocumentStore = (*SQLiteStore)(nil)
	_ port.AuditStore    = (*SQLiteStore)(nil)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	filename    TEXT NOT NULL,
	size_bytes  INTEGER NOT NULL DEFAULT 0,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents (owner_id, created_at);

CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
	owner_id    TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	content     TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	UNIQUE (document_id, ordinal)
);
CREATE INDEX IF NOT EXISTS idx_chunks_owner ON chunks (owner_id);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	resource    TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '{}',
	ip          TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs (user_id, created_at);
`

// SQLiteStore is a single-file DocumentStore for local runs and tests. Similarity is an
// exact scan computed in Go over the owner's chunks.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
	now       func() time.Time
}

// OpenSQLite opens or creates a SQLite database at path. ":memory:" gives a private
// in-memory database.
func OpenSQLite(ctx context.Context, path string, dimension int) (*SQLiteStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", port.ErrConfiguration, dimension)
	}

	dsn := path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writes are serialised and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, dimension: dimension, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO store_meta (key, value) VALUES (?, ?)`,
		metaDimensionKey, strconv.Itoa(s.dimension),
	); err != nil {
		return fmt.Errorf("record dimension: %w", err)
	}

	var recorded string
	if err := s.db.QueryRowContext(ctx,
		`SELECT value FROM store_meta WHERE key = ?`, metaDimensionKey,
	).Scan(&recorded); err != nil {
		return fmt.Errorf("read dimension: %w", err)
	}
	return checkDimension(recorded, s.dimension)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Dimension returns the embedding length every chunk must have.
func (s *SQLiteStore) Dimension() int {
	return s.dimension
}

func (s *SQLiteStore) stamp() int64 {
	return s.now().UTC().UnixNano()
}

// CreateDocument inserts a new document with zero chunks and returns its id.
func (s *SQLiteStore) CreateDocument(ctx context.Context, ownerID, filename string, size int64, metadata map[string]string) (string, error) {
	if err := requireOwner(ownerID); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, owner_id, filename, size_bytes, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, ownerID, filename, size, meta, s.stamp(),
	)
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	return id, nil
}

// AppendChunk inserts one chunk of one of the owner's documents.
func (s *SQLiteStore) AppendChunk(ctx context.Context, in domain.ChunkInput) (string, error) {
	if err := validateChunk(in, s.dimension); err != nil {
		return "", fmt.Errorf("append chunk: %w", err)
	}
	meta, err := encodeMetadata(in.Metadata)
	if err != nil {
		return "", fmt.Errorf("append chunk: %w", err)
	}

	id := uuid.NewString()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, document_id, owner_id, ordinal, content, embedding, metadata, created_at)
		 SELECT ?, d.id, d.owner_id, ?, ?, ?, ?, ?
		 FROM documents d WHERE d.id = ? AND d.owner_id = ?`,
		id, in.Ordinal, in.Content, encodeVector(in.Embedding), meta, s.stamp(), in.DocumentID, in.OwnerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("append chunk %d: %w", in.Ordinal, port.ErrOrdinalConflict)
		}
		return "", fmt.Errorf("append chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("append chunk: %w", port.ErrDocumentNotFound)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// UpdateChunkCount records the number of chunks stored for a document.
func (s *SQLiteStore) UpdateChunkCount(ctx context.Context, documentID string, count int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET chunk_count = ? WHERE id = ?`, count, documentID)
	if err != nil {
		return fmt.Errorf("update chunk count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update chunk count: %w", port.ErrDocumentNotFound)
	}
	return nil
}

// FindSimilarChunks scores every chunk of the owner against query and keeps the best topK
// at or above minScore.
func (s *SQLiteStore) FindSimilarChunks(ctx context.Context, ownerID string, query []float32, topK int, minScore float64) ([]domain.ScoredChunk, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("find similar: %w: got %d, store expects %d",
			port.ErrDimensionMismatch, len(query), s.dimension)
	}
	if topK <= 0 || norm(query) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, owner_id, ordinal, content, embedding, metadata, created_at
		 FROM chunks WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	defer rows.Close()

	results := []domain.ScoredChunk{}
	for rows.Next() {
		c, err := scanSQLiteChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		score := cosine(query, c.Embedding)
		if score < minScore {
			continue
		}
		results = append(results, domain.ScoredChunk{Chunk: *c, Similarity: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	return rankChunks(results, topK), nil
}

// GetDocument returns one of the owner's documents.
func (s *SQLiteStore) GetDocument(ctx context.Context, ownerID, documentID string) (*domain.Document, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, filename, size_bytes, chunk_count, metadata, created_at
		 FROM documents WHERE id = ? AND owner_id = ?`, documentID, ownerID)

	d, err := scanSQLiteDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get document: %w", port.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns the owner's documents, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, filename, size_bytes, chunk_count, metadata, created_at
		 FROM documents WHERE owner_id = ? ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		d, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// ListChunks returns a document's chunks in ordinal order, embeddings included.
func (s *SQLiteStore) ListChunks(ctx context.Context, ownerID, documentID string) ([]domain.Chunk, error) {
	if _, err := s.GetDocument(ctx, ownerID, documentID); err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, owner_id, ordinal, content, embedding, metadata, created_at
		 FROM chunks WHERE document_id = ? AND owner_id = ? ORDER BY ordinal`, documentID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		c, err := scanSQLiteChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// DeleteDocument removes a document; its chunks go with it through ON DELETE CASCADE.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	if err := requireOwner(ownerID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ? AND owner_id = ?`, documentID, ownerID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete document: %w", port.ErrDocumentNotFound)
	}
	return nil
}

// WriteAudit implements middleware.AuditWriter.
func (s *SQLiteStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	if details == "" {
		details = "{}"
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO audit_logs (id, user_id, action, resource, resource_id, details, ip, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, action, resource, resourceID, details, ip, userAgent, s.stamp(),
	)
	return err
}

// ListAuditLogs returns a user's recent audit logs, optionally filtered by action.
func (s *SQLiteStore) ListAuditLogs(ctx context.Context, userID string, limit int, action string) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource, resource_id, details, ip, user_agent, created_at
	          FROM audit_logs WHERE user_id = ?`
	args := []interface{}{userID}
	if action != "" {
		query += " AND action = ?"
		args = append(args, action)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.AuditLog{}
	for rows.Next() {
		var (
			l       domain.AuditLog
			created int64
		)
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &created,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		l.CreatedAt = time.Unix(0, created).UTC()
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanSQLiteDocument(row rowScanner) (*domain.Document, error) {
	var (
		d       domain.Document
		meta    string
		created int64
	)
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.SizeBytes, &d.ChunkCount, &meta, &created); err != nil {
		return nil, err
	}
	d.Metadata = decodeMetadata([]byte(meta))
	d.CreatedAt = time.Unix(0, created).UTC()
	return &d, nil
}

func scanSQLiteChunk(row rowScanner) (*domain.Chunk, error) {
	var (
		c       domain.Chunk
		blob    []byte
		meta    string
		created int64
	)
	if err := row.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.Ordinal, &c.Content, &blob, &meta, &created); err != nil {
		return nil, err
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, err
	}
	c.Embedding = vec
	c.Metadata = decodeMetadata([]byte(meta))
	c.CreatedAt = time.Unix(0, created).UTC()
	return &c, nil
}
