package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/port"
)

var _ port.AuditStore = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	filename    TEXT NOT NULL,
	size_bytes  BIGINT NOT NULL DEFAULT 0,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	metadata    JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents (owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	resource    TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	details     JSONB NOT NULL DEFAULT '{}',
	ip          TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs (user_id, created_at DESC);
`

// PostgresStore handles the relational side: documents and audit logs.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool, pings it and applies the relational schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// --- Documents ---

// CreateDocument inserts a new document with zero chunks and returns its id.
func (s *PostgresStore) CreateDocument(ctx context.Context, ownerID, filename string, size int64, metadata map[string]string) (string, error) {
	if err := requireOwner(ownerID); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}

	id := uuid.NewString()
	query := `INSERT INTO documents (id, owner_id, filename, size_bytes, metadata)
	          VALUES ($1, $2, $3, $4, $5::jsonb)`
	if _, err := s.db.ExecContext(ctx, query, id, ownerID, filename, size, meta); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	return id, nil
}

// UpdateChunkCount records the number of chunks stored for a document.
func (s *PostgresStore) UpdateChunkCount(ctx context.Context, documentID string, count int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET chunk_count = $1 WHERE id = $2`, count, documentID)
	if err != nil {
		return fmt.Errorf("update chunk count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update chunk count: %w", port.ErrDocumentNotFound)
	}
	return nil
}

// GetDocument returns one of the owner's documents.
func (s *PostgresStore) GetDocument(ctx context.Context, ownerID, documentID string) (*domain.Document, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	query := `SELECT id, owner_id, filename, size_bytes, chunk_count, metadata, created_at
	          FROM documents WHERE id = $1 AND owner_id = $2`

	d, err := scanDocument(s.db.QueryRowContext(ctx, query, documentID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get document: %w", port.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns the owner's documents, newest first.
func (s *PostgresStore) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	query := `SELECT id, owner_id, filename, size_bytes, chunk_count, metadata, created_at
	          FROM documents WHERE owner_id = $1 ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; its chunks go with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	if err := requireOwner(ownerID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, documentID, ownerID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete document: %w", port.ErrDocumentNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		d    domain.Document
		meta []byte
	)
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.SizeBytes, &d.ChunkCount, &meta, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Metadata = decodeMetadata(meta)
	return &d, nil
}

// --- Audit Logs ---

// WriteAudit implements middleware.AuditWriter.
func (s *PostgresStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	if details == "" {
		details = "{}"
	}
	query := `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, details, ip, user_agent)
	          VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`
	_, err := s.db.ExecContext(context.Background(), query,
		uuid.NewString(), userID, action, resource, resourceID, details, ip, userAgent,
	)
	return err
}

// ListAuditLogs returns a user's recent audit logs, optionally filtered by action.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, userID string, limit int, action string) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource, resource_id, details::text, ip, user_agent, created_at
	          FROM audit_logs WHERE user_id = $1`
	args := []interface{}{userID}
	argIdx := 2

	if action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, action)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.AuditLog{}
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
