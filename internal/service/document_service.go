package service

import (
	"context"
	"log/slog"

	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/port"
)

// DocumentService manages an owner's stored documents.
type DocumentService struct {
	store port.DocumentStore
}

// NewDocumentService creates a new document service.
func NewDocumentService(store port.DocumentStore) *DocumentService {
	return &DocumentService{store: store}
}

// List returns all documents for an owner.
func (s *DocumentService) List(ctx context.Context, ownerID string) ([]domain.Document, error) {
	return s.store.ListDocuments(ctx, ownerID)
}

// Get returns one document of the owner.
func (s *DocumentService) Get(ctx context.Context, ownerID, documentID string) (*domain.Document, error) {
	return s.store.GetDocument(ctx, ownerID, documentID)
}

// Chunks returns a document's chunks in ordinal order.
func (s *DocumentService) Chunks(ctx context.Context, ownerID, documentID string) ([]domain.Chunk, error) {
	return s.store.ListChunks(ctx, ownerID, documentID)
}

// Delete removes a document and all of its chunks.
func (s *DocumentService) Delete(ctx context.Context, ownerID, documentID string) error {
	if err := s.store.DeleteDocument(ctx, ownerID, documentID); err != nil {
		return err
	}
	slog.Info("document deleted", "owner_id", ownerID, "document_id", documentID)
	return nil
}
