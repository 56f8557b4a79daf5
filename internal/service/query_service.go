package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/port"
)

// NoContextAnswer is returned when no stored chunk clears the similarity threshold.
const NoContextAnswer = "No relevant documents found."

// MaxSearchResults caps the topK a caller may request from Search.
const MaxSearchResults = 50

const defaultSystemPrompt = `You are Design Copilot, an assistant for product designers.
Answer the question using only the information in the provided context.
If the context does not contain the answer, say that you don't know.
Do not invent guidelines, tokens or component names that are not in the context.`

// QueryConfig holds retrieval parameters.
type QueryConfig struct {
	TopK         int
	MinScore     float64
	SystemPrompt string
}

// DefaultQueryConfig returns topK 5 and a 0.7 similarity threshold.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{TopK: 5, MinScore: 0.7, SystemPrompt: defaultSystemPrompt}
}

// QueryService handles retrieval-augmented answers over an owner's documents.
type QueryService struct {
	store     port.DocumentStore
	embedder  port.Embedder
	completer port.Completer
	cfg       QueryConfig
}

// NewQueryService creates a new query service.
func NewQueryService(store port.DocumentStore, embedder port.Embedder, completer port.Completer, cfg QueryConfig) *QueryService {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &QueryService{store: store, embedder: embedder, completer: completer, cfg: cfg}
}

// Answer performs a semantic search over the owner's chunks and a completion grounded on them.
// With no matching chunk the completer is not called and NoContextAnswer is returned.
func (s *QueryService) Answer(ctx context.Context, ownerID, question string) (*domain.Answer, error) {
	chunks, err := s.retrieve(ctx, ownerID, question, s.cfg.TopK)
	if err != nil {
		return nil, err
	}

	if len(chunks) == 0 {
		slog.Info("no context for question", "owner_id", ownerID)
		return &domain.Answer{Text: NoContextAnswer, Sources: []domain.ScoredChunk{}}, nil
	}

	contextParts := make([]string, len(chunks))
	for i, c := range chunks {
		contextParts[i] = c.Content
	}
	messages := []port.Message{{
		Role:    "user",
		Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(contextParts, "\n\n"), question),
	}}

	text, err := s.complete(ctx, messages)
	if err != nil {
		slog.Error("answer failed", "owner_id", ownerID, "question", question, "error", err)
		return nil, fmt.Errorf("answer: %w", err)
	}

	return &domain.Answer{Text: text, Sources: chunks}, nil
}

// complete issues the completion, retrying once when the provider returns blank text.
func (s *QueryService) complete(ctx context.Context, messages []port.Message) (string, error) {
	for attempt := 1; ; attempt++ {
		out, err := s.completer.Complete(ctx, s.cfg.SystemPrompt, messages)
		if err != nil {
			return "", fmt.Errorf("complete: %w", err)
		}
		if text := strings.TrimSpace(out.Text); text != "" {
			slog.Debug("completion", "model", s.completer.ModelName(), "total_tokens", out.Usage.TotalTokens)
			return text, nil
		}
		if attempt == 2 {
			return "", port.ErrEmptyCompletion
		}
		slog.Warn("empty completion, retrying", "model", s.completer.ModelName())
	}
}

// Search returns the owner's chunks most similar to query without calling the completer.
// topK <= 0 uses the configured default.
func (s *QueryService) Search(ctx context.Context, ownerID, query string, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	return s.retrieve(ctx, ownerID, query, min(topK, MaxSearchResults))
}

func (s *QueryService) retrieve(ctx context.Context, ownerID, question string, topK int) ([]domain.ScoredChunk, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("query: %w: owner id is required", port.ErrInvalidInput)
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("query: %w: question is empty", port.ErrInvalidInput)
	}

	queryVector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		slog.Error("embed question failed", "owner_id", ownerID, "question", question, "error", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := s.store.FindSimilarChunks(ctx, ownerID, queryVector, topK, s.cfg.MinScore)
	if err != nil {
		if errors.Is(err, port.ErrDimensionMismatch) {
			return nil, fmt.Errorf("search similar: %w: %w", port.ErrConfiguration, err)
		}
		return nil, fmt.Errorf("search similar: %w", err)
	}
	return chunks, nil
}
