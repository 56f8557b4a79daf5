// Package bootstrap wires configuration into stores, providers and services for the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/arturoeanton/design-copilot/internal/adapter/ai"
	"github.com/arturoeanton/design-copilot/internal/adapter/store"
	"github.com/arturoeanton/design-copilot/internal/port"
	"github.com/arturoeanton/design-copilot/internal/retry"
	"github.com/arturoeanton/design-copilot/internal/service"
	"github.com/arturoeanton/design-copilot/pkg/config"
)

// Store is a document store that also keeps the audit trail.
type Store interface {
	port.DocumentStore
	port.AuditStore
}

// Services groups the application services built on one store and one provider client.
type Services struct {
	Ingest    *service.IngestService
	Query     *service.QueryService
	Documents *service.DocumentService
}

// SetupLogging installs the default slog logger writing to w.
func SetupLogging(cfg *config.Config, w io.Writer) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// OpenStore opens the configured store and fixes its embedding dimension.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		vs, err := store.NewVectorStore(ctx, pg, cfg.EmbeddingDimension)
		if err != nil {
			_ = pg.Close()
			return nil, err
		}
		slog.Info("📦 Postgres store ready", "dsn", cfg.DSN(), "dimension", cfg.EmbeddingDimension)
		return vs, nil
	case "sqlite":
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath, cfg.EmbeddingDimension)
		if err != nil {
			return nil, err
		}
		slog.Info("📦 SQLite store ready", "path", cfg.SQLitePath, "dimension", cfg.EmbeddingDimension)
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", port.ErrConfiguration, cfg.StoreDriver)
	}
}

// NewAIClient builds the configured provider behind the throttled, retrying client.
func NewAIClient(cfg *config.Config) (*ai.Client, error) {
	var (
		embedder  port.Embedder
		completer port.Completer
	)
	switch cfg.AIProvider {
	case "openai":
		p, err := ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.OpenAIChatModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
			Temperature:    float32(cfg.Temperature),
		})
		if err != nil {
			return nil, err
		}
		embedder, completer = p, p
	case "ollama":
		p := ai.NewOllamaProvider(
			ai.OllamaEndpointConfig{
				BaseURL: cfg.OllamaEmbedURL,
				Model:   cfg.OllamaEmbedModel,
				Token:   cfg.OllamaEmbedToken,
			},
			ai.OllamaEndpointConfig{
				BaseURL: cfg.OllamaChatURL,
				Model:   cfg.OllamaChatModel,
				Token:   cfg.OllamaChatToken,
			},
		)
		embedder, completer = p, p
	default:
		return nil, fmt.Errorf("%w: unknown AI provider %q", port.ErrConfiguration, cfg.AIProvider)
	}

	policy := retry.Default(ai.Retryable)
	if cfg.ProviderMaxAttempts > 0 {
		policy.MaxAttempts = cfg.ProviderMaxAttempts
	}

	return ai.NewClient(embedder, completer, ai.ClientConfig{
		Timeout:           cfg.ProviderTimeout,
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             cfg.ProviderBurst,
		Retry:             policy,
	}), nil
}

// NewServices builds the ingestion, query and document services.
func NewServices(cfg *config.Config, s port.DocumentStore, client *ai.Client) (*Services, error) {
	ingestCfg := service.DefaultIngestConfig()
	ingestCfg.ChunkSize = cfg.ChunkSize
	ingestCfg.Overlap = cfg.ChunkOverlap
	ingestCfg.BatchSize = cfg.EmbedBatchSize
	ingestCfg.Workers = cfg.IngestWorkers

	ingest, err := service.NewIngestService(s, client, ingestCfg)
	if err != nil {
		return nil, err
	}

	queryCfg := service.DefaultQueryConfig()
	queryCfg.TopK = cfg.RetrievalTopK
	queryCfg.MinScore = cfg.RetrievalMinScore

	return &Services{
		Ingest:    ingest,
		Query:     service.NewQueryService(s, client, client, queryCfg),
		Documents: service.NewDocumentService(s),
	}, nil
}
