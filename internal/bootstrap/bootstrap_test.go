package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/design-copilot/internal/port"
	"github.com/arturoeanton/design-copilot/pkg/config"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.StoreDriver = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "copilot.db")
	cfg.AIProvider = "ollama"
	cfg.EmbeddingDimension = 8
	return cfg
}

func TestOpenSQLiteStoreAndServices(t *testing.T) {
	cfg := sqliteConfig(t)

	s, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 8, s.Dimension())

	client, err := NewAIClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "qwen3", client.ModelName())

	svc, err := NewServices(cfg, s, client)
	require.NoError(t, err)
	assert.NotNil(t, svc.Ingest)
	assert.NotNil(t, svc.Query)
	assert.NotNil(t, svc.Documents)
}

func TestNewServicesRejectsBadChunking(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.ChunkOverlap = cfg.ChunkSize

	s, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()
	client, err := NewAIClient(cfg)
	require.NoError(t, err)

	_, err = NewServices(cfg, s, client)
	assert.ErrorIs(t, err, port.ErrConfiguration)
}

func TestUnknownDrivers(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.StoreDriver = "mongo"
	_, err := OpenStore(context.Background(), cfg)
	assert.ErrorIs(t, err, port.ErrConfiguration)

	cfg.AIProvider = "bard"
	_, err = NewAIClient(cfg)
	assert.ErrorIs(t, err, port.ErrConfiguration)

	cfg.AIProvider = "openai"
	cfg.OpenAIAPIKey = ""
	_, err = NewAIClient(cfg)
	assert.ErrorIs(t, err, port.ErrConfiguration)
}

func TestSetupLoggingJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"
	var buf bytes.Buffer
	SetupLogging(cfg, &buf)

	slog.Info("hidden")
	slog.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
