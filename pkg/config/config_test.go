package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.OpenAIAPIKey = "sk-test"
	return cfg
}

func TestDefaultsAreValidWithKey(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestMCPIsOptIn(t *testing.T) {
	assert.False(t, Default().MCPEnabled)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "copilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_driver: sqlite
sqlite_path: /var/lib/copilot.db
ai_provider: ollama
chunk_size: 400
chunk_overlap: 50
retrieval_min_score: 0.5
provider_timeout: 45s
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CHUNK_OVERLAP", "80")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")
	t.Setenv("PROVIDER_RPS", "2.5")
	t.Setenv("MCP_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "/var/lib/copilot.db", cfg.SQLitePath)
	assert.Equal(t, "ollama", cfg.AIProvider)
	assert.Equal(t, 400, cfg.ChunkSize)
	assert.Equal(t, 80, cfg.ChunkOverlap)
	assert.InDelta(t, 0.5, cfg.RetrievalMinScore, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.ProviderTimeout)
	assert.InDelta(t, 2.5, cfg.ProviderRPS, 1e-9)
	assert.Equal(t, "http://ollama:11434", cfg.OllamaEmbedURL)
	assert.Equal(t, "http://ollama:11434", cfg.OllamaChatURL)
	assert.True(t, cfg.MCPEnabled)
	assert.Equal(t, 5, cfg.RetrievalTopK)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.ErrorContains(t, err, "read config file")
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("CHUNK_SIZE", "lots")
	t.Setenv("PROVIDER_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"overlap too large", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, "overlap"},
		{"unknown store", func(c *Config) { c.StoreDriver = "mongo" }, "unknown STORE_DRIVER"},
		{"sqlite without path", func(c *Config) { c.StoreDriver = "sqlite"; c.SQLitePath = "" }, "SQLITE_PATH"},
		{"unknown provider", func(c *Config) { c.AIProvider = "bard" }, "unknown AI_PROVIDER"},
		{"openai without key", func(c *Config) { c.OpenAIAPIKey = "" }, "OPENAI_API_KEY"},
		{"dimension", func(c *Config) { c.EmbeddingDimension = 0 }, "EMBEDDING_DIMENSION"},
		{"top k", func(c *Config) { c.RetrievalTopK = 0 }, "RETRIEVAL_TOP_K"},
		{"min score", func(c *Config) { c.RetrievalMinScore = 1.5 }, "RETRIEVAL_MIN_SCORE"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"jwt secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestHelpers(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "debug"
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL())

	cfg.DatabaseURL = "postgres://copilot:hunter2@db:5432/copilot"
	assert.NotContains(t, cfg.DSN(), "hunter2")
}
