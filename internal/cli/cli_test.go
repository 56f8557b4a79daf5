package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/design-copilot/internal/adapter/store"
	"github.com/arturoeanton/design-copilot/internal/bootstrap"
	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/middleware"
	"github.com/arturoeanton/design-copilot/internal/port"
	"github.com/arturoeanton/design-copilot/internal/service"
	"github.com/arturoeanton/design-copilot/pkg/config"
)

type gridEmbedder struct{}

func (gridEmbedder) ModelName() string { return "grid" }

func (gridEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "grid") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (e gridEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type fixedCompleter struct{}

func (fixedCompleter) ModelName() string { return "fixed" }

func (fixedCompleter) Complete(context.Context, string, []port.Message) (*port.Completion, error) {
	return &port.Completion{Text: "Use a 12-column grid."}, nil
}

func newEnv(t *testing.T) *Env {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), ":memory:", 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ingest, err := service.NewIngestService(s, gridEmbedder{}, service.DefaultIngestConfig())
	require.NoError(t, err)
	return &Env{
		Store: s,
		Services: &bootstrap.Services{
			Ingest:    ingest,
			Query:     service.NewQueryService(s, gridEmbedder{}, fixedCompleter{}, service.DefaultQueryConfig()),
			Documents: service.NewDocumentService(s),
		},
	}
}

func run(t *testing.T, env *Env, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("COPILOT_OWNER", "")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	root := NewRootCmd(Options{Open: func(context.Context, *config.Config) (*Env, error) {
		return env, nil
	}})
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestCommand(t *testing.T) {
	env := newEnv(t)
	path := writeFile(t, "layout.md", "# Layout\n\nPages use a 12 column grid with 24px gutters.")

	_, stderr, err := run(t, env, "ingest", path, "--owner", "ana")
	require.NoError(t, err)
	assert.Contains(t, stderr, "✓ layout.md → document ")

	docs, err := env.Store.ListDocuments(context.Background(), "ana")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "layout.md", docs[0].Filename)
	assert.Equal(t, 1, docs[0].ChunkCount)
	assert.Equal(t, "copilotctl", docs[0].Metadata["source"])
}

func TestIngestCommandJSON(t *testing.T) {
	env := newEnv(t)
	a := writeFile(t, "a.txt", "grid spacing is 8px")
	b := writeFile(t, "b.txt", "icons are 24px")

	stdout, _, err := run(t, env, "ingest", a, b, "--owner", "ana", "--json")
	require.NoError(t, err)

	var results []domain.IngestResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, domain.IngestStatusCompleted, r.Status)
		assert.Equal(t, 1, r.ChunksStored)
	}
}

func TestIngestCommandErrors(t *testing.T) {
	env := newEnv(t)

	_, _, err := run(t, env, "ingest", writeFile(t, "setup.exe", "MZ"), "--owner", "ana")
	assert.ErrorIs(t, err, port.ErrUnsupportedFileType)

	_, _, err = run(t, env, "ingest", writeFile(t, "notes.txt", "grid"))
	assert.ErrorContains(t, err, "--owner is required")

	_, _, err = run(t, env, "ingest", filepath.Join(t.TempDir(), "missing.md"), "--owner", "ana")
	assert.ErrorContains(t, err, "read file")

	_, _, err = run(t, env, "ingest", writeFile(t, "blank.md", "   \n\t"), "--owner", "ana", "--no-progress")
	assert.ErrorIs(t, err, port.ErrInvalidInput)
}

func TestAskCommand(t *testing.T) {
	env := newEnv(t)
	_, _, err := run(t, env, "ingest", writeFile(t, "layout.md", "Desktop uses a 12 column grid."), "--owner", "ana")
	require.NoError(t, err)

	stdout, _, err := run(t, env, "ask", "Which", "grid?", "--owner", "ana", "--sources")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Use a 12-column grid.")
	assert.Contains(t, stdout, "Sources:")
	assert.Contains(t, stdout, "layout.md #0")

	stdout, _, err = run(t, env, "ask", "Which grid?", "--owner", "bruno")
	require.NoError(t, err)
	assert.Equal(t, service.NoContextAnswer+"\n", stdout)
}

func TestDocsCommands(t *testing.T) {
	env := newEnv(t)

	stdout, _, err := run(t, env, "docs", "list", "--owner", "ana")
	require.NoError(t, err)
	assert.Equal(t, "No documents.\n", stdout)

	_, _, err = run(t, env, "ingest", writeFile(t, "type.md", "Body text is 16px."), "--owner", "ana")
	require.NoError(t, err)

	stdout, _, err = run(t, env, "docs", "list", "--owner", "ana")
	require.NoError(t, err)
	assert.Contains(t, stdout, "FILENAME")
	assert.Contains(t, stdout, "type.md")

	stdout, _, err = run(t, env, "docs", "list", "--owner", "ana", "--json")
	require.NoError(t, err)
	var docs []domain.Document
	require.NoError(t, json.Unmarshal([]byte(stdout), &docs))
	require.Len(t, docs, 1)

	_, _, err = run(t, env, "docs", "delete", docs[0].ID, "--owner", "bruno")
	assert.ErrorIs(t, err, port.ErrDocumentNotFound)

	stdout, _, err = run(t, env, "docs", "delete", docs[0].ID, "--owner", "ana")
	require.NoError(t, err)
	assert.Equal(t, "deleted "+docs[0].ID+"\n", stdout)
}

func TestTokenCommand(t *testing.T) {
	stdout, _, err := run(t, newEnv(t), "token", "--owner", "ana", "--email", "ana@example.com", "--ttl", "10m")
	require.NoError(t, err)

	claims, err := middleware.ValidateJWT(strings.TrimSpace(stdout), middleware.JWTConfig{
		Secret: "cli-secret",
		Issuer: config.Default().JWTIssuer,
	})
	require.NoError(t, err)
	assert.Equal(t, "ana", claims.Subject)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, "designer", claims.Role)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt.Time, time.Minute)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "a b c", oneLine(" a\n b\t c "))
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KiB", formatSize(1536))
	assert.Equal(t, "2.0 MiB", formatSize(2*1024*1024))
	assert.Equal(t, "just now", formatTime(time.Now()))
}
