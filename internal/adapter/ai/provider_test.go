package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/design-copilot/internal/port"
)

func TestOllama_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bge-m3", body.Model)
		assert.Equal(t, []string{"a", "b"}, body.Input)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{1, 0}, {0, 1}},
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(
		OllamaEndpointConfig{BaseURL: srv.URL, Model: "bge-m3", Token: "secret"},
		OllamaEndpointConfig{BaseURL: srv.URL, Model: "qwen3"},
	)

	out, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
	assert.Equal(t, "qwen3", p.ModelName())
}

func TestOllama_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body struct {
			Messages []map[string]string `json:"messages"`
			Stream   bool                `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0]["role"])
		assert.Equal(t, "be brief", body.Messages[0]["content"])
		assert.Equal(t, "user", body.Messages[1]["role"])
		assert.False(t, body.Stream)

		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi there"},"prompt_eval_count":7,"eval_count":2}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaEndpointConfig{BaseURL: srv.URL}, OllamaEndpointConfig{BaseURL: srv.URL, Model: "qwen3"})

	out, err := p.Complete(context.Background(), "be brief", []port.Message{{Role: "user", Content: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out.Text)
	assert.Equal(t, 9, out.Usage.TotalTokens)
}

func TestOllama_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, port.ErrProviderRateLimited},
		{http.StatusUnauthorized, port.ErrProviderAuth},
		{http.StatusForbidden, port.ErrProviderAuth},
		{http.StatusInternalServerError, port.ErrProviderUnavailable},
		{http.StatusServiceUnavailable, port.ErrProviderUnavailable},
	}

	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			p := NewOllamaProvider(OllamaEndpointConfig{BaseURL: srv.URL}, OllamaEndpointConfig{BaseURL: srv.URL})
			_, err := p.Embed(context.Background(), "x")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOllama_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOllamaProvider(OllamaEndpointConfig{BaseURL: url}, OllamaEndpointConfig{BaseURL: url})
	_, err := p.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, port.ErrProviderUnavailable)
}

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	return p
}

func TestOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.ErrorIs(t, err, port.ErrConfiguration)
}

func TestOpenAI_EmbedBatchOrdersByIndex(t *testing.T) {
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`))
	})

	out, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
}

func TestOpenAI_Complete(t *testing.T) {
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultChatModel, body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"grounded"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`))
	})

	out, err := p.Complete(context.Background(), "sys", []port.Message{{Role: "user", Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "grounded", out.Text)
	assert.Equal(t, 12, out.Usage.TotalTokens)
}

func TestOpenAI_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, port.ErrProviderRateLimited},
		{"bad key", http.StatusUnauthorized, port.ErrProviderAuth},
		{"server error", http.StatusInternalServerError, port.ErrProviderUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test_error"}}`))
			})

			_, err := p.Embed(context.Background(), "x")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
