package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/arturoeanton/design-copilot/internal/port"
)

var (
	_ port.Embedder  = (*OllamaProvider)(nil)
	_ port.Completer = (*OllamaProvider)(nil)
)

// OllamaEndpointConfig holds the configuration for a single Ollama endpoint.
type OllamaEndpointConfig struct {
	BaseURL string // e.g. http://localhost:11434 or https://api.ollama.com
	Model   string // e.g. bge-m3, qwen3
	Token   string // Bearer token for Ollama Cloud (empty = no auth)
}

// OllamaProvider implements port.Embedder and port.Completer using the Ollama REST API.
// Supports separate endpoints for embed vs chat (different URLs, models, and tokens).
type OllamaProvider struct {
	embed      OllamaEndpointConfig
	chat       OllamaEndpointConfig
	httpClient *http.Client
}

// NewOllamaProvider creates a new Ollama-backed provider with separate embed/chat configs.
func NewOllamaProvider(embed, chat OllamaEndpointConfig) *OllamaProvider {
	return &OllamaProvider{
		embed:      embed,
		chat:       chat,
		httpClient: &http.Client{},
	}
}

// ModelName returns the chat model identifier.
func (o *OllamaProvider) ModelName() string {
	return o.chat.Model
}

// Embed generates a vector embedding for the given text.
func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("ollama embed: %w: empty response", port.ErrProviderUnavailable)
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one call.
func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]interface{}{
		"model": o.embed.Model,
		"input": texts,
	}

	body, err := o.post(ctx, o.embed, "/api/embed", payload)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w: %w", port.ErrProviderUnavailable, err)
	}

	return resp.Embeddings, nil
}

// Complete sends the system prompt and messages and returns the complete response.
func (o *OllamaProvider) Complete(ctx context.Context, systemPrompt string, messages []port.Message) (*port.Completion, error) {
	chatMessages := make([]map[string]string, 0, len(messages)+1)
	chatMessages = append(chatMessages, map[string]string{"role": "system", "content": systemPrompt})
	for _, m := range messages {
		chatMessages = append(chatMessages, map[string]string{"role": m.Role, "content": m.Content})
	}

	payload := map[string]interface{}{
		"model":    o.chat.Model,
		"messages": chatMessages,
		"stream":   false,
	}

	body, err := o.post(ctx, o.chat, "/api/chat", payload)
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		PromptEvalCount int `json:"prompt_eval_count"`
		EvalCount       int `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ollama chat decode: %w: %w", port.ErrProviderUnavailable, err)
	}

	return &port.Completion{
		Text: resp.Message.Content,
		Usage: port.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

// post is a helper for POST requests to an Ollama endpoint (with optional bearer token).
func (o *OllamaProvider) post(ctx context.Context, cfg OllamaEndpointConfig, path string, payload interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus("ollama", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
