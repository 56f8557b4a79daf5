package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arturoeanton/design-copilot/internal/port"
)

const (
	// DefaultChatModel is the default model for chat completions
	DefaultChatModel = openai.GPT4oMini
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
)

var (
	_ port.Embedder  = (*OpenAIProvider)(nil)
	_ port.Completer = (*OpenAIProvider)(nil)
)

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string // empty = api.openai.com
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
}

// OpenAIProvider implements port.Embedder and port.Completer on top of go-openai.
type OpenAIProvider struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	temperature    float32
}

// NewOpenAIProvider creates a provider. An empty API key is a configuration error.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", port.ErrConfiguration)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}

	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(clientCfg),
		chatModel:      cfg.ChatModel,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		temperature:    cfg.Temperature,
	}, nil
}

// ModelName returns the chat model identifier.
func (p *OpenAIProvider) ModelName() string {
	return p.chatModel
}

// Embed generates a vector embedding for the given text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("openai embed: %w: no embeddings returned", port.ErrProviderUnavailable)
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts, reordered by the index the API reports.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: p.embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", classifyOpenAI(err))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Complete sends the system prompt and messages as one chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt string, messages []port.Message) (*port.Completion, error) {
	chat := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	chat = append(chat, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range messages {
		chat = append(chat, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.chatModel,
		Messages:    chat,
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", classifyOpenAI(err))
	}

	completion := &port.Completion{
		Usage: port.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) > 0 {
		completion.Text = resp.Choices[0].Message.Content
	}
	return completion, nil
}

// classifyOpenAI maps go-openai errors onto the provider error taxonomy.
func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		status := reqErr.HTTPStatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		return classifyStatus("openai", status, reqErr.Error())
	}
	return classifyTransport("openai", err)
}
