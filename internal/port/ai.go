package port

import "context"

// Embedder turns text into fixed-length vectors.
// Implementations can target OpenAI, Ollama, or any compatible API.
type Embedder interface {
	// ModelName returns the identifier of the embedding model.
	ModelName() string

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	// The output has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Message is one turn of a completion conversation.
type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// Usage reports the tokens a completion consumed.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the output of a chat completion call.
type Completion struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Completer issues chat completions against an LLM.
type Completer interface {
	// ModelName returns the identifier of the chat model.
	ModelName() string

	// Complete sends the system prompt and messages and returns the model output.
	Complete(ctx context.Context, systemPrompt string, messages []Message) (*Completion, error)
}
