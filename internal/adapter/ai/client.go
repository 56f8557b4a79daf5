package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/arturoeanton/design-copilot/internal/port"
	"github.com/arturoeanton/design-copilot/internal/retry"
)

var (
	_ port.Embedder  = (*Client)(nil)
	_ port.Completer = (*Client)(nil)
)

// ClientConfig tunes how provider calls are throttled, bounded and retried.
type ClientConfig struct {
	// Timeout bounds each individual provider call; 0 means no per-call deadline.
	Timeout time.Duration
	// RequestsPerSecond throttles calls across all goroutines; 0 disables throttling.
	RequestsPerSecond float64
	// Burst is the token bucket size (defaults to 1 when throttling).
	Burst int
	// Retry is applied to rate-limited calls. Zero value means retry.Default(Retryable).
	Retry retry.Policy
}

// Client decorates an embedder and a completer with input validation, throttling,
// per-call timeouts and retries. It is safe for concurrent use.
type Client struct {
	embedder  port.Embedder
	completer port.Completer
	limiter   *rate.Limiter
	timeout   time.Duration
	policy    retry.Policy
}

// NewClient wraps the given providers. Either may be nil if the caller only needs the other.
func NewClient(embedder port.Embedder, completer port.Completer, cfg ClientConfig) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.Default(Retryable)
	}
	if policy.Retryable == nil {
		policy.Retryable = Retryable
	}

	return &Client{
		embedder:  embedder,
		completer: completer,
		limiter:   limiter,
		timeout:   cfg.Timeout,
		policy:    policy,
	}
}

// ModelName returns the chat model name, or the embedding model name when no completer is set.
func (c *Client) ModelName() string {
	if c.completer != nil {
		return c.completer.ModelName()
	}
	if c.embedder != nil {
		return c.embedder.ModelName()
	}
	return ""
}

// EmbeddingModel returns the embedding model name.
func (c *Client) EmbeddingModel() string {
	if c.embedder == nil {
		return ""
	}
	return c.embedder.ModelName()
}

// Embed generates a vector embedding for text. Blank text fails with port.ErrEmptyInput
// without calling the provider.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("embed: %w: no embedder configured", port.ErrConfiguration)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embed: %w", port.ErrEmptyInput)
	}

	vec, err := retry.DoValue(ctx, c.policy, func(ctx context.Context) ([]float32, error) {
		ctx, cancel, err := c.acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer cancel()
		return c.embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embed: %w: empty vector", port.ErrProviderUnavailable)
	}
	return vec, nil
}

// EmbedBatch embeds texts in one provider call and returns one vector per input, in order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("embed batch: %w: no embedder configured", port.ErrConfiguration)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embed batch: input %d: %w", i, port.ErrEmptyInput)
		}
	}

	vectors, err := retry.DoValue(ctx, c.policy, func(ctx context.Context) ([][]float32, error) {
		ctx, cancel, err := c.acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer cancel()
		return c.embedder.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed batch: %w: got %d vectors for %d inputs",
			port.ErrProviderUnavailable, len(vectors), len(texts))
	}
	return vectors, nil
}

// Complete issues one chat completion. The returned text is passed through as-is.
func (c *Client) Complete(ctx context.Context, systemPrompt string, messages []port.Message) (*port.Completion, error) {
	if c.completer == nil {
		return nil, fmt.Errorf("complete: %w: no completer configured", port.ErrConfiguration)
	}

	return retry.DoValue(ctx, c.policy, func(ctx context.Context) (*port.Completion, error) {
		ctx, cancel, err := c.acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer cancel()
		return c.completer.Complete(ctx, systemPrompt, messages)
	})
}

// acquire waits for a throttle token and derives the per-call context.
func (c *Client) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	if c.timeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return ctx, cancel, nil
}
