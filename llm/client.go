// LLMClient - Provider wrapper that accounts for calls and token usage.

package llm

import (
	"context"
	"sync"
)

// Client wraps a Provider and accumulates usage across calls.
type Client struct {
	provider Provider

	mu    sync.Mutex
	calls int
	usage TokenUsage
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// ChatWithTools forwards to the provider and records usage.
func (c *Client) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	response, err := c.provider.ChatWithTools(ctx, messages, tools)

	c.mu.Lock()
	c.calls++
	if err == nil {
		c.usage.Add(response.Usage)
	}
	c.mu.Unlock()

	return response, err
}

// Calls returns the number of completion requests made.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Usage returns the cumulative token usage.
func (c *Client) Usage() TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}
