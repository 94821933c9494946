// Tool Executor with Retry Logic.
//
// Information Hiding:
// - Retry strategy implementation hidden
// - Backoff algorithm hidden
// - Error classification logic hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
)

// Executor provides tool execution with retry and timeout support.
type Executor struct {
	config  ToolConfig
	backoff func(attempt uint32) time.Duration
}

// NewExecutor creates a new tool executor with the given configuration.
func NewExecutor(config ToolConfig) *Executor {
	return &Executor{config: config, backoff: calculateBackoff}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultToolConfig())
}

// Execute validates the arguments and runs a tool, retrying transient
// failures. Each attempt gets its own timeout. The returned error is only
// non-nil when ctx itself is done.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	toolName := tool.Metadata().Name
	log := clog.FromContext(ctx).With("tool", toolName)

	if err := tool.Validate(args); err != nil {
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}

	var lastErr error
	maxRetries := e.config.Retries()

	for attempt := uint32(0); attempt < maxRetries; attempt++ {
		if attempt > 0 {
			log.Debugf("retrying after: %v (attempt %d/%d)", lastErr, attempt+1, maxRetries)
			select {
			case <-ctx.Done():
				return ToolResult{}, ctx.Err()
			case <-time.After(e.backoff(attempt)):
			}
		}

		result, err := e.attempt(ctx, tool, args)
		if ctx.Err() != nil {
			return ToolResult{}, ctx.Err()
		}
		if err != nil {
			lastErr = err
			continue
		}

		if result.Success() || !shouldRetry(result.Error) {
			return result, nil
		}
		lastErr = result.Error
	}

	errMsg := "unknown error"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	return FailureResultf("tool '%s' failed after %d attempts: %s", toolName, maxRetries, errMsg), nil
}

func (e *Executor) attempt(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout())
	defer cancel()
	return tool.Execute(ctx, args)
}

// calculateBackoff returns the backoff duration for the given attempt.
func calculateBackoff(attempt uint32) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)

	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// shouldRetry reports whether a failed result looks transient.
// A tool that ran and reported an ordinary error (not found, bad
// arguments) is not retried; the model gets to see the error instead.
// Rate limits last until the quota resets, which is far beyond any backoff.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	errLower := strings.ToLower(err.Error())

	for _, s := range []string{"validation", "not allowed", "permission", "not found", "unauthorized", "bad credentials", "rate limit"} {
		if strings.Contains(errLower, s) {
			return false
		}
	}

	for _, s := range []string{"timeout", "deadline exceeded", "connection", "network", "temporarily", "502", "503"} {
		if strings.Contains(errLower, s) {
			return true
		}
	}
	return false
}

// ExecuteOnce runs a tool once without retries.
func ExecuteOnce(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	if err := tool.Validate(args); err != nil {
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}

	return tool.Execute(ctx, args)
}
