// Package mcp provides Model Context Protocol (MCP) client implementation.
//
// MCP is a protocol for communication between AI models and tool providers.
// This package provides a client that can connect to MCP servers and execute
// tools through JSON-RPC over stdin/stdout.
//
// Information Hiding:
// - Process management hidden
// - JSON-RPC protocol details hidden
// - Request ID tracking hidden

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ProtocolVersion is the MCP revision the client speaks.
const ProtocolVersion = "2024-11-05"

const (
	maxLineSize   = 16 * 1024 * 1024
	shutdownGrace = 2 * time.Second
)

// ErrClosed is returned for calls on a closed client or after the server exited.
var ErrClosed = errors.New("mcp client closed")

// Client communicates with an MCP server via JSON-RPC over stdin/stdout.
type Client struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	lines     <-chan []byte
	stderr    *tailBuffer
	requestID uint64
	mu        sync.Mutex

	readErr  error
	readDone chan struct{}
	closeMu  sync.Mutex
	closed   bool
}

// mcpRequest is a JSON-RPC request or notification to an MCP server.
type mcpRequest struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      *uint64 `json:"id,omitempty"`
	Method  string  `json:"method"`
	Params  any     `json:"params,omitempty"`
}

// mcpResponse is any JSON-RPC message from an MCP server. Messages with a
// method are server-initiated and never answer a client request.
type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
}

// mcpError is a JSON-RPC error.
type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *mcpError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// ToolInfo describes a tool available on the MCP server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// toolsListResult is the result of tools/list method.
type toolsListResult struct {
	Tools      []ToolInfo `json:"tools"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// Content is one item of a tools/call result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// CallToolResult is the result of tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text flattens the text content items. Non-text items are noted by type.
func (r CallToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		switch c.Type {
		case "text", "":
			parts = append(parts, c.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%s content omitted]", c.Type))
		}
	}
	return strings.Join(parts, "\n")
}

// Process describes the server subprocess to start.
type Process struct {
	Command string
	Args    []string
	// Env is added to the parent environment for the subprocess only.
	Env []string
}

// NewClient starts the server process and performs the initialize handshake.
// The process is stopped if the handshake fails.
func NewClient(ctx context.Context, p Process) (*Client, error) {
	if p.Command == "" {
		return nil, errors.New("no MCP server command configured")
	}
	cmd := exec.Command(p.Command, p.Args...)
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.WaitDelay = shutdownGrace
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start MCP server: %w", err)
	}

	lines := make(chan []byte)
	client := &Client{
		cmd:      cmd,
		stdin:    stdin,
		lines:    lines,
		stderr:   stderr,
		readDone: make(chan struct{}),
	}
	go client.readLoop(stdout, lines)

	if err := client.initialize(ctx); err != nil {
		client.Close()
		if tail := stderr.String(); tail != "" {
			return nil, fmt.Errorf("failed to initialize MCP client: %w (server stderr: %s)", err, tail)
		}
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	return client, nil
}

func (c *Client) readLoop(r io.Reader, lines chan<- []byte) {
	defer close(c.readDone)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		lines <- msg
	}
	c.readErr = scanner.Err()
}

// initialize sends the initialize request followed by the initialized notification.
func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "ghscout",
			"version": "0.1.0",
		},
	}

	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify("notifications/initialized", nil)
}

// ListTools returns all tools available on the MCP server, following
// pagination cursors.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var all []ToolInfo
	cursor := ""
	for {
		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}
		result, err := c.call(ctx, "tools/list", params)
		if err != nil {
			return nil, err
		}

		var toolsResult toolsListResult
		if err := json.Unmarshal(result, &toolsResult); err != nil {
			return nil, fmt.Errorf("failed to parse tools list: %w", err)
		}
		all = append(all, toolsResult.Tools...)
		if toolsResult.NextCursor == "" || toolsResult.NextCursor == cursor {
			return all, nil
		}
		cursor = toolsResult.NextCursor
	}
}

// CallTool calls a tool on the MCP server with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (CallToolResult, error) {
	if len(bytes.TrimSpace(arguments)) == 0 {
		arguments = json.RawMessage("{}")
	}
	params := map[string]any{
		"name":      name,
		"arguments": arguments,
	}

	raw, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return CallToolResult{}, err
	}

	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CallToolResult{}, fmt.Errorf("failed to parse tool result: %w", err)
	}
	return result, nil
}

// notify sends a JSON-RPC notification. No response is expected.
func (c *Client) notify(method string, params any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(mcpRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *Client) write(request mcpRequest) error {
	reqJSON, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(reqJSON, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// call sends a JSON-RPC request and waits for the response with the same id.
// Server notifications and requests received in the meantime are skipped.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	c.requestID++
	id := c.requestID
	if err := c.write(mcpRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.readDone:
			if c.readErr != nil {
				return nil, fmt.Errorf("failed to read response: %w", c.readErr)
			}
			return nil, fmt.Errorf("failed to read response: %w", ErrClosed)
		case line := <-c.lines:
			var response mcpResponse
			if err := json.Unmarshal(line, &response); err != nil {
				return nil, fmt.Errorf("failed to parse response: %w", err)
			}
			if response.Method != "" || !matchesID(response.ID, id) {
				continue
			}
			if response.Error != nil {
				return nil, response.Error
			}
			return response.Result, nil
		}
	}
}

func matchesID(raw json.RawMessage, id uint64) bool {
	if len(raw) == 0 {
		return false
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n == id
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == fmt.Sprint(id)
	}
	return false
}

// Close stops the MCP server process and releases resources.
// Calling Close more than once is a no-op.
func (c *Client) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.stdin != nil {
		c.stdin.Close()
	}

	// Servers exit on stdin EOF; kill the ones that don't.
	if c.cmd != nil && c.cmd.Process != nil {
		exited := make(chan struct{})
		go func() {
			_ = c.cmd.Wait()
			close(exited)
		}()
		select {
		case <-exited:
		case <-time.After(shutdownGrace):
			killProcessGroup(c.cmd)
			<-exited
		}
		// Children of the server (npx spawns node) can outlive it.
		killProcessGroup(c.cmd)
	}

	// Drain anything the reader still holds so it can exit.
	go func() {
		for {
			select {
			case <-c.lines:
			case <-c.readDone:
				return
			}
		}
	}()
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
