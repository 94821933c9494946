// MCP tool sessions - makes MCP tools usable in the agent system.
//
// Information Hiding:
// - MCP client lifecycle hidden
// - Schema parsing hidden
// - Tool execution coordination hidden

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chainguard-dev/clog"

	"github.com/richinex/ghscout/credentials"
	"github.com/richinex/ghscout/tools"
)

// Gateway opens tool sessions against an external MCP server process.
type Gateway struct {
	Server ServerConfig
}

// NewGateway returns a gateway for server.
func NewGateway(server ServerConfig) *Gateway {
	return &Gateway{Server: server}
}

// Open starts the server with the host token in its environment, performs
// the handshake and discovers the server's tools. Anything started is
// stopped again if a step fails.
func (g *Gateway) Open(ctx context.Context, creds credentials.Credentials) (tools.Session, error) {
	log := clog.FromContext(ctx).With("server", g.Server.Command)
	log.Debugf("starting MCP server: %s", g.Server)

	client, err := NewClient(ctx, g.Server.process(creds.HostToken))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
	}

	infos, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	discovered := make([]tools.Tool, len(infos))
	for i, info := range infos {
		discovered[i] = &remoteTool{
			client:      client,
			toolName:    info.Name,
			description: stringValue(info.Description),
			inputSchema: info.InputSchema,
		}
	}
	log.Infof("discovered %d MCP tools", len(discovered))

	return &Session{client: client, tools: discovered}, nil
}

// Session is an open MCP server connection and the tools it exposes.
// The caller must call Close when done; Close is idempotent.
type Session struct {
	client *Client
	tools  []tools.Tool

	once     sync.Once
	closeErr error
}

// Tools returns the discovered tools.
func (s *Session) Tools() []tools.Tool {
	return s.tools
}

// Close stops the MCP server. Only the first call has an effect.
func (s *Session) Close() error {
	s.once.Do(func() {
		if s.client != nil {
			s.closeErr = s.client.Close()
		}
	})
	return s.closeErr
}

// remoteTool wraps a tool hosted by the MCP server.
type remoteTool struct {
	client      *Client
	toolName    string
	description string
	inputSchema json.RawMessage
}

// Metadata returns the tool metadata extracted from the MCP schema.
func (w *remoteTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        w.toolName,
		Description: w.description,
		Parameters:  parseParameters(w.inputSchema),
		Schema:      w.inputSchema,
	}
}

// Execute calls the tool on the server. A result flagged isError becomes
// a failed tool result carrying the server's message.
func (w *remoteTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	result, err := w.client.CallTool(ctx, w.toolName, args)
	if err != nil {
		return tools.ToolResult{}, fmt.Errorf("tool call failed: %w", err)
	}

	text := result.Text()
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return tools.FailureResult(errors.New(text)), nil
	}
	return tools.SuccessResult(text), nil
}

// Validate checks that arguments are a JSON object.
// Schema validation is performed by the MCP server.
func (w *remoteTool) Validate(args json.RawMessage) error {
	if len(args) == 0 {
		return nil
	}
	var v map[string]any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return nil
}

// parseParameters extracts tool parameters from the JSON schema.
// Returns parameters in sorted order for deterministic output.
func parseParameters(inputSchema json.RawMessage) []tools.ToolParameter {
	var schema struct {
		Properties map[string]struct {
			Type        any    `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}

	if err := json.Unmarshal(inputSchema, &schema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool)
	for _, r := range schema.Required {
		requiredSet[r] = true
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]tools.ToolParameter, 0, len(names))
	for _, name := range names {
		prop := schema.Properties[name]
		params = append(params, tools.ToolParameter{
			Name:        name,
			Description: prop.Description,
			ParamType:   schemaType(prop.Type),
			Required:    requiredSet[name],
		})
	}

	return params
}

// schemaType reduces a JSON Schema "type" (string or list) to one name.
func schemaType(t any) string {
	switch v := t.(type) {
	case string:
		if v != "" {
			return v
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
	}
	return "string"
}

// stringValue returns empty string for nil pointers.
func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
