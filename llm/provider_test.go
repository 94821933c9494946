package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

func TestOpenAIChatWithToolsParsesToolCalls(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "list_issues", "arguments": "{\"owner\":\"octo\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAICompatibleProvider("openai", srv.URL+"/v1", "sk-test", "gpt-4o", 256, 0)

	resp, err := p.ChatWithTools(context.Background(), []ChatMessage{
		SystemMessage("be factual"),
		UserMessage("What issues are open? in octo/repo"),
	}, []ToolDefinition{{
		Name:        "list_issues",
		Description: "List issues",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []ToolCall{{ID: "call_1", Name: "list_issues", Arguments: json.RawMessage(`{"owner":"octo"}`)}}
	if diff := cmp.Diff(want, resp.ToolCalls); diff != "" {
		t.Errorf("tool calls mismatch (-want +got):\n%s", diff)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}

	tools, ok := gotBody["tools"].([]any)
	if !ok || len(tools) != 1 {
		t.Fatalf("expected one tool in request, got %v", gotBody["tools"])
	}
}

func TestOpenAIErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-test-invalid-key-12345xyz"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`)
	}))
	defer srv.Close()

	p := NewOpenAICompatibleProvider("openai", srv.URL+"/v1", testKey, "gpt-4o", 100, 0.7)
	_, err := p.ChatWithTools(context.Background(), []ChatMessage{UserMessage("test")}, nil)
	if err == nil {
		t.Fatal("expected error for rejected key")
	}
	if strings.Contains(err.Error(), testKey) {
		t.Errorf("error message leaked API key: %v", err)
	}
}

func TestConvertToAnthropicMessagesGroupsToolResults(t *testing.T) {
	calls := []ToolCall{
		{ID: "a", Name: "list_issues", Arguments: json.RawMessage(`{}`)},
		{ID: "b", Name: "list_pull_requests", Arguments: json.RawMessage(`{}`)},
	}
	messages := []ChatMessage{
		SystemMessage("sys"),
		UserMessage("question"),
		AssistantMessage("", calls),
		ToolResultMessage(calls[0], "issues", false),
		ToolResultMessage(calls[1], "boom", true),
	}

	converted, system := convertToAnthropicMessages(messages)
	if system != "sys" {
		t.Errorf("expected system prompt 'sys', got %q", system)
	}
	if len(converted) != 3 {
		t.Fatalf("expected 3 messages (user, assistant, grouped results), got %d", len(converted))
	}
	if got := len(converted[1].Content); got != 2 {
		t.Errorf("expected 2 tool_use blocks, got %d", got)
	}
	if got := len(converted[2].Content); got != 2 {
		t.Errorf("expected 2 tool_result blocks in one turn, got %d", got)
	}
}

func TestSchemaRequiredAcceptsDecodedJSON(t *testing.T) {
	var params map[string]any
	if err := json.Unmarshal([]byte(`{"type":"object","required":["owner","repo"]}`), &params); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"owner", "repo"}, schemaRequired(params)); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
	if got := schemaRequired(map[string]any{"required": []string{"x"}}); len(got) != 1 {
		t.Errorf("expected []string passthrough, got %v", got)
	}
}

func TestConvertToGeminiSchemaArrays(t *testing.T) {
	var params map[string]any
	err := json.Unmarshal([]byte(`{
		"type": "object",
		"properties": {
			"labels": {"type": "array", "description": "Labels"},
			"per_page": {"type": "integer"},
			"state": {"type": "string", "enum": ["open", "closed"]}
		},
		"required": ["labels"]
	}`), &params)
	if err != nil {
		t.Fatal(err)
	}

	schema := convertToGeminiSchema(params)
	labels := schema.Properties["labels"]
	if labels == nil || labels.Items == nil || labels.Items.Type != genai.TypeString {
		t.Fatalf("expected array items defaulted to string, got %+v", labels)
	}
	if schema.Properties["per_page"].Type != genai.TypeInteger {
		t.Errorf("expected integer type, got %v", schema.Properties["per_page"].Type)
	}
	if diff := cmp.Diff([]string{"open", "closed"}, schema.Properties["state"].Enum); diff != "" {
		t.Errorf("enum mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"labels"}, schema.Required); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
}

func TestClientAccumulatesUsage(t *testing.T) {
	fake := &scriptedProvider{responses: []LLMResponse{
		{Content: "a", Usage: &TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}},
		{Content: "b", Usage: &TokenUsage{PromptTokens: 4, CompletionTokens: 5, TotalTokens: 9}},
	}}
	c := NewClient(fake)
	for range 2 {
		if _, err := c.ChatWithTools(context.Background(), nil, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if c.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", c.Calls())
	}
	if got := c.Usage(); got.TotalTokens != 12 || got.PromptTokens != 5 {
		t.Errorf("unexpected usage: %+v", got)
	}
}

type scriptedProvider struct {
	responses []LLMResponse
	next      int
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) ChatWithTools(context.Context, []ChatMessage, []ToolDefinition) (LLMResponse, error) {
	r := p.responses[p.next]
	p.next++
	return r, nil
}
