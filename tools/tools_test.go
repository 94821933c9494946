package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type stubTool struct {
	BaseTool
	name    string
	results []ToolResult
	errs    []error
	calls   int
	invalid error
}

func (s *stubTool) Metadata() ToolMetadata {
	return ToolMetadata{Name: s.name, Description: "stub"}
}

func (s *stubTool) Validate(json.RawMessage) error { return s.invalid }

func (s *stubTool) Execute(context.Context, json.RawMessage) (ToolResult, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return ToolResult{}, err
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return s.results[len(s.results)-1], nil
}

func newTestExecutor(retries uint32) *Executor {
	e := NewExecutor(ToolConfig{TimeoutSecs: 5, MaxRetries: retries})
	e.backoff = func(uint32) time.Duration { return 0 }
	return e
}

func TestExecutorRetriesTransientFailure(t *testing.T) {
	tool := &stubTool{name: "flaky", results: []ToolResult{
		FailureResultf("connection reset by peer"),
		SuccessResult("ok"),
	}}

	result, err := newTestExecutor(3).Execute(context.Background(), tool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success() || result.Output != "ok" {
		t.Errorf("expected success after retry, got %+v", result)
	}
	if tool.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", tool.calls)
	}
}

func TestExecutorDoesNotRetryOrdinaryFailure(t *testing.T) {
	tool := &stubTool{name: "missing", results: []ToolResult{FailureResultf("repository not found")}}

	result, err := newTestExecutor(3).Execute(context.Background(), tool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success() {
		t.Fatal("expected failure result")
	}
	if tool.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", tool.calls)
	}
}

func TestExecutorDoesNotRetryRateLimit(t *testing.T) {
	for _, msg := range []string{
		"API rate limit exceeded for user ID 42",
		"secondary rate limit; connection throttled",
	} {
		tool := &stubTool{name: "limited", results: []ToolResult{FailureResultf("%s", msg)}}

		result, err := newTestExecutor(3).Execute(context.Background(), tool, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Error == nil || result.Error.Error() != msg {
			t.Errorf("got %v, want %q", result.Error, msg)
		}
		if tool.calls != 1 {
			t.Errorf("%q: expected 1 attempt, got %d", msg, tool.calls)
		}
	}
}

func TestExecutorExhaustsRetries(t *testing.T) {
	tool := &stubTool{name: "down", errs: []error{
		errors.New("broken pipe"), errors.New("broken pipe"), errors.New("broken pipe"),
	}}

	result, err := newTestExecutor(3).Execute(context.Background(), tool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "tool 'down' failed after 3 attempts: broken pipe"
	if result.Error == nil || result.Error.Error() != want {
		t.Errorf("got %v, want %q", result.Error, want)
	}
}

func TestExecutorValidationFailure(t *testing.T) {
	tool := &stubTool{name: "strict", invalid: errors.New("owner is required"), results: []ToolResult{SuccessResult("x")}}

	result, err := newTestExecutor(3).Execute(context.Background(), tool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success() {
		t.Fatal("expected validation failure")
	}
	if tool.calls != 0 {
		t.Errorf("tool should not run on invalid args, ran %d times", tool.calls)
	}
}

func TestExecutorCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tool := &stubTool{name: "any", results: []ToolResult{SuccessResult("x")}}
	if _, err := newTestExecutor(3).Execute(ctx, tool, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistryFrom(&stubTool{name: "b"}, &stubTool{name: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(&stubTool{name: "a"}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if diff := cmp.Diff([]string{"a", "b"}, r.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if !r.Has("b") || r.Has("c") || r.Len() != 2 {
		t.Error("unexpected registry contents")
	}
	if got := r.List(); got[0].Name != "a" {
		t.Errorf("expected sorted metadata, got %v", got)
	}
}

func TestJSONSchemaPrefersRawSchema(t *testing.T) {
	meta := ToolMetadata{
		Name:       "list_issues",
		Parameters: []ToolParameter{{Name: "owner", ParamType: "string", Required: true}},
		Schema:     json.RawMessage(`{"properties":{"labels":{"type":"array","items":{"type":"string"}}}}`),
	}
	schema := meta.JSONSchema()
	if schema["type"] != "object" {
		t.Errorf("expected object type default, got %v", schema["type"])
	}
	props := schema["properties"].(map[string]any)
	if _, ok := props["labels"]; !ok {
		t.Errorf("expected raw schema properties, got %v", props)
	}
}

func TestJSONSchemaFromParameters(t *testing.T) {
	meta := ToolMetadata{
		Name: "list_issues",
		Parameters: []ToolParameter{
			{Name: "owner", ParamType: "string", Description: "Repository owner", Required: true},
			{Name: "labels", ParamType: "array", Description: "Labels"},
		},
	}
	want := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"owner":  map[string]any{"type": "string", "description": "Repository owner"},
			"labels": map[string]any{"type": "array", "description": "Labels", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"owner"},
	}
	if diff := cmp.Diff(want, meta.JSONSchema()); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}
}

func TestToolResultText(t *testing.T) {
	if got := SuccessResult("fine").Text(); got != "fine" {
		t.Errorf("got %q", got)
	}
	if got := FailureResultf("boom").Text(); got != "error: boom" {
		t.Errorf("got %q", got)
	}
}
