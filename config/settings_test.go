package config

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-envconfig"
)

func load(t *testing.T, env map[string]string) (Settings, error) {
	t.Helper()
	return LoadWith(context.Background(), envconfig.MapLookuper(env))
}

func TestLoadDefaults(t *testing.T) {
	settings, err := load(t, map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Settings{
		LLM:    LLMConfig{Provider: "openai", Model: "gpt-4o", MaxTokens: 4096, Temperature: 0.7},
		Agent:  AgentConfig{MaxIterations: 10, Timeout: 3 * time.Minute},
		GitHub: GitHubConfig{Repository: DefaultRepository, Tools: ToolsMCP},
	}
	if diff := cmp.Diff(want, settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	if settings.ModelKeyVar() != "OPENAI_API_KEY" {
		t.Errorf("expected OPENAI_API_KEY, got %q", settings.ModelKeyVar())
	}
}

func TestLoadWithAlias(t *testing.T) {
	settings, err := load(t, map[string]string{"GHSCOUT_PROVIDER": "claude"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
	if settings.LLM.Model != "claude-sonnet-4-20250514" {
		t.Errorf("expected default anthropic model, got %q", settings.LLM.Model)
	}
	if settings.ModelKeyVar() != "ANTHROPIC_API_KEY" {
		t.Errorf("expected ANTHROPIC_API_KEY, got %q", settings.ModelKeyVar())
	}
}

func TestLoadModelPrecedence(t *testing.T) {
	settings, err := load(t, map[string]string{"GHSCOUT_PROVIDER": "gemini", "GEMINI_MODEL": "gemini-2.5-pro"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Model != "gemini-2.5-pro" {
		t.Errorf("expected provider model variable, got %q", settings.LLM.Model)
	}

	settings, err = load(t, map[string]string{"GHSCOUT_PROVIDER": "gemini", "GEMINI_MODEL": "gemini-2.5-pro", "GHSCOUT_MODEL": "gemini-x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Model != "gemini-x" {
		t.Errorf("expected GHSCOUT_MODEL to win, got %q", settings.LLM.Model)
	}
}

func TestLoadOverrides(t *testing.T) {
	settings, err := load(t, map[string]string{
		"AGENT_MAX_ITERATIONS": "4",
		"GHSCOUT_TIMEOUT":      "45s",
		"GHSCOUT_REPOSITORY":   "agno-agi/agno",
		"GHSCOUT_TOOLS":        "builtin",
		"GHSCOUT_DB":           "/tmp/ghscout.db",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Agent.MaxIterations != 4 || settings.Agent.Timeout != 45*time.Second {
		t.Errorf("unexpected agent settings: %+v", settings.Agent)
	}
	if settings.GitHub.Repository != "agno-agi/agno" || settings.GitHub.Tools != ToolsBuiltin {
		t.Errorf("unexpected GitHub settings: %+v", settings.GitHub)
	}
	if settings.History.Path != "/tmp/ghscout.db" {
		t.Errorf("unexpected history path: %q", settings.History.Path)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown provider", map[string]string{"GHSCOUT_PROVIDER": "unknown_provider"}},
		{"invalid max tokens", map[string]string{"LLM_MAX_TOKENS": "not-a-number"}},
		{"invalid temperature", map[string]string{"LLM_TEMPERATURE": "5"}},
		{"zero iterations", map[string]string{"AGENT_MAX_ITERATIONS": "0"}},
		{"invalid timeout", map[string]string{"GHSCOUT_TIMEOUT": "soon"}},
		{"unknown tools backend", map[string]string{"GHSCOUT_TOOLS": "graphql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(t, tt.env); err == nil {
				t.Error("expected error")
			}
		})
	}
}
