// Package config provides application settings loaded from environment variables.
//
// Settings are created via Load() which handles:
// - Environment variable parsing with validation (go-envconfig)
// - Default value application
// - Provider-specific model lookup

package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/richinex/ghscout/llm"
)

// Tool backends.
const (
	ToolsMCP     = "mcp"
	ToolsBuiltin = "builtin"
)

// Settings holds all application configuration.
type Settings struct {
	LLM     LLMConfig
	Agent   AgentConfig
	GitHub  GitHubConfig
	History HistoryConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `env:"GHSCOUT_PROVIDER,default=openai"`
	Model       string  `env:"GHSCOUT_MODEL"`
	MaxTokens   uint32  `env:"LLM_MAX_TOKENS,default=4096"`
	Temperature float64 `env:"LLM_TEMPERATURE,default=0.7"`
}

// AgentConfig holds agent execution configuration.
type AgentConfig struct {
	MaxIterations int           `env:"AGENT_MAX_ITERATIONS,default=10"`
	Timeout       time.Duration `env:"GHSCOUT_TIMEOUT,default=3m"`
}

// DefaultRepository is queried when no repository is configured.
const DefaultRepository = "anand-ma/digital-toastmasters"

// GitHubConfig selects the repository and the tool backend.
type GitHubConfig struct {
	Repository string `env:"GHSCOUT_REPOSITORY,default=anand-ma/digital-toastmasters"`
	Tools      string `env:"GHSCOUT_TOOLS,default=mcp"`
	MCPConfig  string `env:"GHSCOUT_MCP_CONFIG"`
	MCPServer  string `env:"GHSCOUT_MCP_SERVER"`
	APIURL     string `env:"GITHUB_API_URL"`
}

// HistoryConfig configures the optional query history database.
type HistoryConfig struct {
	// Path of the SQLite database. Empty disables history.
	Path string `env:"GHSCOUT_DB"`
}

// Load reads settings from the process environment.
func Load(ctx context.Context) (Settings, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads settings from lookuper. Tests pass envconfig.MapLookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Settings, error) {
	var s Settings
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &s,
		Lookuper: lookuper,
	}); err != nil {
		return Settings{}, fmt.Errorf("invalid environment: %w", err)
	}

	provider, err := llm.ParseProviderType(s.LLM.Provider)
	if err != nil {
		return Settings{}, err
	}
	s.LLM.Provider = provider.String()

	// Provider-specific model variable (e.g. OPENAI_MODEL), then the provider default.
	if s.LLM.Model == "" {
		if v, ok := lookuper.Lookup(strings.ToUpper(provider.String()) + "_MODEL"); ok && v != "" {
			s.LLM.Model = v
		} else {
			s.LLM.Model = provider.DefaultModel()
		}
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MustLoad is Load that panics on error.
// Use this only when configuration errors should be fatal.
func MustLoad(ctx context.Context) Settings {
	settings, err := Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate checks ranges and enumerations. Load calls it; the CLI calls it
// again after applying flag overrides.
func (s *Settings) Validate() error {
	if _, err := llm.ParseProviderType(s.LLM.Provider); err != nil {
		return err
	}
	if s.LLM.Temperature < 0 || s.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %v", s.LLM.Temperature)
	}
	if s.Agent.MaxIterations < 1 {
		return fmt.Errorf("AGENT_MAX_ITERATIONS must be at least 1, got %d", s.Agent.MaxIterations)
	}
	if s.Agent.Timeout < 0 {
		return fmt.Errorf("GHSCOUT_TIMEOUT must not be negative, got %v", s.Agent.Timeout)
	}
	switch s.GitHub.Tools {
	case ToolsMCP, ToolsBuiltin:
	default:
		return fmt.Errorf("GHSCOUT_TOOLS must be %q or %q, got %q", ToolsMCP, ToolsBuiltin, s.GitHub.Tools)
	}
	return nil
}

// ProviderType returns the parsed provider.
func (s *Settings) ProviderType() llm.ProviderType {
	p, _ := llm.ParseProviderType(s.LLM.Provider)
	return p
}

// ModelKeyVar returns the variable holding the provider's API key,
// e.g. OPENAI_API_KEY.
func (s *Settings) ModelKeyVar() string {
	return s.ProviderType().EnvVar()
}
