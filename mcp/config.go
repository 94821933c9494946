// MCP server configuration file support.
//
// Supports Anthropic-style MCP configuration format:
//
//	{
//	  "mcpServers": {
//	    "github": {
//	      "command": "npx",
//	      "args": ["-y", "@modelcontextprotocol/server-github"],
//	      "tokenEnv": "GITHUB_PERSONAL_ACCESS_TOKEN"
//	    },
//	    "github-docker": {
//	      "command": "docker",
//	      "args": ["run", "-i", "--rm", "-e", "GITHUB_PERSONAL_ACCESS_TOKEN", "ghcr.io/github/github-mcp-server"]
//	    }
//	  }
//	}
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DefaultTokenEnv is the variable the GitHub MCP server reads its token from.
const DefaultTokenEnv = "GITHUB_PERSONAL_ACCESS_TOKEN"

// Config represents the MCP configuration file format.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig represents a single MCP server configuration.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
	// TokenEnv names the variable the host token is passed in.
	// Empty means DefaultTokenEnv.
	TokenEnv string `json:"tokenEnv,omitempty"`
}

// DefaultServer returns the reference GitHub MCP server launched through npx.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Command:  "npx",
		Args:     []string{"-y", "@modelcontextprotocol/server-github"},
		TokenEnv: DefaultTokenEnv,
	}
}

// String returns the command line, e.g. "npx -y @modelcontextprotocol/server-github".
func (s ServerConfig) String() string {
	return strings.Join(append([]string{s.Command}, s.Args...), " ")
}

// process builds the subprocess description with the host token injected.
func (s ServerConfig) process(hostToken string) Process {
	tokenEnv := s.TokenEnv
	if tokenEnv == "" {
		tokenEnv = DefaultTokenEnv
	}

	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		env = append(env, k+"="+s.Env[k])
	}
	if hostToken != "" {
		env = append(env, tokenEnv+"="+hostToken)
	}
	return Process{Command: s.Command, Args: s.Args, Env: env}
}

// LoadConfig loads MCP configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Names returns the configured server names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.MCPServers))
	for name := range c.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Server returns the named server. With an empty name and exactly one
// configured server, that server is returned.
func (c *Config) Server(name string) (ServerConfig, error) {
	if name == "" {
		if len(c.MCPServers) != 1 {
			return ServerConfig{}, fmt.Errorf("config defines %d servers; choose one of %v", len(c.MCPServers), c.Names())
		}
		name = c.Names()[0]
	}
	s, ok := c.MCPServers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("no MCP server named %q (have %v)", name, c.Names())
	}
	if s.Command == "" {
		return ServerConfig{}, fmt.Errorf("MCP server %q has no command", name)
	}
	return s, nil
}
