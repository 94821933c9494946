// Package model provides domain types shared across packages.
package model

import (
	"fmt"
	"strings"
)

// Step represents a single model turn in an agent run.
type Step struct {
	Iteration   int
	Thought     string
	Action      *string
	Observation *string
}

// ToolCall contains metrics about a tool invocation.
type ToolCall struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}

// RepositoryRef names a GitHub repository as "owner/name".
// Only non-emptiness matters when composing queries; the shape is
// checked by tools that need the two halves.
type RepositoryRef string

// IsZero reports whether no repository was given.
func (r RepositoryRef) IsZero() bool {
	return strings.TrimSpace(string(r)) == ""
}

// String returns the repository reference as given.
func (r RepositoryRef) String() string {
	return string(r)
}

// Split returns the owner and repository name.
func (r RepositoryRef) Split() (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(string(r)), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q: expected owner/name", string(r))
	}
	return owner, name, nil
}
