// Package ghtools serves GitHub query tools in-process over the REST API.
//
// It is the alternative to launching an external MCP server: the same
// kind of read-only repository queries, backed by go-github.
package ghtools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"

	"github.com/richinex/ghscout/credentials"
	"github.com/richinex/ghscout/tools"
)

// Gateway opens sessions exposing the in-process GitHub tools.
type Gateway struct {
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
	// HTTPClient is the transport the token source wraps. Nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// NewGateway returns a gateway for api.github.com.
func NewGateway() *Gateway {
	return &Gateway{}
}

// Open builds a GitHub client for the host token and returns the tool set.
// An empty token yields an unauthenticated client with a low rate limit.
func (g *Gateway) Open(ctx context.Context, creds credentials.Credentials) (tools.Session, error) {
	base := g.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}

	httpClient := base
	if creds.HostToken != "" {
		ctx := context.WithValue(ctx, oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.HostToken}))
	}

	gh := github.NewClient(httpClient)
	if g.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(g.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", g.BaseURL, err)
		}
		gh.BaseURL = u
	}

	toolset := New(gh)
	clog.FromContext(ctx).Debugf("opened in-process GitHub toolset with %d tools", len(toolset))
	return &Session{tools: toolset, httpClient: httpClient}, nil
}

// Session holds the in-process tools. Close releases idle connections.
type Session struct {
	tools      []tools.Tool
	httpClient *http.Client
	once       sync.Once
}

// Tools returns the GitHub tools.
func (s *Session) Tools() []tools.Tool {
	return s.tools
}

// Close is idempotent.
func (s *Session) Close() error {
	s.once.Do(func() {
		if s.httpClient != nil {
			s.httpClient.CloseIdleConnections()
		}
	})
	return nil
}

// New returns the GitHub tools bound to gh.
func New(gh *github.Client) []tools.Tool {
	return []tools.Tool{
		&listIssuesTool{gh: gh},
		&listPullRequestsTool{gh: gh},
		&repositoryActivityTool{gh: gh},
	}
}
