package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/ghscout/credentials"
	"github.com/richinex/ghscout/llm"
	"github.com/richinex/ghscout/query"
	"github.com/richinex/ghscout/storage"
	"github.com/richinex/ghscout/tools"
)

var complete = credentials.Credentials{HostToken: "ghp_test", ModelAPIKey: "sk-test"}

type fakeSession struct {
	tools    []tools.Tool
	closes   int
	closeErr error
	mu       sync.Mutex
}

func (s *fakeSession) Tools() []tools.Tool { return s.tools }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.closeErr
}

type fakeGateway struct {
	session *fakeSession
	err     error
	opens   int
	creds   []credentials.Credentials
}

func (g *fakeGateway) Open(ctx context.Context, creds credentials.Credentials) (tools.Session, error) {
	g.opens++
	g.creds = append(g.creds, creds)
	if g.err != nil {
		return nil, g.err
	}
	return g.session, nil
}

type fakeProvider struct {
	responses []llm.LLMResponse
	err       error
	panicMsg  string
	block     bool
	requests  [][]llm.ChatMessage
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-1" }

func (p *fakeProvider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, _ []llm.ToolDefinition) (llm.LLMResponse, error) {
	p.requests = append(p.requests, messages)
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.block {
		<-ctx.Done()
		return llm.LLMResponse{}, ctx.Err()
	}
	if p.err != nil {
		return llm.LLMResponse{}, p.err
	}
	if len(p.responses) == 0 {
		return llm.LLMResponse{ToolCalls: []llm.ToolCall{{ID: "again", Name: "list_issues", Arguments: json.RawMessage(`{}`)}}}, nil
	}
	r := p.responses[0]
	p.responses = p.responses[1:]
	return r, nil
}

type issuesTool struct {
	tools.BaseTool
	calls int
}

func (t *issuesTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{Name: "list_issues", Description: "List issues"}
}

func (t *issuesTool) Execute(context.Context, json.RawMessage) (tools.ToolResult, error) {
	t.calls++
	return tools.SuccessResult(`[{"number":7,"title":"Crash on start","labels":["bug"]}]`), nil
}

type factoryProbe struct {
	provider llm.Provider
	err      error
	calls    int
	creds    []credentials.Credentials
}

func (f *factoryProbe) build(creds credentials.Credentials) (llm.Provider, error) {
	f.calls++
	f.creds = append(f.creds, creds)
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

func TestAskSuccess(t *testing.T) {
	tool := &issuesTool{}
	gateway := &fakeGateway{session: &fakeSession{tools: []tools.Tool{tool}}}
	provider := &fakeProvider{responses: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "list_issues", Arguments: json.RawMessage(`{"repository":"anand-ma/digital-toastmasters","labels":["bug"]}`)}}, Usage: &llm.TokenUsage{TotalTokens: 40}},
		{Content: "| # | Title |\n|---|---|\n| 7 | Crash on start |\n\nTools used: list_issues", Usage: &llm.TokenUsage{TotalTokens: 25}},
	}}
	factory := &factoryProbe{provider: provider}
	history := storage.NewInMemoryHistory()

	o := New(gateway, factory.build, Options{History: history})
	req := query.Request{RawText: "Find issues labeled as bugs", Repository: "anand-ma/digital-toastmasters"}
	result := o.Ask(context.Background(), req, complete)

	require.True(t, result.OK(), "unexpected failure: %v", result.Err)
	assert.Equal(t, "| # | Title |\n|---|---|\n| 7 | Crash on start |\n\nTools used: list_issues", result.Text)
	assert.Equal(t, result.Text, result.Display())
	assert.Equal(t, []string{"list_issues"}, result.ToolNames())
	assert.Equal(t, uint32(65), result.Usage.TotalTokens)
	assert.Equal(t, 1, tool.calls)

	assert.Equal(t, 1, gateway.opens)
	assert.Equal(t, 1, gateway.session.closes)
	assert.Equal(t, []credentials.Credentials{complete}, gateway.creds)
	assert.Equal(t, []credentials.Credentials{complete}, factory.creds)

	first := provider.requests[0]
	require.Len(t, first, 2)
	assert.Equal(t, llm.RoleSystem, first[0].Role)
	assert.Equal(t, DefaultSystemPrompt, first[0].Content)
	assert.Equal(t, "Find issues labeled as bugs in anand-ma/digital-toastmasters", first[1].Content)

	entries, err := history.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "anand-ma/digital-toastmasters", entries[0].Repository)
	assert.Equal(t, "fake", entries[0].Provider)
	assert.Equal(t, 1, entries[0].ToolCalls)
}

func TestAskRepositoryAlreadyInQuery(t *testing.T) {
	gateway := &fakeGateway{session: &fakeSession{}}
	provider := &fakeProvider{responses: []llm.LLMResponse{{Content: "Three merged PRs."}}}
	factory := &factoryProbe{provider: provider}

	result := New(gateway, factory.build, Options{}).Ask(context.Background(),
		query.Request{RawText: "Show merged PRs in octo/hello", Repository: "octo/hello"}, complete)

	require.True(t, result.OK())
	assert.Equal(t, "Show merged PRs in octo/hello", provider.requests[0][1].Content)
}

func TestAskMissingCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds credentials.Credentials
		want  error
	}{{
		name:  "no github token",
		creds: credentials.Credentials{ModelAPIKey: "sk-test"},
		want:  ErrMissingHostToken,
	}, {
		name:  "no model key",
		creds: credentials.Credentials{HostToken: "ghp_test"},
		want:  llm.ErrMissingAPIKey,
	}, {
		name: "nothing",
		want: ErrMissingHostToken,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := &fakeGateway{session: &fakeSession{}}
			factory := &factoryProbe{provider: &fakeProvider{}}

			result := New(gateway, factory.build, Options{}).Ask(context.Background(),
				query.Request{RawText: "Show open issues", Repository: "octo/hello"}, tt.creds)

			require.False(t, result.OK())
			assert.Equal(t, KindMissingCredential, result.Err.Kind)
			assert.ErrorIs(t, result.Err, tt.want)
			assert.True(t, strings.HasPrefix(result.Display(), ErrorMarker))
			assert.Zero(t, gateway.opens)
			assert.Zero(t, factory.calls)
		})
	}
}

func TestAskEmptyQuery(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n\t"} {
		gateway := &fakeGateway{session: &fakeSession{}}
		factory := &factoryProbe{provider: &fakeProvider{}}

		result := New(gateway, factory.build, Options{}).Ask(context.Background(),
			query.Request{RawText: raw, Repository: "octo/hello"}, complete)

		require.False(t, result.OK())
		assert.Equal(t, KindEmptyQuery, result.Err.Kind)
		assert.Equal(t, "Error: please enter a query", result.Display())
		assert.Zero(t, gateway.opens)
		assert.Zero(t, factory.calls)
	}
}

func TestRunSessionFailure(t *testing.T) {
	openErr := errors.New("failed to connect to MCP server: exec: \"npx\": executable file not found in $PATH")
	gateway := &fakeGateway{err: openErr}
	factory := &factoryProbe{provider: &fakeProvider{}}
	history := storage.NewInMemoryHistory()

	result := New(gateway, factory.build, Options{History: history}).Run(context.Background(), "Show open issues in octo/hello", complete)

	require.False(t, result.OK())
	assert.Equal(t, KindSessionFailure, result.Err.Kind)
	assert.ErrorIs(t, result.Err, openErr)
	assert.Equal(t, "Error: "+openErr.Error(), result.Display())
	assert.Zero(t, factory.calls)

	entries, err := history.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, openErr.Error(), entries[0].Answer)
}

func TestRunAgentFailures(t *testing.T) {
	modelErr := errors.New("status 401: invalid api key")

	tests := []struct {
		name     string
		provider *fakeProvider
		factory  error
		opts     Options
		want     string
	}{{
		name:     "model error",
		provider: &fakeProvider{err: modelErr},
		want:     "Failed to reason: status 401: invalid api key",
	}, {
		name:     "provider construction",
		provider: &fakeProvider{},
		factory:  errors.New("openai: model API key not provided"),
		want:     "openai: model API key not provided",
	}, {
		name:     "panic",
		provider: &fakeProvider{panicMsg: "boom"},
		want:     "internal error: boom",
	}, {
		name:     "iterations exhausted",
		provider: &fakeProvider{},
		opts:     Options{MaxIterations: 2},
		want:     "agent did not finish within 2 iterations",
	}, {
		name:     "empty answer",
		provider: &fakeProvider{responses: []llm.LLMResponse{{Content: "  "}}},
		want:     "model returned an empty response",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{tools: []tools.Tool{&issuesTool{}}}
			gateway := &fakeGateway{session: session}
			factory := &factoryProbe{provider: tt.provider, err: tt.factory}

			result := New(gateway, factory.build, tt.opts).Run(context.Background(), "Show open issues in octo/hello", complete)

			require.False(t, result.OK())
			assert.Equal(t, KindAgentFailure, result.Err.Kind)
			assert.Equal(t, tt.want, result.Err.Error())
			assert.Equal(t, ErrorMarker+tt.want, result.Display())
			assert.Equal(t, 1, gateway.opens)
			assert.Equal(t, 1, session.closes, "session must be closed exactly once")
		})
	}
}

func TestRunTimeout(t *testing.T) {
	session := &fakeSession{}
	gateway := &fakeGateway{session: session}
	factory := &factoryProbe{provider: &fakeProvider{block: true}}

	result := New(gateway, factory.build, Options{Timeout: 50 * time.Millisecond}).Run(context.Background(), "Show open issues", complete)

	require.False(t, result.OK())
	assert.Equal(t, KindAgentFailure, result.Err.Kind)
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	assert.Equal(t, 1, session.closes)
}

func TestRunCloseErrorDoesNotFailQuery(t *testing.T) {
	session := &fakeSession{closeErr: errors.New("broken pipe")}
	gateway := &fakeGateway{session: session}
	factory := &factoryProbe{provider: &fakeProvider{responses: []llm.LLMResponse{{Content: "No open issues."}}}}

	result := New(gateway, factory.build, Options{}).Run(context.Background(), "Show open issues", complete)

	require.True(t, result.OK())
	assert.Equal(t, "No open issues.", result.Text)
	assert.Equal(t, 1, session.closes)
}

func TestFailureKinds(t *testing.T) {
	assert.Equal(t, "missing_credential", KindMissingCredential.String())
	assert.Equal(t, "empty_query", KindEmptyQuery.String())
	assert.Equal(t, "session_failure", KindSessionFailure.String())
	assert.Equal(t, "agent_failure", KindAgentFailure.String())
	assert.Equal(t, "unknown", Kind(0).String())

	var f *Failure
	err := error(fail(KindSessionFailure, context.Canceled))
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindSessionFailure, f.Kind)
}

func TestProviderFromBuilder(t *testing.T) {
	factory := ProviderFromBuilder(llm.NewProviderBuilder(llm.ProviderOpenAI))

	_, err := factory(credentials.Credentials{HostToken: "ghp_test"})
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)

	p, err := factory(complete)
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOpenAI.DefaultModel(), p.Model())
}
