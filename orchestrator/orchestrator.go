// Package orchestrator runs one natural-language query end to end.
//
// A query checks its credentials, opens a tool session, runs an agent bound
// to the session's tools and always closes the session before returning.
//
// Information Hiding:
// - Session lifecycle hidden
// - Agent construction hidden
// - Failure classification hidden
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/richinex/ghscout/agent"
	"github.com/richinex/ghscout/credentials"
	"github.com/richinex/ghscout/llm"
	"github.com/richinex/ghscout/query"
	"github.com/richinex/ghscout/storage"
	"github.com/richinex/ghscout/tools"
)

// DefaultMaxIterations bounds the agent's tool-calling rounds.
const DefaultMaxIterations = 10

// Gateway opens a tool session for one query.
type Gateway interface {
	Open(ctx context.Context, creds credentials.Credentials) (tools.Session, error)
}

// ProviderFactory builds a model provider from the resolved credentials.
type ProviderFactory func(creds credentials.Credentials) (llm.Provider, error)

// ProviderFromBuilder returns a factory that keys builder with the model API key.
func ProviderFromBuilder(builder *llm.ProviderBuilder) ProviderFactory {
	return func(creds credentials.Credentials) (llm.Provider, error) {
		return builder.APIKey(creds.ModelAPIKey)
	}
}

// Options tune an Orchestrator. Zero values select defaults.
type Options struct {
	AgentName     string
	SystemPrompt  string
	MaxIterations int
	// Timeout bounds a whole query, session startup included. Zero means none.
	Timeout    time.Duration
	ToolConfig tools.ToolConfig
	// History records each query that reaches Run. Optional.
	History storage.HistoryStorage
}

func (o Options) withDefaults() Options {
	if o.AgentName == "" {
		o.AgentName = DefaultAgentName
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.ToolConfig == (tools.ToolConfig{}) {
		o.ToolConfig = tools.DefaultToolConfig()
	}
	return o
}

// Orchestrator answers queries. It holds no per-query state and may be
// reused for sequential or concurrent queries.
type Orchestrator struct {
	sessions  Gateway
	providers ProviderFactory
	opts      Options
}

// New creates an orchestrator.
func New(sessions Gateway, providers ProviderFactory, opts Options) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		providers: providers,
		opts:      opts.withDefaults(),
	}
}

// Ask validates a raw request, composes the instruction and runs it.
// Precondition failures are returned without opening a session.
func (o *Orchestrator) Ask(ctx context.Context, req query.Request, creds credentials.Credentials) Result {
	if !creds.HasHostToken() {
		return Result{Err: fail(KindMissingCredential, ErrMissingHostToken)}
	}
	if !creds.HasModelAPIKey() {
		return Result{Err: fail(KindMissingCredential, llm.ErrMissingAPIKey)}
	}
	instruction := req.Instruction()
	if instruction == "" {
		return Result{Err: fail(KindEmptyQuery, ErrEmptyQuery)}
	}
	return o.run(ctx, req.Repository, instruction, creds)
}

// Run executes a composed instruction. It never panics and always closes
// the session it opened.
func (o *Orchestrator) Run(ctx context.Context, instruction string, creds credentials.Credentials) Result {
	return o.run(ctx, "", instruction, creds)
}

func (o *Orchestrator) run(ctx context.Context, repository, instruction string, creds credentials.Credentials) Result {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	var provider llm.Provider
	result := o.execute(ctx, instruction, creds, &provider)
	result.Duration = time.Since(start)

	o.record(ctx, repository, instruction, provider, result)
	return result
}

func (o *Orchestrator) execute(ctx context.Context, instruction string, creds credentials.Credentials, used *llm.Provider) (result Result) {
	log := clog.FromContext(ctx).With("agent", o.opts.AgentName)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("query panicked: %v", r)
			result = Result{Err: fail(KindAgentFailure, fmt.Errorf("internal error: %v", r))}
		}
	}()

	session, err := o.sessions.Open(ctx, creds)
	if err != nil {
		return Result{Err: fail(KindSessionFailure, err)}
	}
	defer closeSession(ctx, session)

	provider, err := o.providers(creds)
	if err != nil {
		return Result{Err: fail(KindAgentFailure, err)}
	}
	*used = provider

	sessionTools := session.Tools()
	log.Infof("running query with %d tools on %s/%s", len(sessionTools), provider.Name(), provider.Model())

	cfg := agent.NewBuilder(o.opts.AgentName).
		Description("Answers questions about GitHub repositories").
		SystemPrompt(o.opts.SystemPrompt).
		Tools(sessionTools).
		Build()

	resp := agent.New(cfg, provider).
		WithToolConfig(o.opts.ToolConfig).
		Execute(ctx, instruction, o.opts.MaxIterations)

	result = Result{ToolCalls: resp.Metadata.ToolCalls}
	if resp.Metadata.TokenUsage != nil {
		result.Usage = *resp.Metadata.TokenUsage
	}

	switch resp.Type {
	case agent.ResponseSuccess:
		result.Text = resp.Result
	case agent.ResponseTimeout:
		result.Err = fail(KindAgentFailure, fmt.Errorf("agent did not finish within %d iterations", o.opts.MaxIterations))
	default:
		err := errors.New(resp.Error)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
			err = fmt.Errorf("query timed out: %w", ctxErr)
		} else if ctxErr != nil {
			err = fmt.Errorf("%s: %w", resp.Error, ctxErr)
		}
		result.Err = fail(KindAgentFailure, err)
	}
	return result
}

// closeSession tears down a session, logging rather than returning failures.
func closeSession(ctx context.Context, session tools.Session) {
	log := clog.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("closing tool session panicked: %v", r)
		}
	}()
	if err := session.Close(); err != nil {
		log.Warnf("closing tool session: %v", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, repository, instruction string, provider llm.Provider, result Result) {
	if o.opts.History == nil {
		return
	}

	entry := storage.NewHistoryEntry(repository, instruction)
	if provider != nil {
		entry.Provider = provider.Name()
		entry.Model = provider.Model()
	}
	entry.Success = result.OK()
	if result.OK() {
		entry.Answer = result.Text
	} else {
		entry.Answer = result.Err.Error()
	}
	entry.ToolCalls = len(result.ToolCalls)
	entry.TotalTokens = result.Usage.TotalTokens
	entry.DurationMs = uint64(result.Duration.Milliseconds())

	// The query deadline may already have passed.
	if err := o.opts.History.Record(context.WithoutCancel(ctx), entry); err != nil {
		clog.FromContext(ctx).Warnf("recording query history: %v", err)
	}
}
