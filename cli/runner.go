// Command execution for CLI commands.
//
// Information Hiding:
// - Settings and flag merging hidden
// - Credential resolution and gateway selection hidden
// - Output formatting hidden

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"

	"github.com/richinex/ghscout/config"
	"github.com/richinex/ghscout/credentials"
	"github.com/richinex/ghscout/ghtools"
	"github.com/richinex/ghscout/llm"
	"github.com/richinex/ghscout/mcp"
	"github.com/richinex/ghscout/orchestrator"
	"github.com/richinex/ghscout/query"
	"github.com/richinex/ghscout/storage"
	"github.com/richinex/ghscout/tools"
)

// ErrQueryFailed is returned after a failed query has been reported on
// stdout. The caller only needs to set the exit status.
var ErrQueryFailed = errors.New("query failed")

// Options holds CLI flag values. Zero values defer to the environment.
type Options struct {
	Provider    string
	Model       string
	Repository  string
	GitHubToken string
	APIKey      string
	Privileged  bool
	SecretsFile string
	Tools       string
	MCPConfig   string
	MCPServer   string
	Timeout     time.Duration
	MaxIter     int
	ToolRetries uint32
	DBPath      string
	Verbose     bool
}

// Runner executes CLI commands.
type Runner struct {
	Options Options
	In      io.Reader
	Out     io.Writer
	Err     io.Writer

	// Test seams. Nil selects the process environment and real providers.
	lookuper  envconfig.Lookuper
	env       credentials.SecretStore
	providers orchestrator.ProviderFactory
	readLine  func(prompt string) (string, error)
}

// NewRunner returns a runner on the process's standard streams.
func NewRunner(opts Options) *Runner {
	return &Runner{Options: opts, In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// Settings loads the environment and applies flag overrides.
func (r *Runner) Settings(ctx context.Context) (config.Settings, error) {
	lookuper := r.lookuper
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}

	// An explicit provider changes which <PROVIDER>_MODEL applies.
	if r.Options.Provider != "" {
		lookuper = envconfig.MultiLookuper(envconfig.MapLookuper(map[string]string{
			"GHSCOUT_PROVIDER": r.Options.Provider,
		}), lookuper)
	}

	s, err := config.LoadWith(ctx, lookuper)
	if err != nil {
		return config.Settings{}, err
	}

	o := r.Options
	if o.Model != "" {
		s.LLM.Model = o.Model
	}
	if o.Repository != "" {
		s.GitHub.Repository = o.Repository
	}
	if o.Tools != "" {
		s.GitHub.Tools = o.Tools
	}
	if o.MCPConfig != "" {
		s.GitHub.MCPConfig = o.MCPConfig
	}
	if o.MCPServer != "" {
		s.GitHub.MCPServer = o.MCPServer
	}
	if o.Timeout != 0 {
		s.Agent.Timeout = o.Timeout
	}
	if o.MaxIter != 0 {
		s.Agent.MaxIterations = o.MaxIter
	}
	if o.DBPath != "" {
		s.History.Path = o.DBPath
	}

	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

// Credentials resolves the query credentials for the selected mode.
func (r *Runner) Credentials(s config.Settings) (credentials.Credentials, error) {
	mode := credentials.ModeUser
	if r.Options.Privileged {
		mode = credentials.ModePrivileged
	}

	resolver := credentials.Resolver{ModelKeyKey: s.ModelKeyVar()}
	if mode == credentials.ModePrivileged {
		var chain credentials.ChainStore
		if r.Options.SecretsFile != "" {
			file, err := credentials.OpenFileStore(r.Options.SecretsFile)
			if err != nil {
				return credentials.Credentials{}, err
			}
			chain = append(chain, file)
		}
		env := r.env
		if env == nil {
			env = credentials.EnvStore{}
		}
		resolver.Store = append(chain, env)
	}

	return resolver.Resolve(mode, credentials.Input{
		HostToken:   r.Options.GitHubToken,
		ModelAPIKey: r.Options.APIKey,
	}), nil
}

// Gateway returns the tool backend selected by the settings.
func (r *Runner) Gateway(s config.Settings) (orchestrator.Gateway, error) {
	if s.GitHub.Tools == config.ToolsBuiltin {
		return &ghtools.Gateway{BaseURL: s.GitHub.APIURL}, nil
	}

	if s.GitHub.MCPConfig == "" {
		return mcp.NewGateway(mcp.DefaultServer()), nil
	}
	cfg, err := mcp.LoadConfig(s.GitHub.MCPConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load MCP config: %w", err)
	}
	server, err := cfg.Server(s.GitHub.MCPServer)
	if err != nil {
		return nil, err
	}
	return mcp.NewGateway(server), nil
}

// pipeline wires the query orchestrator. The returned cleanup closes the
// history database, if one was opened.
func (r *Runner) pipeline(ctx context.Context, s config.Settings) (*orchestrator.Orchestrator, func(), error) {
	gateway, err := r.Gateway(s)
	if err != nil {
		return nil, nil, err
	}

	providers := r.providers
	if providers == nil {
		providers = orchestrator.ProviderFromBuilder(s.ProviderType().
			Model(s.LLM.Model).
			MaxTokens(s.LLM.MaxTokens).
			Temperature(float32(s.LLM.Temperature)))
	}

	opts := orchestrator.Options{
		MaxIterations: s.Agent.MaxIterations,
		Timeout:       s.Agent.Timeout,
		ToolConfig:    tools.ToolConfig{MaxRetries: r.Options.ToolRetries},
	}

	cleanup := func() {}
	if s.History.Path != "" {
		history, err := storage.OpenSqlite(s.History.Path)
		if err != nil {
			clog.FromContext(ctx).Warnf("query history disabled: %v", err)
		} else {
			opts.History = history
			cleanup = func() { _ = history.Close() }
		}
	}

	return orchestrator.New(gateway, providers, opts), cleanup, nil
}

// Ask answers one query. kind selects a stock query when text is empty.
func (r *Runner) Ask(ctx context.Context, text string, kind query.Kind) error {
	s, err := r.Settings(ctx)
	if err != nil {
		return err
	}
	creds, err := r.Credentials(s)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		text, err = stockQuery(kind, s.GitHub.Repository)
		if err != nil {
			return err
		}
	}

	o, cleanup, err := r.pipeline(ctx, s)
	if err != nil {
		return err
	}
	defer cleanup()

	result := o.Ask(ctx, query.Request{RawText: text, Repository: s.GitHub.Repository}, creds)
	r.printResult(result)
	if !result.OK() {
		return ErrQueryFailed
	}
	return nil
}

// ErrNoRepository is returned when a stock query has no repository to name.
var ErrNoRepository = errors.New("stock queries need a repository; set --repo or GHSCOUT_REPOSITORY")

// stockQuery returns the template for kind. KindCustom yields "", which the
// orchestrator reports as an empty query.
func stockQuery(kind query.Kind, repository string) (string, error) {
	if kind != query.KindCustom && strings.TrimSpace(repository) == "" {
		return "", ErrNoRepository
	}
	return query.Template(kind, repository), nil
}

func (r *Runner) printResult(result orchestrator.Result) {
	fmt.Fprintln(r.Out, result.Display())
	if r.Options.Verbose && result.OK() {
		fmt.Fprintln(r.Err)
		if names := result.ToolNames(); len(names) > 0 {
			fmt.Fprintf(r.Err, "Tools: %s\n", strings.Join(names, ", "))
		}
		printTokenStats(r.Err, result)
	}
}

func printTokenStats(w io.Writer, result orchestrator.Result) {
	u := result.Usage
	fmt.Fprintf(w, "Tokens: %d (input %d, output %d) in %s\n",
		u.TotalTokens, u.PromptTokens, u.CompletionTokens, result.Duration.Round(time.Millisecond))
}

// ListTools opens a session and prints the tools it exposes.
func (r *Runner) ListTools(ctx context.Context, verbose bool) error {
	s, err := r.Settings(ctx)
	if err != nil {
		return err
	}
	creds, err := r.Credentials(s)
	if err != nil {
		return err
	}
	gateway, err := r.Gateway(s)
	if err != nil {
		return err
	}

	session, err := gateway.Open(ctx, creds)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			clog.FromContext(ctx).Warnf("closing tool session: %v", err)
		}
	}()

	registry, err := tools.NewRegistryFrom(session.Tools()...)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "Available tools (%s):\n\n", s.GitHub.Tools)
	for _, meta := range registry.List() {
		fmt.Fprintf(r.Out, "  %s\n", meta.Name)
		if meta.Description != "" {
			fmt.Fprintf(r.Out, "    %s\n", firstLine(meta.Description))
		}
		if verbose && len(meta.Parameters) > 0 {
			fmt.Fprintln(r.Out, "    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Fprintf(r.Out, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Fprintln(r.Out)
	}
	return nil
}

// History prints recorded queries, newest first.
func (r *Runner) History(ctx context.Context, limit int) error {
	s, err := r.Settings(ctx)
	if err != nil {
		return err
	}
	if s.History.Path == "" {
		return errors.New("query history is disabled; set --db or GHSCOUT_DB")
	}

	history, err := storage.OpenSqlite(s.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer history.Close()

	entries, err := history.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.Out, "No queries recorded.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(r.Out, "%s  %-5s  %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Status(), e.Query)
		fmt.Fprintf(r.Out, "    %s/%s, %d tool calls, %d tokens, %dms\n", e.Provider, e.Model, e.ToolCalls, e.TotalTokens, e.DurationMs)
		fmt.Fprintf(r.Out, "    %s\n\n", truncateString(firstLine(e.Answer), maxAnswerPreview))
	}
	return nil
}

// Examples prints the sample queries.
func (r *Runner) Examples() {
	for _, group := range query.Examples() {
		fmt.Fprintf(r.Out, "%s:\n", group.Title)
		for _, q := range group.Queries {
			fmt.Fprintf(r.Out, "  - %s\n", q)
		}
		fmt.Fprintln(r.Out)
	}
	fmt.Fprintf(r.Out, "Stock queries (--type): %s\n", kindList())
	fmt.Fprintln(r.Out, query.ExamplesNote)
}

// Providers returns the supported provider names for help text.
func Providers() string {
	return strings.Join(llm.SupportedProviders(), ", ")
}

func kindList() string {
	kinds := query.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

const maxAnswerPreview = 120

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncateString shortens s to at most maxLen runes.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
