// Package main provides the ghscout CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/ghscout/cli"
	"github.com/richinex/ghscout/query"
)

var opts cli.Options

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "ghscout",
		Short: "Ask natural-language questions about GitHub repositories",
		Long: `ghscout answers questions about a GitHub repository with a language model
that queries GitHub through tools.

Tools come from the GitHub MCP server (default, needs npx) or from the
built-in REST toolset (--tools builtin).

Credentials are taken from --github-token and --api-key. With --privileged
they are read from the environment (GITHUB_TOKEN, <PROVIDER>_API_KEY) or a
--secrets file instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
			cmd.SetContext(clog.WithLogger(cmd.Context(), clog.New(handler)))
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.Provider, "provider", "p", "", "LLM provider ("+cli.Providers()+")")
	flags.StringVar(&opts.Model, "model", "", "Model name (default: provider default)")
	flags.StringVarP(&opts.Repository, "repo", "r", "", "Repository as owner/name")
	flags.StringVar(&opts.GitHubToken, "github-token", "", "GitHub personal access token")
	flags.StringVar(&opts.APIKey, "api-key", "", "Model provider API key")
	flags.BoolVar(&opts.Privileged, "privileged", false, "Read credentials from the environment or --secrets")
	flags.StringVar(&opts.SecretsFile, "secrets", "", "Dotenv file with credentials (with --privileged)")
	flags.StringVar(&opts.Tools, "tools", "", "Tool backend: mcp or builtin")
	flags.StringVar(&opts.MCPConfig, "mcp-config", "", "Path to MCP config file")
	flags.StringVar(&opts.MCPServer, "mcp-server", "", "Server name in the MCP config file")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "Deadline for each query (e.g. 2m)")
	flags.IntVarP(&opts.MaxIter, "max-iter", "m", 0, "Maximum agent iterations")
	flags.Uint32Var(&opts.ToolRetries, "tool-retries", 0, "Maximum attempts per tool call")
	flags.StringVar(&opts.DBPath, "db", "", "SQLite database for query history")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(examplesCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, cli.ErrQueryFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func askCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer one query about a repository",
		Long: `Answer one natural-language query about a repository.

The repository is appended to the query unless the query already names it.
Without a query, --type selects a stock query.`,
		Example: `  ghscout ask "What PRs need review?" --repo octo-org/hello-world
  ghscout ask --type issues --repo octo-org/hello-world --privileged`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := query.ParseKind(kind)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			return cli.NewRunner(opts).Ask(cmd.Context(), text, k)
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", "custom", "Stock query: issues, pulls, activity or custom")

	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive query session",
		Long: `Start an interactive session. Each line is answered as an independent query.

Missing credentials are prompted for at startup unless --privileged is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.NewRunner(opts).Chat(cmd.Context())
		},
	}
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the selected backend exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.NewRunner(opts).ListTools(cmd.Context(), verboseTools)
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "params", "P", false, "Show tool parameters")

	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded queries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.NewRunner(opts).History(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")

	return cmd
}

func examplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show example queries",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cli.NewRunner(opts).Examples()
		},
	}
}
