package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/richinex/ghscout/credentials"
	"github.com/richinex/ghscout/query"
)

// Chat starts an interactive query loop. Every line is an independent query
// with its own tool session. In user mode, missing secrets are prompted for
// once at startup.
func (r *Runner) Chat(ctx context.Context) error {
	s, err := r.Settings(ctx)
	if err != nil {
		return err
	}
	creds, err := r.Credentials(s)
	if err != nil {
		return err
	}
	o, cleanup, err := r.pipeline(ctx, s)
	if err != nil {
		return err
	}
	defer cleanup()

	scanner := bufio.NewScanner(r.In)
	if !r.Options.Privileged {
		creds, err = r.promptMissing(scanner, creds, s.ModelKeyVar())
		if err != nil {
			return err
		}
	}

	repo := s.GitHub.Repository
	fmt.Fprintln(r.Out, "Ask about a GitHub repository. Type '/help' for commands, 'exit' to quit.")
	if repo != "" {
		fmt.Fprintf(r.Out, "Repository: %s\n", repo)
	}
	fmt.Fprintln(r.Out)

	for {
		fmt.Fprint(r.Out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		if strings.HasPrefix(input, "/") {
			text, ok := r.chatCommand(input, &repo)
			if !ok {
				continue
			}
			input = text
		}

		result := o.Ask(ctx, query.Request{RawText: input, Repository: repo}, creds)
		fmt.Fprintln(r.Out)
		r.printResult(result)
		fmt.Fprintln(r.Out)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return scanner.Err()
}

// chatCommand handles a slash command. It returns a query to run, if the
// command produced one.
func (r *Runner) chatCommand(input string, repo *string) (string, bool) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/repo":
		if arg == "" {
			fmt.Fprintf(r.Out, "Repository: %s\n\n", orNone(*repo))
			return "", false
		}
		*repo = arg
		fmt.Fprintf(r.Out, "Repository set to %s\n\n", arg)
		return "", false
	case "/type":
		kind, err := query.ParseKind(arg)
		if err != nil {
			fmt.Fprintf(r.Out, "Error: %v\n\n", err)
			return "", false
		}
		text, err := stockQuery(kind, *repo)
		if err != nil {
			fmt.Fprintf(r.Out, "Error: %v\n\n", err)
			return "", false
		}
		if text == "" {
			fmt.Fprintln(r.Out, "Type your own query.")
			fmt.Fprintln(r.Out)
			return "", false
		}
		fmt.Fprintf(r.Out, "%s\n", text)
		return text, true
	case "/examples":
		r.Examples()
		fmt.Fprintln(r.Out)
		return "", false
	default:
		fmt.Fprintln(r.Out, "Commands:")
		fmt.Fprintln(r.Out, "  /repo [owner/name]  show or change the repository")
		fmt.Fprintf(r.Out, "  /type KIND          run a stock query (%s)\n", kindList())
		fmt.Fprintln(r.Out, "  /examples           list example queries")
		fmt.Fprintln(r.Out, "  exit                quit")
		fmt.Fprintln(r.Out)
		return "", false
	}
}

// promptMissing asks for absent secrets. Input is hidden on a terminal.
func (r *Runner) promptMissing(scanner *bufio.Scanner, creds credentials.Credentials, keyVar string) (credentials.Credentials, error) {
	read := r.readLine
	if read == nil {
		read = r.secretReader(scanner)
	}

	if !creds.HasHostToken() {
		v, err := read("GitHub token: ")
		if err != nil {
			return creds, err
		}
		creds.HostToken = strings.TrimSpace(v)
	}
	if !creds.HasModelAPIKey() {
		v, err := read(fmt.Sprintf("Model API key (%s): ", keyVar))
		if err != nil {
			return creds, err
		}
		creds.ModelAPIKey = strings.TrimSpace(v)
	}
	return creds, nil
}

func (r *Runner) secretReader(scanner *bufio.Scanner) func(string) (string, error) {
	if f, ok := r.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return func(prompt string) (string, error) {
			fmt.Fprint(r.Err, prompt)
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(r.Err)
			if err != nil {
				return "", fmt.Errorf("failed to read secret: %w", err)
			}
			return string(b), nil
		}
	}
	return func(prompt string) (string, error) {
		fmt.Fprint(r.Err, prompt)
		if !scanner.Scan() {
			return "", scanner.Err()
		}
		return scanner.Text(), nil
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
