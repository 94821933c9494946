// Package query shapes a user's free-text request into the instruction
// sent to the agent.
package query

import (
	"fmt"
	"strings"
)

// Request is the raw input from the shell.
type Request struct {
	RawText    string
	Repository string
}

// Instruction composes the request. See Compose.
func (r Request) Instruction() string {
	return Compose(r.RawText, r.Repository)
}

// Compose appends " in <repository>" to rawText unless the repository is
// empty or already mentioned. Blank rawText composes to "".
//
// Compose is idempotent: Compose(Compose(q, r), r) == Compose(q, r).
func Compose(rawText, repository string) string {
	if strings.TrimSpace(rawText) == "" {
		return ""
	}
	if repository != "" && !strings.Contains(rawText, repository) {
		return rawText + " in " + repository
	}
	return rawText
}

// Kind selects a stock query.
type Kind string

// Query kinds offered by the shell.
const (
	KindIssues   Kind = "issues"
	KindPulls    Kind = "pulls"
	KindActivity Kind = "activity"
	KindCustom   Kind = "custom"
)

// Kinds returns the supported kinds in display order.
func Kinds() []Kind {
	return []Kind{KindIssues, KindPulls, KindActivity, KindCustom}
}

// ParseKind parses a kind name. The empty string is KindCustom.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindCustom, nil
	case KindIssues, KindPulls, KindActivity, KindCustom:
		return k, nil
	case "prs", "pull-requests":
		return KindPulls, nil
	default:
		return "", fmt.Errorf("unknown query type %q (want issues, pulls, activity or custom)", s)
	}
}

// Template returns the stock query for kind. KindCustom has no template,
// and neither does any kind without a repository.
func Template(kind Kind, repository string) string {
	if strings.TrimSpace(repository) == "" {
		return ""
	}
	switch kind {
	case KindIssues:
		return "Find issues labeled as bugs in " + repository
	case KindPulls:
		return "Show me recent merged PRs in " + repository
	case KindActivity:
		return "Analyze code quality trends in " + repository
	default:
		return ""
	}
}

// ExampleGroup is a titled list of sample queries.
type ExampleGroup struct {
	Title   string
	Queries []string
}

// ExamplesNote reminds users that queries should name the repository.
const ExamplesNote = "Always specify the repository in your query if it is not selected with --repo."

// Examples returns sample queries grouped by topic.
func Examples() []ExampleGroup {
	return []ExampleGroup{{
		Title: "Issues",
		Queries: []string{
			"Show me issues by label",
			"What issues are being actively discussed?",
		},
	}, {
		Title: "Pull Requests",
		Queries: []string{
			"What PRs need review?",
			"Show me recent merged PRs",
		},
	}, {
		Title: "Repository",
		Queries: []string{
			"Show repository health metrics",
			"Show repository activity patterns",
		},
	}}
}
