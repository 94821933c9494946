package orchestrator

import (
	"errors"
	"time"

	"github.com/richinex/ghscout/llm"
	"github.com/richinex/ghscout/model"
)

// ErrorMarker prefixes every failure shown to a user.
const ErrorMarker = "Error: "

// Precondition errors.
var (
	ErrMissingHostToken = errors.New("GitHub token not provided")
	ErrEmptyQuery       = errors.New("please enter a query")
)

// Kind classifies why a query did not produce an answer.
type Kind int

const (
	KindMissingCredential Kind = iota + 1
	KindEmptyQuery
	KindSessionFailure
	KindAgentFailure
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindMissingCredential:
		return "missing_credential"
	case KindEmptyQuery:
		return "empty_query"
	case KindSessionFailure:
		return "session_failure"
	case KindAgentFailure:
		return "agent_failure"
	default:
		return "unknown"
	}
}

// Failure is a classified query failure.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// Result is the outcome of one query. Exactly one of Text and Err is set.
type Result struct {
	Text      string
	Err       *Failure
	ToolCalls []model.ToolCall
	Usage     llm.TokenUsage
	Duration  time.Duration
}

// OK reports whether the query produced an answer.
func (r Result) OK() bool {
	return r.Err == nil
}

// Display returns the answer unmodified, or the failure behind the error marker.
func (r Result) Display() string {
	if r.Err != nil {
		return ErrorMarker + r.Err.Error()
	}
	return r.Text
}

// ToolNames returns the names of the tools invoked, in call order, without repeats.
func (r Result) ToolNames() []string {
	seen := make(map[string]bool, len(r.ToolCalls))
	var names []string
	for _, c := range r.ToolCalls {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		names = append(names, c.Name)
	}
	return names
}
