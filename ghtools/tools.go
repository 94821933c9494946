package ghtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v84/github"

	"github.com/richinex/ghscout/model"
	"github.com/richinex/ghscout/tools"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

var repositoryParam = tools.ToolParameter{
	Name:        "repository",
	ParamType:   "string",
	Description: "Repository as owner/name, e.g. agno-agi/agno",
	Required:    true,
}

var limitParam = tools.ToolParameter{
	Name:        "limit",
	ParamType:   "integer",
	Description: fmt.Sprintf("Maximum number of results (default %d, max %d)", defaultLimit, maxLimit),
}

// repoArgs are the arguments every tool accepts.
type repoArgs struct {
	Repository string `json:"repository"`
	Limit      int    `json:"limit,omitempty"`
}

func (a repoArgs) split() (string, string, error) {
	return model.RepositoryRef(a.Repository).Split()
}

func (a repoArgs) limit() int {
	switch {
	case a.Limit <= 0:
		return defaultLimit
	case a.Limit > maxLimit:
		return maxLimit
	default:
		return a.Limit
	}
}

func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func validateRepo(args json.RawMessage) error {
	var a repoArgs
	if err := decode(args, &a); err != nil {
		return err
	}
	if strings.TrimSpace(a.Repository) == "" {
		return errors.New("repository is required")
	}
	return nil
}

func validState(state string) (string, error) {
	switch state {
	case "":
		return "open", nil
	case "open", "closed", "all":
		return state, nil
	default:
		return "", fmt.Errorf("state must be open, closed or all, got %q", state)
	}
}

// apiFailure turns a go-github error into a tool failure the model can read.
func apiFailure(what string, err error) tools.ToolResult {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return tools.FailureResultf("%s: GitHub rate limit exceeded, resets at %s", what, rateErr.Rate.Reset.Format(time.RFC3339))
	}
	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		switch apiErr.Response.StatusCode {
		case http.StatusNotFound:
			return tools.FailureResultf("%s: repository not found or not accessible", what)
		case http.StatusUnauthorized:
			return tools.FailureResultf("%s: GitHub rejected the token (unauthorized)", what)
		}
		return tools.FailureResultf("%s: GitHub API error %d: %s", what, apiErr.Response.StatusCode, apiErr.Message)
	}
	return tools.FailureResultf("%s: %v", what, err)
}

// emptyRepository reports whether GitHub answered 409 Conflict, which it
// does for commit history requests against a repository with no commits.
func emptyRepository(err error) bool {
	var apiErr *github.ErrorResponse
	return errors.As(err, &apiErr) && apiErr.Response != nil && apiErr.Response.StatusCode == http.StatusConflict
}

func jsonResult(v any) tools.ToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return tools.FailureResult(err)
	}
	return tools.SuccessResult(string(out))
}

func formatTime(ts github.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

// list_issues

type listIssuesTool struct {
	tools.BaseTool
	gh *github.Client
}

type listIssuesArgs struct {
	repoArgs
	State  string   `json:"state,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

type issueSummary struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	State     string   `json:"state"`
	Labels    []string `json:"labels,omitempty"`
	Author    string   `json:"author"`
	Comments  int      `json:"comments"`
	CreatedAt string   `json:"created_at"`
	URL       string   `json:"url"`
}

func (t *listIssuesTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        "list_issues",
		Description: "List issues (not pull requests) in a GitHub repository, newest first, optionally filtered by state and labels.",
		Parameters: []tools.ToolParameter{
			repositoryParam,
			{Name: "state", ParamType: "string", Description: "open, closed or all (default open)"},
			{Name: "labels", ParamType: "array", Description: "Only issues carrying all of these labels, e.g. [\"bug\"]"},
			limitParam,
		},
	}
}

func (t *listIssuesTool) Validate(args json.RawMessage) error {
	return validateRepo(args)
}

func (t *listIssuesTool) Execute(ctx context.Context, raw json.RawMessage) (tools.ToolResult, error) {
	var args listIssuesArgs
	if err := decode(raw, &args); err != nil {
		return tools.FailureResult(err), nil
	}
	owner, repo, err := args.split()
	if err != nil {
		return tools.FailureResult(err), nil
	}
	state, err := validState(args.State)
	if err != nil {
		return tools.FailureResult(err), nil
	}

	issues, _, err := t.gh.Issues.ListByRepo(ctx, owner, repo, &github.IssueListByRepoOptions{
		State:       state,
		Labels:      args.Labels,
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: args.limit()},
	})
	if err != nil {
		return apiFailure("list issues", err), nil
	}

	out := make([]issueSummary, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		s := issueSummary{
			Number:    issue.GetNumber(),
			Title:     issue.GetTitle(),
			State:     issue.GetState(),
			Author:    issue.GetUser().GetLogin(),
			Comments:  issue.GetComments(),
			CreatedAt: formatTime(issue.GetCreatedAt()),
			URL:       issue.GetHTMLURL(),
		}
		for _, l := range issue.Labels {
			s.Labels = append(s.Labels, l.GetName())
		}
		out = append(out, s)
	}
	return jsonResult(map[string]any{"repository": owner + "/" + repo, "count": len(out), "issues": out}), nil
}

// list_pull_requests

type listPullRequestsTool struct {
	tools.BaseTool
	gh *github.Client
}

type listPullRequestsArgs struct {
	repoArgs
	State      string `json:"state,omitempty"`
	MergedOnly bool   `json:"merged_only,omitempty"`
}

type pullSummary struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	State     string `json:"state"`
	Draft     bool   `json:"draft,omitempty"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
	MergedAt  string `json:"merged_at,omitempty"`
	URL       string `json:"url"`
}

func (t *listPullRequestsTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        "list_pull_requests",
		Description: "List pull requests in a GitHub repository, most recently updated first. Set merged_only to see recently merged PRs.",
		Parameters: []tools.ToolParameter{
			repositoryParam,
			{Name: "state", ParamType: "string", Description: "open, closed or all (default open; merged_only implies closed)"},
			{Name: "merged_only", ParamType: "boolean", Description: "Only include merged pull requests"},
			limitParam,
		},
	}
}

func (t *listPullRequestsTool) Validate(args json.RawMessage) error {
	return validateRepo(args)
}

func (t *listPullRequestsTool) Execute(ctx context.Context, raw json.RawMessage) (tools.ToolResult, error) {
	var args listPullRequestsArgs
	if err := decode(raw, &args); err != nil {
		return tools.FailureResult(err), nil
	}
	owner, repo, err := args.split()
	if err != nil {
		return tools.FailureResult(err), nil
	}
	state, err := validState(args.State)
	if err != nil {
		return tools.FailureResult(err), nil
	}
	if args.MergedOnly && state == "open" {
		state = "closed"
	}

	prs, _, err := t.gh.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State:       state,
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: args.limit()},
	})
	if err != nil {
		return apiFailure("list pull requests", err), nil
	}

	out := make([]pullSummary, 0, len(prs))
	for _, pr := range prs {
		merged := formatTime(pr.GetMergedAt())
		if args.MergedOnly && merged == "" {
			continue
		}
		out = append(out, pullSummary{
			Number:    pr.GetNumber(),
			Title:     pr.GetTitle(),
			State:     pr.GetState(),
			Draft:     pr.GetDraft(),
			Author:    pr.GetUser().GetLogin(),
			CreatedAt: formatTime(pr.GetCreatedAt()),
			MergedAt:  merged,
			URL:       pr.GetHTMLURL(),
		})
	}
	return jsonResult(map[string]any{"repository": owner + "/" + repo, "count": len(out), "pull_requests": out}), nil
}

// repository_activity

type repositoryActivityTool struct {
	tools.BaseTool
	gh *github.Client
}

type commitSummary struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	Author  string `json:"author"`
	Date    string `json:"date"`
}

type contributorSummary struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
}

type activitySummary struct {
	Repository      string               `json:"repository"`
	Description     string               `json:"description,omitempty"`
	DefaultBranch   string               `json:"default_branch"`
	Stars           int                  `json:"stars"`
	Forks           int                  `json:"forks"`
	Watchers        int                  `json:"watchers"`
	OpenIssues      int                  `json:"open_issues_and_prs"`
	LastPush        string               `json:"last_push"`
	RecentCommits   []commitSummary      `json:"recent_commits"`
	TopContributors []contributorSummary `json:"top_contributors"`
	URL             string               `json:"url"`
}

func (t *repositoryActivityTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        "repository_activity",
		Description: "Summarize a GitHub repository: stars, forks, watchers, open issue count, last push, recent commits and top contributors.",
		Parameters: []tools.ToolParameter{
			repositoryParam,
			{Name: "limit", ParamType: "integer", Description: "Number of recent commits and contributors to include (default 10)"},
		},
	}
}

func (t *repositoryActivityTool) Validate(args json.RawMessage) error {
	return validateRepo(args)
}

func (t *repositoryActivityTool) Execute(ctx context.Context, raw json.RawMessage) (tools.ToolResult, error) {
	var args repoArgs
	if err := decode(raw, &args); err != nil {
		return tools.FailureResult(err), nil
	}
	owner, repo, err := args.split()
	if err != nil {
		return tools.FailureResult(err), nil
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, maxLimit)

	r, _, err := t.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return apiFailure("get repository", err), nil
	}

	commits, _, err := t.gh.Repositories.ListCommits(ctx, owner, repo, &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil && !emptyRepository(err) {
		return apiFailure("list commits", err), nil
	}

	contributors, _, err := t.gh.Repositories.ListContributors(ctx, owner, repo, &github.ListContributorsOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil && !emptyRepository(err) {
		return apiFailure("list contributors", err), nil
	}

	summary := activitySummary{
		Repository:    r.GetFullName(),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		Watchers:      r.GetSubscribersCount(),
		OpenIssues:    r.GetOpenIssuesCount(),
		LastPush:      formatTime(r.GetPushedAt()),
		URL:           r.GetHTMLURL(),

		RecentCommits:   []commitSummary{},
		TopContributors: []contributorSummary{},
	}
	for _, c := range commits {
		message, _, _ := strings.Cut(c.GetCommit().GetMessage(), "\n")
		sha := c.GetSHA()
		if len(sha) > 7 {
			sha = sha[:7]
		}
		author := c.GetAuthor().GetLogin()
		if author == "" {
			author = c.GetCommit().GetAuthor().GetName()
		}
		summary.RecentCommits = append(summary.RecentCommits, commitSummary{
			SHA:     sha,
			Message: message,
			Author:  author,
			Date:    formatTime(c.GetCommit().GetAuthor().GetDate()),
		})
	}
	for _, c := range contributors {
		summary.TopContributors = append(summary.TopContributors, contributorSummary{
			Login:         c.GetLogin(),
			Contributions: c.GetContributions(),
		})
	}
	return jsonResult(summary), nil
}
