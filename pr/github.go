package pr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubProvider implements Provider for GitHub repositories.
type GitHubProvider struct {
	client *github.Client
	owner  string
	repo   string
	opts   Options
}

// NewGitHubProvider creates a new GitHub provider.
// token is a personal access token or GitHub App token.
// owner and repo identify the repository.
func NewGitHubProvider(token, owner, repo string, opts Options) (*GitHubProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("GitHub token is required")
	}
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHubProvider{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
		opts:   opts,
	}, nil
}

// NewGitHubProviderFromURL creates a GitHub provider from a remote URL.
// Example: "https://github.com/acme/service.git"
func NewGitHubProviderFromURL(token, remoteURL string, opts Options) (*GitHubProvider, error) {
	owner, repo, err := ParseRepoFromURL(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote URL: %w", err)
	}
	return NewGitHubProvider(token, owner, repo, opts)
}

// CreateOrUpdate implements Provider.
func (p *GitHubProvider) CreateOrUpdate(ctx context.Context, branch, summary string) (int, error) {
	title := TitleFromSummary(summary, branch)

	open, _, err := p.client.PullRequests.List(ctx, p.owner, p.repo, &github.PullRequestListOptions{
		State: "open",
		Head:  p.owner + ":" + branch,
		Base:  p.opts.base(),
	})
	if err != nil {
		return 0, fmt.Errorf("list pull requests: %w", err)
	}
	if len(open) > 0 {
		number := open[0].GetNumber()
		_, _, err := p.client.PullRequests.Edit(ctx, p.owner, p.repo, number, &github.PullRequest{
			Title: github.String(title),
			Body:  github.String(summary),
		})
		if err != nil {
			return 0, fmt.Errorf("update pull request #%d: %w", number, err)
		}
		return number, nil
	}

	pr, resp, err := p.client.PullRequests.Create(ctx, p.owner, p.repo, &github.NewPullRequest{
		Title: github.String(title),
		Body:  github.String(summary),
		Base:  github.String(p.opts.base()),
		Head:  github.String(branch),
		Draft: github.Bool(p.opts.Draft),
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity && noCommits(err) {
			return 0, ErrNoChanges
		}
		return 0, fmt.Errorf("create pull request: %w", err)
	}

	number := pr.GetNumber()
	if len(p.opts.Labels) > 0 {
		if _, _, err := p.client.Issues.AddLabelsToIssue(ctx, p.owner, p.repo, number, p.opts.Labels); err != nil {
			return number, fmt.Errorf("add labels to #%d: %w", number, err)
		}
	}
	if len(p.opts.Reviewers) > 0 {
		_, _, err := p.client.PullRequests.RequestReviewers(ctx, p.owner, p.repo, number, github.ReviewersRequest{
			Reviewers: p.opts.Reviewers,
		})
		if err != nil {
			return number, fmt.Errorf("request reviewers on #%d: %w", number, err)
		}
	}
	return number, nil
}

// CheckStatus implements Provider. It combines check runs and legacy
// commit statuses on the head commit: any failure fails, anything still
// running is pending, and a commit with no checks at all passes.
func (p *GitHubProvider) CheckStatus(ctx context.Context, id int) (Status, error) {
	pr, resp, err := p.client.PullRequests.Get(ctx, p.owner, p.repo, id)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get pull request #%d: %w", id, err)
	}
	if pr.GetState() == "closed" && !pr.GetMerged() {
		return "", ErrClosed
	}
	sha := pr.GetHead().GetSHA()

	status := StatusPassed
	runs, _, err := p.client.Checks.ListCheckRunsForRef(ctx, p.owner, p.repo, sha, &github.ListCheckRunsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return "", fmt.Errorf("list check runs for %s: %w", sha, err)
	}
	for _, run := range runs.CheckRuns {
		status = worse(status, checkRunStatus(run))
	}

	combined, _, err := p.client.Repositories.GetCombinedStatus(ctx, p.owner, p.repo, sha, nil)
	if err != nil {
		return "", fmt.Errorf("get combined status for %s: %w", sha, err)
	}
	if combined.GetTotalCount() > 0 {
		switch combined.GetState() {
		case "failure", "error":
			status = worse(status, StatusFailed)
		case "pending":
			status = worse(status, StatusPending)
		}
	}
	return status, nil
}

func noCommits(err error) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) {
		return false
	}
	if strings.Contains(ghErr.Message, "No commits between") {
		return true
	}
	for _, e := range ghErr.Errors {
		if strings.Contains(e.Message, "No commits between") {
			return true
		}
	}
	return false
}

func checkRunStatus(run *github.CheckRun) Status {
	if run.GetStatus() != "completed" {
		return StatusPending
	}
	switch run.GetConclusion() {
	case "success", "neutral", "skipped":
		return StatusPassed
	}
	return StatusFailed
}

// worse orders statuses failed > pending > passed.
func worse(a, b Status) Status {
	rank := map[Status]int{StatusPassed: 0, StatusPending: 1, StatusFailed: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
