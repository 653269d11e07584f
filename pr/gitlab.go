package pr

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/xanzy/go-gitlab"
)

// GitLabProvider implements Provider for GitLab projects using merge
// requests and pipelines.
type GitLabProvider struct {
	client    *gitlab.Client
	projectID string // numeric ID or "namespace/project"
	opts      Options
}

// NewGitLabProvider creates a new GitLab provider.
// baseURL is the GitLab instance URL (empty for gitlab.com).
func NewGitLabProvider(token, baseURL, projectID string, opts Options) (*GitLabProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("GitLab token is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	var client *gitlab.Client
	var err error
	if baseURL != "" {
		client, err = gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	} else {
		client, err = gitlab.NewClient(token)
	}
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}

	return &GitLabProvider{client: client, projectID: projectID, opts: opts}, nil
}

// NewGitLabProviderFromURL creates a GitLab provider from a remote URL.
// Example: "https://gitlab.example.com/platform/service.git"
func NewGitLabProviderFromURL(token, remoteURL string, opts Options) (*GitLabProvider, error) {
	owner, repo, err := ParseRepoFromURL(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote URL: %w", err)
	}

	var baseURL string
	if !strings.Contains(remoteURL, "gitlab.com") && !strings.HasPrefix(remoteURL, "git@") {
		host := strings.TrimPrefix(strings.TrimPrefix(remoteURL, "https://"), "http://")
		if i := strings.Index(host, "/"); i > 0 {
			baseURL = "https://" + host[:i]
		}
	}
	return NewGitLabProvider(token, baseURL, owner+"/"+repo, opts)
}

// CreateOrUpdate implements Provider.
func (p *GitLabProvider) CreateOrUpdate(ctx context.Context, branch, summary string) (int, error) {
	title := TitleFromSummary(summary, branch)
	if p.opts.Draft {
		title = "Draft: " + title
	}

	open, _, err := p.client.MergeRequests.ListProjectMergeRequests(p.projectID, &gitlab.ListProjectMergeRequestsOptions{
		State:        gitlab.Ptr("opened"),
		SourceBranch: gitlab.Ptr(branch),
		TargetBranch: gitlab.Ptr(p.opts.base()),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("list merge requests: %w", err)
	}
	if len(open) > 0 {
		iid := open[0].IID
		_, _, err := p.client.MergeRequests.UpdateMergeRequest(p.projectID, iid, &gitlab.UpdateMergeRequestOptions{
			Title:       gitlab.Ptr(title),
			Description: gitlab.Ptr(summary),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return 0, fmt.Errorf("update merge request !%d: %w", iid, err)
		}
		return iid, nil
	}

	opts := &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(title),
		Description:  gitlab.Ptr(summary),
		SourceBranch: gitlab.Ptr(branch),
		TargetBranch: gitlab.Ptr(p.opts.base()),
	}
	if len(p.opts.Labels) > 0 {
		opts.Labels = gitlab.Ptr(gitlab.LabelOptions(p.opts.Labels))
	}
	if ids := numericIDs(p.opts.Reviewers); len(ids) > 0 {
		opts.ReviewerIDs = gitlab.Ptr(ids)
	}

	mr, resp, err := p.client.MergeRequests.CreateMergeRequest(p.projectID, opts, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusBadRequest && strings.Contains(err.Error(), "No commits between") {
			return 0, ErrNoChanges
		}
		return 0, fmt.Errorf("create merge request: %w", err)
	}
	return mr.IID, nil
}

// CheckStatus implements Provider using the head pipeline of the merge
// request. A merge request without pipelines passes.
func (p *GitLabProvider) CheckStatus(ctx context.Context, id int) (Status, error) {
	mr, resp, err := p.client.MergeRequests.GetMergeRequest(p.projectID, id, nil, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get merge request !%d: %w", id, err)
	}
	if mr.State == "closed" {
		return "", ErrClosed
	}
	if mr.HeadPipeline != nil {
		return pipelineStatus(mr.HeadPipeline.Status), nil
	}

	pipelines, _, err := p.client.MergeRequests.ListMergeRequestPipelines(p.projectID, id, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("list pipelines for !%d: %w", id, err)
	}
	if len(pipelines) == 0 {
		return StatusPassed, nil
	}
	return pipelineStatus(pipelines[0].Status), nil
}

func pipelineStatus(s string) Status {
	switch s {
	case "success", "skipped", "manual":
		return StatusPassed
	case "failed", "canceled":
		return StatusFailed
	}
	return StatusPending
}

func numericIDs(values []string) []int {
	var ids []int
	for _, v := range values {
		if id, err := strconv.Atoi(v); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
