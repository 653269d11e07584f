package pr

import (
	"context"
	"fmt"
	"strings"
)

// Status is the combined CI state of a review request.
type Status string

const (
	StatusPending Status = "pending"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// Provider opens review requests and reports their CI status.
// Implementations exist for GitHub and GitLab.
type Provider interface {
	// CreateOrUpdate opens a review request for branch, or replaces the
	// description of the one already open. It returns the request number.
	CreateOrUpdate(ctx context.Context, branch, summary string) (int, error)

	// CheckStatus returns the combined CI status of the request's head
	// commit. Requests closed without merging return ErrClosed.
	CheckStatus(ctx context.Context, id int) (Status, error)
}

// Options configures how review requests are opened.
type Options struct {
	Base      string   // Target branch (default: "main")
	Labels    []string // Labels to apply on creation
	Reviewers []string // Reviewer usernames (GitHub) or numeric ids (GitLab)
	Draft     bool     // Create as draft
}

func (o Options) base() string {
	if o.Base == "" {
		return "main"
	}
	return o.Base
}

// TitleFromSummary uses the first markdown heading or line of a summary
// as the request title. An empty summary yields a title from the branch.
func TitleFromSummary(summary, branch string) string {
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line != "" {
			if len(line) > 72 {
				line = line[:69] + "..."
			}
			return line
		}
	}
	return fmt.Sprintf("Release %s", branch)
}

// DetectProvider attempts to detect the review platform from a remote URL.
func DetectProvider(remoteURL string) (string, error) {
	remoteURL = strings.ToLower(remoteURL)

	if strings.Contains(remoteURL, "github.com") {
		return "github", nil
	}
	if strings.Contains(remoteURL, "gitlab") {
		return "gitlab", nil
	}
	if strings.Contains(remoteURL, "bitbucket") {
		return "bitbucket", nil
	}

	return "", ErrUnknownProvider
}

// ParseRepoFromURL extracts owner and repo from a git remote URL.
func ParseRepoFromURL(remoteURL string) (owner, repo string, err error) {
	// SSH: git@github.com:owner/repo.git
	if strings.HasPrefix(remoteURL, "git@") {
		parts := strings.Split(remoteURL, ":")
		if len(parts) != 2 {
			return "", "", fmt.Errorf("invalid SSH URL format")
		}
		path := strings.TrimSuffix(parts[1], ".git")
		pathParts := strings.Split(path, "/")
		if len(pathParts) != 2 {
			return "", "", fmt.Errorf("invalid repository path")
		}
		return pathParts[0], pathParts[1], nil
	}

	// HTTPS: https://github.com/owner/repo.git
	remoteURL = strings.TrimPrefix(remoteURL, "https://")
	remoteURL = strings.TrimPrefix(remoteURL, "http://")
	remoteURL = strings.TrimSuffix(remoteURL, ".git")

	parts := strings.Split(remoteURL, "/")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid URL format")
	}

	return parts[len(parts)-2], parts[len(parts)-1], nil
}
