package pr

import (
	"fmt"
	"os"
)

// Config selects and authenticates a review platform.
type Config struct {
	Platform  string // "github", "gitlab", or empty to detect from the remote
	Token     string
	GitLabURL string // self-hosted GitLab base URL
	Project   string // GitLab project id or path; overrides the remote
	Repo      string // GitHub "owner/repo"; overrides the remote
	Options   Options
}

// New creates a provider for the remote. Missing tokens fall back to the
// environment:
//   - GITHUB_TOKEN for GitHub
//   - GITLAB_TOKEN for GitLab
//   - GIT_TOKEN as fallback for either
func New(remoteURL string, cfg Config) (Provider, error) {
	platform := cfg.Platform
	if platform == "" {
		var err error
		if platform, err = DetectProvider(remoteURL); err != nil {
			return nil, err
		}
	}

	switch platform {
	case "github":
		token := firstNonEmpty(cfg.Token, os.Getenv("GITHUB_TOKEN"), os.Getenv("GIT_TOKEN"))
		if token == "" {
			return nil, fmt.Errorf("GitHub token not set; configure github.token or set GITHUB_TOKEN")
		}
		if cfg.Repo != "" {
			owner, repo, err := ParseRepoFromURL("https://github.com/" + cfg.Repo)
			if err != nil {
				return nil, err
			}
			return NewGitHubProvider(token, owner, repo, cfg.Options)
		}
		return NewGitHubProviderFromURL(token, remoteURL, cfg.Options)

	case "gitlab":
		token := firstNonEmpty(cfg.Token, os.Getenv("GITLAB_TOKEN"), os.Getenv("GIT_TOKEN"))
		if token == "" {
			return nil, fmt.Errorf("GitLab token not set; configure gitlab.token or set GITLAB_TOKEN")
		}
		if cfg.Project != "" {
			return NewGitLabProvider(token, cfg.GitLabURL, cfg.Project, cfg.Options)
		}
		p, err := NewGitLabProviderFromURL(token, remoteURL, cfg.Options)
		if err != nil {
			return nil, err
		}
		if cfg.GitLabURL != "" {
			return NewGitLabProvider(token, cfg.GitLabURL, p.projectID, cfg.Options)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, platform)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
