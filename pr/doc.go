// Package pr opens review requests and reads their CI status on GitHub
// and GitLab.
//
// Core types:
//   - Provider: CreateOrUpdate a review request for a branch, CheckStatus of its CI
//   - Status: pending, passed or failed
//   - Options: base branch, labels, reviewers and draft flag
//
// Implementations:
//   - GitHubProvider: pull requests, check runs and commit statuses via go-github
//   - GitLabProvider: merge requests and pipelines via go-gitlab
//   - MockProvider: func-field mock for tests
//
// Example usage:
//
//	provider, _ := pr.New(remoteURL, pr.Config{Token: token})
//	id, err := provider.CreateOrUpdate(ctx, "feature/003-add-caching", summary)
//	status, err := provider.CheckStatus(ctx, id)
package pr
