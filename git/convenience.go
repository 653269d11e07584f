package git

import (
	"fmt"
	"time"
)

// CommitResult contains the result of a commit operation.
type CommitResult struct {
	SHA     string    // Full commit SHA
	Branch  string    // Branch name
	Message string    // Commit message
	Date    time.Time // Commit timestamp
}

// PushResult contains the result of a push operation.
type PushResult struct {
	Remote      string // Remote name (e.g., "origin")
	Branch      string // Branch that was pushed
	SHA         string // Commit SHA that was pushed
	SetUpstream bool   // Whether upstream tracking was set
	URL         string // Remote URL (for reference)
}

// CommitPaths stages the given paths and commits them. With no paths it
// stages everything. Returns ErrNothingToCommit if nothing changed.
func (g *Context) CommitPaths(message string, paths ...string) (*CommitResult, error) {
	var err error
	if len(paths) == 0 {
		err = g.StageAll()
	} else {
		err = g.Stage(paths...)
	}
	if err != nil {
		return nil, fmt.Errorf("stage: %w", err)
	}

	if err := g.Commit(message); err != nil {
		return nil, err
	}

	sha, err := g.HeadCommit()
	if err != nil {
		return nil, fmt.Errorf("get head: %w", err)
	}

	branch, err := g.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("get branch: %w", err)
	}

	return &CommitResult{
		SHA:     sha,
		Branch:  branch,
		Message: message,
		Date:    time.Now(),
	}, nil
}

// PushCurrent pushes the current branch to the configured remote,
// setting upstream tracking if the branch hasn't been pushed before.
func (g *Context) PushCurrent() (*PushResult, error) {
	branch, err := g.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("get current branch: %w", err)
	}

	setUpstream := !g.IsBranchPushed(branch)

	if err := g.Push(g.remote, branch, setUpstream); err != nil {
		return nil, err
	}

	sha, err := g.HeadCommit()
	if err != nil {
		return nil, fmt.Errorf("get head: %w", err)
	}

	url, _ := g.GetRemoteURL(g.remote) // URL is informational

	return &PushResult{
		Remote:      g.remote,
		Branch:      branch,
		SHA:         sha,
		SetUpstream: setUpstream,
		URL:         url,
	}, nil
}

// CheckoutNew creates and checks out a new branch at the current HEAD.
// An existing branch is checked out instead.
func (g *Context) CheckoutNew(name string) error {
	if err := g.CreateBranch(name); err != nil && err != ErrBranchExists {
		return err
	}
	return g.Checkout(name)
}
