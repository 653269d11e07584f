package git

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Context manages git operations for a repository.
type Context struct {
	repoPath string        // Path to the repository root
	workDir  string        // Working directory for commands (defaults to repoPath)
	remote   string        // Remote used by Sync and PushCurrent
	trunk    string        // Trunk branch name
	runner   CommandRunner // Command runner (defaults to ExecRunner)
}

// Option configures Context.
type Option func(*Context)

// NewContext creates a new git context for the repository.
// It validates that the path is a git repository and applies any options.
func NewContext(repoPath string, opts ...Option) (*Context, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	g := &Context{
		repoPath: absPath,
		workDir:  absPath,
		remote:   "origin",
		trunk:    "main",
		runner:   NewExecRunner(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if _, err := g.runGit("rev-parse", "--git-dir"); err != nil {
		return nil, ErrNotGitRepo
	}
	return g, nil
}

// WithRunner sets a custom command runner for git operations.
// This is primarily used for testing to inject mock command execution.
func WithRunner(runner CommandRunner) Option {
	return func(g *Context) {
		g.runner = runner
	}
}

// WithRemote sets the remote name used for sync and push. Default "origin".
func WithRemote(remote string) Option {
	return func(g *Context) {
		if remote != "" {
			g.remote = remote
		}
	}
}

// WithTrunk sets the trunk branch name. Default "main".
func WithTrunk(trunk string) Option {
	return func(g *Context) {
		if trunk != "" {
			g.trunk = trunk
		}
	}
}

// RepoPath returns the path to the repository.
func (g *Context) RepoPath() string {
	return g.repoPath
}

// Remote returns the configured remote name.
func (g *Context) Remote() string {
	return g.remote
}

// Trunk returns the configured trunk branch name.
func (g *Context) Trunk() string {
	return g.trunk
}

// CurrentBranch returns the current branch name.
func (g *Context) CurrentBranch() (string, error) {
	branch, err := g.runGit("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", &Error{Op: "get current branch", Err: err}
	}
	return branch, nil
}

// Checkout switches to the specified ref (branch, tag, or commit).
func (g *Context) Checkout(ref string) error {
	if _, err := g.runGit("checkout", ref); err != nil {
		return &Error{Op: "checkout", Err: err}
	}
	return nil
}

// CreateBranch creates a new branch at HEAD.
func (g *Context) CreateBranch(name string) error {
	if _, err := g.runGit("branch", name); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrBranchExists
		}
		return &Error{Op: "create branch", Err: err}
	}
	return nil
}

// BranchExists checks if a branch exists.
func (g *Context) BranchExists(name string) bool {
	_, err := g.runGit("rev-parse", "--verify", name)
	return err == nil
}

// Stage adds files to the staging area.
func (g *Context) Stage(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, files...)
	if _, err := g.runGit(args...); err != nil {
		return &Error{Op: "stage files", Err: err}
	}
	return nil
}

// StageAll stages all changes (git add -A).
func (g *Context) StageAll() error {
	if _, err := g.runGit("add", "-A"); err != nil {
		return &Error{Op: "stage all", Err: err}
	}
	return nil
}

// Commit creates a commit with the given message. Hooks always run.
// Returns ErrNothingToCommit if there are no staged changes.
func (g *Context) Commit(message string) error {
	output, err := g.runGit("commit", "-m", message)
	if err != nil {
		if strings.Contains(output, "nothing to commit") ||
			strings.Contains(err.Error(), "nothing to commit") {
			return ErrNothingToCommit
		}
		return &Error{Op: "commit", Output: output, Err: err}
	}
	return nil
}

// Push pushes the branch to the remote.
// If setUpstream is true, uses -u to set upstream tracking.
func (g *Context) Push(remote, branch string, setUpstream bool) error {
	args := []string{"push"}
	if setUpstream {
		args = append(args, "-u")
	}
	args = append(args, remote, branch)

	if out, err := g.runGit(args...); err != nil {
		return &Error{Op: "push", Output: out, Err: fmt.Errorf("%w: %w", ErrPushFailed, err)}
	}
	return nil
}

// Pull pulls changes from the remote.
func (g *Context) Pull(remote, branch string) error {
	if out, err := g.runGit("pull", "--ff-only", remote, branch); err != nil {
		if strings.Contains(out, "CONFLICT") || strings.Contains(err.Error(), "CONFLICT") {
			return &Error{Op: "pull", Output: out, Err: ErrMergeConflict}
		}
		return &Error{Op: "pull", Output: out, Err: err}
	}
	return nil
}

// Sync pulls the latest trunk from the configured remote.
func (g *Context) Sync() error {
	return g.Pull(g.remote, g.trunk)
}

// Status returns the working tree status in porcelain v1 format. New
// directories are expanded to the files inside them.
func (g *Context) Status() (string, error) {
	status, err := g.runGit("status", "--porcelain=v1", "-uall")
	if err != nil {
		return "", &Error{Op: "status", Err: err}
	}
	return status, nil
}

// IsClean returns true if the working tree has no uncommitted changes.
func (g *Context) IsClean() (bool, error) {
	status, err := g.Status()
	if err != nil {
		return false, err
	}
	return status == "", nil
}

// ChangedFiles lists paths with uncommitted changes, staged or not.
// Untracked directories are listed file by file and renames report the
// new path.
func (g *Context) ChangedFiles() ([]string, error) {
	status, err := g.runGit("status", "--porcelain=v1", "-z", "-uall")
	if err != nil {
		return nil, &Error{Op: "status", Err: err}
	}
	return parseStatusZ(status), nil
}

// parseStatusZ reads NUL-separated porcelain entries of the form "XY path".
// A rename or copy entry is followed by a separate entry holding the
// original path.
func parseStatusZ(status string) []string {
	var files []string
	entries := strings.Split(status, "\x00")
	for i := 0; i < len(entries); i++ {
		e := entries[i]
		if len(e) < 4 || e[2] != ' ' {
			continue
		}
		if e[0] == 'R' || e[0] == 'C' {
			i++
		}
		files = append(files, e[3:])
	}
	return files
}

// HeadCommit returns the current HEAD commit SHA.
func (g *Context) HeadCommit() (string, error) {
	sha, err := g.runGit("rev-parse", "HEAD")
	if err != nil {
		return "", &Error{Op: "get HEAD commit", Err: err}
	}
	return sha, nil
}

// IsBranchPushed checks if the branch exists on the remote.
func (g *Context) IsBranchPushed(branch string) bool {
	_, err := g.runGit("rev-parse", "--verify", g.remote+"/"+branch)
	return err == nil
}

// GetRemoteURL returns the URL of the specified remote.
func (g *Context) GetRemoteURL(remote string) (string, error) {
	url, err := g.runGit("remote", "get-url", remote)
	if err != nil {
		return "", &Error{Op: "get remote URL", Err: err}
	}
	return url, nil
}

// Exec runs an arbitrary command in the repository working directory.
// Check commands for the release gate run through here.
func (g *Context) Exec(name string, args ...string) (string, error) {
	return g.runner.Run(g.workDir, name, args...)
}

// runGit executes a git command and returns stdout.
func (g *Context) runGit(args ...string) (string, error) {
	return g.runner.Run(g.workDir, "git", args...)
}
