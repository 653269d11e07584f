package project

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/randalmurphal/phaseflow/config"
	"github.com/randalmurphal/phaseflow/git"
)

// StateDirName is the per-project state directory in the git root.
const StateDirName = ".phaseflow"

// Context is the explicit project context every component is built from:
// where the project lives, how it is configured and how to reach its
// repository.
type Context struct {
	Root     string // git root
	StateDir string // <root>/.phaseflow
	Settings *config.Settings
	Policy   *config.Policy
	Git      *git.Context
	Logger   *slog.Logger
}

// Options configures Open.
type Options struct {
	// Dir is where the git root search starts. Defaults to ".".
	Dir string

	// Flags override resolved settings (highest priority).
	Flags map[string]string

	// Runner executes git and check commands. Defaults to git.NewExecRunner().
	Runner git.CommandRunner

	Logger *slog.Logger

	// Resolver replaces the default config.Phaseflow() resolver; tests
	// use it to pin config file paths.
	Resolver *config.Resolver
}

// Open locates the project from opts.Dir, resolves settings and policy and
// opens the repository.
func Open(opts Options) (*Context, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = config.NewResolverAt(config.Phaseflow(), dir)
	}
	root := resolver.GitRoot()
	if root == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(filepath.Join(abs, ".git")); err != nil {
			return nil, fmt.Errorf("%s: %w", abs, git.ErrNotGitRepo)
		}
		root = abs
	}

	settings, err := resolver.ResolveWithFlags(opts.Flags).Settings()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	policy, err := config.LoadPolicy(root)
	if err != nil {
		return nil, err
	}

	gitOpts := []git.Option{git.WithTrunk(settings.Trunk), git.WithRemote(settings.Remote)}
	if opts.Runner != nil {
		gitOpts = append(gitOpts, git.WithRunner(opts.Runner))
	}
	repo, err := git.NewContext(root, gitOpts...)
	if err != nil {
		return nil, err
	}

	logger.Debug("project opened", "root", root, "trunk", settings.Trunk)
	return &Context{
		Root:     root,
		StateDir: filepath.Join(root, StateDirName),
		Settings: settings,
		Policy:   policy,
		Git:      repo,
		Logger:   logger,
	}, nil
}

// EnsureStateDir creates the state directory. Everything below it is local
// to the working copy: an ignore file keeps it out of the tree so phase
// branches stay clean.
func (c *Context) EnsureStateDir() error {
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	ignore := filepath.Join(c.StateDir, ".gitignore")
	if _, err := os.Stat(ignore); err == nil {
		return nil
	}
	if err := os.WriteFile(ignore, []byte("*\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", ignore, err)
	}
	return nil
}

// StatePath joins elem onto the state directory.
func (c *Context) StatePath(elem ...string) string {
	return filepath.Join(append([]string{c.StateDir}, elem...)...)
}

// MemoryPath is the project memory file.
func (c *Context) MemoryPath() string {
	return c.StatePath("memory.md")
}

// AllowedSignersPath resolves the allowed-signers setting against the root.
func (c *Context) AllowedSignersPath() string {
	p := c.Settings.AllowedSigners
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}
