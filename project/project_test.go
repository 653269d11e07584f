package project

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/phaseflow/config"
	"github.com/randalmurphal/phaseflow/git"
	"github.com/randalmurphal/phaseflow/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pinnedResolver(t *testing.T, root string) *config.Resolver {
	t.Helper()
	cfg := config.Phaseflow()
	cfg.ErrWriter = io.Discard
	return config.NewResolverWithPaths(cfg, filepath.Join(t.TempDir(), "config.yaml"), filepath.Join(root, ".phaseflow.yaml"))
}

func TestOpen(t *testing.T) {
	root := testutil.SetupTestRepoWithFiles(t, map[string]string{
		".phaseflow.yaml": "concurrency: 2\nreview:\n  platform: none\n",
		".phaseflow/policy.yaml": "drift:\n  thresholds:\n    alert: 4\n    critical: 7\n",
	})

	pc, err := Open(Options{Dir: root, Resolver: pinnedResolver(t, root), Logger: quietLogger()})
	require.NoError(t, err)

	assert.Equal(t, root, pc.Root)
	assert.Equal(t, filepath.Join(root, StateDirName), pc.StateDir)
	assert.Equal(t, 2, pc.Settings.Concurrency)
	assert.Equal(t, "none", pc.Settings.ReviewPlatform)
	assert.Equal(t, "main", pc.Settings.Trunk)
	assert.Equal(t, 4, pc.Policy.Drift.Thresholds.Alert)
	assert.Equal(t, 7, pc.Policy.Drift.Thresholds.Critical)
	require.NotNil(t, pc.Git)
	assert.Equal(t, filepath.Join(root, ".phaseflow", "memory.md"), pc.MemoryPath())
	assert.Equal(t, filepath.Join(root, ".phaseflow", "allowed_signers"), pc.AllowedSignersPath())
}

func TestOpen_FlagsWin(t *testing.T) {
	root := testutil.SetupTestRepoWithFiles(t, map[string]string{".phaseflow.yaml": "concurrency: 2\n"})

	pc, err := Open(Options{
		Dir:      root,
		Resolver: pinnedResolver(t, root),
		Flags:    map[string]string{config.KeyConcurrency: "8"},
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, 8, pc.Settings.Concurrency)
}

func TestOpen_NotGitRepo(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(Options{Dir: dir, Resolver: pinnedResolver(t, dir), Logger: quietLogger()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, git.ErrNotGitRepo))
}

func TestOpen_InvalidPolicy(t *testing.T) {
	root := testutil.SetupTestRepoWithFiles(t, map[string]string{
		".phaseflow/policy.yaml": "drift:\n  thresholds:\n    alert: 9\n    critical: 3\n",
	})

	_, err := Open(Options{Dir: root, Resolver: pinnedResolver(t, root), Logger: quietLogger()})
	assert.Error(t, err)
}

func TestEnsureStateDir(t *testing.T) {
	root := testutil.SetupTestRepo(t)
	pc, err := Open(Options{Dir: root, Resolver: pinnedResolver(t, root), Logger: quietLogger()})
	require.NoError(t, err)

	require.NoError(t, pc.EnsureStateDir())
	require.NoError(t, pc.EnsureStateDir())

	data, err := os.ReadFile(filepath.Join(root, ".phaseflow", ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "*\n", string(data))

	// State written below the directory does not dirty the tree.
	testutil.WriteFile(t, root, ".phaseflow/state.db", "x")
	clean, err := pc.Git.IsClean()
	require.NoError(t, err)
	assert.True(t, clean)
}

func TestFileContext_Claims(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, "internal/cache/client.go", "package cache\n")
	testutil.WriteFile(t, root, "internal/cache/lru.go", "package cache")
	testutil.WriteFile(t, root, "internal/cache/.hidden/x.go", "package hidden\n")
	testutil.WriteFile(t, root, "docs/cache.md", "# Cache\n")

	fc := NewFileContext(root, quietLogger())
	fc.AddClaims([]string{"internal/cache/", "docs/cache.md", "docs/cache.md", "internal/new.go"})

	assert.Equal(t, 3, fc.FileCount())
	out, err := fc.Build()
	require.NoError(t, err)

	assert.Contains(t, out, "<file path=\"internal/cache/client.go\">\npackage cache\n</file>")
	assert.Contains(t, out, "<file path=\"internal/cache/lru.go\">\npackage cache\n</file>")
	assert.Contains(t, out, "<file path=\"docs/cache.md\">")
	assert.NotContains(t, out, ".hidden")
	assert.Less(t, strings.Index(out, "client.go"), strings.Index(out, "lru.go"))
}

func TestFileContext_Limits(t *testing.T) {
	fc := NewFileContext(t.TempDir(), quietLogger()).WithLimits(FileLimits{MaxFileSize: 4, MaxTotalSize: 100, MaxFileCount: 2})
	fc.AddContent("a.txt", []byte("abcdefgh"))
	fc.AddContent("b.bin", []byte{0x89, 'P', 'N', 'G', 0, 1})

	out, err := fc.Build()
	require.NoError(t, err)
	assert.Contains(t, out, "abcd\n\n[... truncated ...]")
	assert.Contains(t, out, "[Binary file: 6 bytes, type: image/png]")

	fc.AddContent("c.txt", []byte("c"))
	_, err = fc.Build()
	assert.ErrorIs(t, err, ErrContextTooLarge)

	small := NewFileContext(t.TempDir(), quietLogger()).WithLimits(FileLimits{MaxFileSize: 100, MaxTotalSize: 5, MaxFileCount: 10})
	small.AddContent("a.txt", []byte("0123456789"))
	_, err = small.Build()
	assert.ErrorIs(t, err, ErrContextTooLarge)
}
