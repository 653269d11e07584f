package git

import (
	"sort"
	"testing"

	"github.com/randalmurphal/phaseflow/testutil"
)

func newRepoContext(t *testing.T, files map[string]string) (*Context, string) {
	t.Helper()
	dir := testutil.SetupTestRepoWithFiles(t, files)
	ctx, err := NewContext(dir)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	return ctx, dir
}

func TestChangedFiles_RealRepo(t *testing.T) {
	ctx, dir := newRepoContext(t, map[string]string{
		"app/app.go":  "package app\n",
		"old/name.go": "package old\n",
	})

	testutil.WriteFile(t, dir, "app/app.go", "package app\n\nfunc Run() {}\n")
	testutil.WriteFile(t, dir, "pkg/server/server.go", "package server\n")
	testutil.WriteFile(t, dir, "docs/read me.md", "# notes\n")
	if _, err := RunGit(dir, "mv", "old/name.go", "old/renamed.go"); err != nil {
		t.Fatalf("git mv failed: %v", err)
	}

	files, err := ctx.ChangedFiles()
	if err != nil {
		t.Fatalf("ChangedFiles failed: %v", err)
	}
	sort.Strings(files)
	want := []string{"app/app.go", "docs/read me.md", "old/renamed.go", "pkg/server/server.go"}
	if len(files) != len(want) {
		t.Fatalf("files = %q, want %q", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestChangedFiles_CommitLeavesCleanTree(t *testing.T) {
	ctx, dir := newRepoContext(t, map[string]string{"app/app.go": "package app\n"})

	testutil.WriteFile(t, dir, "app/app.go", "package app\n\nvar X = 1\n")
	testutil.WriteFile(t, dir, "cmd/app/main.go", "package main\n")

	clean, err := ctx.IsClean()
	if err != nil {
		t.Fatalf("IsClean failed: %v", err)
	}
	if clean {
		t.Fatal("IsClean = true with pending changes")
	}

	files, err := ctx.ChangedFiles()
	if err != nil {
		t.Fatalf("ChangedFiles failed: %v", err)
	}
	if _, err := ctx.CommitPaths("feat: add app entrypoint", files...); err != nil {
		t.Fatalf("CommitPaths(%q) failed: %v", files, err)
	}

	if status := testutil.GitStatus(t, dir); status != "" {
		t.Errorf("status after commit = %q, want clean", status)
	}
	clean, err = ctx.IsClean()
	if err != nil {
		t.Fatalf("IsClean failed: %v", err)
	}
	if !clean {
		t.Error("IsClean = false after committing every changed file")
	}
}

func TestStatus_KeepsLeadingColumn(t *testing.T) {
	ctx, dir := newRepoContext(t, map[string]string{"a.go": "package a\n"})
	testutil.WriteFile(t, dir, "a.go", "package a\n\nvar A = 1\n")

	status, err := ctx.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != " M a.go" {
		t.Errorf("Status = %q, want %q", status, " M a.go")
	}
}
