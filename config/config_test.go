package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func quietConfig() ResolverConfig {
	cfg := Phaseflow()
	cfg.ErrWriter = io.Discard
	return cfg
}

func TestResolver_Defaults(t *testing.T) {
	cfg := NewResolverWithPaths(quietConfig(), "", "").Resolve()

	if got := cfg.Get(KeyTrunk); got != "main" {
		t.Errorf("trunk = %q, want %q", got, "main")
	}
	if got := cfg.Source(KeyTrunk); got != SourceDefault {
		t.Errorf("source = %q, want %q", got, SourceDefault)
	}
	if got := cfg.Get(KeyReviewPlatform); got != "" {
		t.Errorf("review.platform = %q, want empty", got)
	}
}

func TestResolver_NestedFiles(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.yaml")
	local := filepath.Join(dir, "repo", ".phaseflow.yaml")
	writeFile(t, global, "github:\n  token: ghp_global\nreview:\n  platform: github\nconcurrency: 2\n")
	writeFile(t, local, "review:\n  platform: gitlab\n  reviewers: [alice, bob]\ngitlab.project: platform/service\n")

	cfg := NewResolverWithPaths(quietConfig(), global, local).Resolve()

	tests := []struct {
		key     string
		want    string
		wantSrc Source
	}{
		{KeyGitHubToken, "ghp_global", SourceGlobal},
		{KeyConcurrency, "2", SourceGlobal},
		{KeyReviewPlatform, "gitlab", SourceLocal},
		{KeyReviewers, "alice,bob", SourceLocal},
		{KeyGitLabProject, "platform/service", SourceLocal},
		{KeyRemote, "origin", SourceDefault},
	}
	for _, tt := range tests {
		got, src := cfg.GetWithSource(tt.key)
		if got != tt.want || src != tt.wantSrc {
			t.Errorf("%s = %q (%s), want %q (%s)", tt.key, got, src, tt.want, tt.wantSrc)
		}
	}
}

func TestResolver_LocalRejectsSecrets(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".phaseflow.yaml")
	writeFile(t, local, "approval:\n  secret: committed-by-mistake\ntrunk: develop\n")

	r := NewResolverWithPaths(quietConfig(), "", local)
	cfg := r.Resolve()

	if got := cfg.Get(KeyApprovalSecret); got != "" {
		t.Errorf("approval.secret = %q, want empty", got)
	}
	if got := cfg.Get(KeyTrunk); got != "develop" {
		t.Errorf("trunk = %q, want %q", got, "develop")
	}
	if len(r.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one warning", r.Warnings)
	}
}

func TestResolver_Priority(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.yaml")
	local := filepath.Join(dir, ".phaseflow.yaml")
	writeFile(t, global, "trunk: global\n")
	writeFile(t, local, "trunk: local\n")

	t.Setenv("PHASEFLOW_TRUNK", "env")
	r := NewResolverWithPaths(quietConfig(), global, local)

	if got := r.Resolve().Get(KeyTrunk); got != "env" {
		t.Errorf("trunk = %q, want %q (env should beat files)", got, "env")
	}
	cfg := r.ResolveWithFlags(map[string]string{KeyTrunk: "flag", KeyRemote: ""})
	if got := cfg.Get(KeyTrunk); got != "flag" {
		t.Errorf("trunk = %q, want %q", got, "flag")
	}
	if got := cfg.Source(KeyTrunk); got != SourceFlag {
		t.Errorf("source = %q, want %q", got, SourceFlag)
	}
	if got := cfg.Get(KeyRemote); got != "origin" {
		t.Errorf("empty flag overrode remote: %q", got)
	}
}

func TestResolver_EnvForUnsetKey(t *testing.T) {
	t.Setenv("PHASEFLOW_APPROVAL_SECRET", "from-env")
	t.Setenv("PHASEFLOW_CI_POLL_INTERVAL", "5s")

	cfg := NewResolverWithPaths(quietConfig(), "", "").Resolve()

	if got := cfg.Get(KeyApprovalSecret); got != "from-env" {
		t.Errorf("approval.secret = %q, want %q", got, "from-env")
	}
	d, err := cfg.Duration(KeyPollInterval)
	if err != nil || d != 5*time.Second {
		t.Errorf("Duration() = %v, %v, want 5s", d, err)
	}
}

func TestEnvName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"trunk", "PHASEFLOW_TRUNK"},
		{"review.platform", "PHASEFLOW_REVIEW_PLATFORM"},
		{"approval.allowed_signers", "PHASEFLOW_APPROVAL_ALLOWED_SIGNERS"},
		{"ci.poll-interval", "PHASEFLOW_CI_POLL_INTERVAL"},
	}
	for _, tt := range tests {
		if got := EnvName(EnvPrefix, tt.key); got != tt.want {
			t.Errorf("EnvName(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestResolved_Settings(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".phaseflow.yaml")
	writeFile(t, local, "concurrency: 8\nreview:\n  platform: github\n  draft: true\n  reviewers: alice, bob\n")

	s, err := NewResolverWithPaths(quietConfig(), "", local).Resolve().Settings()
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if s.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", s.Concurrency)
	}
	if !s.ReviewDraft {
		t.Error("ReviewDraft = false, want true")
	}
	if len(s.Reviewers) != 2 || s.Reviewers[1] != "bob" {
		t.Errorf("Reviewers = %v, want [alice bob]", s.Reviewers)
	}
	if s.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", s.PollInterval)
	}
	if s.ApprovalAddr != "localhost:8787" {
		t.Errorf("ApprovalAddr = %q, want localhost:8787", s.ApprovalAddr)
	}
}

func TestResolved_SettingsErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"bad concurrency", "concurrency: many\n"},
		{"negative concurrency", "concurrency: -1\n"},
		{"bad duration", "ci:\n  poll_interval: soon\n"},
		{"bad platform", "review:\n  platform: bitbucket\n"},
		{"bad bool", "review:\n  draft: maybe\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := filepath.Join(t.TempDir(), ".phaseflow.yaml")
			writeFile(t, local, tt.file)
			if _, err := NewResolverWithPaths(quietConfig(), "", local).Resolve().Settings(); err == nil {
				t.Error("Settings() error = nil, want error")
			}
		})
	}
}

func TestResolver_MalformedFileWarns(t *testing.T) {
	local := filepath.Join(t.TempDir(), ".phaseflow.yaml")
	writeFile(t, local, "trunk: [unclosed\n")

	r := NewResolverWithPaths(quietConfig(), "", local)
	cfg := r.Resolve()
	if got := cfg.Get(KeyTrunk); got != "main" {
		t.Errorf("trunk = %q, want default", got)
	}
	if len(r.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one", r.Warnings)
	}
}

func TestResolver_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	cfg := NewResolverWithPaths(quietConfig(), "", "").Resolve()
	if got := cfg.Get(KeyNoColor); got != "true" {
		t.Errorf("no_color = %q, want %q", got, "true")
	}
}

func TestNewResolverAt_FindsLocalConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, ".phaseflow.yaml"), "remote: upstream\n")

	r := NewResolverAt(quietConfig(), nested)
	if r.GitRoot() != root {
		t.Errorf("GitRoot() = %q, want %q", r.GitRoot(), root)
	}
	if got := r.Resolve().Get(KeyRemote); got != "upstream" {
		t.Errorf("remote = %q, want %q", got, "upstream")
	}
}

func TestFindGitRoot_NotFound(t *testing.T) {
	if root := findGitRoot(t.TempDir()); root != "" {
		t.Errorf("findGitRoot() = %q, want empty", root)
	}
}
