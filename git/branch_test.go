package git

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Add User Authentication", "add-user-authentication"},
		{"snake_case_name", "snake-case-name"},
		{"  spaced -- out  ", "spaced-out"},
		{"Ünïcode & symbols!", "ncode-symbols"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBranchNamer(t *testing.T) {
	n := DefaultBranchNamer()

	if got := n.ForFeature("003-Add Caching"); got != "phaseflow/003-add-caching" {
		t.Errorf("ForFeature = %q", got)
	}
	if got := n.ForPhase("003-add-caching", 2, "Foundational"); got != "phaseflow/003-add-caching/p2-foundational" {
		t.Errorf("ForPhase = %q", got)
	}

	n.MaxLength = 20
	got := n.ForFeature("001-" + strings.Repeat("long-", 10))
	if len(got) > 20 || strings.HasSuffix(got, "-") {
		t.Errorf("ForFeature truncated = %q", got)
	}
}

func TestCommitMessage(t *testing.T) {
	msg := NewCommitMessage(CommitTypeFeat, "add cache").
		WithScope("US1").
		ForTask("001-cache", 3, "T007")

	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	s := msg.String()
	if !strings.HasPrefix(s, "feat(US1): add cache") {
		t.Errorf("subject line = %q", strings.SplitN(s, "\n", 2)[0])
	}
	for _, want := range []string{"Feature: 001-cache", "Phase: 3", "Task: T007", "Generated-By: phaseflow"} {
		if !strings.Contains(s, want) {
			t.Errorf("message missing %q:\n%s", want, s)
		}
	}
}

func TestTypeForPaths(t *testing.T) {
	tests := []struct {
		paths []string
		want  CommitType
	}{
		{nil, CommitTypeChore},
		{[]string{"pkg/a_test.go"}, CommitTypeTest},
		{[]string{"README.md", "docs/guide.md"}, CommitTypeDocs},
		{[]string{"pkg/a.go", "pkg/a_test.go"}, CommitTypeFeat},
	}
	for _, tt := range tests {
		if got := TypeForPaths(tt.paths); got != tt.want {
			t.Errorf("TypeForPaths(%v) = %q, want %q", tt.paths, got, tt.want)
		}
	}
}
