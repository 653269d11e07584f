package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func executeVars() TaskVars {
	return TaskVars{
		Feature:      "003-add-caching",
		TaskID:       "T005",
		Kind:         "implement",
		Phase:        2,
		PhaseName:    "foundational",
		Paths:        []string{"internal/cache/client.go"},
		Technologies: []string{"go"},
	}
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/tmp/project")

	if len(loader.dirs) != 2 {
		t.Errorf("expected 2 search dirs, got %d", len(loader.dirs))
	}
	if loader.dirs[0] != filepath.Join("/tmp/project", ".phaseflow", "prompts") {
		t.Errorf("dirs[0] = %q", loader.dirs[0])
	}
	if loader.cache == nil {
		t.Error("cache should be initialized")
	}
}

func TestLoader_EmbeddedExecute(t *testing.T) {
	loader := NewLoader("/nonexistent")

	content, err := loader.Task(executeVars())
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	for _, want := range []string{
		"Task T005 (implement) in phase 2: Foundational",
		"- internal/cache/client.go",
		"The project uses: go.",
		"## Status",
		"### Forward suggestions",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("execute prompt missing %q", want)
		}
	}
}

func TestLoader_CoordinationTask(t *testing.T) {
	vars := executeVars()
	vars.Paths = nil
	content, err := NewLoader("/nonexistent").Task(vars)
	if err != nil {
		t.Fatalf("LoadWithVars: %v", err)
	}
	if !strings.Contains(content, "coordination task") {
		t.Error("prompt should mention the coordination task")
	}
}

func TestLoader_ProjectOverride(t *testing.T) {
	dir := t.TempDir()
	promptsDir := filepath.Join(dir, ".phaseflow", "prompts")
	if err := os.MkdirAll(promptsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(promptsDir, "execute.txt"), []byte("Custom {{.TaskID}}"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := NewLoader(dir).LoadWithVars("execute", map[string]any{"TaskID": "T001"})
	if err != nil {
		t.Fatalf("LoadWithVars: %v", err)
	}
	if content != "Custom T001" {
		t.Errorf("content = %q, want %q", content, "Custom T001")
	}
}

func TestLoader_ExistsAndList(t *testing.T) {
	loader := NewLoader("/nonexistent")

	if !loader.Exists("execute") {
		t.Error("execute should exist (embedded)")
	}
	if loader.Exists("nonexistent-prompt") {
		t.Error("nonexistent-prompt should not exist")
	}

	names, err := loader.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != Execute || names[1] != Summary {
		t.Errorf("List() = %v, want [execute summary]", names)
	}
}

func TestLoader_NotFound(t *testing.T) {
	_, err := NewLoader("/nonexistent").Load("definitely-not-a-real-prompt")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error should mention 'not found': %v", err)
	}
}

func TestLoader_ConcurrentRender(t *testing.T) {
	loader := NewLoader("/nonexistent")
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := loader.Task(executeVars()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent render: %v", err)
	}
}

func TestLoader_PhaseSummary(t *testing.T) {
	content, err := NewLoader("/nonexistent").PhaseSummary(SummaryVars{
		Feature:   "003-add-caching",
		Phase:     1,
		PhaseName: "setup",
		Tasks:     []string{"T001 Create the cache package"},
		Skipped:   []string{"T002 Add docs (later)"},
	})
	if err != nil {
		t.Fatalf("PhaseSummary: %v", err)
	}
	for _, want := range []string{
		"Phase 1 (Setup) of 003-add-caching is ready for review.",
		"- T001 Create the cache package",
		"Skipped:\n- T002 Add docs (later)",
		"phaseflow approve 003-add-caching 1",
		"Merge this branch into trunk before approving",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("summary missing %q:\n%s", want, content)
		}
	}
}

func TestBuilder(t *testing.T) {
	got := NewBuilder().
		Add("Intro").
		AddSection("Spec", "Body").
		AddList("Files", []string{"a.go", "b.go"}).
		Build()

	want := "Intro\n\n## Spec\n\nBody\n\n## Files\n\n- a.go\n- b.go\n"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}

	if got := NewBuilder().Add("Intro").AddSection("Empty", "  ").AddList("None", nil).Build(); got != "Intro" {
		t.Errorf("empty sections should be dropped, got %q", got)
	}
}
