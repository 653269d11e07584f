package drift

import (
	"errors"
	"reflect"
	"testing"
)

func baseSurvey() *Survey {
	return &Survey{
		Languages: []string{"go"},
		Dependencies: []Dependency{
			{Ecosystem: "go", Name: "github.com/spf13/cobra", Version: "v1.9.1", Major: "v1", Manifest: "go.mod"},
		},
		Directories:  []string{"cmd", "internal", "internal/store"},
		Architecture: []Marker{{Name: "cmd-layout", Evidence: "cmd"}},
		Security:     []Marker{},
		Testing:      []Marker{{Name: "go-test", Evidence: "internal/store"}},
	}
}

func TestCompare_NoChange(t *testing.T) {
	r := NewComparator().Compare(baseSurvey(), baseSurvey())
	if r.Score != 0 {
		t.Errorf("Score = %d, want 0", r.Score)
	}
	if r.Category != CategoryNone {
		t.Errorf("Category = %q, want %q", r.Category, CategoryNone)
	}
	if r.Halt() != nil {
		t.Error("Halt() should be nil without drift")
	}
}

func TestCompare_NewDependencyAndTesting(t *testing.T) {
	next := baseSurvey()
	next.Dependencies = append(next.Dependencies, Dependency{
		Ecosystem: "go", Name: "github.com/nats-io/nats.go", Major: "v1", Manifest: "go.mod",
	})
	next.Testing = append(next.Testing, Marker{Name: "testify", Evidence: "go.mod"})

	r := NewComparator().Compare(baseSurvey(), next)
	if r.Score != 5 {
		t.Errorf("Score = %d, want 5", r.Score)
	}
	if r.Category != CategoryAlert {
		t.Errorf("Category = %q, want %q", r.Category, CategoryAlert)
	}
	if len(r.Findings) != 2 {
		t.Fatalf("len(Findings) = %d, want 2", len(r.Findings))
	}
	if r.Findings[0].Dimension != DimDependencies || r.Findings[1].Dimension != DimTesting {
		t.Errorf("dimensions = %s, %s", r.Findings[0].Dimension, r.Findings[1].Dimension)
	}
	if got := r.AffectedPaths(); !reflect.DeepEqual(got, []string{"go.mod"}) {
		t.Errorf("AffectedPaths() = %v, want [go.mod]", got)
	}
}

func TestCompare_DimensionWeighsOnce(t *testing.T) {
	next := baseSurvey()
	next.Dependencies = append(next.Dependencies,
		Dependency{Ecosystem: "go", Name: "a.example/x", Major: "v1", Manifest: "go.mod"},
		Dependency{Ecosystem: "go", Name: "b.example/y", Major: "v1", Manifest: "go.mod"},
	)
	r := NewComparator().Compare(baseSurvey(), next)
	if r.Score != 3 {
		t.Errorf("Score = %d, want 3", r.Score)
	}
}

func TestCompare_MinorBumpIsNotMaterial(t *testing.T) {
	next := baseSurvey()
	next.Dependencies[0].Version = "v1.10.0"
	if r := NewComparator().Compare(baseSurvey(), next); r.Score != 0 {
		t.Errorf("Score = %d, want 0", r.Score)
	}

	next.Dependencies[0].Major = "v2"
	if r := NewComparator().Compare(baseSurvey(), next); r.Score != 3 {
		t.Errorf("major bump Score = %d, want 3", r.Score)
	}
}

func TestCompare_Critical(t *testing.T) {
	next := baseSurvey()
	next.Architecture = append(next.Architecture, Marker{Name: "grpc", Evidence: "go.mod"})
	next.Security = []Marker{{Name: "jwt", Evidence: "internal/auth"}}

	r := NewComparator().Compare(baseSurvey(), next)
	if r.Score != 10 {
		t.Errorf("Score = %d, want 10", r.Score)
	}
	if r.Category != CategoryCritical {
		t.Errorf("Category = %q, want %q", r.Category, CategoryCritical)
	}

	err := r.Halt()
	if !errors.Is(err, ErrCriticalHalt) {
		t.Fatalf("Halt() = %v, want ErrCriticalHalt", err)
	}
	var halt *CriticalHalt
	if !errors.As(err, &halt) || halt.Report != r {
		t.Error("Halt() should carry the report")
	}
	if got := r.AffectedSections(); !reflect.DeepEqual(got, []string{"Architecture", "Security"}) {
		t.Errorf("AffectedSections() = %v", got)
	}
}

func TestCompare_Layout(t *testing.T) {
	tests := []struct {
		name  string
		dirs  []string
		score int
	}{
		{"one new directory", []string{"cmd", "internal", "internal/store", "docs"}, 0},
		{"two new directories", []string{"cmd", "internal", "internal/store", "docs", "api"}, 3},
		{"removed directory", []string{"cmd", "internal"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := baseSurvey()
			next.Directories = tt.dirs
			if r := NewComparator().Compare(baseSurvey(), next); r.Score != tt.score {
				t.Errorf("Score = %d, want %d", r.Score, tt.score)
			}
		})
	}
}

func TestCompare_Deterministic(t *testing.T) {
	next := baseSurvey()
	next.Architecture = []Marker{{Name: "http-server", Evidence: "go.mod"}, {Name: "grpc", Evidence: "go.mod"}}
	next.Directories = []string{"api", "web", "cmd", "internal", "internal/store"}

	c := NewComparator()
	first := c.Compare(baseSurvey(), next)
	for i := 0; i < 5; i++ {
		again := c.Compare(baseSurvey(), next)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestCompare_LeavesInputsUntouched(t *testing.T) {
	prev := baseSurvey()
	prev.Directories = []string{"internal/store", "cmd", "internal"}
	next := baseSurvey()
	next.Directories = []string{"web", "api", "cmd", "internal", "internal/store"}
	next.Architecture = []Marker{{Name: "http-server", Evidence: "go.mod"}, {Name: "cmd-layout", Evidence: "cmd"}}

	NewComparator().Compare(prev, next)

	if want := []string{"internal/store", "cmd", "internal"}; !reflect.DeepEqual(prev.Directories, want) {
		t.Errorf("prev.Directories = %v, want %v", prev.Directories, want)
	}
	if want := []string{"web", "api", "cmd", "internal", "internal/store"}; !reflect.DeepEqual(next.Directories, want) {
		t.Errorf("next.Directories = %v, want %v", next.Directories, want)
	}
	if next.Architecture[0].Name != "http-server" {
		t.Errorf("next.Architecture reordered: %v", next.Architecture)
	}
}

func TestThresholds_Categorize(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		score int
		want  Category
	}{
		{0, CategoryNone},
		{4, CategoryNone},
		{5, CategoryAlert},
		{7, CategoryAlert},
		{8, CategoryCritical},
		{18, CategoryCritical},
	}
	for _, tt := range tests {
		if got := th.Categorize(tt.score); got != tt.want {
			t.Errorf("Categorize(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestSurvey_EncodeDecode(t *testing.T) {
	s := baseSurvey()
	s.Head = "abc123"
	doc, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := DecodeSurvey(doc)
	if err != nil {
		t.Fatalf("DecodeSurvey() error = %v", err)
	}
	if got.Head != "abc123" {
		t.Errorf("Head = %q, want abc123", got.Head)
	}
	if r := NewComparator().Compare(s, got); r.Score != 0 {
		t.Errorf("decoded survey drifted: %s", r.Summary())
	}

	if _, err := DecodeSurvey([]byte("# nothing here")); !errors.Is(err, ErrInvalidSurvey) {
		t.Errorf("DecodeSurvey(garbage) error = %v, want ErrInvalidSurvey", err)
	}
}
