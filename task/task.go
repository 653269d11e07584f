package task

import (
	"path"
	"strings"

	"github.com/randalmurphal/llmkit/model"
)

// Type represents the kind of work a scheduled task performs.
// This determines which model tier is appropriate.
type Type string

const (
	// Design work - needs reasoning
	Research     Type = "research"
	Architecture Type = "architecture"

	// Standard dev tasks - default tier
	Implement Type = "implement"
	Test      Type = "test"
	Fix       Type = "fix"
	Refactor  Type = "refactor"

	// Mechanical tasks - can use smaller models
	Setup Type = "setup"
	Docs  Type = "docs"
	Chore Type = "chore"
)

// DefaultModelMap maps task types to default models.
var DefaultModelMap = map[Type]model.ModelName{
	Research:     model.ModelOpus,
	Architecture: model.ModelOpus,
	Implement:    model.ModelSonnet,
	Test:         model.ModelSonnet,
	Fix:          model.ModelSonnet,
	Refactor:     model.ModelSonnet,
	Setup:        model.ModelHaiku,
	Docs:         model.ModelHaiku,
	Chore:        model.ModelHaiku,
}

// TierForTask returns the appropriate tier for a task type.
func TierForTask(t Type) model.Tier {
	switch t {
	case Research, Architecture:
		return model.TierThinking
	case Setup, Docs, Chore:
		return model.TierFast
	default:
		return model.TierDefault
	}
}

// NewSelector creates a model selector keyed on Type.
func NewSelector(opts ...model.SelectorOption) *model.Selector {
	allOpts := append([]model.SelectorOption{
		model.WithTierFunc(func(task any) model.Tier {
			if t, ok := task.(Type); ok {
				return TierForTask(t)
			}
			return model.TierDefault
		}),
	}, opts...)

	return model.NewSelector(allOpts...)
}

// SelectModel selects the appropriate model for a task type.
// Uses the default model map unless overridden.
func SelectModel(t Type) model.ModelName {
	if m, ok := DefaultModelMap[t]; ok {
		return m
	}
	switch TierForTask(t) {
	case model.TierThinking:
		return model.ModelOpus
	case model.TierFast:
		return model.ModelHaiku
	default:
		return model.ModelSonnet
	}
}

var leadingVerbs = map[string]Type{
	"research":    Research,
	"investigate": Research,
	"evaluate":    Research,
	"design":      Architecture,
	"architect":   Architecture,
	"fix":         Fix,
	"repair":      Fix,
	"refactor":    Refactor,
	"extract":     Refactor,
	"rename":      Refactor,
	"test":        Test,
	"document":    Docs,
	"bump":        Chore,
	"configure":   Setup,
	"initialize":  Setup,
	"scaffold":    Setup,
}

// Classify infers the type of a task from its phase, description and
// claimed paths. The leading verb wins, then the file types claimed, then
// the phase. Everything else is Implement.
func Classify(phaseName, description string, paths []string) Type {
	if fields := strings.Fields(strings.ToLower(description)); len(fields) > 0 {
		if t, ok := leadingVerbs[strings.Trim(fields[0], ":,.")]; ok {
			return t
		}
	}

	if len(paths) > 0 {
		tests, docs := 0, 0
		for _, p := range paths {
			base := path.Base(p)
			switch {
			case isTestFile(base):
				tests++
			case isDocFile(base):
				docs++
			}
		}
		if tests == len(paths) {
			return Test
		}
		if docs == len(paths) {
			return Docs
		}
	}

	switch strings.ToLower(strings.TrimSpace(phaseName)) {
	case "setup":
		return Setup
	case "polish":
		return Chore
	}
	return Implement
}

func isTestFile(base string) bool {
	return strings.HasSuffix(base, "_test.go") ||
		strings.HasPrefix(base, "test_") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.")
}

func isDocFile(base string) bool {
	ext := strings.ToLower(path.Ext(base))
	return ext == ".md" || ext == ".rst" || ext == ".txt" || ext == ".adoc"
}
