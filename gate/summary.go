package gate

import (
	"fmt"

	"github.com/randalmurphal/phaseflow/prompt"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

// Summarizer writes the review request description for a phase.
type Summarizer interface {
	Summarize(feature string, p *taskgraph.Phase) (string, error)
}

// PromptSummarizer renders the summary prompt template.
type PromptSummarizer struct {
	loader *prompt.Loader
}

// NewPromptSummarizer uses loader, or the embedded templates when nil.
func NewPromptSummarizer(loader *prompt.Loader) *PromptSummarizer {
	if loader == nil {
		loader = prompt.NewLoader(".")
	}
	return &PromptSummarizer{loader: loader}
}

// Summarize implements Summarizer.
func (s *PromptSummarizer) Summarize(feature string, p *taskgraph.Phase) (string, error) {
	var done, skipped []string
	for _, t := range p.Tasks {
		switch t.Status {
		case taskgraph.StatusDone:
			done = append(done, fmt.Sprintf("%s %s", t.ID, t.Description))
		case taskgraph.StatusSkipped:
			line := fmt.Sprintf("%s %s", t.ID, t.Description)
			if t.SkipReason != "" {
				line += " (" + t.SkipReason + ")"
			}
			skipped = append(skipped, line)
		}
	}
	return s.loader.PhaseSummary(prompt.SummaryVars{
		Feature:   feature,
		Phase:     p.Index,
		PhaseName: p.Name,
		Tasks:     done,
		Skipped:   skipped,
	})
}
