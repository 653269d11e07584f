package git

import (
	"fmt"
	"strings"
)

// CommitType represents the type of change in a commit.
type CommitType string

const (
	CommitTypeFeat     CommitType = "feat"
	CommitTypeFix      CommitType = "fix"
	CommitTypeDocs     CommitType = "docs"
	CommitTypeRefactor CommitType = "refactor"
	CommitTypeTest     CommitType = "test"
	CommitTypeBuild    CommitType = "build"
	CommitTypeCI       CommitType = "ci"
	CommitTypeChore    CommitType = "chore"
)

// CommitMessage is a conventional commit message with task trailers.
type CommitMessage struct {
	Type        CommitType // Required: type of change (feat, fix, etc.)
	Scope       string     // Optional: area affected, usually the story label
	Subject     string     // Required: short description (imperative mood)
	Body        string     // Optional: detailed explanation
	TaskID      string     // Optional: task identifier trailer
	FeatureID   string     // Optional: feature identifier trailer
	Phase       int        // Optional: phase index trailer (0 = omitted)
	GeneratedBy string     // Optional: tool that generated the commit
}

// NewCommitMessage creates a commit message with the phaseflow marker.
func NewCommitMessage(typ CommitType, subject string) *CommitMessage {
	return &CommitMessage{
		Type:        typ,
		Subject:     subject,
		GeneratedBy: "phaseflow",
	}
}

// WithScope adds a scope to the commit message.
func (c *CommitMessage) WithScope(scope string) *CommitMessage {
	c.Scope = scope
	return c
}

// WithBody adds a body to the commit message.
func (c *CommitMessage) WithBody(body string) *CommitMessage {
	c.Body = body
	return c
}

// ForTask adds the task, feature and phase trailers.
func (c *CommitMessage) ForTask(featureID string, phase int, taskID string) *CommitMessage {
	c.FeatureID = featureID
	c.Phase = phase
	c.TaskID = taskID
	return c
}

// String formats the commit message following conventional commit format.
func (c *CommitMessage) String() string {
	var b strings.Builder

	b.WriteString(string(c.Type))
	if c.Scope != "" {
		b.WriteString("(")
		b.WriteString(c.Scope)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(c.Subject)

	if c.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(wrapText(c.Body, 72))
	}

	var footer []string
	if c.FeatureID != "" {
		footer = append(footer, fmt.Sprintf("Feature: %s", c.FeatureID))
	}
	if c.Phase > 0 {
		footer = append(footer, fmt.Sprintf("Phase: %d", c.Phase))
	}
	if c.TaskID != "" {
		footer = append(footer, fmt.Sprintf("Task: %s", c.TaskID))
	}
	if c.GeneratedBy != "" {
		footer = append(footer, fmt.Sprintf("Generated-By: %s", c.GeneratedBy))
	}

	if len(footer) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(footer, "\n"))
	}

	return b.String()
}

// Validate checks if the commit message is valid.
func (c *CommitMessage) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("commit type is required")
	}
	if c.Subject == "" {
		return fmt.Errorf("commit subject is required")
	}
	if len(c.Subject) > 100 {
		return fmt.Errorf("commit subject too long (max 100 characters)")
	}
	return nil
}

// TypeForPaths picks a commit type from the files a task touched.
func TypeForPaths(paths []string) CommitType {
	if len(paths) == 0 {
		return CommitTypeChore
	}
	allTests, allDocs := true, true
	for _, p := range paths {
		lower := strings.ToLower(p)
		if !strings.Contains(lower, "_test.") && !strings.Contains(lower, "/test") &&
			!strings.HasPrefix(lower, "test") && !strings.Contains(lower, ".spec.") {
			allTests = false
		}
		if !strings.HasSuffix(lower, ".md") && !strings.HasPrefix(lower, "docs/") {
			allDocs = false
		}
	}
	switch {
	case allTests:
		return CommitTypeTest
	case allDocs:
		return CommitTypeDocs
	default:
		return CommitTypeFeat
	}
}

// wrapText wraps text at the specified width, preserving existing newlines.
func wrapText(text string, width int) string {
	var result []string

	for _, paragraph := range strings.Split(text, "\n") {
		if len(paragraph) <= width {
			result = append(result, paragraph)
			continue
		}

		var line string
		for _, word := range strings.Fields(paragraph) {
			if line == "" {
				line = word
			} else if len(line)+1+len(word) > width {
				result = append(result, line)
				line = word
			} else {
				line += " " + word
			}
		}
		if line != "" {
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}
