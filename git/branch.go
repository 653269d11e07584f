package git

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRuns   = regexp.MustCompile(`-+`)
)

// BranchNamer generates branch names for feature work.
type BranchNamer struct {
	Prefix    string // Branch prefix (e.g., "phaseflow", "feature")
	MaxLength int    // Maximum branch name length
}

// DefaultBranchNamer returns a namer with default settings.
func DefaultBranchNamer() *BranchNamer {
	return &BranchNamer{
		Prefix:    "phaseflow",
		MaxLength: 100,
	}
}

// ForFeature generates the working branch for a feature.
// Example: "003-add-caching" -> "phaseflow/003-add-caching"
func (n *BranchNamer) ForFeature(featureID string) string {
	return n.limit(n.Prefix + "/" + Slugify(featureID))
}

// ForPhase generates the review branch for one phase of a feature.
// Example: "003-add-caching", 2, "Foundational" -> "phaseflow/003-add-caching/p2-foundational"
func (n *BranchNamer) ForPhase(featureID string, phase int, phaseName string) string {
	branch := fmt.Sprintf("%s/%s/p%d", n.Prefix, Slugify(featureID), phase)
	if slug := Slugify(phaseName); slug != "" {
		branch += "-" + slug
	}
	return n.limit(branch)
}

func (n *BranchNamer) limit(branch string) string {
	if n.MaxLength > 0 && len(branch) > n.MaxLength {
		branch = branch[:n.MaxLength]
	}
	return CleanBranch(branch)
}

// Slugify converts a string to a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = nonSlugChars.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// CleanBranch ensures a branch name is valid.
func CleanBranch(s string) string {
	s = hyphenRuns.ReplaceAllString(s, "-")

	// Remove trailing hyphens (but not before /)
	parts := strings.Split(s, "/")
	for i, part := range parts {
		parts[i] = strings.TrimRight(part, "-")
	}
	return strings.Join(parts, "/")
}
