package drift

import (
	"fmt"
	"sort"
	"strings"
)

// Dimension is one comparable aspect of a survey.
type Dimension string

const (
	DimDependencies Dimension = "dependencies"
	DimLayout       Dimension = "layout"
	DimArchitecture Dimension = "architecture"
	DimSecurity     Dimension = "security"
	DimTesting      Dimension = "testing"
)

// Dimensions lists every scored dimension in report order.
var Dimensions = []Dimension{DimDependencies, DimLayout, DimArchitecture, DimSecurity, DimTesting}

// Category classifies a drift score.
type Category string

const (
	CategoryNone     Category = "none"
	CategoryAlert    Category = "alert"
	CategoryCritical Category = "critical"
)

// Weights holds the fixed contribution of each dimension.
type Weights struct {
	NewMajorDependency   int `koanf:"new_major_dependency" yaml:"new_major_dependency"`
	DirectoryRestructure int `koanf:"directory_restructure" yaml:"directory_restructure"`
	ArchitectureChange   int `koanf:"architecture_change" yaml:"architecture_change"`
	SecurityModelChange  int `koanf:"security_model_change" yaml:"security_model_change"`
	TestStrategyChange   int `koanf:"test_strategy_change" yaml:"test_strategy_change"`
}

// DefaultWeights returns the stock weights.
func DefaultWeights() Weights {
	return Weights{
		NewMajorDependency:   3,
		DirectoryRestructure: 3,
		ArchitectureChange:   5,
		SecurityModelChange:  5,
		TestStrategyChange:   2,
	}
}

func (w Weights) of(d Dimension) int {
	switch d {
	case DimDependencies:
		return w.NewMajorDependency
	case DimLayout:
		return w.DirectoryRestructure
	case DimArchitecture:
		return w.ArchitectureChange
	case DimSecurity:
		return w.SecurityModelChange
	case DimTesting:
		return w.TestStrategyChange
	}
	return 0
}

// Thresholds are the inclusive lower bounds of Alert and Critical.
type Thresholds struct {
	Alert    int `koanf:"alert" yaml:"alert"`
	Critical int `koanf:"critical" yaml:"critical"`
}

// DefaultThresholds returns Alert at 5 and Critical at 8.
func DefaultThresholds() Thresholds {
	return Thresholds{Alert: 5, Critical: 8}
}

// Categorize maps a score to its category.
func (t Thresholds) Categorize(score int) Category {
	switch {
	case score >= t.Critical:
		return CategoryCritical
	case score >= t.Alert:
		return CategoryAlert
	default:
		return CategoryNone
	}
}

// Finding is a material change in one dimension.
type Finding struct {
	Dimension   Dimension `yaml:"dimension"`
	Section     string    `yaml:"section"` // survey/spec section the finding concerns
	Description string    `yaml:"description"`
	Weight      int       `yaml:"weight"`
	Paths       []string  `yaml:"paths,omitempty"`
}

// Report is the ephemeral outcome of a survey comparison.
type Report struct {
	Score    int       `yaml:"score"`
	Category Category  `yaml:"category"`
	Findings []Finding `yaml:"findings"`
	FromHead string    `yaml:"from_head,omitempty"`
	ToHead   string    `yaml:"to_head,omitempty"`
}

// AffectedPaths returns the union of paths named by all findings.
func (r *Report) AffectedPaths() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, f := range r.Findings {
		for _, p := range f.Paths {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// AffectedSections returns the spec/plan sections named by findings.
func (r *Report) AffectedSections() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, f := range r.Findings {
		if f.Section != "" && !seen[f.Section] {
			seen[f.Section] = true
			out = append(out, f.Section)
		}
	}
	return out
}

// Halt returns a *CriticalHalt when the report is Critical, else nil.
func (r *Report) Halt() error {
	if r == nil || r.Category != CategoryCritical {
		return nil
	}
	return &CriticalHalt{Report: r}
}

// Summary renders a one-line description for notifications and logs.
func (r *Report) Summary() string {
	if len(r.Findings) == 0 {
		return fmt.Sprintf("drift %s (score %d)", r.Category, r.Score)
	}
	dims := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		dims[i] = string(f.Dimension)
	}
	return fmt.Sprintf("drift %s (score %d): %s", r.Category, r.Score, strings.Join(dims, ", "))
}

// Comparator scores the differences between two surveys.
type Comparator struct {
	Weights    Weights
	Thresholds Thresholds
}

// NewComparator returns a comparator using the stock weights and thresholds.
func NewComparator() *Comparator {
	return &Comparator{Weights: DefaultWeights(), Thresholds: DefaultThresholds()}
}

// Compare scores next against prev. Each dimension contributes its weight
// at most once. The result is deterministic for equal inputs and neither
// survey is modified.
func (c *Comparator) Compare(prev, next *Survey) *Report {
	prev, next = prev.Clone(), next.Clone()
	prev.normalize()
	next.normalize()

	var findings []Finding
	add := func(d Dimension, section, desc string, paths []string) {
		sort.Strings(paths)
		findings = append(findings, Finding{
			Dimension:   d,
			Section:     section,
			Description: desc,
			Weight:      c.Weights.of(d),
			Paths:       paths,
		})
	}

	if desc, paths := compareDependencies(prev.Dependencies, next.Dependencies); desc != "" {
		add(DimDependencies, "Dependencies", desc, paths)
	}
	if desc, paths := compareLayout(prev.Directories, next.Directories); desc != "" {
		add(DimLayout, "Layout", desc, paths)
	}
	if desc, paths := compareMarkers("architecture", prev.Architecture, next.Architecture); desc != "" {
		add(DimArchitecture, "Architecture", desc, paths)
	}
	if desc, paths := compareMarkers("security", prev.Security, next.Security); desc != "" {
		add(DimSecurity, "Security", desc, paths)
	}
	if desc, paths := compareMarkers("testing", prev.Testing, next.Testing); desc != "" {
		add(DimTesting, "Testing", desc, paths)
	}

	r := &Report{Findings: findings, FromHead: prev.Head, ToHead: next.Head}
	for _, f := range findings {
		r.Score += f.Weight
	}
	r.Category = c.Thresholds.Categorize(r.Score)
	return r
}

// compareDependencies flags dependencies that are new or changed major
// version. Minor and patch bumps are not material.
func compareDependencies(prev, next []Dependency) (string, []string) {
	old := make(map[string]Dependency, len(prev))
	for _, d := range prev {
		old[d.key()] = d
	}

	var changes []string
	manifests := make(map[string]bool)
	for _, d := range next {
		o, ok := old[d.key()]
		switch {
		case !ok:
			changes = append(changes, "added "+d.Name)
		case o.Major != d.Major:
			changes = append(changes, fmt.Sprintf("%s %s -> %s", d.Name, o.Major, d.Major))
		default:
			continue
		}
		manifests[d.Manifest] = true
	}
	if len(changes) == 0 {
		return "", nil
	}
	return "new major dependency: " + strings.Join(changes, "; "), keys(manifests)
}

// compareLayout treats any removed directory, or two or more added
// directories, as a restructure. A single new directory is ordinary growth.
func compareLayout(prev, next []string) (string, []string) {
	added, removed := diffStrings(prev, next)
	if len(removed) == 0 && len(added) < 2 {
		return "", nil
	}

	var parts []string
	if len(added) > 0 {
		parts = append(parts, "added "+strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		parts = append(parts, "removed "+strings.Join(removed, ", "))
	}
	paths := append(append([]string{}, added...), removed...)
	return "directory restructure: " + strings.Join(parts, "; "), paths
}

func compareMarkers(kind string, prev, next []Marker) (string, []string) {
	names := func(ms []Marker) []string {
		out := make([]string, 0, len(ms))
		seen := make(map[string]bool)
		for _, m := range ms {
			if !seen[m.Name] {
				seen[m.Name] = true
				out = append(out, m.Name)
			}
		}
		return out
	}
	added, removed := diffStrings(names(prev), names(next))
	if len(added) == 0 && len(removed) == 0 {
		return "", nil
	}

	changed := make(map[string]bool)
	for _, n := range append(append([]string{}, added...), removed...) {
		changed[n] = true
	}
	evidence := make(map[string]bool)
	for _, m := range append(append([]Marker{}, prev...), next...) {
		if changed[m.Name] && m.Evidence != "" {
			evidence[m.Evidence] = true
		}
	}

	var parts []string
	if len(added) > 0 {
		parts = append(parts, "added "+strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		parts = append(parts, "removed "+strings.Join(removed, ", "))
	}
	return kind + " change: " + strings.Join(parts, "; "), keys(evidence)
}

func diffStrings(prev, next []string) (added, removed []string) {
	inPrev := make(map[string]bool, len(prev))
	for _, s := range prev {
		inPrev[s] = true
	}
	inNext := make(map[string]bool, len(next))
	for _, s := range next {
		inNext[s] = true
		if !inPrev[s] {
			added = append(added, s)
		}
	}
	for _, s := range prev {
		if !inNext[s] {
			removed = append(removed, s)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
