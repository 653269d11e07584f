package retro

import (
	"bufio"
	"sort"
	"strings"
)

// Section is one heading of a retrospective.
type Section string

const (
	SectionWorked       Section = "What worked"
	SectionDidNotWork   Section = "What didn't work"
	SectionWorkarounds  Section = "Workarounds"
	SectionDependencies Section = "Dependency notes"
	SectionPatterns     Section = "Patterns"
	SectionSuggestions  Section = "Forward suggestions"
)

// Sections lists every retrospective section in document order.
var Sections = []Section{
	SectionWorked,
	SectionDidNotWork,
	SectionWorkarounds,
	SectionDependencies,
	SectionPatterns,
	SectionSuggestions,
}

// sectionFor matches a heading to a known section, case-insensitively and
// tolerating the short forms providers tend to write.
func sectionFor(heading string) (Section, bool) {
	h := strings.ToLower(strings.TrimSpace(heading))
	h = strings.TrimRight(h, ":")
	for _, s := range Sections {
		if h == strings.ToLower(string(s)) {
			return s, true
		}
	}
	switch h {
	case "worked", "what went well":
		return SectionWorked, true
	case "what didn't", "didn't work", "what did not work", "problems":
		return SectionDidNotWork, true
	case "workaround":
		return SectionWorkarounds, true
	case "dependencies", "dependency":
		return SectionDependencies, true
	case "pattern":
		return SectionPatterns, true
	case "suggestions", "next time":
		return SectionSuggestions, true
	}
	return "", false
}

// Fragment is a set of retrospective notes keyed by section, as reported
// by a provider for one task.
type Fragment map[Section][]string

// Empty reports whether the fragment carries no notes.
func (f Fragment) Empty() bool {
	for _, items := range f {
		if len(items) > 0 {
			return false
		}
	}
	return true
}

// Add appends a note, ignoring blanks and template placeholders.
func (f Fragment) Add(s Section, note string) {
	note = strings.TrimSpace(note)
	if note == "" || note == "..." {
		return
	}
	f[s] = append(f[s], note)
}

// Merge folds other into f, dropping notes f already has.
func (f Fragment) Merge(other Fragment) {
	for s, items := range other {
		for _, it := range items {
			if !containsNote(f[s], it) {
				f.Add(s, it)
			}
		}
	}
}

func containsNote(items []string, note string) bool {
	n := normalizeNote(note)
	for _, it := range items {
		if normalizeNote(it) == n {
			return true
		}
	}
	return false
}

func normalizeNote(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ParseFragment reads bulleted notes grouped under headings of any level
// (## or ###). Unknown headings end the current section.
func ParseFragment(text string) Fragment {
	f := Fragment{}
	var current Section
	active := false

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			s, ok := sectionFor(strings.TrimLeft(line, "# "))
			current, active = s, ok
			continue
		}
		if !active {
			continue
		}
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			f.Add(current, line[2:])
		}
	}
	return f
}

// Render writes the fragment as markdown with one `##` heading per
// non-empty section, in document order.
func (f Fragment) Render() string {
	var b strings.Builder
	for _, s := range Sections {
		items := f[s]
		if len(items) == 0 {
			continue
		}
		b.WriteString("## ")
		b.WriteString(string(s))
		b.WriteString("\n\n")
		for _, it := range items {
			b.WriteString("- ")
			b.WriteString(it)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// sortedSections returns the fragment's keys in document order, including
// unknown keys last.
func (f Fragment) sortedSections() []Section {
	order := make(map[Section]int, len(Sections))
	for i, s := range Sections {
		order[s] = i
	}
	keys := make([]Section, 0, len(f))
	for s := range f {
		keys = append(keys, s)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := order[keys[i]]
		oj, jok := order[keys[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok:
			return true
		case jok:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}
