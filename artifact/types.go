package artifact

import (
	"bufio"
	"bytes"
	"strings"
	"time"
)

// Kind identifies the type of document an artifact holds.
type Kind string

const (
	KindSpecification  Kind = "spec"
	KindPlan           Kind = "plan"
	KindTaskList       Kind = "tasks"
	KindCodebaseSurvey Kind = "survey"
	KindRetrospective  Kind = "retro"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSpecification, KindPlan, KindTaskList, KindCodebaseSurvey, KindRetrospective:
		return true
	}
	return false
}

// Status is the lifecycle status of one artifact version.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
)

// Ref addresses an artifact independent of version.
//
// Feature is empty for project-level artifacts (codebase surveys).
// Name distinguishes several documents of one kind within a feature;
// retrospectives use the phase key, everything else leaves it empty.
type Ref struct {
	Feature string
	Kind    Kind
	Name    string
}

func (r Ref) String() string {
	s := string(r.Kind)
	if r.Name != "" {
		s += "/" + r.Name
	}
	if r.Feature != "" {
		s = r.Feature + ":" + s
	}
	return s
}

// Artifact is a single stored version of a document.
type Artifact struct {
	Ref
	Version  int
	Status   Status
	Created  time.Time
	Checksum string
	Body     []byte
	Path     string
}

// Section is a named `##` section of an artifact body.
type Section struct {
	Name string
	Body string
}

// Sections splits the body on level-two markdown headings.
// Text before the first heading is returned under the empty name.
func (a *Artifact) Sections() []Section {
	return ParseSections(a.Body)
}

// Section returns the named section, matching case-insensitively.
func (a *Artifact) Section(name string) (Section, bool) {
	for _, s := range a.Sections() {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Section{}, false
}

// ParseSections splits markdown on `## ` headings.
func ParseSections(body []byte) []Section {
	var (
		sections []Section
		current  = Section{}
		buf      strings.Builder
	)
	flush := func() {
		current.Body = strings.TrimSpace(buf.String())
		if current.Name != "" || current.Body != "" {
			sections = append(sections, current)
		}
		buf.Reset()
	}

	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "## ") {
			flush()
			current = Section{Name: strings.TrimSpace(strings.TrimPrefix(line, "## "))}
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()
	return sections
}

// Feature is a tracked unit of work with its own artifact directory.
type Feature struct {
	ID     string // NNN-slug
	Number int
	Name   string
	Dir    string
}
