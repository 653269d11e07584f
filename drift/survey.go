package drift

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dependency is one declared dependency of the project.
type Dependency struct {
	Ecosystem string `yaml:"ecosystem"` // go, npm, cargo, pypi
	Name      string `yaml:"name"`
	Version   string `yaml:"version,omitempty"`
	Major     string `yaml:"major,omitempty"` // v2, 1, ...
	Manifest  string `yaml:"manifest"`        // file that declared it
}

func (d Dependency) key() string {
	return d.Ecosystem + ":" + d.Name
}

// Marker is a detected structural trait with the path that evidences it.
type Marker struct {
	Name     string `yaml:"name"`
	Evidence string `yaml:"evidence"`
}

// Survey is a snapshot of project structure used for drift comparison.
type Survey struct {
	Generated    time.Time    `yaml:"generated"`
	Head         string       `yaml:"head,omitempty"`
	Languages    []string     `yaml:"languages"`
	Frameworks   []string     `yaml:"frameworks,omitempty"`
	Dependencies []Dependency `yaml:"dependencies"`
	Directories  []string     `yaml:"directories"`
	Architecture []Marker     `yaml:"architecture"`
	Security     []Marker     `yaml:"security"`
	Testing      []Marker     `yaml:"testing"`
	CI           []Marker     `yaml:"ci,omitempty"`
}

// Clone returns a deep copy of s.
func (s *Survey) Clone() *Survey {
	cp := *s
	cp.Languages = append([]string(nil), s.Languages...)
	cp.Frameworks = append([]string(nil), s.Frameworks...)
	cp.Dependencies = append([]Dependency(nil), s.Dependencies...)
	cp.Directories = append([]string(nil), s.Directories...)
	cp.Architecture = append([]Marker(nil), s.Architecture...)
	cp.Security = append([]Marker(nil), s.Security...)
	cp.Testing = append([]Marker(nil), s.Testing...)
	cp.CI = append([]Marker(nil), s.CI...)
	return &cp
}

// normalize sorts every list so encoding and comparison are stable.
func (s *Survey) normalize() {
	sort.Strings(s.Languages)
	sort.Strings(s.Frameworks)
	sort.Strings(s.Directories)
	sort.Slice(s.Dependencies, func(i, j int) bool {
		return s.Dependencies[i].key() < s.Dependencies[j].key()
	})
	for _, ms := range [][]Marker{s.Architecture, s.Security, s.Testing, s.CI} {
		sort.Slice(ms, func(i, j int) bool {
			if ms[i].Name != ms[j].Name {
				return ms[i].Name < ms[j].Name
			}
			return ms[i].Evidence < ms[j].Evidence
		})
	}
}

const dataFence = "```yaml"

// Encode renders the survey as a markdown document: readable summary
// sections followed by a YAML data block that Decode reads back.
func (s *Survey) Encode() ([]byte, error) {
	s = s.Clone()
	s.normalize()
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode survey: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("# Codebase Survey\n\n")
	b.WriteString("## Languages\n\n")
	writeList(&b, s.Languages)
	b.WriteString("## Dependencies\n\n")
	deps := make([]string, len(s.Dependencies))
	for i, d := range s.Dependencies {
		deps[i] = fmt.Sprintf("%s %s %s", d.Ecosystem, d.Name, d.Version)
	}
	writeList(&b, deps)
	b.WriteString("## Layout\n\n")
	writeList(&b, s.Directories)
	for _, sec := range []struct {
		title   string
		markers []Marker
	}{
		{"Architecture", s.Architecture},
		{"Security", s.Security},
		{"Testing", s.Testing},
		{"CI", s.CI},
	} {
		fmt.Fprintf(&b, "## %s\n\n", sec.title)
		names := make([]string, len(sec.markers))
		for i, m := range sec.markers {
			names[i] = m.Name + " (" + m.Evidence + ")"
		}
		writeList(&b, names)
	}
	b.WriteString("## Data\n\n")
	b.WriteString(dataFence + "\n")
	b.Write(data)
	b.WriteString("```\n")
	return b.Bytes(), nil
}

func writeList(b *bytes.Buffer, items []string) {
	if len(items) == 0 {
		b.WriteString("- none\n\n")
		return
	}
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(it))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// DecodeSurvey reads a document produced by Encode.
func DecodeSurvey(doc []byte) (*Survey, error) {
	text := string(doc)
	start := strings.Index(text, dataFence+"\n")
	if start < 0 {
		return nil, fmt.Errorf("%w: no data block", ErrInvalidSurvey)
	}
	rest := text[start+len(dataFence)+1:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated data block", ErrInvalidSurvey)
	}

	var s Survey
	if err := yaml.Unmarshal([]byte(rest[:end]), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSurvey, err)
	}
	s.normalize()
	return &s, nil
}
