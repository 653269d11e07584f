package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed prompts/*.txt
var embedded embed.FS

// Template names shipped with the binary.
const (
	Execute = "execute" // system prompt of one agent task
	Summary = "summary" // review request description of a phase
)

// TaskVars fill the execute template.
type TaskVars struct {
	Feature      string
	TaskID       string
	Kind         string
	Phase        int
	PhaseName    string
	Paths        []string
	Technologies []string
}

// SummaryVars fill the summary template. Tasks and Skipped are
// preformatted lines.
type SummaryVars struct {
	Feature   string
	Phase     int
	PhaseName string
	Tasks     []string
	Skipped   []string
}

// Loader renders prompt templates, preferring project overrides in
// .phaseflow/prompts/ and prompts/ over the embedded copies. Parsed
// templates are cached, so a Loader may be shared by provider workers.
type Loader struct {
	dirs []string

	mu    sync.Mutex
	cache map[string]*template.Template
}

func NewLoader(projectDir string) *Loader {
	return &Loader{
		dirs: []string{
			filepath.Join(projectDir, ".phaseflow", "prompts"),
			filepath.Join(projectDir, "prompts"),
		},
		cache: make(map[string]*template.Template),
	}
}

// Task renders the execute template.
func (l *Loader) Task(v TaskVars) (string, error) {
	return l.LoadWithVars(Execute, v)
}

// PhaseSummary renders the summary template.
func (l *Loader) PhaseSummary(v SummaryVars) (string, error) {
	return l.LoadWithVars(Summary, v)
}

// Load renders a template with no data.
func (l *Loader) Load(name string) (string, error) {
	return l.LoadWithVars(name, nil)
}

// LoadWithVars renders the named template with data, a struct or map.
func (l *Loader) LoadWithVars(name string, data any) (string, error) {
	tmpl, err := l.template(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// Exists reports whether a template of that name can be found.
func (l *Loader) Exists(name string) bool {
	_, err := l.source(name)
	return err == nil
}

// List returns the sorted names of all templates, overrides included.
func (l *Loader) List() ([]string, error) {
	seen := make(map[string]bool)
	add := func(entries []fs.DirEntry) {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
				seen[strings.TrimSuffix(e.Name(), ".txt")] = true
			}
		}
	}
	for _, dir := range l.dirs {
		if entries, err := os.ReadDir(dir); err == nil {
			add(entries)
		}
	}
	entries, err := embedded.ReadDir("prompts")
	if err != nil {
		return nil, err
	}
	add(entries)

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (l *Loader) template(name string) (*template.Template, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tmpl, ok := l.cache[name]; ok {
		return tmpl, nil
	}
	text, err := l.source(name)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(name).Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	l.cache[name] = tmpl
	return tmpl, nil
}

func (l *Loader) source(name string) (string, error) {
	file := name + ".txt"
	for _, dir := range l.dirs {
		if data, err := os.ReadFile(filepath.Join(dir, file)); err == nil {
			return string(data), nil
		}
	}
	data, err := embedded.ReadFile("prompts/" + file)
	if err != nil {
		return "", fmt.Errorf("prompt not found: %s", name)
	}
	return string(data), nil
}

var funcs = template.FuncMap{
	"join":   strings.Join,
	"lower":  strings.ToLower,
	"title":  cases.Title(language.English).String,
	"indent": indent,
}

func indent(n int, s string) string {
	prefix := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

// Builder assembles a markdown prompt from sections.
type Builder struct {
	parts []string
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a paragraph.
func (b *Builder) Add(text string) *Builder {
	b.parts = append(b.parts, text)
	return b
}

// AddSection appends "## header" followed by content. Empty content is
// dropped.
func (b *Builder) AddSection(header, content string) *Builder {
	content = strings.TrimSpace(content)
	if content == "" {
		return b
	}
	b.parts = append(b.parts, "## "+header+"\n\n"+content)
	return b
}

// AddList appends a bulleted list under an optional header.
func (b *Builder) AddList(header string, items []string) *Builder {
	if len(items) == 0 {
		return b
	}
	var s strings.Builder
	if header != "" {
		s.WriteString("## " + header + "\n\n")
	}
	for _, it := range items {
		s.WriteString("- " + it + "\n")
	}
	b.parts = append(b.parts, s.String())
	return b
}

func (b *Builder) Build() string {
	return strings.Join(b.parts, "\n\n")
}
