package retro

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/randalmurphal/phaseflow/artifact"
	"github.com/randalmurphal/phaseflow/git"
)

// DefaultDenyMarkers flag notes that describe a local fix rather than a
// lasting lesson. Such notes are never promoted.
var DefaultDenyMarkers = []string{"workaround", "temporary", "hack", "todo", "fixme"}

// Item is one note selected for promotion.
type Item struct {
	ID      string
	Section Section
	Text    string
	Source  string // feature and phase the note came from
}

// Config configures an Aggregator.
type Config struct {
	// Store holds the retrospective artifacts.
	Store *artifact.Store

	// MemoryPath is the project memory file. Defaults to memory.md in the
	// store root.
	MemoryPath string

	// DenyMarkers override DefaultDenyMarkers when non-empty.
	DenyMarkers []string

	Logger *slog.Logger
}

// Aggregator collects per-phase retrospectives and promotes a curated
// subset into project memory. Project memory never flows back into a
// retrospective.
type Aggregator struct {
	store  *artifact.Store
	memory string
	deny   []string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.Store == nil {
		return nil, errors.New("retro: store is required")
	}
	a := &Aggregator{
		store:  cfg.Store,
		memory: cfg.MemoryPath,
		deny:   cfg.DenyMarkers,
		logger: cfg.Logger,
	}
	if a.memory == "" {
		a.memory = filepath.Join(cfg.Store.Root(), "memory.md")
	}
	if len(a.deny) == 0 {
		a.deny = DefaultDenyMarkers
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// MemoryPath returns the project memory file location.
func (a *Aggregator) MemoryPath() string { return a.memory }

// PhaseKey names the retrospective of a phase: "02-foundational".
func PhaseKey(index int, name string) string {
	slug := git.Slugify(name)
	if slug == "" {
		slug = "phase"
	}
	return fmt.Sprintf("%02d-%s", index, slug)
}

func ref(feature string, index int, name string) artifact.Ref {
	return artifact.Ref{Feature: feature, Kind: artifact.KindRetrospective, Name: PhaseKey(index, name)}
}

// Begin creates an empty draft retrospective for the phase if none exists.
func (a *Aggregator) Begin(feature string, index int, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := ref(feature, index, name)
	if _, err := a.store.Latest(r); err == nil {
		return nil
	} else if !errors.Is(err, artifact.ErrNotFound) {
		return err
	}
	body := header(index, name)
	if _, err := a.store.Put(r, []byte(body), artifact.StatusDraft); err != nil {
		return fmt.Errorf("begin retrospective: %w", err)
	}
	return nil
}

func header(index int, name string) string {
	return fmt.Sprintf("# Retrospective: Phase %d %s\n\n", index, name)
}

// Load returns the current notes of a phase retrospective.
func (a *Aggregator) Load(feature string, index int, name string) (Fragment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, frag, err := a.load(ref(feature, index, name))
	return frag, err
}

func (a *Aggregator) load(r artifact.Ref) (*artifact.Artifact, Fragment, error) {
	art, err := a.store.Latest(r)
	if err != nil {
		return nil, nil, err
	}
	return art, ParseFragment(string(art.Body)), nil
}

// Append merges provider notes into the phase retrospective. A draft is
// updated in place; once the retrospective is active a new draft version
// is written on top of it.
func (a *Aggregator) Append(feature string, index int, name string, frag Fragment) error {
	if frag.Empty() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	r := ref(feature, index, name)
	art, cur, err := a.load(r)
	if errors.Is(err, artifact.ErrNotFound) {
		cur = Fragment{}
	} else if err != nil {
		return err
	}
	cur.Merge(frag)
	body := []byte(header(index, name) + cur.Render())

	if art != nil && art.Status == artifact.StatusDraft {
		_, err = a.store.UpdateDraft(r, art.Version, body)
	} else {
		_, err = a.store.Put(r, body, artifact.StatusDraft)
	}
	if err != nil {
		return fmt.Errorf("append retrospective: %w", err)
	}
	return nil
}

var pathLike = regexp.MustCompile(`(?:^|[\s(` + "`" + `'"])(?:\.{0,2}/)?[\w@.-]+/[\w@./-]*|\b[\w-]{2,}\.(?:go|py|rs|ts|tsx|js|jsx|md|yaml|yml|toml|json|sql|sh|mod)\b`)

// universal reports whether a note is free of file references and deny
// markers.
func (a *Aggregator) universal(note string) bool {
	if pathLike.MatchString(note) {
		return false
	}
	lower := strings.ToLower(note)
	for _, m := range a.deny {
		if strings.Contains(lower, strings.ToLower(m)) {
			return false
		}
	}
	return true
}

// Promote copies the universal notes of a phase retrospective into project
// memory and activates the retrospective. Only notes that reference no file
// path, carry no deny marker and are not already in memory are promoted;
// anything in doubt stays behind.
func (a *Aggregator) Promote(feature string, index int, name string) ([]Item, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := ref(feature, index, name)
	art, frag, err := a.load(r)
	if errors.Is(err, artifact.ErrNotFound) {
		// No task left notes in this phase.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	mem, err := readMemory(a.memory)
	if err != nil {
		return nil, err
	}

	source := fmt.Sprintf("%s phase %d", feature, index)
	var promoted []Item
	for _, s := range frag.sortedSections() {
		// Workarounds are local by definition.
		if s == SectionWorkarounds {
			continue
		}
		for _, note := range frag[s] {
			if !a.universal(note) || mem.has(note) {
				continue
			}
			it := Item{ID: uuid.NewString(), Section: s, Text: note, Source: source}
			mem.add(it)
			promoted = append(promoted, it)
		}
	}

	if len(promoted) > 0 {
		if err := mem.write(a.memory); err != nil {
			return nil, err
		}
	}
	if art.Status == artifact.StatusDraft {
		if _, err := a.store.Activate(r, art.Version); err != nil {
			return promoted, err
		}
	}

	a.logger.Info("retrospective promoted",
		"feature", feature,
		"phase", index,
		"promoted", len(promoted))
	return promoted, nil
}

// Memory returns the current project memory notes by section.
func (a *Aggregator) Memory() (Fragment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	mem, err := readMemory(a.memory)
	if err != nil {
		return nil, err
	}
	return mem.notes, nil
}

// memory is the parsed project memory file.
type memory struct {
	notes Fragment
	lines map[Section][]string // rendered lines including provenance
}

var provenance = regexp.MustCompile(`\s*<!--.*?-->\s*$`)

func readMemory(path string) (*memory, error) {
	m := &memory{notes: Fragment{}, lines: map[Section][]string{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("read project memory: %w", err)
	}

	var current Section
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			current = Section(strings.TrimSpace(trimmed[3:]))
			continue
		}
		if current == "" || !strings.HasPrefix(trimmed, "- ") {
			continue
		}
		m.lines[current] = append(m.lines[current], trimmed)
		m.notes.Add(current, provenance.ReplaceAllString(trimmed[2:], ""))
	}
	return m, nil
}

func (m *memory) has(note string) bool {
	for _, items := range m.notes {
		if containsNote(items, note) {
			return true
		}
	}
	return false
}

func (m *memory) add(it Item) {
	m.notes.Add(it.Section, it.Text)
	m.lines[it.Section] = append(m.lines[it.Section],
		fmt.Sprintf("- %s <!-- %s from %s -->", it.Text, it.ID, it.Source))
}

func (m *memory) write(path string) error {
	var b strings.Builder
	b.WriteString("# Project Memory\n\n")
	sections := Fragment{}
	for s := range m.lines {
		sections[s] = nil
	}
	for _, s := range sections.sortedSections() {
		lines := m.lines[s]
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", s)
		for _, l := range lines {
			b.WriteString(l)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write project memory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write project memory: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write project memory: %w", err)
	}
	return nil
}
