package drift

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
)

// layoutDepth is how deep directories count toward the layout dimension.
const layoutDepth = 2

// Surveyor produces surveys of a project tree.
type Surveyor struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// SurveyorOption configures a Surveyor.
type SurveyorOption func(*Surveyor)

// WithSurveyLogger sets the logger.
func WithSurveyLogger(l *slog.Logger) SurveyorOption {
	return func(s *Surveyor) { s.logger = l }
}

// WithSurveyClock overrides the timestamp source.
func WithSurveyClock(now func() time.Time) SurveyorOption {
	return func(s *Surveyor) { s.now = now }
}

// NewSurveyor creates a surveyor rooted at the project directory.
func NewSurveyor(root string, opts ...SurveyorOption) *Surveyor {
	s := &Surveyor{root: root, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the surveyed directory.
func (s *Surveyor) Root() string { return s.root }

// Survey scans the project and returns a fresh snapshot.
func (s *Surveyor) Survey() (*Survey, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("survey %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("survey %s: not a directory", s.root)
	}

	deps, err := readDependencies(s.root)
	if err != nil {
		return nil, fmt.Errorf("survey dependencies: %w", err)
	}

	sv := &Survey{
		Generated:    s.now().UTC(),
		Head:         s.head(),
		Dependencies: deps,
	}

	langs := make(map[string]bool)
	extLangs := make(map[string]bool)
	for file, lang := range languageIndicators {
		if _, err := os.Stat(filepath.Join(s.root, file)); err == nil {
			langs[lang] = true
		}
	}

	arch := newMarkerSet()
	sec := newMarkerSet()
	tst := newMarkerSet()
	ci := newMarkerSet()

	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(s.root, path)
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if skipDirs[name] || (strings.HasPrefix(name, ".") && name != ".github" && name != ".circleci") {
				return filepath.SkipDir
			}
			if strings.Count(rel, "/") < layoutDepth && !strings.HasPrefix(rel, ".") {
				sv.Directories = append(sv.Directories, rel)
			}
		} else {
			if lang, ok := languageExtensions[filepath.Ext(name)]; ok {
				extLangs[lang] = true
			}
			for suffix, marker := range testFileSuffixes {
				if strings.HasSuffix(name, suffix) {
					tst.add(marker, filepath.ToSlash(filepath.Dir(rel)))
				}
			}
		}

		arch.matchPath(architecturePaths, name, rel, d.IsDir())
		sec.matchPath(securityPaths, name, rel, d.IsDir())
		tst.matchPath(testingPaths, name, rel, d.IsDir())
		ci.matchPath(ciPaths, name, rel, d.IsDir())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("survey walk: %w", err)
	}

	// Extension evidence only counts when no indicator file names the
	// language.
	if len(langs) == 0 {
		langs = extLangs
	}

	frameworks := make(map[string]bool)
	for _, dep := range deps {
		arch.matchDep(architectureDeps, dep)
		sec.matchDep(securityDeps, dep)
		tst.matchDep(testingDeps, dep)
		if fw, ok := frameworkDeps[dep.Name]; ok {
			frameworks[fw] = true
		}
	}

	sv.Languages = keys(langs)
	sv.Frameworks = keys(frameworks)
	sv.Architecture = arch.list()
	sv.Security = sec.list()
	sv.Testing = tst.list()
	sv.CI = ci.list()
	sv.normalize()

	s.logger.Debug("survey complete",
		"root", s.root,
		"head", sv.Head,
		"dependencies", len(sv.Dependencies),
		"directories", len(sv.Directories))
	return sv, nil
}

// head returns the current commit hash, or "" outside a repository.
func (s *Surveyor) head() string {
	repo, err := gogit.PlainOpenWithOptions(s.root, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	ref, err := repo.Head()
	if err != nil {
		return ""
	}
	return ref.Hash().String()
}

// markerSet collects markers, keeping the first evidence seen per name.
type markerSet struct {
	byName map[string]string
}

func newMarkerSet() *markerSet {
	return &markerSet{byName: make(map[string]string)}
}

func (m *markerSet) add(name, evidence string) {
	if _, ok := m.byName[name]; !ok {
		m.byName[name] = evidence
		return
	}
	// Prefer the shallowest evidence so the result does not depend on
	// walk order within a level.
	if cur := m.byName[name]; strings.Count(evidence, "/") < strings.Count(cur, "/") ||
		(strings.Count(evidence, "/") == strings.Count(cur, "/") && evidence < cur) {
		m.byName[name] = evidence
	}
}

func (m *markerSet) matchPath(rules []pathRule, name, rel string, isDir bool) {
	for _, r := range rules {
		if r.name == name && r.dir == isDir {
			m.add(r.marker, rel)
		}
	}
}

func (m *markerSet) matchDep(rules []depRule, dep Dependency) {
	lower := strings.ToLower(dep.Name)
	for _, r := range rules {
		if strings.Contains(lower, r.substr) {
			m.add(r.marker, dep.Manifest)
		}
	}
}

func (m *markerSet) list() []Marker {
	out := make([]Marker, 0, len(m.byName))
	for name, ev := range m.byName {
		out = append(out, Marker{Name: name, Evidence: ev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
