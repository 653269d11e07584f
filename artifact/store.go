package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/phaseflow/git"
)

const (
	featuresDir = "features"
	surveyDir   = "survey"
	archiveDir  = "archive"
	retroDir    = "retro"
)

var featureDirPattern = regexp.MustCompile(`^(\d{3})-(.+)$`)

// Store persists versioned artifacts. It is the only writer of artifact
// files; every version is its own file so superseding keeps history.
//
// Layout under the state directory:
//
//	features/NNN-slug/<kind>.vN.md
//	features/NNN-slug/retro/<phase>.vN.md
//	survey/<name>.vN.md
//	archive/NNN-slug.tar.gz
type Store struct {
	mu     sync.Mutex
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for version changes.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore opens (creating if needed) a store rooted at dir.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		root:   dir,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, sub := range []string{featuresDir, surveyDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return s, nil
}

// Root returns the state directory.
func (s *Store) Root() string {
	return s.root
}

// CreateFeature allocates the next sequential feature number and
// creates the NNN-slug directory.
func (s *Store) CreateFeature(name string) (*Feature, error) {
	slug := git.Slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("%w: feature name %q has no usable characters", ErrInvalidRef, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	features, err := s.listFeatures()
	if err != nil {
		return nil, err
	}
	next := 1
	for _, f := range features {
		if f.Number >= next {
			next = f.Number + 1
		}
	}

	id := fmt.Sprintf("%03d-%s", next, slug)
	dir := filepath.Join(s.root, featuresDir, id)
	if err := os.MkdirAll(filepath.Join(dir, retroDir), 0o755); err != nil {
		return nil, fmt.Errorf("create feature dir: %w", err)
	}

	s.logger.Info("feature created", "feature", id)
	return &Feature{ID: id, Number: next, Name: name, Dir: dir}, nil
}

// Feature looks up a feature by full id (001-slug) or number prefix (001).
func (s *Store) Feature(id string) (*Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	features, err := s.listFeatures()
	if err != nil {
		return nil, err
	}
	for _, f := range features {
		if f.ID == id || fmt.Sprintf("%03d", f.Number) == id {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, id)
}

// ListFeatures returns all features ordered by number.
func (s *Store) ListFeatures() ([]*Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listFeatures()
}

func (s *Store) listFeatures() ([]*Feature, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, featuresDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var features []*Feature
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := featureDirPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		features = append(features, &Feature{
			ID:     e.Name(),
			Number: n,
			Name:   m[2],
			Dir:    filepath.Join(s.root, featuresDir, e.Name()),
		})
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Number < features[j].Number })
	return features, nil
}

// Put writes body as the next version of ref. Writing with StatusActive
// supersedes the previously active version.
func (s *Store) Put(ref Ref, body []byte, status Status) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, base, err := s.locate(ref)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	versions, err := s.history(ref)
	if err != nil {
		return nil, err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1].Version + 1
	}

	a := &Artifact{
		Ref:     ref,
		Version: next,
		Status:  status,
		Created: s.now(),
		Body:    body,
		Path:    filepath.Join(dir, fmt.Sprintf("%s.v%d.md", base, next)),
	}
	if status == StatusActive {
		if err := s.supersede(versions); err != nil {
			return nil, err
		}
	}
	if err := s.write(a); err != nil {
		return nil, err
	}

	s.logger.Info("artifact written", "ref", ref.String(), "version", next, "status", status)
	return a, nil
}

// UpdateDraft rewrites the body of a draft version in place.
func (s *Store) UpdateDraft(ref Ref, version int, body []byte) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.get(ref, version)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusDraft {
		return nil, fmt.Errorf("%w: %s v%d is %s", ErrImmutable, ref, version, a.Status)
	}
	a.Body = body
	if err := s.write(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Activate makes version the active one, superseding any other active version.
func (s *Store) Activate(ref Ref, version int) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.history(ref)
	if err != nil {
		return nil, err
	}
	var target *Artifact
	for _, v := range versions {
		if v.Version == version {
			target = v
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s v%d", ErrNotFound, ref, version)
	}
	if target.Status == StatusActive {
		return target, nil
	}
	if target.Status == StatusSuperseded {
		return nil, fmt.Errorf("%w: %s v%d is superseded", ErrImmutable, ref, version)
	}

	if err := s.supersede(versions); err != nil {
		return nil, err
	}
	target.Status = StatusActive
	if err := s.write(target); err != nil {
		return nil, err
	}
	s.logger.Info("artifact activated", "ref", ref.String(), "version", version)
	return target, nil
}

// Active returns the active version of ref.
func (s *Store) Active(ref Ref) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.history(ref)
	if err != nil {
		return nil, err
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Status == StatusActive {
			return versions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no active %s", ErrNotFound, ref)
}

// Latest returns the highest version of ref regardless of status.
func (s *Store) Latest(ref Ref) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.history(ref)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return versions[len(versions)-1], nil
}

// Get loads one version of ref.
func (s *Store) Get(ref Ref, version int) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ref, version)
}

// History returns every stored version of ref in version order.
func (s *Store) History(ref Ref) ([]*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history(ref)
}

// Names lists the distinct names stored for a kind within a feature,
// e.g. the phase keys of its retrospectives.
func (s *Store) Names(feature string, kind Kind) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, base, err := s.locate(Ref{Feature: feature, Kind: kind, Name: "x"})
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, e := range entries {
		name, _, ok := splitVersioned(e.Name())
		if !ok || seen[name] {
			continue
		}
		// Specs, plans and task lists share the feature directory.
		if kind != KindRetrospective && kind != KindCodebaseSurvey && name != base {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) get(ref Ref, version int) (*Artifact, error) {
	dir, base, err := s.locate(ref)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.v%d.md", base, version))
	return s.read(path)
}

func (s *Store) history(ref Ref) ([]*Artifact, error) {
	dir, base, err := s.locate(ref)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var versions []*Artifact
	for _, e := range entries {
		name, _, ok := splitVersioned(e.Name())
		if !ok || name != base {
			continue
		}
		a, err := s.read(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		versions = append(versions, a)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}

func (s *Store) supersede(versions []*Artifact) error {
	for _, v := range versions {
		if v.Status != StatusActive {
			continue
		}
		v.Status = StatusSuperseded
		if err := s.write(v); err != nil {
			return fmt.Errorf("supersede %s v%d: %w", v.Ref, v.Version, err)
		}
	}
	return nil
}

// locate maps a ref to its directory and file base name.
func (s *Store) locate(ref Ref) (dir, base string, err error) {
	if !ref.Kind.Valid() {
		return "", "", fmt.Errorf("%w: kind %q", ErrInvalidRef, ref.Kind)
	}
	switch ref.Kind {
	case KindCodebaseSurvey:
		base = ref.Name
		if base == "" {
			base = "codebase"
		}
		return filepath.Join(s.root, surveyDir), base, nil
	case KindRetrospective:
		if ref.Feature == "" || ref.Name == "" {
			return "", "", fmt.Errorf("%w: retrospective needs feature and phase", ErrInvalidRef)
		}
		return filepath.Join(s.root, featuresDir, ref.Feature, retroDir), ref.Name, nil
	default:
		if ref.Feature == "" {
			return "", "", fmt.Errorf("%w: %s needs a feature", ErrInvalidRef, ref.Kind)
		}
		dir = filepath.Join(s.root, featuresDir, ref.Feature)
		if _, err := os.Stat(dir); err != nil {
			return "", "", fmt.Errorf("%w: %s", ErrFeatureNotFound, ref.Feature)
		}
		return dir, string(ref.Kind), nil
	}
}

func (s *Store) read(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	a, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	a.Path = path
	return a, nil
}

// write replaces the file atomically through a temp file and rename.
func (s *Store) write(a *Artifact) error {
	data, err := encode(a)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(a.Path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), a.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename artifact: %w", err)
	}
	a.Checksum = checksum(a.Body)
	return nil
}

// splitVersioned parses "<base>.vN.md".
func splitVersioned(file string) (base string, version int, ok bool) {
	if !strings.HasSuffix(file, ".md") {
		return "", 0, false
	}
	stem := strings.TrimSuffix(file, ".md")
	i := strings.LastIndex(stem, ".v")
	if i <= 0 {
		return "", 0, false
	}
	v, err := strconv.Atoi(stem[i+2:])
	if err != nil || v < 1 {
		return "", 0, false
	}
	return stem[:i], v, true
}
