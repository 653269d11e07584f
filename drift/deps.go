package drift

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
)

// manifestParser reads one manifest file into dependencies.
type manifestParser func(name string, data []byte) ([]Dependency, error)

var manifestParsers = map[string]manifestParser{
	"go.mod":           parseGoMod,
	"package.json":     parsePackageJSON,
	"Cargo.toml":       parseCargoToml,
	"pyproject.toml":   parsePyproject,
	"requirements.txt": parseRequirements,
}

// readDependencies parses every known manifest at the project root.
// Missing manifests are skipped; unreadable ones are errors.
func readDependencies(root string) ([]Dependency, error) {
	var deps []Dependency
	for name, parse := range manifestParsers {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		found, err := parse(name, data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		deps = append(deps, found...)
	}
	return deps, nil
}

// parseGoMod records direct requirements. The major version comes from the
// module path suffix (/v2) when present, else from the semver.
func parseGoMod(name string, data []byte) ([]Dependency, error) {
	f, err := modfile.ParseLax(name, data, nil)
	if err != nil {
		return nil, err
	}
	var deps []Dependency
	for _, r := range f.Require {
		if r.Indirect {
			continue
		}
		major := semver.Major(r.Mod.Version)
		if _, pathMajor, ok := module.SplitPathVersion(r.Mod.Path); ok && pathMajor != "" {
			major = strings.TrimPrefix(pathMajor, "/")
			major = strings.TrimPrefix(major, ".") // gopkg.in/yaml.v3
		}
		deps = append(deps, Dependency{
			Ecosystem: "go",
			Name:      r.Mod.Path,
			Version:   r.Mod.Version,
			Major:     major,
			Manifest:  name,
		})
	}
	return deps, nil
}

func parsePackageJSON(name string, data []byte) ([]Dependency, error) {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	var deps []Dependency
	for _, m := range []map[string]string{pkg.Dependencies, pkg.DevDependencies} {
		for n, v := range m {
			deps = append(deps, Dependency{
				Ecosystem: "npm",
				Name:      n,
				Version:   v,
				Major:     leadingMajor(v),
				Manifest:  name,
			})
		}
	}
	return deps, nil
}

func parseCargoToml(name string, data []byte) ([]Dependency, error) {
	var manifest struct {
		Dependencies    map[string]any `toml:"dependencies"`
		DevDependencies map[string]any `toml:"dev-dependencies"`
	}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	var deps []Dependency
	for _, m := range []map[string]any{manifest.Dependencies, manifest.DevDependencies} {
		for n, spec := range m {
			var v string
			switch s := spec.(type) {
			case string:
				v = s
			case map[string]any:
				v, _ = s["version"].(string)
			}
			deps = append(deps, Dependency{
				Ecosystem: "cargo",
				Name:      n,
				Version:   v,
				Major:     leadingMajor(v),
				Manifest:  name,
			})
		}
	}
	return deps, nil
}

func parsePyproject(name string, data []byte) ([]Dependency, error) {
	var manifest struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	var deps []Dependency
	for _, req := range manifest.Project.Dependencies {
		if d, ok := parsePythonRequirement(req, name); ok {
			deps = append(deps, d)
		}
	}
	for n, spec := range manifest.Tool.Poetry.Dependencies {
		if strings.EqualFold(n, "python") {
			continue
		}
		v, _ := spec.(string)
		deps = append(deps, Dependency{
			Ecosystem: "pypi",
			Name:      strings.ToLower(n),
			Version:   v,
			Major:     leadingMajor(v),
			Manifest:  name,
		})
	}
	return deps, nil
}

func parseRequirements(name string, data []byte) ([]Dependency, error) {
	var deps []Dependency
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if d, ok := parsePythonRequirement(line, name); ok {
			deps = append(deps, d)
		}
	}
	return deps, nil
}

var pythonReqPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(?:\[[^\]]*\])?\s*(.*)$`)

func parsePythonRequirement(req, manifest string) (Dependency, bool) {
	if i := strings.Index(req, ";"); i >= 0 {
		req = req[:i]
	}
	m := pythonReqPattern.FindStringSubmatch(strings.TrimSpace(req))
	if m == nil {
		return Dependency{}, false
	}
	v := strings.TrimSpace(m[2])
	return Dependency{
		Ecosystem: "pypi",
		Name:      strings.ToLower(m[1]),
		Version:   v,
		Major:     leadingMajor(v),
		Manifest:  manifest,
	}, true
}

var leadingDigits = regexp.MustCompile(`\d+`)

// leadingMajor extracts the first number of a version constraint
// ("^4.2.0" -> "4", ">=2,<3" -> "2"). Empty when there is none.
func leadingMajor(v string) string {
	return leadingDigits.FindString(v)
}
