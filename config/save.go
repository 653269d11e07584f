package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveConfig writes configuration values back to the config files.
// Dotted keys are stored nested: "review.platform" becomes
//
//	review:
//	  platform: gitlab
type SaveConfig struct {
	GlobalConfigDir  string
	GlobalConfigFile string // defaults to "config.yaml"
	LocalConfigName  string
	ValidGlobalKeys  []string
	ValidLocalKeys   []string
}

func (c SaveConfig) globalConfigFile() string {
	if c.GlobalConfigFile != "" {
		return c.GlobalConfigFile
	}
	return "config.yaml"
}

// GlobalPath returns the global config file path.
func (c SaveConfig) GlobalPath() (string, error) {
	if c.GlobalConfigDir == "" {
		return "", fmt.Errorf("global config directory not configured")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", c.GlobalConfigDir, c.globalConfigFile()), nil
}

// SaveGlobal saves a key-value pair to the global config file.
func (c SaveConfig) SaveGlobal(key, value string) error {
	if err := validateKey("global", key, c.ValidGlobalKeys); err != nil {
		return err
	}
	path, err := c.GlobalPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	// Global config may hold tokens.
	return updateFile(path, 0o600, func(m map[string]any) { setNested(m, key, parseValue(value)) })
}

// SaveLocal saves a key-value pair to the local config file in the git root.
func (c SaveConfig) SaveLocal(gitRoot, key, value string) error {
	if gitRoot == "" {
		return fmt.Errorf("git root not found")
	}
	if c.LocalConfigName == "" {
		return fmt.Errorf("local config name not configured")
	}
	if err := validateKey("local", key, c.ValidLocalKeys); err != nil {
		return err
	}
	path := filepath.Join(gitRoot, c.LocalConfigName)
	return updateFile(path, 0o644, func(m map[string]any) { setNested(m, key, parseValue(value)) })
}

// DeleteGlobalKey removes a key from the global config. A missing file is
// not an error.
func (c SaveConfig) DeleteGlobalKey(key string) error {
	path, err := c.GlobalPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return updateFile(path, 0o600, func(m map[string]any) { deleteNested(m, key) })
}

func validateKey(scope, key string, valid []string) error {
	if len(valid) > 0 && !contains(valid, key) {
		return fmt.Errorf("unknown %s config key: %s\n\nValid keys: %s", scope, key, strings.Join(valid, ", "))
	}
	return nil
}

// updateFile loads the YAML map at path (an unreadable or malformed file
// starts empty), applies fn and writes it back.
func updateFile(path string, perm os.FileMode, fn func(map[string]any)) error {
	var existing map[string]any
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &existing)
	}
	if existing == nil {
		existing = make(map[string]any)
	}
	fn(existing)

	data, err := yaml.Marshal(existing)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

func setNested(m map[string]any, key string, value any) {
	// A flat "review.platform" entry would shadow the nested one.
	delete(m, key)
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func deleteNested(m map[string]any, key string) {
	delete(m, key)
	parts := strings.Split(key, ".")
	parents := []map[string]any{m}
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			return
		}
		m = next
		parents = append(parents, m)
	}
	delete(m, parts[len(parts)-1])
	// Drop sections left empty.
	for i := len(parents) - 1; i > 0; i-- {
		if len(parents[i]) > 0 {
			break
		}
		delete(parents[i-1], parts[i-1])
	}
}

// parseValue converts string values to appropriate types for YAML.
func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}
