package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/provider"
)

const (
	// PolicyFile is the policy location relative to the project root.
	PolicyFile = ".phaseflow/policy.yaml"

	// PolicyEnvPrefix prefixes environment overrides of policy values,
	// e.g. PHASEFLOW_POLICY_DRIFT_THRESHOLDS_ALERT=6.
	PolicyEnvPrefix = "PHASEFLOW_POLICY_"

	maxPolicySize = 1024 * 1024
)

// AgentProvider is the provider name that routing rules use for the LLM
// agent.
const AgentProvider = "agent"

// Policy is the structured project policy: drift scoring, provider
// routing, gate checks and memory promotion.
type Policy struct {
	Drift    DriftPolicy                `koanf:"drift"`
	Routes   []provider.Rule            `koanf:"routes"`
	Commands map[string]CommandProvider `koanf:"commands"`
	Checks   CheckPolicy                `koanf:"checks"`
	Memory   MemoryPolicy               `koanf:"memory"`
}

// DriftPolicy overrides drift weights and thresholds.
type DriftPolicy struct {
	Weights    drift.Weights    `koanf:"weights"`
	Thresholds drift.Thresholds `koanf:"thresholds"`
}

// CommandProvider declares a program run as a capability provider.
// Args may reference $TASK_ID and $PATHS.
type CommandProvider struct {
	Program string   `koanf:"program"`
	Args    []string `koanf:"args"`
}

// CheckPolicy lists the commands a phase gate runs before committing and
// before pushing. Secrets enables the secret scan on staged files.
type CheckPolicy struct {
	PreCommit []string `koanf:"pre_commit"`
	PrePush   []string `koanf:"pre_push"`
	Secrets   bool     `koanf:"secrets"`
}

// MemoryPolicy configures promotion of retrospective notes.
type MemoryPolicy struct {
	DenyMarkers []string `koanf:"deny_markers"`
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Drift: DriftPolicy{
			Weights:    drift.DefaultWeights(),
			Thresholds: drift.DefaultThresholds(),
		},
		Checks: CheckPolicy{Secrets: true},
	}
}

// LoadPolicy loads <root>/.phaseflow/policy.yaml over the defaults, then
// applies PHASEFLOW_POLICY_* overrides. A missing file is not an error.
func LoadPolicy(root string) (*Policy, error) {
	k := koanf.New(".")

	path := filepath.Join(root, PolicyFile)
	data, err := readPolicyFile(path)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load policy %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(PolicyEnvPrefix, ".", policyEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load policy environment: %w", err)
	}

	p := DefaultPolicy()
	if err := k.Unmarshal("", p); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy %s: %w", path, err)
	}
	return p, nil
}

func readPolicyFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy: %w", err)
	}
	if info.Size() > maxPolicySize {
		return nil, fmt.Errorf("policy %s exceeds %d bytes", path, maxPolicySize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return data, nil
}

// policyEnvKey maps PHASEFLOW_POLICY_DRIFT_WEIGHTS_NEW_MAJOR_DEPENDENCY to
// drift.weights.new_major_dependency and PHASEFLOW_POLICY_CHECKS_PRE_COMMIT
// to checks.pre_commit. Drift keys are three levels deep; every other
// section has two. Comma separated values become lists.
func policyEnvKey(key, value string) (string, any) {
	lower := strings.ToLower(strings.TrimPrefix(key, PolicyEnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower, value
	}
	section, field := parts[0], parts[1]
	if section == "drift" {
		if sub := strings.SplitN(field, "_", 2); len(sub) == 2 {
			field = sub[0] + "." + sub[1]
		}
	}

	path := section + "." + field
	switch path {
	case "checks.pre_commit", "checks.pre_push":
		// Commands contain spaces and commas; one per semicolon.
		return path, splitOn(value, ";")
	case "memory.deny_markers":
		return path, splitOn(value, ",")
	}
	return path, value
}

func splitOn(v, sep string) []string {
	var out []string
	for _, part := range strings.Split(v, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports inconsistent settings.
func (p *Policy) Validate() error {
	var errs []error
	t := p.Drift.Thresholds
	if t.Alert <= 0 || t.Critical <= t.Alert {
		errs = append(errs, fmt.Errorf("drift thresholds: need 0 < alert < critical, got alert=%d critical=%d", t.Alert, t.Critical))
	}
	w := p.Drift.Weights
	for name, v := range map[string]int{
		"new_major_dependency":  w.NewMajorDependency,
		"directory_restructure": w.DirectoryRestructure,
		"architecture_change":   w.ArchitectureChange,
		"security_model_change": w.SecurityModelChange,
		"test_strategy_change":  w.TestStrategyChange,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("drift weight %s is negative", name))
		}
	}
	for name, c := range p.Commands {
		if name == AgentProvider {
			errs = append(errs, fmt.Errorf("command provider %q shadows the agent", name))
		}
		if c.Program == "" {
			errs = append(errs, fmt.Errorf("command provider %q has no program", name))
		}
	}
	for i, r := range p.Routes {
		if r.Provider == "" {
			errs = append(errs, fmt.Errorf("route %d has no provider", i+1))
			continue
		}
		if _, ok := p.Commands[r.Provider]; !ok && r.Provider != AgentProvider {
			errs = append(errs, fmt.Errorf("route %d names unknown provider %q", i+1, r.Provider))
		}
	}
	return errors.Join(errs...)
}

// Comparator returns a drift comparator using the policy's scoring.
func (p *Policy) Comparator() *drift.Comparator {
	return &drift.Comparator{Weights: p.Drift.Weights, Thresholds: p.Drift.Thresholds}
}
