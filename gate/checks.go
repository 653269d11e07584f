package gate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Check is a pre-commit or pre-push check. Checks run against the
// repository through the VCS and never bypass hooks.
type Check interface {
	Name() string
	Run(ctx context.Context, vcs VCS, paths []string) error
}

// CommandCheck runs a configured command. An argument "$PATHS" expands
// to the paths under check.
type CommandCheck struct {
	Command string
	Args    []string
}

// ParseCommand splits a configured check line such as "go vet ./...".
func ParseCommand(line string) CommandCheck {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CommandCheck{}
	}
	return CommandCheck{Command: fields[0], Args: fields[1:]}
}

// Name implements Check.
func (c CommandCheck) Name() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// Run implements Check.
func (c CommandCheck) Run(ctx context.Context, vcs VCS, paths []string) error {
	var args []string
	for _, a := range c.Args {
		if a == "$PATHS" {
			args = append(args, paths...)
			continue
		}
		args = append(args, a)
	}
	out, err := vcs.Exec(c.Command, args...)
	if err != nil {
		return &CheckError{Check: c.Name(), Output: strings.TrimSpace(out), Err: err}
	}
	return nil
}

// maxScanSize bounds the files the secret scan reads.
const maxScanSize = 1 << 20

// SecretCheck scans staged files with the gitleaks default rule set.
type SecretCheck struct {
	Root string

	once     sync.Once
	detector *detect.Detector
	initErr  error
}

// NewSecretCheck creates a secret scan over files under root.
func NewSecretCheck(root string) *SecretCheck {
	return &SecretCheck{Root: root}
}

// Name implements Check.
func (s *SecretCheck) Name() string { return "secrets" }

// Run implements Check. Deleted, oversized and directory paths are
// skipped.
func (s *SecretCheck) Run(ctx context.Context, vcs VCS, paths []string) error {
	s.once.Do(func() {
		s.detector, s.initErr = detect.NewDetectorDefaultConfig()
	})
	if s.initErr != nil {
		return &CheckError{Check: s.Name(), Err: fmt.Errorf("load gitleaks config: %w", s.initErr)}
	}

	var leaks []string
	for _, p := range paths {
		full := filepath.Join(s.Root, p)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() || info.Size() > maxScanSize {
			continue
		}
		content, err := os.ReadFile(full) //nolint:gosec // repository path
		if err != nil {
			continue
		}
		for _, f := range s.detector.DetectString(string(content)) {
			leaks = append(leaks, fmt.Sprintf("%s:%d %s", p, f.StartLine, f.RuleID))
		}
	}
	if len(leaks) > 0 {
		return &CheckError{
			Check:  s.Name(),
			Output: strings.Join(leaks, "\n"),
			Err:    fmt.Errorf("%d potential secret(s) staged", len(leaks)),
		}
	}
	return nil
}

func runChecks(ctx context.Context, checks []Check, vcs VCS, paths []string) error {
	for _, c := range checks {
		if err := c.Run(ctx, vcs, paths); err != nil {
			return err
		}
	}
	return nil
}
