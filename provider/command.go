package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/randalmurphal/phaseflow/git"
	"github.com/randalmurphal/phaseflow/retro"
)

// Command is a capability provider that runs a fixed program per task,
// such as a code generator. Arguments may reference $TASK_ID, $FEATURE,
// $PHASE, $DESCRIPTION and $PATHS (space separated).
type Command struct {
	name   string
	prog   string
	args   []string
	runner git.CommandRunner
	logger *slog.Logger
}

// NewCommand creates a command provider. runner defaults to an ExecRunner.
func NewCommand(name, prog string, args []string, runner git.CommandRunner, logger *slog.Logger) *Command {
	if runner == nil {
		runner = git.NewExecRunner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Command{name: name, prog: prog, args: args, runner: runner, logger: logger}
}

// Name implements Provider.
func (c *Command) Name() string { return c.name }

// Invoke implements Provider. A non-zero exit marks the task failed; the
// claimed paths are reported as modified on success.
func (c *Command) Invoke(ctx context.Context, d Descriptor) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	vars := map[string]string{
		"TASK_ID":     d.TaskID,
		"FEATURE":     d.Feature,
		"PHASE":       strconv.Itoa(d.Phase),
		"DESCRIPTION": d.Description,
		"PATHS":       strings.Join(d.Paths, " "),
	}
	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = os.Expand(a, func(k string) string { return vars[k] })
	}

	output, err := c.runner.Run(d.WorkDir, c.prog, args...)
	if err != nil {
		c.logger.Warn("command provider failed", "task", d.TaskID, "program", c.prog, "error", err)
		notes := retro.Fragment{}
		notes.Add(retro.SectionDidNotWork, fmt.Sprintf("%s exited with an error for %s", c.prog, d.TaskID))
		return Outcome{Status: StatusFailed, Summary: firstLine(err.Error()), Notes: notes}, nil
	}

	changes := make([]FileChange, len(d.Paths))
	for i, p := range d.Paths {
		changes[i] = FileChange{Path: p, Op: OpModified}
	}
	return Outcome{Status: StatusDone, Changes: changes, Summary: firstLine(output)}, nil
}
