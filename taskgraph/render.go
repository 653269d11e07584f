package taskgraph

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Render writes g back out as a task list that Parse accepts. Done tasks
// are checked, Skipped tasks carry [-] and their reason. Live states
// (Ready, Running, Failed) render as open boxes.
func Render(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	if g.Title != "" {
		fmt.Fprintf(bw, "# %s\n\n", g.Title)
	}

	for i, p := range g.Phases {
		if i > 0 {
			bw.WriteString("\n")
		}
		fmt.Fprintf(bw, "## Phase %d: %s\n\n", p.Index, p.Name)
		for _, t := range p.Tasks {
			bw.WriteString(renderTask(t))
			bw.WriteString("\n")
		}
	}
	return bw.Flush()
}

func renderTask(t *Task) string {
	var b strings.Builder

	box := " "
	switch t.Status {
	case StatusDone:
		box = "x"
	case StatusSkipped:
		box = "-"
	}
	fmt.Fprintf(&b, "- [%s] %s", box, t.ID)

	if t.Parallel {
		b.WriteString(" [P]")
	}
	if t.Optional {
		b.WriteString(" [OPT]")
	}
	if t.Story != "" {
		fmt.Fprintf(&b, " [%s]", t.Story)
	}
	b.WriteString(" ")
	b.WriteString(t.Description)

	if len(t.Explicit) > 0 {
		fmt.Fprintf(&b, " (after %s)", strings.Join(t.Explicit, ", "))
	}
	if t.Status == StatusSkipped && t.SkipReason != "" {
		fmt.Fprintf(&b, " (skipped: %s)", t.SkipReason)
	}
	return b.String()
}
