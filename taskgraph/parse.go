package taskgraph

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	titlePattern    = regexp.MustCompile(`^#\s+(.+)$`)
	phasePattern    = regexp.MustCompile(`^##\s+Phase\s+(\d+)\s*[:.\-]?\s*(.*)$`)
	taskPattern     = regexp.MustCompile(`^\s*[-*]\s+\[( |x|X|-)\]\s+(T\d{3,})\b\s*(.*)$`)
	looseTask       = regexp.MustCompile(`^\s*[-*]\s+\[.?\]`)
	markerPattern   = regexp.MustCompile(`^\[([^\]]+)\]\s*`)
	afterPattern    = regexp.MustCompile(`\((?:after|depends on)\s+([^)]*)\)`)
	skippedPattern  = regexp.MustCompile(`\(skipped:\s*([^)]*)\)`)
	idRefPattern    = regexp.MustCompile(`T\d{3,}`)
	backtickPattern = regexp.MustCompile("`([^`]+)`")
	pathToken       = regexp.MustCompile(`^\.{0,2}/?[A-Za-z0-9_@\-]+(?:[./][A-Za-z0-9_@\-]+)*/?$`)
	dotfilePattern  = regexp.MustCompile(`^\.[a-z][a-z0-9_\-]+$`)
)

// fileExts are the extensions that make a token a file claim.
var fileExts = map[string]bool{
	"go": true, "mod": true, "sum": true, "proto": true, "sql": true,
	"md": true, "txt": true, "rst": true, "adoc": true,
	"json": true, "yaml": true, "yml": true, "toml": true, "xml": true, "csv": true,
	"ini": true, "cfg": true, "conf": true, "env": true, "lock": true,
	"sh": true, "bash": true, "mk": true, "tf": true, "hcl": true,
	"tmpl": true, "tpl": true, "html": true, "css": true, "scss": true, "svg": true,
	"py": true, "rb": true, "rs": true, "java": true, "kt": true, "swift": true,
	"c": true, "h": true, "cc": true, "cpp": true, "hpp": true,
	"js": true, "jsx": true, "ts": true, "tsx": true, "vue": true,
	"graphql": true, "gql": true,
}

// fileNames are extensionless file claims.
var fileNames = map[string]bool{
	"Makefile": true, "Dockerfile": true, "Containerfile": true, "LICENSE": true,
}

// TaskList is the parsed, unresolved form of a task-list artifact.
type TaskList struct {
	Title  string
	Phases []*Phase
}

// Parse reads a task list. Phase headers look like
//
//	## Phase 2: Foundational
//
// and task lines like
//
//	- [ ] T005 [P] [US1] Add cache client in internal/cache/client.go (after T003)
//
// A checked box marks the task Done, [-] marks it Skipped. [P] flags a
// parallel task and [OPT] an optional one; any other bracket marker is
// the story label.
func Parse(r io.Reader, source string) (*TaskList, error) {
	list := &TaskList{}
	seen := make(map[string]int)

	var current *Phase
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	lastPhaseNum := 0

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t")

		if m := phasePattern.FindStringSubmatch(line); m != nil {
			num, _ := strconv.Atoi(m[1])
			if num <= lastPhaseNum {
				return nil, &StructuralError{Source: source, Line: lineNo,
					Msg: fmt.Sprintf("phase %d out of order after phase %d", num, lastPhaseNum)}
			}
			lastPhaseNum = num
			name := strings.TrimSpace(m[2])
			if name == "" {
				name = fmt.Sprintf("Phase %d", num)
			}
			current = &Phase{Index: len(list.Phases) + 1, Name: name, Line: lineNo}
			list.Phases = append(list.Phases, current)
			continue
		}

		if list.Title == "" && current == nil {
			if m := titlePattern.FindStringSubmatch(line); m != nil {
				list.Title = strings.TrimSpace(m[1])
				continue
			}
		}

		m := taskPattern.FindStringSubmatch(line)
		if m == nil {
			if looseTask.MatchString(line) {
				return nil, &StructuralError{Source: source, Line: lineNo, Msg: "unparsable task line"}
			}
			continue
		}
		if current == nil {
			return nil, &StructuralError{Source: source, Line: lineNo, Msg: "task before first phase header"}
		}

		t, err := parseTask(m, current.Index, lineNo)
		if err != nil {
			return nil, &StructuralError{Source: source, Line: lineNo, Msg: err.Error()}
		}
		if prev, dup := seen[t.ID]; dup {
			return nil, &StructuralError{Source: source, Line: lineNo,
				Msg: fmt.Sprintf("duplicate task id %s (first on line %d)", t.ID, prev)}
		}
		seen[t.ID] = lineNo
		current.Tasks = append(current.Tasks, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read task list: %w", err)
	}

	if len(list.Phases) == 0 {
		return nil, &StructuralError{Source: source, Msg: "missing phase headers"}
	}
	return list, nil
}

func parseTask(m []string, phase, line int) (*Task, error) {
	t := &Task{ID: m[2], Phase: phase, Line: line, Status: StatusPending}
	switch m[1] {
	case "x", "X":
		t.Status = StatusDone
	case "-":
		t.Status = StatusSkipped
	}

	rest := strings.TrimSpace(m[3])
	for {
		mm := markerPattern.FindStringSubmatch(rest)
		if mm == nil {
			break
		}
		marker := strings.TrimSpace(mm[1])
		switch strings.ToUpper(marker) {
		case "P":
			t.Parallel = true
		case "OPT", "OPTIONAL":
			t.Optional = true
		default:
			if t.Story != "" {
				return nil, fmt.Errorf("task %s has two story labels: %s and %s", t.ID, t.Story, marker)
			}
			t.Story = marker
		}
		rest = strings.TrimSpace(rest[len(mm[0]):])
	}

	if sm := skippedPattern.FindStringSubmatch(rest); sm != nil {
		t.SkipReason = strings.TrimSpace(sm[1])
		rest = strings.TrimSpace(skippedPattern.ReplaceAllString(rest, ""))
	}
	for _, dm := range afterPattern.FindAllStringSubmatch(rest, -1) {
		refs := idRefPattern.FindAllString(dm[1], -1)
		if len(refs) == 0 {
			return nil, fmt.Errorf("task %s declares a dependency without task ids", t.ID)
		}
		t.Explicit = append(t.Explicit, refs...)
	}
	rest = strings.TrimSpace(afterPattern.ReplaceAllString(rest, ""))

	if rest == "" {
		return nil, fmt.Errorf("task %s has no description", t.ID)
	}
	t.Description = rest
	t.Paths = extractPaths(rest)
	return t, nil
}

// extractPaths finds file-path claims in a description: backquoted
// spans and bare tokens that isPath accepts.
func extractPaths(desc string) []string {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = strings.TrimPrefix(p, "./")
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}

	for _, m := range backtickPattern.FindAllStringSubmatch(desc, -1) {
		// A quoted span with a slash is always a claim.
		if isPath(m[1]) || (strings.Contains(m[1], "/") && pathToken.MatchString(m[1])) {
			add(m[1])
		}
	}
	rest := backtickPattern.ReplaceAllString(desc, " ")

	for _, tok := range strings.Fields(rest) {
		tok = strings.Trim(tok, ",;:()\"'")
		tok = strings.TrimRight(tok, ".")
		if isPath(tok) {
			add(tok)
		}
	}
	return paths
}

// isPath reports whether tok is a file or directory claim. Slashed tokens
// need a known file extension, a trailing slash or at least three segments
// ("and/or" is prose); "./" and "../" prefixes always claim. Bare names
// need a known extension or name, and capitalized .js names are products.
func isPath(tok string) bool {
	if tok == "" || strings.Contains(tok, "://") || strings.ContainsAny(tok, " \t") {
		return false
	}
	if strings.HasPrefix(tok, "./") || strings.HasPrefix(tok, "../") {
		return strings.Trim(tok, "./") != ""
	}
	if dotfilePattern.MatchString(tok) {
		return true
	}
	if !pathToken.MatchString(tok) || strings.HasPrefix(tok, "//") {
		return false
	}

	trimmed := strings.Trim(tok, "/")
	if trimmed == "" {
		return false
	}
	segs := strings.Split(trimmed, "/")
	base := segs[len(segs)-1]
	if len(segs) > 1 {
		return strings.HasSuffix(tok, "/") || isFileName(base) || len(segs) >= 3
	}
	if strings.HasSuffix(tok, "/") {
		return true
	}
	if !isFileName(base) {
		return false
	}
	i := strings.LastIndex(base, ".")
	return !(base[i+1:] == "js" && unicode.IsUpper(rune(base[0])))
}

func isFileName(name string) bool {
	if fileNames[name] {
		return true
	}
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return false
	}
	return fileExts[strings.ToLower(name[i+1:])]
}
