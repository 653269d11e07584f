package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/randalmurphal/phaseflow/task"
)

// Predicate decides whether a route applies to a task. Predicates must be
// pure functions of the descriptor.
type Predicate func(Descriptor) bool

// Route is one entry of the routing table.
type Route struct {
	Name     string
	Priority int
	Match    Predicate
	Provider Provider
	seq      int
}

// Router picks a provider for each task from a priority-ordered table.
// Higher priority wins; equal priorities keep registration order.
type Router struct {
	mu       sync.RWMutex
	routes   []Route
	fallback Provider
	seq      int
}

// NewRouter creates a router that uses fallback when nothing matches.
// fallback may be nil.
func NewRouter(fallback Provider) *Router {
	return &Router{fallback: fallback}
}

// Register adds a route.
func (r *Router) Register(name string, priority int, match Predicate, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.routes = append(r.routes, Route{Name: name, Priority: priority, Match: match, Provider: p, seq: r.seq})
	sort.SliceStable(r.routes, func(i, j int) bool {
		if r.routes[i].Priority != r.routes[j].Priority {
			return r.routes[i].Priority > r.routes[j].Priority
		}
		return r.routes[i].seq < r.routes[j].seq
	})
}

// Routes returns the table in evaluation order.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Route(nil), r.routes...)
}

// Route returns the provider for d and the name of the matching route
// ("fallback" when none matched).
func (r *Router) Route(d Descriptor) (Provider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rt := range r.routes {
		if rt.Match(d) {
			return rt.Provider, rt.Name, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, "fallback", nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNoProvider, d.TaskID)
}

// ByExtension matches tasks claiming at least one file with one of the
// extensions (".go" or "go").
func ByExtension(exts ...string) Predicate {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		want[e] = true
	}
	return func(d Descriptor) bool {
		for _, e := range d.Extensions() {
			if want[e] {
				return true
			}
		}
		return false
	}
}

// ByTechnology matches tasks whose declared technology context includes
// any of the names, case-insensitively.
func ByTechnology(names ...string) Predicate {
	return func(d Descriptor) bool {
		for _, have := range d.Technologies {
			for _, n := range names {
				if strings.EqualFold(have, n) {
					return true
				}
			}
		}
		return false
	}
}

// ByPathPrefix matches tasks claiming a path under one of the prefixes.
func ByPathPrefix(prefixes ...string) Predicate {
	return func(d Descriptor) bool {
		for _, p := range d.Paths {
			for _, pre := range prefixes {
				pre = strings.TrimSuffix(pre, "/")
				if p == pre || strings.HasPrefix(p, pre+"/") {
					return true
				}
			}
		}
		return false
	}
}

// ByKind matches tasks of the given kinds.
func ByKind(kinds ...task.Type) Predicate {
	return func(d Descriptor) bool {
		for _, k := range kinds {
			if d.Kind == k {
				return true
			}
		}
		return false
	}
}

// All matches when every predicate matches.
func All(preds ...Predicate) Predicate {
	return func(d Descriptor) bool {
		for _, p := range preds {
			if !p(d) {
				return false
			}
		}
		return true
	}
}

// Rule is the declarative form of a route, as read from the policy file.
// Empty fields do not constrain the match; a rule with no constraints
// matches every task.
type Rule struct {
	Name         string   `koanf:"name" yaml:"name"`
	Provider     string   `koanf:"provider" yaml:"provider"`
	Priority     int      `koanf:"priority" yaml:"priority"`
	Extensions   []string `koanf:"extensions" yaml:"extensions"`
	Technologies []string `koanf:"technologies" yaml:"technologies"`
	Paths        []string `koanf:"paths" yaml:"paths"`
	Kinds        []string `koanf:"kinds" yaml:"kinds"`
}

// Predicate builds the rule's predicate.
func (rule Rule) Predicate() Predicate {
	var preds []Predicate
	if len(rule.Extensions) > 0 {
		preds = append(preds, ByExtension(rule.Extensions...))
	}
	if len(rule.Technologies) > 0 {
		preds = append(preds, ByTechnology(rule.Technologies...))
	}
	if len(rule.Paths) > 0 {
		preds = append(preds, ByPathPrefix(rule.Paths...))
	}
	if len(rule.Kinds) > 0 {
		kinds := make([]task.Type, len(rule.Kinds))
		for i, k := range rule.Kinds {
			kinds[i] = task.Type(k)
		}
		preds = append(preds, ByKind(kinds...))
	}
	return All(preds...)
}

// RegisterRules adds one route per rule, resolving provider names through
// registry.
func (r *Router) RegisterRules(rules []Rule, registry map[string]Provider) error {
	for _, rule := range rules {
		p, ok := registry[rule.Provider]
		if !ok {
			return fmt.Errorf("routing rule %q: unknown provider %q", rule.Name, rule.Provider)
		}
		name := rule.Name
		if name == "" {
			name = rule.Provider
		}
		r.Register(name, rule.Priority, rule.Predicate(), p)
	}
	return nil
}
