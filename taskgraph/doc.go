// Package taskgraph turns task-list artifacts into a phased dependency
// graph.
//
// A full build parses phases and tasks in document order and derives the
// implicit edges: each phase waits on the mandatory tasks of the phase
// before it, and a non-parallel task waits on its predecessor unless it
// names its own dependencies. An incremental rebuild merges a regenerated
// list into an existing graph without disturbing completed work.
//
// Malformed lists fail with *StructuralError; cycles and unresolvable
// references fail with *DependencyError. Both abort the build.
package taskgraph
