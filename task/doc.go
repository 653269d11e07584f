// Package task classifies scheduled tasks and maps each kind to a model
// tier.
//
// Kinds:
//   - Research, Architecture: design decisions, high-stakes reasoning
//   - Implement, Test, Fix, Refactor: writing and changing code
//   - Setup, Docs, Chore: mechanical work
//
// Example usage:
//
//	kind := task.Classify("Foundational", "Add cache client in internal/cache/client.go", paths)
//	selector := task.NewSelector()
//	m := selector.Select(kind)
package task
