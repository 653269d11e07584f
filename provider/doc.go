// Package provider defines the capability provider interface the scheduler
// dispatches tasks to, and the routing table that picks a provider per
// task.
//
// Providers:
//   - Agent: an LLM coding agent (flowgraph llm.Client) with the model
//     chosen by task kind
//   - Command: a fixed program run per task
//   - MockProvider: func-field mock for tests
//
// Routing is a registered table of predicates evaluated in priority order:
//
//	router := provider.NewRouter(agent)
//	router.Register("sql", 10, provider.ByExtension(".sql"), migrator)
//	p, route, err := router.Route(desc)
package provider
