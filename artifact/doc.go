// Package artifact stores the versioned documents that drive a feature:
// specification, plan, task list, per-phase retrospectives and the
// project-level codebase survey.
//
// Every version is a markdown file with a YAML header carrying kind,
// version, status and a checksum of the body. At most one version per
// reference is active; activating a new one marks the old one superseded
// without removing it.
//
//	store, _ := artifact.NewStore(".phaseflow")
//	feat, _ := store.CreateFeature("Add caching")
//	ref := artifact.Ref{Feature: feat.ID, Kind: artifact.KindTaskList}
//	store.Put(ref, body, artifact.StatusActive)
package artifact
