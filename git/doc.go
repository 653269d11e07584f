// Package git provides the version-control operations the release gate
// drives: branch inspection, sync with trunk, staging, commits and pushes.
//
// Core types:
//   - Context: repository handle; all commands run through a CommandRunner
//   - CommandRunner: executes git (ExecRunner in production, SequentialMockRunner in tests)
//   - BranchNamer: feature and phase branch names
//   - CommitMessage: conventional commit builder with task trailers
//
// Example usage:
//
//	repo, err := git.NewContext(".", git.WithTrunk("main"))
//	if err != nil {
//	    return err
//	}
//	if err := repo.Sync(); err != nil {
//	    return err
//	}
//	msg := git.NewCommitMessage(git.CommitTypeFeat, "add cache layer").ForTask("001-cache", 2, "T004")
//	_, err = repo.CommitPaths(msg.String(), "internal/cache/cache.go")
package git
