package pr

import "errors"

// Review platform errors
var (
	// ErrNoProvider indicates no review platform is configured.
	ErrNoProvider = errors.New("no review provider configured")

	// ErrUnknownProvider indicates the git remote uses an unknown platform.
	ErrUnknownProvider = errors.New("unknown git provider")

	// ErrNotFound indicates the review request does not exist.
	ErrNotFound = errors.New("review request not found")

	// ErrClosed indicates the review request was closed without merging.
	ErrClosed = errors.New("review request is closed")

	// ErrNoChanges indicates there are no changes between branches.
	ErrNoChanges = errors.New("no changes between branches")
)
