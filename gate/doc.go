// Package gate implements the release gate that sits between phases.
//
// Each phase moves through
//
//	NotStarted → Syncing → InProgress → Pushing → AwaitingReview → AwaitingCI → AwaitingApproval → Closed
//
// BeginPhase verifies a clean tree on trunk, pulls, and checks out the
// phase branch. TaskDone commits each finished task after the pre-commit
// checks (configured commands plus a gitleaks secret scan). EndPhase
// runs the pre-push checks, pushes, opens or updates the review request
// and waits for CI. AwaitingApproval is a hard stop released only by
// Approve with a verified approval.Event.
//
// A failed CI run returns the phase to InProgress. A failed push, sync or
// review request returns a *GateError and rolls back to the prior stable
// state.
package gate
