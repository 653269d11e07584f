// Package approval verifies the external events that release a phase
// held at AwaitingApproval.
//
// Two methods are supported:
//   - HS256 tokens bound to a feature and phase (Issue / Verifier.VerifyToken)
//   - SSH signatures over SigningPayload from a key listed in an
//     allowed-signers file (SignWithKeyFile, SignWithAgent / Verifier.VerifySignature)
//
// Verified events reach an Approver through the CLI, the HTTP webhook
// (Server, POST /api/v1/approvals) or a NATS subject (Listen).
//
//	token, _ := approval.Issue(approval.TokenConfig{Secret: secret}, "003-add-caching", 2, "alice")
//	v, _ := approval.NewVerifier(approval.TokenConfig{Secret: secret}, nil)
//	ev, err := v.VerifyToken(token)
package approval
