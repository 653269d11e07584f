package approval

import "errors"

// Approval errors.
var (
	// ErrInvalidToken indicates the token is malformed or has an invalid signature.
	ErrInvalidToken = errors.New("invalid approval token")

	// ErrTokenExpired indicates the token has expired.
	ErrTokenExpired = errors.New("approval token expired")

	// ErrSecretTooShort indicates the signing secret is too short.
	ErrSecretTooShort = errors.New("approval secret must be at least 32 bytes")

	// ErrNoSecret indicates token approval is not configured.
	ErrNoSecret = errors.New("approval secret not configured")

	// ErrUnknownSigner indicates no allowed signer produced the signature.
	ErrUnknownSigner = errors.New("signature does not match an allowed signer")

	// ErrMalformedRequest indicates the request carries neither a token
	// nor a signature.
	ErrMalformedRequest = errors.New("approval request needs a token or a signature")

	// ErrNoSSHAgent is returned when the SSH agent is not available.
	ErrNoSSHAgent = errors.New("ssh-agent not available")

	// ErrKeyNotFound is returned when a specific key is not found in the agent.
	ErrKeyNotFound = errors.New("SSH key not found in agent")
)
