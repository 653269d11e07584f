package artifact

import "errors"

var (
	// ErrNotFound indicates no artifact matches the request.
	ErrNotFound = errors.New("artifact not found")

	// ErrFeatureNotFound indicates the feature directory does not exist.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrImmutable indicates an attempt to rewrite a non-draft version.
	ErrImmutable = errors.New("artifact version is immutable")

	// ErrInvalidRef indicates an unknown kind or a missing feature.
	ErrInvalidRef = errors.New("invalid artifact reference")

	// ErrMissingHeader indicates the document did not start with a YAML fence.
	ErrMissingHeader = errors.New("artifact: missing header")

	// ErrMalformedHeader indicates the YAML header could not be parsed.
	ErrMalformedHeader = errors.New("artifact: malformed header")

	// ErrChecksumMismatch indicates the body was modified outside the store.
	ErrChecksumMismatch = errors.New("artifact: checksum mismatch")

	// ErrArchiveNotFound indicates no archive exists for the feature.
	ErrArchiveNotFound = errors.New("archive not found")
)
