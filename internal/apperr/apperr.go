package apperr

import "errors"

// Sentinel errors for the publication and test-taking core. Services wrap
// these with fmt.Errorf("...: %w", ...) and handlers map them to HTTP codes.
var (
	// ErrNotFound marks a missing lecture/material/test/attempt.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input or an unpublishable state
	// (for example a lecture with no materials).
	ErrValidation = errors.New("validation failed")
	// ErrAccess marks a role, group, deadline or attempt-limit violation.
	ErrAccess = errors.New("access denied")
	// ErrConfiguration marks a missing external collaborator: transcription
	// engine, audio toolchain, or service credentials.
	ErrConfiguration = errors.New("configuration error")
	// ErrFormat marks an unsupported file extension or container.
	ErrFormat = errors.New("unsupported format")
	// ErrParse marks file content that could not be decoded.
	ErrParse = errors.New("parse error")
	// ErrExternal marks a failed or unparseable external service call.
	ErrExternal = errors.New("external service error")
)
