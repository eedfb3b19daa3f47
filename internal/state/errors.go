package state

import "errors"

// Failure taxonomy surfaced by the store. Storage- and transport-layer
// failures never escape the store un-wrapped: callers check these with
// errors.Is.
var (
	// ErrStorageUnavailable means the transactional tier is not open:
	// the write that surfaced it never reached the database.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrWriteFailed means a single persistence write did not commit.
	// Retry policy belongs to the caller.
	ErrWriteFailed = errors.New("message write failed")

	// ErrTransportFailed means the remote boundary failed; the text was
	// queued for a later flush rather than retried silently.
	ErrTransportFailed = errors.New("transport failed")

	// ErrAuthenticationFailed means the proof-of-identity ceremony was
	// rejected; authentication state is unchanged.
	ErrAuthenticationFailed = errors.New("authentication failed")
)
