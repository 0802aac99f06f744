package chat

import "errors"

// Failure taxonomy for the conversation subsystem. Callers match with
// errors.Is; the HTTP layer maps each to a status code.
var (
	// ErrInvalidInput rejects a request before any mutation (empty text,
	// unrecognized model, empty title).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers both a missing conversation and a conversation
	// owned by someone else. The two cases are deliberately
	// indistinguishable so conversation IDs do not leak across owners.
	ErrNotFound = errors.New("conversation not found")

	// ErrUpstream reports a failed completion call. The user turn is
	// already persisted when this is returned; no assistant turn exists.
	ErrUpstream = errors.New("completion backend failure")

	// ErrInvalidState rejects a retry that targets anything other than
	// the terminal user turn of a conversation.
	ErrInvalidState = errors.New("turn not eligible for retry")
)
