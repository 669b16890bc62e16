// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoActiveConversation indicates a send without a selected peer.
	ErrNoActiveConversation = errors.New("no active conversation")

	// ErrRateLimited indicates the local send-rate policy rejected the operation.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotOwned indicates an edit attempt on a message authored by someone else.
	ErrNotOwned = errors.New("not owned")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., tag taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed or empty input rejected before any I/O.
	ErrValidation = errors.New("invalid input")

	// ErrClosed indicates an operation against a torn-down channel binding.
	ErrClosed = errors.New("channel closed")
)
