package backend

import "errors"

// Sentinel errors for backend requests.
var (
	// ErrUnauthorized indicates authentication failed or the token was rejected.
	ErrUnauthorized = errors.New("backend: unauthorized")

	// ErrRequestFailed indicates a non-success response from the backend.
	ErrRequestFailed = errors.New("backend: request failed")

	// ErrInvalidState indicates a power state token other than "on"/"off".
	ErrInvalidState = errors.New("backend: invalid power state")
)
