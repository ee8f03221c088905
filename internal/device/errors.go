package device

import "errors"

// ErrNotFound indicates no device matched the given identifier or MAC.
var ErrNotFound = errors.New("device: not found")
