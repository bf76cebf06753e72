package repo

import "errors"

// Sentinel errors shared across repository implementations so callers can
// map them to user-facing responses without string matching.
var (
	// ErrNotFound indicates the requested record or file does not exist.
	ErrNotFound = errors.New("not found")
)
