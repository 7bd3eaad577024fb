// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios.
package repository

import "errors"

// ErrNotFound is returned when the requested reservation does not exist
// for the tenant. Handlers should translate this into an HTTP 404
// response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update cannot be performed because
// of conflicting state, such as an illegal status transition. Handlers
// should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
