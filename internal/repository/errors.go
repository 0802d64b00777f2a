// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the disablement core to distinguish between different
// failure scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the referenced account (or token) does
// not exist. Handlers translate this into an HTTP 404 response; the
// disablement state model treats it as "not disabled".
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by Create when the email is already taken.
var ErrEmailExists = errors.New("email already exists")

// ErrForbidden is returned when the caller attempts an operation
// it is not allowed to perform. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")
