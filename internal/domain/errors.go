package domain

import "errors"

var (
	// ErrValidation marks malformed caller input; rejected synchronously.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown request, fanout, or connection ID.
	// Registry callers treat it as "no active connections", not a fault.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a state transition that lost to a concurrent writer.
	ErrConflict = errors.New("conflict")

	// ErrUnauthenticated marks a bad or missing identity credential at
	// connection time, before any registry entry is created.
	ErrUnauthenticated = errors.New("unauthenticated")
)
