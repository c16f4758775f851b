package domain

import "errors"

var (
	// ErrNotFound indicates a lookup on an id that is not registered.
	ErrNotFound = errors.New("not found")

	// ErrMalformedRecord indicates a record that cannot be applied, such as
	// one with an empty id or one that would make a node its own ancestor.
	ErrMalformedRecord = errors.New("malformed record")
)
