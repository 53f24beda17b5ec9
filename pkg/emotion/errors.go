package emotion

import "errors"

var (
	// ErrUnknownLabel is returned when a string names no emotion class.
	ErrUnknownLabel = errors.New("emotion: unknown label")

	// ErrBadParameter is returned for smoothing or fusion constants out of range.
	ErrBadParameter = errors.New("emotion: parameter out of range")
)
