package blackboard

import "errors"

var (
	// ErrUnknownKey is returned for keys outside the shared channel.
	ErrUnknownKey = errors.New("blackboard: unknown key")

	// ErrWrongType is returned when a loosely typed Set gets the wrong kind of value.
	ErrWrongType = errors.New("blackboard: wrong value type")
)
