package stream

import "errors"

// State is the session lifecycle.
type State int32

// Lifecycle: Stopped -> Starting -> Running -> Stopping -> Stopped.
const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

var (
	// ErrAlreadyRunning is returned by Start or Run when the session is not Stopped.
	ErrAlreadyRunning = errors.New("stream: already running")

	// ErrMissingDependency is returned when Deps lacks a required part.
	ErrMissingDependency = errors.New("stream: missing dependency")
)

// StopReason records why the last run ended.
type StopReason string

// Stop reasons.
const (
	ReasonNone       StopReason = ""
	ReasonFlag       StopReason = "running flag cleared"
	ReasonContext    StopReason = "context cancelled"
	ReasonQuitKey    StopReason = "quit key"
	ReasonSourceEnd  StopReason = "source exhausted"
	ReasonReadErrors StopReason = "camera read errors"
	ReasonStartup    StopReason = "startup failed"
)
