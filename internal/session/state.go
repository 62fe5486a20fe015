package session

// State represents the current state of a debug session.
type State int

const (
	// StateIdle is the state before a run, or after new code was set.
	StateIdle State = iota
	// StateExecuting is when the sandbox runs the snippet.
	StateExecuting
	// StateWaiting is when the snippet waits for a user interaction.
	StateWaiting
	// StateReplayEnded is when the run completed, faulted or was stopped.
	StateReplayEnded
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateWaiting:
		return "waiting"
	case StateReplayEnded:
		return "replay-ended"
	default:
		return "unknown"
	}
}

// Running reports whether a run is in progress.
func (s State) Running() bool {
	return s == StateExecuting || s == StateWaiting
}
