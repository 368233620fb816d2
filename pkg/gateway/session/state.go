package session

// State is the per-call lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateAwaitingStreamStart
	StateListening
	StateRecording
	StateProcessing
	StateSpeaking
	StateTerminating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingStreamStart:
		return "awaiting_stream_start"
	case StateListening:
		return "listening"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateTerminating:
		return "terminating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// active reports whether the session is in any ACTIVE sub-state.
func (s State) active() bool {
	switch s {
	case StateListening, StateRecording, StateProcessing, StateSpeaking:
		return true
	}
	return false
}
