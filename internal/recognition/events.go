package recognition

import (
	"time"

	"lingualive/internal/domain"
	"lingualive/internal/ports"
)

// State is the recognition session lifecycle.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateListening  State = "listening"
	StateRestarting State = "restarting"
	StateErrored    State = "errored"
)

// EventKind enumerates the inputs of the session state machine.
type EventKind int

const (
	EventStreamOpened EventKind = iota + 1
	EventStreamFailed
	EventFragment
	EventStreamEnded
	EventRestartDue
	EventStopRequested
)

func (k EventKind) String() string {
	switch k {
	case EventStreamOpened:
		return "stream_opened"
	case EventStreamFailed:
		return "stream_failed"
	case EventFragment:
		return "fragment"
	case EventStreamEnded:
		return "stream_ended"
	case EventRestartDue:
		return "restart_due"
	case EventStopRequested:
		return "stop_requested"
	default:
		return "unknown"
	}
}

// Event is one input to dispatch. Gen ties it to the stream that produced
// it; events from older generations are ignored.
type Event struct {
	Kind     EventKind
	Gen      int
	Stream   ports.StreamingSession
	Fragment domain.TranscriptFragment
	Err      error
}

// Transition is reported to the state callback.
type Transition struct {
	State   State
	Attempt int
	Delay   time.Duration
	Err     error
}
