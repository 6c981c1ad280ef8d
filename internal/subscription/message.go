package subscription

import "github.com/roach88/evsync/internal/ir"

// Message is emitted by a monotonic subscription. It is a closed sum
// type: Events, State or TimeTravel.
type Message interface {
	message()
}

// Events delivers one chunk of events in EventKey order.
//
// CaughtUp is true once the store has reported that the backlog is
// drained. A chunk without events is bookkeeping only: it is sent once,
// when the subscription becomes caught up without new events to carry.
type Events struct {
	Chunk    ir.Chunk
	CaughtUp bool
}

// State delivers a cached snapshot before any events. The events that
// follow continue right after the snapshot.
type State struct {
	Snapshot ir.Snapshot
}

// TimeTravel is terminal: Trigger sorts before an event the subscriber
// has already consumed.
type TimeTravel struct {
	Trigger ir.EventKey
}

func (Events) message()     {}
func (State) message()      {}
func (TimeTravel) message() {}

// Phase is the state of a monotonic subscription.
type Phase int32

const (
	// PhaseIdle is the phase before Run.
	PhaseIdle Phase = iota
	// PhaseValidating checks the resumption point.
	PhaseValidating
	// PhaseLive streams events.
	PhaseLive
	// PhaseTimeTravel is terminal.
	PhaseTimeTravel
	// PhaseStopped is reached when Run returns for any other reason.
	PhaseStopped
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseValidating:
		return "validating"
	case PhaseLive:
		return "live"
	case PhaseTimeTravel:
		return "time-travel"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
