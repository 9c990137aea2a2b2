package live

import "fmt"

// State is the lifecycle state of a duplex session.
type State int

const (
	// StateIdle means no session exists.
	StateIdle State = iota
	// StateConnecting means a connect is in flight.
	StateConnecting
	// StateActive means the session is open and audio flows both ways.
	StateActive
	// StateError means the last session ended in failure. Resources are
	// already released.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Trigger is an input to the session state machine.
type Trigger int

const (
	TriggerStart Trigger = iota
	TriggerOpen
	TriggerMessage
	TriggerInterrupted
	TriggerClose
	TriggerError
	TriggerStop
)

func (t Trigger) String() string {
	switch t {
	case TriggerStart:
		return "start"
	case TriggerOpen:
		return "open"
	case TriggerMessage:
		return "message"
	case TriggerInterrupted:
		return "interrupted"
	case TriggerClose:
		return "close"
	case TriggerError:
		return "error"
	case TriggerStop:
		return "stop"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// TransitionError reports a trigger that is not valid in the current state.
type TransitionError struct {
	From    State
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("live: %s not allowed in state %s", e.Trigger, e.From)
}

// Transition returns the state reached by applying t in state from.
//
// Start is accepted everywhere because starting always tears the previous
// session down first. Stop is accepted everywhere and always lands in Idle.
func Transition(from State, t Trigger) (State, error) {
	switch t {
	case TriggerStart:
		return StateConnecting, nil
	case TriggerStop:
		return StateIdle, nil
	}

	switch from {
	case StateConnecting:
		switch t {
		case TriggerOpen:
			return StateActive, nil
		case TriggerError:
			return StateError, nil
		case TriggerClose:
			return StateIdle, nil
		}
	case StateActive:
		switch t {
		case TriggerMessage, TriggerInterrupted:
			return StateActive, nil
		case TriggerClose:
			return StateIdle, nil
		case TriggerError:
			return StateError, nil
		}
	}
	return from, &TransitionError{From: from, Trigger: t}
}
