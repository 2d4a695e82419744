package client

import "fmt"

// State is the lifecycle phase of a Session.
type State string

// Event drives a State change.
type Event string

const (
	// StateDisconnected is a session that has not been started.
	StateDisconnected State = "disconnected"
	// StateInitializing is a session whose child is running the handshake.
	StateInitializing State = "initializing"
	// StateInitialized is a session ready for requests.
	StateInitialized State = "initialized"
	// StateClosed is a stopped session. It is terminal.
	StateClosed State = "closed"
)

const (
	// EventSpawn is the child process starting.
	EventSpawn Event = "spawn"
	// EventInitialized is the handshake completing.
	EventInitialized Event = "initialized"
	// EventStop is the session being stopped.
	EventStop Event = "stop"
)

// Transition returns the state reached by applying event to current. Invalid
// pairs leave the state unchanged and return an error.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateDisconnected:
		switch event {
		case EventSpawn:
			return StateInitializing, nil
		case EventStop:
			return StateClosed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateInitializing:
		switch event {
		case EventInitialized:
			return StateInitialized, nil
		case EventStop:
			return StateClosed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateInitialized:
		switch event {
		case EventStop:
			return StateClosed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateClosed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
