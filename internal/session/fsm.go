// Package session holds the per-rule interaction state: the delete
// confirmation state machine, debounced field edits, and the draft row used to
// add a rule.
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an event is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrBusy is returned when a remote call for the same session is still outstanding.
	ErrBusy = errors.New("session busy")
	// ErrClosed is returned by sessions whose rule is no longer rendered.
	ErrClosed = errors.New("session closed")
)

// State is the interaction state of one rendered rule.
type State int

const (
	StateViewing State = iota
	StateConfirmingDelete
	StateDeleted
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateViewing:
		return "viewing"
	case StateConfirmingDelete:
		return "confirming_delete"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event drives a state transition.
type Event int

const (
	EventDelete Event = iota
	EventCancel
	EventConfirm
	EventDeleteFailed
)

// String returns a human-readable name for the event.
func (e Event) String() string {
	switch e {
	case EventDelete:
		return "delete"
	case EventCancel:
		return "cancel"
	case EventConfirm:
		return "confirm"
	case EventDeleteFailed:
		return "delete_failed"
	default:
		return "unknown"
	}
}

// Transition returns the state reached from s on e.
//
// EventConfirm is applied once the remote delete has succeeded; EventDeleteFailed
// once it has failed. Deleted is terminal.
func Transition(s State, e Event) (State, error) {
	switch s {
	case StateViewing:
		if e == EventDelete {
			return StateConfirmingDelete, nil
		}
	case StateConfirmingDelete:
		switch e {
		case EventCancel:
			return StateViewing, nil
		case EventConfirm:
			return StateDeleted, nil
		case EventDeleteFailed:
			return StateViewing, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
}

// Controls are the actions offered for a rule in a given state.
type Controls struct {
	Delete  bool `json:"delete"`
	Confirm bool `json:"confirm"`
	Cancel  bool `json:"cancel"`
}

// ControlsFor derives the offered controls from the state. The delete control
// is suppressed while a deletion is being confirmed.
func ControlsFor(s State) Controls {
	switch s {
	case StateViewing:
		return Controls{Delete: true}
	case StateConfirmingDelete:
		return Controls{Confirm: true, Cancel: true}
	default:
		return Controls{}
	}
}
