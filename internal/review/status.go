package review

import "fmt"

// ItemStatus is the queue item lifecycle state.
type ItemStatus string

const (
	// StatusPending means the item is waiting to be claimed.
	StatusPending ItemStatus = "pending"
	// StatusProcessing means an orchestrator run owns the item.
	StatusProcessing ItemStatus = "processing"
	// StatusCompleted means every target rating has been fetched.
	StatusCompleted ItemStatus = "completed"
	// StatusError means a rating attempt failed terminally. A human (or a
	// later manual reset) may move the item back to pending; the
	// orchestrator never does so itself.
	StatusError ItemStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusError
	case StatusError:
		return next == StatusPending
	default:
		return false
	}
}

// Transition validates and returns the next status, erroring on an
// illegal move so callers cannot silently corrupt the lifecycle.
func (s ItemStatus) Transition(next ItemStatus) (ItemStatus, error) {
	if !next.Valid() {
		return s, fmt.Errorf("unknown status %q", next)
	}
	if !s.CanTransition(next) {
		return s, fmt.Errorf("illegal status transition %s -> %s", s, next)
	}
	return next, nil
}
