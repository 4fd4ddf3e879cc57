package billing

import (
	"fmt"
	"slices"
)

// State is the lifecycle state of a shop's subscription.
type State string

const (
	StateNone              State = "none"
	StateFirstPending      State = "first-pending" // confirmation issued, no row yet
	StateActive            State = "active"
	StatePlanChangePending State = "plan-change-pending"
	StateCancelled         State = "cancelled"
)

// Event triggers a lifecycle transition.
type Event string

const (
	EventSubscribe Event = "subscribe"
	EventApprove   Event = "approve"
	EventActivate  Event = "activate"
	EventCancel    Event = "cancel"
)

// transitions lists the states each event may fire from.
var transitions = map[Event][]State{
	EventSubscribe: {StateNone, StateFirstPending, StateActive, StatePlanChangePending, StateCancelled},
	EventApprove:   {StateNone, StateFirstPending, StateActive, StatePlanChangePending, StateCancelled},
	EventActivate:  {StateActive, StatePlanChangePending},
	EventCancel:    {StateActive, StatePlanChangePending},
}

// StateOf derives the lifecycle state of a stored row; nil means no row.
func StateOf(sub *Subscription) State {
	switch {
	case sub == nil:
		return StateNone
	case sub.IsCancelled():
		return StateCancelled
	case sub.PendingPlan != "":
		return StatePlanChangePending
	default:
		return StateActive
	}
}

// NoTransitionError is returned when an event cannot fire from the current state.
type NoTransitionError struct {
	From  State
	Event Event
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition from state %q for event %q", e.From, e.Event)
}

// CanFire reports whether ev is allowed from the row's state.
func CanFire(sub *Subscription, ev Event) bool {
	return slices.Contains(transitions[ev], StateOf(sub))
}

func checkTransition(sub *Subscription, ev Event) error {
	if CanFire(sub, ev) {
		return nil
	}
	return &NoTransitionError{From: StateOf(sub), Event: ev}
}
