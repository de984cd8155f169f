package workflow

import (
	"context"
	"fmt"
	"strings"
)

// Event is a named signal from a workflow's closed event set. Each workflow
// type declares its own constants; the engine compares events by value only.
type Event string

// IsDeadline reports whether the event is eligible for automatic triggering
// by the deadline sweep. By convention, deadline-triggered events carry
// "DEADLINE" in their name.
func (e Event) IsDeadline() bool {
	return strings.Contains(strings.ToUpper(string(e)), "DEADLINE")
}

// GuardFunc gates whether a transition may fire for the current state.
// A nil guard always passes. Guards may perform I/O; the context carries
// cancellation.
type GuardFunc func(ctx context.Context) (bool, error)

// ActionFunc runs exactly once when a transition fires, after the guard
// passes and before the state is replaced. An action error aborts the
// transition and leaves the machine on its old state.
type ActionFunc func(ctx context.Context) error

// Transition declares an edge (From, Event) -> To with an optional guard and
// action. Multiple transitions may share the same (From, Event) pair; they
// are tried in declaration order and the first passing guard wins.
type Transition struct {
	From   string
	Event  Event
	To     string
	Guard  GuardFunc
	Action ActionFunc
}

func (t Transition) String() string {
	return fmt.Sprintf("%s --[%s]--> %s", t.From, t.Event, t.To)
}
