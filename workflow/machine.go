package workflow

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned by Advance when no transition is declared
// for the (state, event) pair, or when every candidate's guard rejected it.
var ErrInvalidTransition = errors.New("invalid transition")

// StateMachine owns one State and the fixed transition list supplied by the
// workflow's definition. Transitions are never serialized; persistence covers
// the State alone and a machine is reconstructed from its definition.
//
// A StateMachine is not safe for concurrent use. Drivers guarantee a request
// is processed by at most one machine at a time.
type StateMachine struct {
	state       State
	transitions []Transition
}

// NewStateMachine creates a machine at the given initial state name with an
// empty data bag.
func NewStateMachine(initial string, transitions []Transition) *StateMachine {
	return &StateMachine{
		state:       NewState(initial),
		transitions: transitions,
	}
}

// RestoreStateMachine creates a machine positioned at a previously persisted
// state.
func RestoreStateMachine(state State, transitions []Transition) *StateMachine {
	if state.Data == nil {
		state.Data = map[string]any{}
	}
	return &StateMachine{
		state:       state.Clone(),
		transitions: transitions,
	}
}

// State returns a snapshot of the current state.
func (m *StateMachine) State() State {
	return m.state.Clone()
}

// StateName returns the current state's name.
func (m *StateMachine) StateName() string {
	return m.state.Name
}

// StateData returns the value stored under key in the state's data bag.
func (m *StateMachine) StateData(key string) (any, bool) {
	v, ok := m.state.Data[key]
	return v, ok
}

// SetStateData sets a value in the current in-memory state's data bag. The
// change survives only if the caller persists the state afterwards.
func (m *StateMachine) SetStateData(key string, value any) {
	m.state.Data[key] = value
}

// AvailableEvents returns the deduplicated events that have at least one
// transition from the current state, in declaration order. Guards are not
// evaluated; this is a hint for callers, not a guarantee that Advance will
// succeed.
func (m *StateMachine) AvailableEvents() []Event {
	seen := make(map[Event]struct{})
	var events []Event
	for _, t := range m.transitions {
		if t.From != m.state.Name {
			continue
		}
		if _, ok := seen[t.Event]; ok {
			continue
		}
		seen[t.Event] = struct{}{}
		events = append(events, t.Event)
	}
	return events
}

// Advance applies an event to the machine. Candidate transitions for the
// current (state, event) pair are tried in declaration order; the first one
// whose guard passes has its action run and the machine's state replaced with
// a new State carrying the old data bag forward.
//
// Advance returns an error wrapping ErrInvalidTransition when no transition
// is declared for the event in the current state, or when every candidate's
// guard rejected it. Guard and action errors propagate unmodified; in every
// failure case the machine stays on its old state.
func (m *StateMachine) Advance(ctx context.Context, event Event) error {
	var tried bool
	for _, t := range m.transitions {
		if t.From != m.state.Name || t.Event != event {
			continue
		}
		tried = true

		if t.Guard != nil {
			ok, err := t.Guard(ctx)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}

		if t.Action != nil {
			if err := t.Action(ctx); err != nil {
				return err
			}
		}

		next := NewState(t.To)
		for k, v := range m.state.Data {
			next.Data[k] = v
		}
		m.state = next
		return nil
	}

	if !tried {
		return fmt.Errorf("%w: no transition for event %q in state %q",
			ErrInvalidTransition, event, m.state.Name)
	}
	return fmt.Errorf("%w: conditions not met for event %q in state %q",
		ErrInvalidTransition, event, m.state.Name)
}

// ToMap converts the current state to its persisted map shape.
func (m *StateMachine) ToMap() map[string]any {
	return m.state.ToMap()
}

// Serialize encodes the current state as JSON.
func (m *StateMachine) Serialize() (string, error) {
	return m.state.Serialize()
}
