// Package workflow implements the request workflow engine: serializable
// states, declarative transitions, the state machine that applies events to
// them, and the registry that maps a request type to the definition that
// governs it.
//
// A workflow is an event-driven state machine persisted as an append-only
// sequence of state snapshots. Drivers (package worker) reconstruct a machine
// from the latest snapshot, apply an externally supplied event, and append
// the resulting state.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// ErrDecode is returned when a persisted state payload cannot be decoded.
var ErrDecode = errors.New("malformed state payload")

// State is the position of a workflow: a node name in the transition graph
// plus a JSON-encodable data bag carried across transitions.
//
// A State is replaced, never mutated, on every successful transition; Data is
// always non-nil.
type State struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

// NewState creates a State at the given node with an empty data bag.
func NewState(name string) State {
	return State{Name: name, Data: map[string]any{}}
}

// Clone returns a copy of the state with its own data bag.
func (s State) Clone() State {
	c := State{Name: s.Name, Data: make(map[string]any, len(s.Data))}
	maps.Copy(c.Data, s.Data)
	return c
}

// ToMap converts the state to the persisted map shape
// {"name": ..., "data": {...}}.
func (s State) ToMap() map[string]any {
	data := make(map[string]any, len(s.Data))
	maps.Copy(data, s.Data)
	return map[string]any{"name": s.Name, "data": data}
}

// Serialize encodes the state as JSON for storage.
func (s State) Serialize() (string, error) {
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("serialize state: %w", err)
	}
	return string(b), nil
}

// StateFromMap reconstructs a State from its persisted map shape.
func StateFromMap(m map[string]any) (State, error) {
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return State{}, fmt.Errorf("%w: missing state name", ErrDecode)
	}
	s := State{Name: name, Data: map[string]any{}}
	if raw, ok := m["data"]; ok && raw != nil {
		data, ok := raw.(map[string]any)
		if !ok {
			return State{}, fmt.Errorf("%w: state data is not an object", ErrDecode)
		}
		maps.Copy(s.Data, data)
	}
	return s, nil
}

// DeserializeState decodes a State from its JSON form.
func DeserializeState(payload string) (State, error) {
	var s State
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if s.Name == "" {
		return State{}, fmt.Errorf("%w: missing state name", ErrDecode)
	}
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	return s, nil
}
