package workflow

import (
	"errors"
	"reflect"
	"testing"
)

func TestStateRoundTripMap(t *testing.T) {
	s := State{Name: "pending", Data: map[string]any{"k": "v", "n": 3.0}}

	got, err := StateFromMap(s.ToMap())
	if err != nil {
		t.Fatalf("StateFromMap: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Errorf("round trip = %+v, want %+v", got, s)
	}
}

func TestStateRoundTripJSON(t *testing.T) {
	s := State{Name: "awaiting_response", Data: map[string]any{
		"deadline_at": "2026-09-25T00:00:00Z",
	}}

	payload, err := s.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := DeserializeState(payload)
	if err != nil {
		t.Fatalf("DeserializeState: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Errorf("round trip = %+v, want %+v", got, s)
	}
}

func TestNewStateDataNeverNil(t *testing.T) {
	s := NewState("pending")
	if s.Data == nil {
		t.Fatal("NewState returned nil Data")
	}

	got, err := DeserializeState(`{"name":"pending"}`)
	if err != nil {
		t.Fatalf("DeserializeState: %v", err)
	}
	if got.Data == nil {
		t.Fatal("DeserializeState returned nil Data")
	}
}

func TestDeserializeStateMalformed(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", "{nope"},
		{"missing name", `{"data":{}}`},
		{"wrong type", `{"name":7}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DeserializeState(tc.payload); !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got: %v", err)
			}
		})
	}
}

func TestStateFromMapMalformed(t *testing.T) {
	cases := []struct {
		name string
		m    map[string]any
	}{
		{"missing name", map[string]any{"data": map[string]any{}}},
		{"name not string", map[string]any{"name": 12}},
		{"data not object", map[string]any{"name": "x", "data": "oops"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := StateFromMap(tc.m); !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got: %v", err)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := State{Name: "pending", Data: map[string]any{"k": "v"}}
	c := s.Clone()
	c.Data["k"] = "changed"
	if s.Data["k"] != "v" {
		t.Error("Clone shares the data bag with the original")
	}
}
