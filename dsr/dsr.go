// Package dsr defines the built-in GDPR data subject request workflow: the
// request lifecycle from first outreach through data receipt, escalation on a
// missed response deadline, and cancellation.
package dsr

import (
	"context"
	"fmt"
	"time"

	"github.com/casetrail/reqflow/classify"
	"github.com/casetrail/reqflow/worker"
	"github.com/casetrail/reqflow/workflow"
)

// TypeName is the request type this workflow is registered under.
const TypeName = "GDPR_DATA_REQUEST"

// ResponseDeadline is how long a data controller has to respond before the
// request escalates. GDPR Article 12 allows one month; 30 days approximates
// it without calendar arithmetic.
const ResponseDeadline = 30 * 24 * time.Hour

// Events the workflow reacts to.
const (
	EventAcknowledged    workflow.Event = "ACKNOWLEDGED"
	EventDataReceived    workflow.Event = "DATA_RECEIVED"
	EventInfoRequested   workflow.Event = "INFO_REQUESTED"
	EventDeadlineExpired workflow.Event = "DEADLINE_EXPIRED"
	EventCancelled       workflow.Event = "CANCELLED"
)

// State names.
const (
	StatePending          = "pending"
	StateAwaitingResponse = "awaiting_response"
	StateNeedsInfo        = "needs_info"
	StateCompleted        = "completed"
	StateEscalated        = "escalated"
	StateCancelled        = "cancelled"
)

// dataReceivedAtKey records when the controller's data arrived.
const dataReceivedAtKey = "data_received_at"

// Option configures the workflow definition.
type Option func(*options)

type options struct {
	classifier workflow.Classifier
	now        func() time.Time
}

// WithClassifier replaces the default keyword classifier, typically with an
// LLM-backed one.
func WithClassifier(c workflow.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithClock overrides the clock used for deadline stamping and the
// escalation guard, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Rules are the default keyword rules for classifying controller replies.
func Rules() []classify.Rule {
	return []classify.Rule{
		{Phrase: "acknowledge", Event: EventAcknowledged},
		{Phrase: "confirm receipt", Event: EventAcknowledged},
		{Phrase: "we have received your request", Event: EventAcknowledged},
		{Phrase: "attached", Event: EventDataReceived},
		{Phrase: "enclosed", Event: EventDataReceived},
		{Phrase: "your data export", Event: EventDataReceived},
		{Phrase: "verify your identity", Event: EventInfoRequested},
		{Phrase: "additional information", Event: EventInfoRequested},
		{Phrase: "please provide", Event: EventInfoRequested},
		{Phrase: "request has been withdrawn", Event: EventCancelled},
	}
}

// Definition builds the workflow definition.
func Definition(opts ...Option) workflow.Definition {
	o := options{
		classifier: classify.NewKeyword(Rules()),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return workflow.Definition{
		Name: TypeName,
		NewMachine: func(state *workflow.State) *workflow.StateMachine {
			return newMachine(state, o.now)
		},
		Classifier: o.classifier,
		Enabled:    true,
	}
}

// Register registers the workflow on the given registry.
func Register(reg *workflow.Registry, opts ...Option) {
	reg.Register(Definition(opts...))
}

// newMachine builds a machine positioned at state, or a fresh pending machine
// with the response deadline stamped into its data bag.
func newMachine(state *workflow.State, now func() time.Time) *workflow.StateMachine {
	if state == nil {
		fresh := workflow.NewState(StatePending)
		fresh.Data[worker.DeadlineKey] = now().Add(ResponseDeadline).UTC().Format(time.RFC3339)
		state = &fresh
	}

	// The escalation guard and receipt action read and write the machine's
	// live state, so the machine variable is captured before construction.
	var machine *workflow.StateMachine

	deadlineElapsed := func(ctx context.Context) (bool, error) {
		raw, ok := machine.StateData(worker.DeadlineKey)
		if !ok {
			return false, nil
		}
		s, ok := raw.(string)
		if !ok {
			return false, fmt.Errorf("deadline has unsupported type %T", raw)
		}
		deadline, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return false, fmt.Errorf("parse deadline %q: %w", s, err)
		}
		return !deadline.After(now()), nil
	}

	recordReceipt := func(ctx context.Context) error {
		machine.SetStateData(dataReceivedAtKey, now().UTC().Format(time.RFC3339))
		return nil
	}

	transitions := []workflow.Transition{
		{From: StatePending, Event: EventAcknowledged, To: StateAwaitingResponse},
		{From: StatePending, Event: EventDataReceived, To: StateCompleted, Action: recordReceipt},
		{From: StatePending, Event: EventCancelled, To: StateCancelled},

		{From: StateAwaitingResponse, Event: EventDataReceived, To: StateCompleted, Action: recordReceipt},
		{From: StateAwaitingResponse, Event: EventInfoRequested, To: StateNeedsInfo},
		{From: StateAwaitingResponse, Event: EventDeadlineExpired, To: StateEscalated, Guard: deadlineElapsed},
		{From: StateAwaitingResponse, Event: EventCancelled, To: StateCancelled},

		{From: StateNeedsInfo, Event: EventDataReceived, To: StateCompleted, Action: recordReceipt},
		{From: StateNeedsInfo, Event: EventDeadlineExpired, To: StateEscalated, Guard: deadlineElapsed},
		{From: StateNeedsInfo, Event: EventCancelled, To: StateCancelled},
	}

	machine = workflow.RestoreStateMachine(*state, transitions)
	return machine
}
