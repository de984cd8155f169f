// Package store persists workflow requests, their append-only state history,
// and the per-request email log.
//
// History is the system's durability and audit mechanism: drivers append a
// snapshot after every successful transition and read only the latest one.
// Snapshots are never edited or deleted.
package store

import (
	"context"
	"errors"
	"time"
)

// Status is the denormalized lifecycle status of a request.
type Status string

// Status values.
const (
	StatusPending          Status = "PENDING"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusAwaitingResponse Status = "AWAITING_RESPONSE"
	StatusCompleted        Status = "COMPLETED"
	StatusCancelled        Status = "CANCELLED"
)

// Terminal reports whether the status closes the request. Drivers skip
// terminal requests.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Request is a long-running workflow request tracked by the system.
type Request struct {
	ID             int64     `json:"id"`
	ClientID       int64     `json:"client_id"`
	Type           string    `json:"type"`
	Status         Status    `json:"status"`
	TargetName     string    `json:"target_name"`
	TargetEmail    string    `json:"target_email"`
	CreatedAt      time.Time `json:"created_at"`
	LastResponseAt time.Time `json:"last_response_at,omitzero"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
}

// Snapshot is one entry in a request's append-only state history.
type Snapshot struct {
	RequestID int64          `json:"request_id"`
	State     map[string]any `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
}

// EmailLogEntry records one email sent or received for a request. Event
// carries the classified event name for inbound mail, empty when no event
// matched or the entry is outgoing.
type EmailLogEntry struct {
	RequestID  int64     `json:"request_id"`
	MessageID  string    `json:"message_id,omitempty"`
	Outgoing   bool      `json:"outgoing"`
	From       string    `json:"from,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Event      string    `json:"event,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitzero"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrNotFound is returned when a request does not exist, or when reading the
// latest state of a request with no recorded history.
var ErrNotFound = errors.New("not found")

// Store is the persistence collaborator consumed by the drivers and the
// administrative surface.
type Store interface {
	// CreateRequest persists a new request and assigns its ID.
	CreateRequest(ctx context.Context, req *Request) error

	// GetRequest returns the request with the given id.
	GetRequest(ctx context.Context, id int64) (Request, error)

	// ListOpenRequests returns every request whose status is non-terminal,
	// ordered by id.
	ListOpenRequests(ctx context.Context) ([]Request, error)

	// SetRequestStatus updates a request's status, stamping FinishedAt when
	// the new status is terminal.
	SetRequestStatus(ctx context.Context, id int64, status Status) error

	// TouchLastResponse records when the latest inbound response arrived.
	TouchLastResponse(ctx context.Context, id int64, at time.Time) error

	// AppendState appends a state snapshot to the request's history.
	AppendState(ctx context.Context, requestID int64, state map[string]any) error

	// LatestState returns the most recent state snapshot's payload, or
	// ErrNotFound when the request has no history.
	LatestState(ctx context.Context, requestID int64) (map[string]any, error)

	// StateHistory returns the request's full history, oldest first.
	StateHistory(ctx context.Context, requestID int64) ([]Snapshot, error)

	// AppendEmailLog records an email sent or received for a request.
	AppendEmailLog(ctx context.Context, entry EmailLogEntry) error

	// EmailLog returns the request's email log, oldest first.
	EmailLog(ctx context.Context, requestID int64) ([]EmailLogEntry, error)
}
