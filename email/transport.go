// Package email defines the mail transport collaborator used by the workflow
// drivers: sending request-tagged mail and fetching inbound replies.
package email

import (
	"context"
	"errors"
	"time"
)

// Message is an inbound email as exposed by a transport.
type Message struct {
	MessageID  string
	From       string
	To         []string
	Subject    string
	BodyText   string
	BodyHTML   string
	ReceivedAt time.Time
	Headers    map[string]string
}

// SendRequest describes an outbound email. From is optional; transports fall
// back to their configured sender address.
type SendRequest struct {
	To       []string
	Subject  string
	BodyText string
	BodyHTML string
	From     string
	ReplyTo  string
}

// Transport moves mail in and out of the system. Implementations exist for
// AWS SES and for in-memory use in tests and development.
type Transport interface {
	// Send delivers an email and returns the provider's message id.
	Send(ctx context.Context, req SendRequest) (string, error)

	// Receive fetches unprocessed inbound messages. The mailbox argument is
	// transport-specific and may be empty for the default inbox.
	Receive(ctx context.Context, mailbox string) ([]Message, error)

	// MarkProcessed marks an inbound message as handled so later Receive
	// calls no longer return it.
	MarkProcessed(ctx context.Context, messageID string) error
}

// ErrReceiveUnsupported is returned by transports that can only send.
var ErrReceiveUnsupported = errors.New("transport cannot receive mail")

// ErrMessageNotFound is returned when marking an unknown message processed.
var ErrMessageNotFound = errors.New("message not found")
