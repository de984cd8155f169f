package email

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process transport for tests and development. Outbound mail
// is captured in an outbox; inbound mail is injected with Deliver and handed
// out by Receive until marked processed.
type Memory struct {
	mu        sync.Mutex
	outbox    []Message
	inbox     []Message
	processed map[string]bool
	now       func() time.Time
}

// NewMemory creates an empty in-memory transport.
func NewMemory() *Memory {
	return &Memory{
		processed: make(map[string]bool),
		now:       time.Now,
	}
}

// WithNow overrides the transport's clock for deterministic tests.
func (m *Memory) WithNow(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Send captures the email in the outbox and returns a generated message id.
func (m *Memory) Send(ctx context.Context, req SendRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.outbox = append(m.outbox, Message{
		MessageID:  id,
		From:       req.From,
		To:         req.To,
		Subject:    req.Subject,
		BodyText:   req.BodyText,
		BodyHTML:   req.BodyHTML,
		ReceivedAt: m.now(),
	})
	return id, nil
}

// Deliver injects an inbound message. A missing message id is filled in.
func (m *Memory) Deliver(msg Message) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = m.now()
	}
	m.inbox = append(m.inbox, msg)
	return msg.MessageID
}

// Receive returns undelivered inbound messages in arrival order.
func (m *Memory) Receive(ctx context.Context, mailbox string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Message
	for _, msg := range m.inbox {
		if !m.processed[msg.MessageID] {
			out = append(out, msg)
		}
	}
	return out, nil
}

// MarkProcessed marks an inbound message as handled.
func (m *Memory) MarkProcessed(ctx context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.inbox {
		if msg.MessageID == messageID {
			m.processed[messageID] = true
			return nil
		}
	}
	return ErrMessageNotFound
}

// Outbox returns a copy of all sent messages.
func (m *Memory) Outbox() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, len(m.outbox))
	copy(out, m.outbox)
	return out
}

// Processed reports whether the given inbound message was marked processed.
func (m *Memory) Processed(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed[messageID]
}
