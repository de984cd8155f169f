package email

import "context"

// Receiver fetches inbound workflow mail and groups it by request.
type Receiver struct {
	transport Transport
}

// NewReceiver creates a receiver over the given transport.
func NewReceiver(transport Transport) *Receiver {
	return &Receiver{transport: transport}
}

// Fetch returns unprocessed inbound messages.
func (r *Receiver) Fetch(ctx context.Context, mailbox string) ([]Message, error) {
	return r.transport.Receive(ctx, mailbox)
}

// MarkProcessed marks an inbound message as handled.
func (r *Receiver) MarkProcessed(ctx context.Context, messageID string) error {
	return r.transport.MarkProcessed(ctx, messageID)
}

// FetchGrouped fetches inbound messages and groups them by the request id
// embedded in their subject, preserving arrival order within each group.
// Messages without a well-formed id tag are excluded.
func (r *Receiver) FetchGrouped(ctx context.Context, mailbox string) (map[int64][]Message, error) {
	messages, err := r.Fetch(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	grouped := make(map[int64][]Message)
	for _, msg := range messages {
		id, ok := ExtractRequestID(msg.Subject)
		if !ok {
			continue
		}
		grouped[id] = append(grouped[id], msg)
	}
	return grouped, nil
}
