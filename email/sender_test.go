package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRequestID(t *testing.T) {
	cases := []struct {
		subject string
		wantID  int64
		wantOK  bool
	}{
		{"Re: [REQ-456] Original", 456, true},
		{"[REQ-1] hello", 1, true},
		{"fwd: fwd: [REQ-9000] subject [REQ-1]", 9000, true},
		{"no tag here", 0, false},
		{"[REQ-abc] malformed", 0, false},
		{"[req-456] wrong case", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.subject, func(t *testing.T) {
			id, ok := ExtractRequestID(tc.subject)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantID, id)
		})
	}
}

func TestFormatSubjectRoundTrip(t *testing.T) {
	subject := FormatSubject("Data request for J. Doe", 42)
	assert.Equal(t, "[REQ-42] Data request for J. Doe", subject)

	id, ok := ExtractRequestID(subject)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestSenderTagsSubject(t *testing.T) {
	transport := NewMemory()
	sender := NewSender(transport)

	_, err := sender.SendForRequest(context.Background(), 7, SendRequest{
		To:       []string{"dpo@example.com"},
		Subject:  "Acknowledgement required",
		BodyText: "Please confirm receipt.",
	})
	require.NoError(t, err)

	outbox := transport.Outbox()
	require.Len(t, outbox, 1)
	assert.Equal(t, "[REQ-7] Acknowledgement required", outbox[0].Subject)
}

func TestReceiverFetchGrouped(t *testing.T) {
	transport := NewMemory()
	transport.Deliver(Message{Subject: "[REQ-1] first", BodyText: "a"})
	transport.Deliver(Message{Subject: "no tag", BodyText: "dropped"})
	transport.Deliver(Message{Subject: "Re: [REQ-1] second", BodyText: "b"})
	transport.Deliver(Message{Subject: "[REQ-2] other", BodyText: "c"})

	receiver := NewReceiver(transport)
	grouped, err := receiver.FetchGrouped(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, grouped, 2)
	require.Len(t, grouped[1], 2)
	assert.Equal(t, "a", grouped[1][0].BodyText)
	assert.Equal(t, "b", grouped[1][1].BodyText)
	require.Len(t, grouped[2], 1)
}

func TestMemoryMarkProcessed(t *testing.T) {
	transport := NewMemory()
	id := transport.Deliver(Message{Subject: "[REQ-1] ping"})

	msgs, err := transport.Receive(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, transport.MarkProcessed(context.Background(), id))
	msgs, err = transport.Receive(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, transport.MarkProcessed(context.Background(), "missing"), ErrMessageNotFound)
}
