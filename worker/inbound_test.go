package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrail/reqflow/classify"
	"github.com/casetrail/reqflow/email"
	"github.com/casetrail/reqflow/store"
	"github.com/casetrail/reqflow/workflow"
)

func reviewTransitions() []workflow.Transition {
	return []workflow.Transition{
		{From: "pending", Event: "ACKNOWLEDGED", To: "awaiting_response"},
		{From: "awaiting_response", Event: "DATA_RECEIVED", To: "completed"},
		{From: "awaiting_response", Event: "DEADLINE_EXPIRED", To: "escalated"},
	}
}

func reviewDefinition(enabled bool) workflow.Definition {
	classifier := classify.NewKeyword([]classify.Rule{
		{Phrase: "acknowledge", Event: "ACKNOWLEDGED"},
		{Phrase: "attached", Event: "DATA_RECEIVED"},
	})
	return workflow.Definition{
		Name: "review",
		NewMachine: func(state *workflow.State) *workflow.StateMachine {
			if state != nil {
				return workflow.RestoreStateMachine(*state, reviewTransitions())
			}
			return workflow.NewStateMachine("pending", reviewTransitions())
		},
		Classifier: classifier,
		Enabled:    enabled,
	}
}

func inboundFixture(t *testing.T, enabled bool) (*Inbound, store.Store, *email.Memory) {
	t.Helper()
	reg := workflow.NewRegistry()
	reg.Register(reviewDefinition(enabled))
	st := store.NewMemory()
	transport := email.NewMemory()
	driver := NewInbound(reg, st, transport)
	return driver, st, transport
}

func newReviewRequest(t *testing.T, ctx context.Context, st store.Store) store.Request {
	t.Helper()
	req := store.Request{Type: "review", TargetEmail: "vendor@example.com"}
	require.NoError(t, st.CreateRequest(ctx, &req))
	return req
}

func deliver(transport *email.Memory, subject, body string) string {
	return transport.Deliver(email.Message{
		From:     "vendor@example.com",
		Subject:  subject,
		BodyText: body,
	})
}

func TestInboundAdvancesRequest(t *testing.T) {
	driver, st, transport := inboundFixture(t, true)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	msgID := deliver(transport, email.FormatSubject("status update", req.ID), "we acknowledge receipt")

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Matched: 1, Advanced: 1}, stats)

	latest, err := st.LatestState(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "awaiting_response", latest["name"])

	updated, err := st.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, updated.LastResponseAt.IsZero())

	entries, err := st.EmailLog(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ACKNOWLEDGED", entries[0].Event)

	assert.True(t, transport.Processed(msgID))
}

func TestInboundResumesFromHistory(t *testing.T) {
	driver, st, transport := inboundFixture(t, true)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	require.NoError(t, st.AppendState(ctx, req.ID, workflow.NewState("awaiting_response").ToMap()))
	deliver(transport, email.FormatSubject("docs", req.ID), "records are attached")

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Advanced)

	latest, err := st.LatestState(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", latest["name"])
}

func TestInboundIgnoresUntaggedSubjects(t *testing.T) {
	driver, _, transport := inboundFixture(t, true)
	msgID := deliver(transport, "no tag here", "we acknowledge")

	stats, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.False(t, transport.Processed(msgID))
}

func TestInboundUnknownRequestMarkedProcessed(t *testing.T) {
	driver, _, transport := inboundFixture(t, true)
	msgID := deliver(transport, email.FormatSubject("ghost", 99), "we acknowledge")

	stats, err := driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1}, stats)
	assert.True(t, transport.Processed(msgID))
}

func TestInboundInvalidTransitionIsNotAnError(t *testing.T) {
	driver, st, transport := inboundFixture(t, true)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	// DATA_RECEIVED has no transition out of pending.
	msgID := deliver(transport, email.FormatSubject("docs", req.ID), "records are attached")

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Matched: 1}, stats)
	assert.True(t, transport.Processed(msgID))

	_, err = st.LatestState(ctx, req.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInboundSkipsTerminalRequest(t *testing.T) {
	driver, st, transport := inboundFixture(t, true)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	require.NoError(t, st.SetRequestStatus(ctx, req.ID, store.StatusCompleted))
	msgID := deliver(transport, email.FormatSubject("late", req.ID), "we acknowledge")

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Matched: 1}, stats)
	assert.True(t, transport.Processed(msgID))
}

func TestInboundSkipsDisabledWorkflow(t *testing.T) {
	driver, st, transport := inboundFixture(t, false)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	msgID := deliver(transport, email.FormatSubject("update", req.ID), "we acknowledge")

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Matched: 1}, stats)
	assert.True(t, transport.Processed(msgID))
}

func TestInboundUnmatchedTextMarkedProcessed(t *testing.T) {
	driver, st, transport := inboundFixture(t, true)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	msgID := deliver(transport, email.FormatSubject("noise", req.ID), "out of office until monday")

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Matched: 1}, stats)
	assert.True(t, transport.Processed(msgID))

	entries, err := st.EmailLog(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Event)
}

func TestInboundAppliesMessagesInArrivalOrder(t *testing.T) {
	driver, st, transport := inboundFixture(t, true)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	deliver(transport, email.FormatSubject("first", req.ID), "we acknowledge")
	deliver(transport, email.FormatSubject("second", req.ID), "records are attached")

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 2, Matched: 2, Advanced: 2}, stats)

	latest, err := st.LatestState(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", latest["name"])
}

func TestInboundStampsLastResponseWithMessageTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := workflow.NewRegistry()
	reg.Register(reviewDefinition(true))
	st := store.NewMemory()
	transport := email.NewMemory().WithNow(func() time.Time { return fixed })
	driver := NewInbound(reg, st, transport)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	deliver(transport, email.FormatSubject("update", req.ID), "we acknowledge")

	_, err := driver.Run(ctx)
	require.NoError(t, err)

	updated, err := st.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, updated.LastResponseAt.Equal(fixed))
}
