package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrail/reqflow/store"
	"github.com/casetrail/reqflow/workflow"
)

func deadlineFixture(t *testing.T, opts ...DeadlineOption) (*Deadline, store.Store) {
	t.Helper()
	reg := workflow.NewRegistry()
	reg.Register(reviewDefinition(true))
	st := store.NewMemory()
	return NewDeadline(reg, st, opts...), st
}

func stateWithDeadline(name string, at time.Time) map[string]any {
	state := workflow.State{Name: name, Data: map[string]any{
		DeadlineKey: at.Format(time.RFC3339),
	}}
	return state.ToMap()
}

func TestDeadlineFiresElapsedDeadline(t *testing.T) {
	driver, st := deadlineFixture(t)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, st.AppendState(ctx, req.ID, stateWithDeadline("awaiting_response", past)))

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Matched: 1, Advanced: 1}, stats)

	latest, err := st.LatestState(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "escalated", latest["name"])
}

func TestDeadlineSkipsFutureDeadline(t *testing.T) {
	driver, st := deadlineFixture(t)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	future := time.Now().Add(time.Hour)
	require.NoError(t, st.AppendState(ctx, req.ID, stateWithDeadline("awaiting_response", future)))

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1}, stats)

	latest, err := st.LatestState(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "awaiting_response", latest["name"])
}

func TestDeadlineSkipsRequestsWithoutDeadline(t *testing.T) {
	driver, st := deadlineFixture(t)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	require.NoError(t, st.AppendState(ctx, req.ID, workflow.NewState("awaiting_response").ToMap()))

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1}, stats)
}

func TestDeadlineSkipsRequestsWithoutHistory(t *testing.T) {
	driver, st := deadlineFixture(t)
	ctx := context.Background()

	newReviewRequest(t, ctx, st)

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1}, stats)
}

func TestDeadlineToleratesInapplicableEvent(t *testing.T) {
	// The deadline elapsed, but the machine's state has no DEADLINE
	// transition. The sweep must move on without counting an error.
	driver, st := deadlineFixture(t)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, st.AppendState(ctx, req.ID, stateWithDeadline("pending", past)))

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Matched: 1}, stats)

	latest, err := st.LatestState(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", latest["name"])
}

func TestDeadlineUnreadableDeadlineCountsError(t *testing.T) {
	driver, st := deadlineFixture(t)
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	state := workflow.State{Name: "awaiting_response", Data: map[string]any{DeadlineKey: "not a timestamp"}}
	require.NoError(t, st.AppendState(ctx, req.ID, state.ToMap()))

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 1, Errors: 1}, stats)
}

func TestDeadlineClockOverride(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	driver, st := deadlineFixture(t, WithDeadlineClock(func() time.Time { return fixed }))
	ctx := context.Background()

	req := newReviewRequest(t, ctx, st)
	// One minute before the fixed clock: elapsed.
	require.NoError(t, st.AppendState(ctx, req.ID, stateWithDeadline("awaiting_response", fixed.Add(-time.Minute))))

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Advanced)
}

func TestDeadlineConcurrentSweep(t *testing.T) {
	driver, st := deadlineFixture(t, WithConcurrency(4))
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	for i := 0; i < 8; i++ {
		req := newReviewRequest(t, ctx, st)
		require.NoError(t, st.AppendState(ctx, req.ID, stateWithDeadline("awaiting_response", past)))
	}

	stats, err := driver.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Checked: 8, Matched: 8, Advanced: 8}, stats)
}
