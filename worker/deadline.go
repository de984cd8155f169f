package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/casetrail/reqflow/logger"
	"github.com/casetrail/reqflow/metrics"
	"github.com/casetrail/reqflow/store"
	"github.com/casetrail/reqflow/workflow"
)

// DeadlineKey is the state-data key the sweep reads the deadline from.
// Workflows that want deadline handling stamp it as an RFC 3339 timestamp.
const DeadlineKey = "deadline_at"

// Deadline sweeps open requests and fires deadline events on those whose
// deadline has elapsed.
//
// For each elapsed request the sweep tries the machine's available events
// whose names contain DEADLINE, in declaration order, and applies the first
// that the machine accepts. A request where no deadline event applies (wrong
// state, guard not met) is left untouched; it is not an error.
type Deadline struct {
	registry    *workflow.Registry
	store       store.Store
	concurrency int
	log         *slog.Logger
	now         func() time.Time
}

// DeadlineOption configures a Deadline sweeper.
type DeadlineOption func(*Deadline)

// WithConcurrency bounds the number of requests swept in parallel.
// Values below 2 keep the sweep sequential.
func WithConcurrency(n int) DeadlineOption {
	return func(d *Deadline) { d.concurrency = n }
}

// WithDeadlineLogger overrides the sweeper's logger.
func WithDeadlineLogger(log *slog.Logger) DeadlineOption {
	return func(d *Deadline) { d.log = log }
}

// WithDeadlineClock overrides the clock, for tests.
func WithDeadlineClock(now func() time.Time) DeadlineOption {
	return func(d *Deadline) { d.now = now }
}

// NewDeadline builds a deadline sweeper on the given registry and store.
func NewDeadline(reg *workflow.Registry, st store.Store, opts ...DeadlineOption) *Deadline {
	d := &Deadline{
		registry: reg,
		store:    st,
		log:      logger.With("component", "deadline"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run performs one sweep over all open requests. Per-request failures are
// counted and do not stop the sweep; only the open-request listing aborts it.
func (d *Deadline) Run(ctx context.Context) (Stats, error) {
	start := d.now()
	ctx, span := tracer.Start(ctx, "worker.deadline.run")
	defer span.End()

	var stats Stats
	var runErr error
	defer func() {
		metrics.ObserveDriverRun("deadline", time.Since(start), stats.Checked, stats.Matched, stats.Advanced, stats.Errors, runErr)
	}()

	open, err := d.store.ListOpenRequests(ctx)
	if err != nil {
		runErr = fmt.Errorf("list open requests: %w", err)
		d.log.ErrorContext(ctx, "deadline sweep failed to list requests", "error", err)
		return stats, runErr
	}

	if d.concurrency > 1 {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.concurrency)
		for _, req := range open {
			g.Go(func() error {
				s := d.sweepRequest(gctx, req)
				mu.Lock()
				stats.add(s)
				mu.Unlock()
				return nil
			})
		}
		g.Wait()
	} else {
		for _, req := range open {
			stats.add(d.sweepRequest(ctx, req))
		}
	}

	span.SetAttributes(
		attribute.Int("deadline.checked", stats.Checked),
		attribute.Int("deadline.matched", stats.Matched),
		attribute.Int("deadline.advanced", stats.Advanced),
		attribute.Int("deadline.errors", stats.Errors),
	)
	d.log.InfoContext(ctx, "deadline sweep complete",
		"checked", stats.Checked, "matched", stats.Matched,
		"advanced", stats.Advanced, "errors", stats.Errors)
	return stats, nil
}

// sweepRequest checks one request and applies at most one deadline event.
func (d *Deadline) sweepRequest(ctx context.Context, req store.Request) Stats {
	stats := Stats{Checked: 1}
	log := d.log.With("request_id", req.ID)

	def, ok := d.registry.Get(req.Type)
	if !ok || !def.Enabled {
		return stats
	}

	latest, err := d.store.LatestState(ctx, req.ID)
	if errors.Is(err, store.ErrNotFound) {
		return stats
	}
	if err != nil {
		stats.Errors++
		log.ErrorContext(ctx, "load latest state failed", "error", err)
		return stats
	}
	state, err := workflow.StateFromMap(latest)
	if err != nil {
		stats.Errors++
		log.ErrorContext(ctx, "decode state failed", "error", err)
		return stats
	}
	machine := def.NewMachine(&state)

	raw, ok := machine.StateData(DeadlineKey)
	if !ok {
		return stats
	}
	deadline, err := parseDeadline(raw)
	if err != nil {
		stats.Errors++
		log.ErrorContext(ctx, "unreadable deadline", "value", raw, "error", err)
		return stats
	}
	if deadline.After(d.now()) {
		return stats
	}
	stats.Matched++

	for _, event := range machine.AvailableEvents() {
		if !event.IsDeadline() {
			continue
		}
		err := machine.Advance(ctx, event)
		if errors.Is(err, workflow.ErrInvalidTransition) {
			log.DebugContext(ctx, "deadline event not applicable", "event", event)
			continue
		}
		if err != nil {
			stats.Errors++
			log.ErrorContext(ctx, "deadline advance failed", "event", event, "error", err)
			return stats
		}
		if err := d.store.AppendState(ctx, req.ID, machine.State().ToMap()); err != nil {
			stats.Errors++
			log.ErrorContext(ctx, "persist state failed", "error", err)
			return stats
		}
		stats.Advanced++
		log.InfoContext(ctx, "deadline fired", "event", event, "state", machine.StateName())
		return stats
	}

	log.DebugContext(ctx, "deadline elapsed but no deadline event applied", "state", machine.StateName())
	return stats
}

// parseDeadline reads a deadline value out of the state bag. Values arrive
// as RFC 3339 strings after a serialization round trip, but a freshly built
// machine may still hold a time.Time.
func parseDeadline(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse deadline %q: %w", v, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("deadline has unsupported type %T", raw)
	}
}
