package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/casetrail/reqflow/email"
	"github.com/casetrail/reqflow/logger"
	"github.com/casetrail/reqflow/metrics"
	"github.com/casetrail/reqflow/store"
	"github.com/casetrail/reqflow/workflow"
)

// Inbound fetches unprocessed mail, ties each message to a request by the
// [REQ-<id>] subject tag, classifies the body against the request's workflow
// and applies the resulting transition.
//
// A message is marked processed once its outcome is final for this system:
// applied, handled as a no-op (invalid transition, terminal or unknown
// request, disabled workflow, unmatched text). Messages that fail on a
// transient error (classifier, store) stay unprocessed and are retried on
// the next run.
type Inbound struct {
	registry *workflow.Registry
	store    store.Store
	receiver *email.Receiver
	mailbox  string
	log      *slog.Logger
	now      func() time.Time
}

// InboundOption configures an Inbound driver.
type InboundOption func(*Inbound)

// WithMailbox sets the mailbox the driver fetches from. Defaults to "inbox".
func WithMailbox(mailbox string) InboundOption {
	return func(d *Inbound) { d.mailbox = mailbox }
}

// WithInboundLogger overrides the driver's logger.
func WithInboundLogger(log *slog.Logger) InboundOption {
	return func(d *Inbound) { d.log = log }
}

// WithInboundClock overrides the clock, for tests.
func WithInboundClock(now func() time.Time) InboundOption {
	return func(d *Inbound) { d.now = now }
}

// NewInbound builds an inbound dispatch driver on the given registry, store
// and mail transport.
func NewInbound(reg *workflow.Registry, st store.Store, transport email.Transport, opts ...InboundOption) *Inbound {
	d := &Inbound{
		registry: reg,
		store:    st,
		receiver: email.NewReceiver(transport),
		mailbox:  "inbox",
		log:      logger.With("component", "inbound"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run performs one dispatch pass over the mailbox.
//
// Messages without a well-formed request tag are dropped by the receiver and
// never counted. Per-message failures are counted in Stats.Errors and do not
// stop the pass; only a fetch failure aborts the run.
func (d *Inbound) Run(ctx context.Context) (Stats, error) {
	start := d.now()
	ctx, span := tracer.Start(ctx, "worker.inbound.run")
	defer span.End()

	var stats Stats
	var runErr error
	defer func() {
		metrics.ObserveDriverRun("inbound", time.Since(start), stats.Checked, stats.Matched, stats.Advanced, stats.Errors, runErr)
	}()

	grouped, err := d.receiver.FetchGrouped(ctx, d.mailbox)
	if err != nil {
		runErr = fmt.Errorf("fetch inbound mail: %w", err)
		d.log.ErrorContext(ctx, "inbound fetch failed", "mailbox", d.mailbox, "error", err)
		return stats, runErr
	}

	ids := make([]int64, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		for _, msg := range grouped[id] {
			stats.Checked++
			d.processMessage(ctx, id, msg, &stats)
		}
	}

	span.SetAttributes(
		attribute.Int("inbound.checked", stats.Checked),
		attribute.Int("inbound.matched", stats.Matched),
		attribute.Int("inbound.advanced", stats.Advanced),
		attribute.Int("inbound.errors", stats.Errors),
	)
	d.log.InfoContext(ctx, "inbound pass complete",
		"checked", stats.Checked, "matched", stats.Matched,
		"advanced", stats.Advanced, "errors", stats.Errors)
	return stats, nil
}

// processMessage handles one message end to end. Outcomes that will never
// change on retry mark the message processed; transient failures leave it in
// the mailbox.
func (d *Inbound) processMessage(ctx context.Context, requestID int64, msg email.Message, stats *Stats) {
	log := d.log.With("request_id", requestID, "message_id", msg.MessageID)

	req, err := d.store.GetRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		log.WarnContext(ctx, "message references unknown request")
		d.markProcessed(ctx, msg, stats, log)
		return
	}
	if err != nil {
		stats.Errors++
		log.ErrorContext(ctx, "load request failed", "error", err)
		return
	}
	stats.Matched++

	if req.Status.Terminal() {
		log.DebugContext(ctx, "request already terminal", "status", req.Status)
		d.markProcessed(ctx, msg, stats, log)
		return
	}

	def, ok := d.registry.Get(req.Type)
	if !ok || !def.Enabled {
		log.DebugContext(ctx, "workflow missing or disabled", "workflow", req.Type)
		d.markProcessed(ctx, msg, stats, log)
		return
	}

	machine, err := d.restoreMachine(ctx, req.ID, def)
	if err != nil {
		stats.Errors++
		log.ErrorContext(ctx, "restore state machine failed", "error", err)
		return
	}

	event, matched, err := def.Classifier.Classify(ctx, msg.BodyText)
	metrics.ObserveClassifierCall(def.Name, matched, err)
	if err != nil {
		stats.Errors++
		log.ErrorContext(ctx, "classification failed", "error", err)
		return
	}
	if !matched {
		log.DebugContext(ctx, "no event matched message")
		d.logEmail(ctx, req.ID, msg, "", log)
		d.markProcessed(ctx, msg, stats, log)
		return
	}

	if err := machine.Advance(ctx, event); err != nil {
		if errors.Is(err, workflow.ErrInvalidTransition) {
			log.WarnContext(ctx, "event not applicable in current state",
				"event", event, "state", machine.StateName())
			d.logEmail(ctx, req.ID, msg, event, log)
			d.markProcessed(ctx, msg, stats, log)
			return
		}
		stats.Errors++
		log.ErrorContext(ctx, "advance failed", "event", event, "error", err)
		return
	}

	if err := d.store.AppendState(ctx, req.ID, machine.State().ToMap()); err != nil {
		stats.Errors++
		log.ErrorContext(ctx, "persist state failed", "error", err)
		return
	}
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = d.now()
	}
	if err := d.store.TouchLastResponse(ctx, req.ID, receivedAt); err != nil {
		stats.Errors++
		log.ErrorContext(ctx, "touch last response failed", "error", err)
	}
	stats.Advanced++
	log.InfoContext(ctx, "request advanced", "event", event, "state", machine.StateName())

	d.logEmail(ctx, req.ID, msg, event, log)
	d.markProcessed(ctx, msg, stats, log)
}

// restoreMachine rebuilds the request's machine from its latest snapshot, or
// hands out a fresh one when no history exists yet.
func (d *Inbound) restoreMachine(ctx context.Context, requestID int64, def workflow.Definition) (*workflow.StateMachine, error) {
	latest, err := d.store.LatestState(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return def.NewMachine(nil), nil
	}
	if err != nil {
		return nil, err
	}
	state, err := workflow.StateFromMap(latest)
	if err != nil {
		return nil, err
	}
	return def.NewMachine(&state), nil
}

func (d *Inbound) logEmail(ctx context.Context, requestID int64, msg email.Message, event workflow.Event, log *slog.Logger) {
	entry := store.EmailLogEntry{
		RequestID:  requestID,
		MessageID:  msg.MessageID,
		From:       msg.From,
		Subject:    msg.Subject,
		Body:       msg.BodyText,
		Event:      string(event),
		ReceivedAt: msg.ReceivedAt,
	}
	if err := d.store.AppendEmailLog(ctx, entry); err != nil {
		log.WarnContext(ctx, "append email log failed", "error", err)
	}
}

func (d *Inbound) markProcessed(ctx context.Context, msg email.Message, stats *Stats, log *slog.Logger) {
	if err := d.receiver.MarkProcessed(ctx, msg.MessageID); err != nil {
		stats.Errors++
		log.ErrorContext(ctx, "mark processed failed", "error", err)
	}
}
