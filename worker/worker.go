// Package worker contains the periodic drivers that advance request
// workflows: inbound email dispatch and the deadline sweep.
//
// Drivers are single-flight jobs. Within one run, messages for a request are
// applied in arrival order and at most one transition per message; across
// runs, the store's append + read-latest discipline is the serialization
// point. A failure on one message or request is isolated and never aborts
// the batch.
package worker

import "go.opentelemetry.io/otel"

// tracer traces driver runs; the host wires the global provider.
var tracer = otel.Tracer("github.com/casetrail/reqflow/worker")

// Stats aggregates one driver run for observability.
//
// For inbound dispatch: Checked counts messages examined, Matched messages
// tied to an existing request, Advanced applied transitions. For the
// deadline sweep: Checked counts open requests, Matched elapsed deadlines.
// Errors counts unexpected per-item failures in both.
type Stats struct {
	Checked  int
	Matched  int
	Advanced int
	Errors   int
}

// add accumulates other into s.
func (s *Stats) add(other Stats) {
	s.Checked += other.Checked
	s.Matched += other.Matched
	s.Advanced += other.Advanced
	s.Errors += other.Errors
}
