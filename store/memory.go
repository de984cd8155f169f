package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests, development, and single-instance
// deployments. It is safe for concurrent use and hands out deep copies so
// callers can't mutate persisted snapshots.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	requests map[int64]Request
	history  map[int64][]Snapshot
	emails   map[int64][]EmailLogEntry
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		requests: make(map[int64]Request),
		history:  make(map[int64][]Snapshot),
		emails:   make(map[int64][]EmailLogEntry),
		now:      time.Now,
	}
}

// WithNow overrides the store's clock for deterministic tests.
func (m *Memory) WithNow(now func() time.Time) *Memory {
	m.now = now
	return m
}

// CreateRequest persists a new request and assigns its ID.
func (m *Memory) CreateRequest(ctx context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	req.ID = m.nextID
	if req.Status == "" {
		req.Status = StatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = m.now()
	}
	m.requests[req.ID] = *req
	return nil
}

// GetRequest returns the request with the given id.
func (m *Memory) GetRequest(ctx context.Context, id int64) (Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

// ListOpenRequests returns every non-terminal request, ordered by id.
func (m *Memory) ListOpenRequests(ctx context.Context) ([]Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Request
	for _, req := range m.requests {
		if !req.Status.Terminal() {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetRequestStatus updates a request's status.
func (m *Memory) SetRequestStatus(ctx context.Context, id int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	req.Status = status
	if status.Terminal() && req.FinishedAt.IsZero() {
		req.FinishedAt = m.now()
	}
	m.requests[id] = req
	return nil
}

// TouchLastResponse records when the latest inbound response arrived.
func (m *Memory) TouchLastResponse(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	req.LastResponseAt = at
	m.requests[id] = req
	return nil
}

// AppendState appends a state snapshot to the request's history.
func (m *Memory) AppendState(ctx context.Context, requestID int64, state map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[requestID]; !ok {
		return ErrNotFound
	}
	m.history[requestID] = append(m.history[requestID], Snapshot{
		RequestID: requestID,
		State:     deepCopyMap(state),
		CreatedAt: m.now(),
	})
	return nil
}

// LatestState returns the most recent snapshot's state payload.
func (m *Memory) LatestState(ctx context.Context, requestID int64) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.history[requestID]
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return deepCopyMap(snaps[len(snaps)-1].State), nil
}

// StateHistory returns the request's full history, oldest first.
func (m *Memory) StateHistory(ctx context.Context, requestID int64) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.history[requestID]
	out := make([]Snapshot, len(snaps))
	for i, s := range snaps {
		out[i] = Snapshot{RequestID: s.RequestID, State: deepCopyMap(s.State), CreatedAt: s.CreatedAt}
	}
	return out, nil
}

// AppendEmailLog records an email sent or received for a request.
func (m *Memory) AppendEmailLog(ctx context.Context, entry EmailLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[entry.RequestID]; !ok {
		return ErrNotFound
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.emails[entry.RequestID] = append(m.emails[entry.RequestID], entry)
	return nil
}

// EmailLog returns the request's email log, oldest first.
func (m *Memory) EmailLog(ctx context.Context, requestID int64) ([]EmailLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.emails[requestID]
	out := make([]EmailLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// deepCopyMap copies a JSON-shaped map so stored snapshots never alias caller
// memory.
func deepCopyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
