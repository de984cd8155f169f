package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Redis-backed Store suitable for multi-process deployments.
// Requests are stored as JSON values, the open-request set is an index, and
// each request's state history and email log are RPUSH lists so appends are
// O(1) and the latest snapshot is one LRANGE away.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix. Default is "reqflow".
func WithPrefix(prefix string) RedisOption {
	return func(s *Redis) {
		s.prefix = prefix
	}
}

// WithClock overrides the store's clock for deterministic tests.
func WithClock(now func() time.Time) RedisOption {
	return func(s *Redis) {
		s.now = now
	}
}

// NewRedis creates a Redis-backed store.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{
		client: client,
		prefix: "reqflow",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Redis) requestKey(id int64) string {
	return fmt.Sprintf("%s:request:%d", s.prefix, id)
}

func (s *Redis) historyKey(id int64) string {
	return fmt.Sprintf("%s:request:%d:history", s.prefix, id)
}

func (s *Redis) emailLogKey(id int64) string {
	return fmt.Sprintf("%s:request:%d:emails", s.prefix, id)
}

func (s *Redis) openSetKey() string {
	return s.prefix + ":requests:open"
}

func (s *Redis) idSeqKey() string {
	return s.prefix + ":requests:next_id"
}

// CreateRequest persists a new request and assigns its ID.
func (s *Redis) CreateRequest(ctx context.Context, req *Request) error {
	id, err := s.client.Incr(ctx, s.idSeqKey()).Result()
	if err != nil {
		return fmt.Errorf("redis incr failed: %w", err)
	}
	req.ID = id
	if req.Status == "" {
		req.Status = StatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	return s.saveRequest(ctx, *req)
}

// GetRequest returns the request with the given id.
func (s *Redis) GetRequest(ctx context.Context, id int64) (Request, error) {
	data, err := s.client.Get(ctx, s.requestKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("redis get failed: %w", err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("unmarshal request: %w", err)
	}
	return req, nil
}

// ListOpenRequests returns every non-terminal request, ordered by id.
func (s *Redis) ListOpenRequests(ctx context.Context) ([]Request, error) {
	members, err := s.client.SMembers(ctx, s.openSetKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.requestKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	out := make([]Request, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis get failed: %w", err)
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("unmarshal request: %w", err)
		}
		out = append(out, req)
	}
	return out, nil
}

// SetRequestStatus updates a request's status.
func (s *Redis) SetRequestStatus(ctx context.Context, id int64, status Status) error {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	req.Status = status
	if status.Terminal() && req.FinishedAt.IsZero() {
		req.FinishedAt = s.now()
	}
	return s.saveRequest(ctx, req)
}

// TouchLastResponse records when the latest inbound response arrived.
func (s *Redis) TouchLastResponse(ctx context.Context, id int64, at time.Time) error {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	req.LastResponseAt = at
	return s.saveRequest(ctx, req)
}

// AppendState appends a state snapshot to the request's history list.
func (s *Redis) AppendState(ctx context.Context, requestID int64, state map[string]any) error {
	if _, err := s.GetRequest(ctx, requestID); err != nil {
		return err
	}
	snap := Snapshot{RequestID: requestID, State: state, CreatedAt: s.now()}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.RPush(ctx, s.historyKey(requestID), data).Err(); err != nil {
		return fmt.Errorf("redis rpush failed: %w", err)
	}
	return nil
}

// LatestState returns the most recent snapshot's state payload.
func (s *Redis) LatestState(ctx context.Context, requestID int64) (map[string]any, error) {
	vals, err := s.client.LRange(ctx, s.historyKey(requestID), -1, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(vals[0]), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap.State, nil
}

// StateHistory returns the request's full history, oldest first.
func (s *Redis) StateHistory(ctx context.Context, requestID int64) ([]Snapshot, error) {
	vals, err := s.client.LRange(ctx, s.historyKey(requestID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	out := make([]Snapshot, 0, len(vals))
	for _, v := range vals {
		var snap Snapshot
		if err := json.Unmarshal([]byte(v), &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// AppendEmailLog records an email sent or received for a request.
func (s *Redis) AppendEmailLog(ctx context.Context, entry EmailLogEntry) error {
	if _, err := s.GetRequest(ctx, entry.RequestID); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal email log entry: %w", err)
	}
	if err := s.client.RPush(ctx, s.emailLogKey(entry.RequestID), data).Err(); err != nil {
		return fmt.Errorf("redis rpush failed: %w", err)
	}
	return nil
}

// EmailLog returns the request's email log, oldest first.
func (s *Redis) EmailLog(ctx context.Context, requestID int64) ([]EmailLogEntry, error) {
	vals, err := s.client.LRange(ctx, s.emailLogKey(requestID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	out := make([]EmailLogEntry, 0, len(vals))
	for _, v := range vals {
		var entry EmailLogEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal email log entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// saveRequest writes the request JSON and keeps the open-request index in
// step with the status.
func (s *Redis) saveRequest(ctx context.Context, req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.requestKey(req.ID), data, 0)
	member := strconv.FormatInt(req.ID, 10)
	if req.Status.Terminal() {
		pipe.SRem(ctx, s.openSetKey(), member)
	} else {
		pipe.SAdd(ctx, s.openSetKey(), member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}
