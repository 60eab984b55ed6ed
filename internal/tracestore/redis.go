package tracestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/vk/botgraph/internal/trace"
)

// RedisStore keeps each trace under trace:{id} and points
// trace:last:{owner}:{graph}[:{event}] at the latest one.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ trace.Store = (*RedisStore)(nil)

// NewRedisStore connects to the Redis server at url. A zero ttl keeps
// traces forever.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func traceKey(id string) string { return "trace:" + id }

func lastKey(ownerID, graphID, eventType string) string {
	if eventType == "" {
		return fmt.Sprintf("trace:last:%s:%s", ownerID, graphID)
	}
	return fmt.Sprintf("trace:last:%s:%s:%s", ownerID, graphID, eventType)
}

// Save stores the trace and updates the latest pointers.
func (s *RedisStore) Save(ctx context.Context, t *trace.Trace) error {
	payload, err := sonic.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode trace %s: %w", t.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, traceKey(t.ID), payload, s.ttl)
		p.Set(ctx, lastKey(t.OwnerID, t.GraphID, ""), t.ID, s.ttl)
		p.Set(ctx, lastKey(t.OwnerID, t.GraphID, t.EventType), t.ID, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save trace %s: %w", t.ID, err)
	}
	return nil
}

// Get returns the trace with the given id.
func (s *RedisStore) Get(ctx context.Context, id string) (*trace.Trace, error) {
	payload, err := s.client.Get(ctx, traceKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, trace.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trace %s: %w", id, err)
	}
	return decode(payload)
}

// Last returns the latest saved trace of a graph.
func (s *RedisStore) Last(ctx context.Context, ownerID, graphID, eventType string) (*trace.Trace, error) {
	id, err := s.client.Get(ctx, lastKey(ownerID, graphID, eventType)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, trace.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest trace: %w", err)
	}
	return s.Get(ctx, id)
}

// Close closes the Redis client.
func (s *RedisStore) Close() error { return s.client.Close() }
