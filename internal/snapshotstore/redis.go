package snapshotstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"planloop/internal/schema"
)

// RedisStore is a Store backed by Redis, for callers that want a
// snapshot to survive past the lifetime of the orchestrating process.
// Grounded on goadesign-goa-ai's registry.ResultStreamManager (Redis
// client field, key-prefix convention, context-scoped calls) and
// itsneelabh-gomind's RedisCheckpointStore (Save/Load/TTL shape).
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the default "planloop:snapshot" key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// WithTTL sets an expiry on stored snapshots. Zero means no expiry.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore connects to redisURL (e.g. "redis://localhost:6379/0")
// and verifies connectivity with a bounded ping before returning.
func NewRedisStore(ctx context.Context, redisURL string, opts ...RedisStoreOption) (*RedisStore, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: parsing redis url: %w", err)
	}

	s := &RedisStore{
		client:    redis.NewClient(parsed),
		keyPrefix: "planloop:snapshot",
	}
	for _, opt := range opts {
		opt(s)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("snapshotstore: connecting to redis at %s: %w", redisURL, err)
	}
	return s, nil
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, sessionID)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, snap schema.Snapshot) error {
	data, err := marshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("snapshotstore: marshaling snapshot for session %s: %w", snap.SessionID, err)
	}
	if err := s.client.Set(ctx, s.key(snap.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("snapshotstore: writing snapshot for session %s: %w", snap.SessionID, err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (schema.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return schema.Snapshot{}, fmt.Errorf("snapshotstore: no snapshot for session %q", sessionID)
	}
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("snapshotstore: reading snapshot for session %s: %w", sessionID, err)
	}
	return unmarshalSnapshot(data)
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
