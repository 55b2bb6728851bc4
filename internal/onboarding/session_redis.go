package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "onboard:session:"

// RedisSessionStore keeps session state in Redis so serving instances can
// be restarted (or scaled out) without losing active conversations. TTL
// eviction is delegated to Redis key expiry.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store and verifies
// connectivity.
func NewRedisSessionStore(ctx context.Context, client *redis.Client, ttl time.Duration) (*RedisSessionStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

// Get returns the session state, or nil when absent or expired.
func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*State, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &state, nil
}

// Put stores the state and refreshes its TTL.
func (s *RedisSessionStore) Put(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.SessionID, err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+state.SessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("put session %s: %w", state.SessionID, err)
	}
	return nil
}

// Delete removes a session's state.
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the Redis client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
