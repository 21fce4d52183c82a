package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
)

// Ensure interface compliance
var _ ports.SessionStore = (*RedisStore)(nil)

// RedisStore keeps per-session risk state in a Redis hash per session id,
// expiring with the session TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client; used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(sessionID string) string {
	return "session:" + sessionID
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, state domain.SessionState, ttl time.Duration) error {
	k := key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, map[string]any{
		"user_id":    state.UserID,
		"risk_level": string(state.RiskLevel),
		"risk_score": state.RiskScore,
		"updated_at": state.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"reason":     state.Reason,
	})
	pipe.Expire(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}
	return nil
}

// Get returns the session state, or nil when the key has expired or was
// never written.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	fields, err := s.client.HGetAll(ctx, key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := &domain.SessionState{
		UserID:    fields["user_id"],
		RiskLevel: domain.RiskLevel(fields["risk_level"]),
		Reason:    fields["reason"],
	}
	if v, err := strconv.Atoi(fields["risk_score"]); err == nil {
		state.RiskScore = v
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		state.UpdatedAt = t
	}
	return state, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, key(sessionID)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
