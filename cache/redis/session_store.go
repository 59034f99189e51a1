package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/authgate/domain"
)

// SessionStore implements domain.SessionStore using Redis. Values are
// JSON-serialized session payloads keyed by the provider subject identifier.
type SessionStore struct {
	client *redis.Client
	prefix string // Optional prefix for keys
	ttl    time.Duration
}

// NewSessionStore creates a new [SessionStore] instance. A zero ttl stores
// entries without expiry; expiry then falls entirely to the cookie.
func NewSessionStore(client *redis.Client, prefix string, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// redisKey returns the Redis key for a given session key.
func (s *SessionStore) redisKey(key string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, key)
}

// Get retrieves the session payload stored under key. A missing key is
// reported as domain.ErrSessionNotFound; every other failure, including a
// context deadline, is wrapped as domain.ErrStoreUnavailable.
func (s *SessionStore) Get(ctx context.Context, key string) (*domain.SessionPayload, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: get session: %v", domain.ErrStoreUnavailable, err)
	}

	var payload domain.SessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session payload: %w", err)
	}

	return &payload, nil
}

// Set stores the payload under key, overwriting any previous entry.
func (s *SessionStore) Set(ctx context.Context, key string, payload *domain.SessionPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal session payload: %w", err)
	}

	if err := s.client.Set(ctx, s.redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set session: %v", domain.ErrStoreUnavailable, err)
	}

	return nil
}

// Delete removes the session entry for key. Deleting an absent key succeeds.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: delete session: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Ensure interface compliance
var _ domain.SessionStore = (*SessionStore)(nil)
