package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsmates/agentcore/internal/domain"
)

const sessionCachePrefix = "session:"

// SessionCache keeps a hot copy of active sessions so resume checks avoid a
// database round trip. Postgres stays authoritative; a miss here is never an
// error and a hit past its TTL simply falls through to the store.
type SessionCache struct {
	client *Client
}

// NewSessionCache creates a new session cache
func NewSessionCache(client *Client) *SessionCache {
	return &SessionCache{client: client}
}

// Get retrieves a cached session by ID
func (c *SessionCache) Get(ctx context.Context, id string) (*domain.Session, error) {
	key := sessionCachePrefix + id

	data, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, nil // Cache miss
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Set caches a session. The TTL matches the inactivity window, so an
// untouched entry ages out together with the session it mirrors.
func (c *SessionCache) Set(ctx context.Context, session *domain.Session) error {
	key := sessionCachePrefix + session.ID

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return c.client.rdb.Set(ctx, key, data, domain.SessionTimeout).Err()
}

// Invalidate removes a cached session
func (c *SessionCache) Invalidate(ctx context.Context, id string) error {
	return c.client.rdb.Del(ctx, sessionCachePrefix+id).Err()
}
