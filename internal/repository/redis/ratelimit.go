package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Requests are counted per user on a fixed window. Counters live in Redis so
// every API instance shares them.
const rateLimitWindow = time.Minute

// Decision is the outcome of a single rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter bounds per-user request rates on the API surface
type RateLimiter struct {
	client *Client
	limit  int
	burst  int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client, requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  requestsPerMinute,
		burst:  burst,
	}
}

// Allow counts one request for the user and decides whether it fits the
// current window
func (r *RateLimiter) Allow(ctx context.Context, userID uuid.UUID) (Decision, error) {
	key := userWindowKey(userID)
	resetAt := time.Now().Truncate(rateLimitWindow).Add(rateLimitWindow)

	pipe := r.client.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, rateLimitWindow)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Decision{}, fmt.Errorf("failed to count request: %w", err)
	}

	return decide(incr.Val(), r.limit, r.burst, resetAt), nil
}

// Reset clears the user's current window
func (r *RateLimiter) Reset(ctx context.Context, userID uuid.UUID) error {
	return r.client.rdb.Del(ctx, userWindowKey(userID)).Err()
}

func userWindowKey(userID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:user:%s", userID)
}

// decide applies the window accounting to an observed counter value. The
// burst allowance is folded into the ceiling rather than tracked separately.
func decide(count int64, limit, burst int, resetAt time.Time) Decision {
	ceiling := limit + burst

	d := Decision{
		Allowed:   count <= int64(ceiling),
		Limit:     ceiling,
		Remaining: ceiling - int(count),
		ResetAt:   resetAt,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}

	return d
}
