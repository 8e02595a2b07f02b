package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Redis is a fixed-window limiter shared by every process using the same
// Redis: INCR on each event, EXPIRE on the first hit of the window.
type Redis struct {
	client   redis.UniversalClient
	prefix   string
	policies Policies
	now      func() time.Time
}

// NewRedis builds a Redis limiter. now is only used to compute RetryAt.
func NewRedis(client redis.UniversalClient, prefix string, policies Policies, now func() time.Time) *Redis {
	if prefix == "" {
		prefix = "stagepass"
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, prefix: prefix, policies: policies, now: now}
}

func (l *Redis) Allow(ctx context.Context, action Action, subject string) (Decision, error) {
	policy, ok := l.policies.lookup(action)
	if !ok || subject == "" {
		return Decision{Allowed: true}, nil
	}

	key := counterKey(l.prefix, action, subject)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, unavailable("incr", err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.client.Expire(ctx, key, policy.Window).Err(); err != nil {
			return Decision{}, unavailable("expire", err)
		}
	}

	if count <= int64(policy.Limit) {
		return Decision{Allowed: true}, nil
	}

	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil {
		return Decision{}, unavailable("pttl", err)
	}
	if ttl <= 0 {
		// Lost the EXPIRE (crash between INCR and EXPIRE); re-arm the window.
		if err := l.client.Expire(ctx, key, policy.Window).Err(); err != nil {
			return Decision{}, unavailable("expire", err)
		}
		ttl = policy.Window
	}

	return Decision{Allowed: false, RetryAt: l.now().Add(ttl)}, nil
}

func unavailable(op string, err error) error {
	return oops.Code("RATE_LIMIT_UNAVAILABLE").With("op", op).Wrap(fmt.Errorf("%w: %w", ErrUnavailable, err))
}
