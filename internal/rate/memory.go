package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

const memoryIdleTTL = 2 * time.Hour

// Memory is a per-process token bucket limiter. Each (action, subject) gets
// a bucket refilled at Limit per Window holding up to Burst tokens. Buckets
// idle for longer than two hours are pruned.
type Memory struct {
	policies Policies
	now      func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	limiter  *xrate.Limiter
	lastSeen time.Time
}

func NewMemory(policies Policies, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		policies: policies,
		now:      now,
		buckets:  make(map[string]*bucket),
	}
}

func (l *Memory) Allow(_ context.Context, action Action, subject string) (Decision, error) {
	policy, ok := l.policies.lookup(action)
	if !ok || subject == "" {
		return Decision{Allowed: true}, nil
	}

	now := l.now()
	key := counterKey("", action, subject)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		burst := policy.Burst
		if burst <= 0 {
			burst = policy.Limit
		}
		every := policy.Window / time.Duration(policy.Limit)
		b = &bucket{limiter: xrate.NewLimiter(xrate.Every(every), burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAt: now.Add(policy.Window)}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAt: now.Add(delay)}, nil
	}

	return Decision{Allowed: true}, nil
}

func (l *Memory) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < memoryIdleTTL {
		return
	}
	l.lastPrune = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > memoryIdleTTL {
			delete(l.buckets, key)
		}
	}
}
