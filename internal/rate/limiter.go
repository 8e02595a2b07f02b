package rate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable wraps backend failures. Callers decide whether to fail open.
var ErrUnavailable = errors.New("rate limiter backend unavailable")

// Action names a throttled operation. It is part of every counter key.
type Action string

const (
	// Login attempts are counted per normalised email and per client IP in
	// separate namespaces, so an address posted as an email never charges
	// the IP counter.
	ActionLoginEmail   Action = "login_email"
	ActionLoginIP      Action = "login_ip"
	ActionForgot       Action = "forgot"
	ActionVerification Action = "verify"
)

// Policy allows Limit events per Window for one subject. Burst is only used
// by the in-process token bucket; the Redis fixed window ignores it.
type Policy struct {
	Limit  int
	Window time.Duration
	Burst  int
}

func (p Policy) valid() bool {
	return p.Limit > 0 && p.Window > 0
}

// Decision is the outcome of one Allow call. RetryAt is set only when the
// event was denied.
type Decision struct {
	Allowed bool
	RetryAt time.Time
}

// Limiter counts one event for (action, subject) and reports whether it is
// within policy. Actions without a policy are always allowed.
type Limiter interface {
	Allow(ctx context.Context, action Action, subject string) (Decision, error)
}

// Policies maps each throttled action to its policy.
type Policies map[Action]Policy

func (p Policies) lookup(action Action) (Policy, bool) {
	policy, ok := p[action]
	if !ok || !policy.valid() {
		return Policy{}, false
	}
	return policy, true
}

func counterKey(prefix string, action Action, subject string) string {
	return fmt.Sprintf("%s:rl:%s:%s", prefix, action, subject)
}

// Nop allows everything.
type Nop struct{}

func (Nop) Allow(context.Context, Action, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
