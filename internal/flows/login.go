package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/stagepass/account"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureUnknownUser
	LoginFailureLocked
	LoginFailureBadPassword
	LoginFailureUnverified
	LoginFailureStore
	LoginFailureIssue
)

// LoginResult carries either the issued tokens or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	User    *account.User
	Tokens  *Tokens
	// Until is the lockout end for LoginFailureLocked and the retry time
	// for LoginFailureRateLimited.
	Until time.Time
	// LockedNow is set when this attempt reached the threshold.
	LockedNow bool
	Rehashed  bool
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Common
	LockoutThreshold int
	LockoutDuration  time.Duration
	RequireVerified  bool
	UpgradeOnLogin   bool

	ThrottleEmail Throttle
	ThrottleIP    Throttle
	ClientIP      string

	FindUser           FindUserByEmail
	Hasher             PasswordHasher
	RecordFailure      func(ctx context.Context, userID string, threshold int, lockUntil, now time.Time) (account.LoginFailure, error)
	RecordSuccess      func(ctx context.Context, userID string, now time.Time) error
	UpdatePasswordHash func(ctx context.Context, userID, hash string, now time.Time) error
	IssueSession       func(ctx context.Context, user *account.User) (*Tokens, error)
}

// RunLogin executes the login state machine, short-circuiting on the first
// failure: throttle, load, lockout, verify, reset counter, rehash, verified
// check, issue.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	deps.defaults()
	if deps.ThrottleEmail == nil {
		deps.ThrottleEmail = allowAll
	}
	if deps.ThrottleIP == nil {
		deps.ThrottleIP = allowAll
	}

	normalized := account.NormalizeEmail(email)

	if retryAt, ok := deps.ThrottleEmail(ctx, normalized); !ok {
		return LoginResult{Failure: LoginFailureRateLimited, Until: retryAt}
	}
	if retryAt, ok := deps.ThrottleIP(ctx, deps.ClientIP); !ok {
		return LoginResult{Failure: LoginFailureRateLimited, Until: retryAt}
	}

	user, err := deps.FindUser(ctx, normalized)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			// Same cost as a real verification so timing does not reveal
			// whether the account exists.
			deps.Hasher.Verify(password, deps.Hasher.DummyHash())
			return LoginResult{Failure: LoginFailureUnknownUser, Err: err}
		}
		return LoginResult{Failure: LoginFailureStore, Err: err}
	}

	now := deps.Now()
	if until, locked := user.LockedAt(now); locked {
		return LoginResult{Failure: LoginFailureLocked, User: user, Until: until}
	}

	if !deps.Hasher.Verify(password, user.PasswordHash) {
		state, err := deps.RecordFailure(ctx, user.ID, deps.LockoutThreshold, now.Add(deps.LockoutDuration), now)
		if err != nil {
			return LoginResult{Failure: LoginFailureStore, Err: err, User: user}
		}
		res := LoginResult{Failure: LoginFailureBadPassword, User: user}
		if state.LockoutEnd != nil && state.LockoutEnd.After(now) {
			res.LockedNow = true
			res.Until = *state.LockoutEnd
		}
		return res
	}

	if err := deps.RecordSuccess(ctx, user.ID, now); err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err, User: user}
	}
	user.FailedLoginAttempts = 0
	user.LockoutEnd = nil

	res := LoginResult{User: user}
	if deps.UpgradeOnLogin && deps.Hasher.NeedsUpgrade(user.PasswordHash) {
		if hash, err := deps.Hasher.Hash(password); err != nil {
			deps.Warn(ctx, "login: password rehash failed", "user_id", user.ID, "error", err)
		} else if err := deps.UpdatePasswordHash(ctx, user.ID, hash, now); err != nil {
			deps.Warn(ctx, "login: storing upgraded password hash failed", "user_id", user.ID, "error", err)
		} else {
			user.PasswordHash = hash
			res.Rehashed = true
		}
	}

	if deps.RequireVerified && !user.EmailVerified {
		res.Failure = LoginFailureUnverified
		return res
	}

	tokens, err := deps.IssueSession(ctx, user)
	if err != nil {
		res.Failure = LoginFailureIssue
		res.Err = err
		return res
	}
	res.Tokens = tokens

	return res
}
