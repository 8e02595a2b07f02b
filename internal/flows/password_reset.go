package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/stagepass/account"
	"github.com/MrEthical07/stagepass/refresh"
	"github.com/MrEthical07/stagepass/singleuse"
)

// ResetPasswordResult carries the reset outcome or failure metadata.
type ResetPasswordResult struct {
	Failure         ConsumeFailureKind
	Err             error
	Field           *FieldError
	UserID          string
	SessionsRevoked int
}

// ResetPasswordDeps captures reset-password dependencies.
type ResetPasswordDeps struct {
	Common
	Policy PasswordPolicy

	Hasher             PasswordHasher
	Consume            func(ctx context.Context, secret string, kind singleuse.Kind) (string, error)
	FindUser           FindUserByID
	UpdatePasswordHash func(ctx context.Context, userID, hash string, now time.Time) error
	RevokeAll          func(ctx context.Context, userID, reason string) (int, error)
	SendChanged        func(ctx context.Context, to string) error
}

// RunResetPassword validates the new password before touching the token, so
// a policy violation leaves the token usable. On success every session of
// the user is revoked and a password-changed notice is mailed.
func RunResetPassword(ctx context.Context, token, newPassword string, deps ResetPasswordDeps) ResetPasswordResult {
	deps.defaults()

	if fieldErr := deps.Policy.Check("new_password", newPassword); fieldErr != nil {
		return ResetPasswordResult{Failure: ConsumeFailureValidation, Err: fieldErr, Field: fieldErr}
	}

	// Hash before consuming: a hashing failure must not burn the token.
	hash, err := deps.Hasher.Hash(newPassword)
	if err != nil {
		return ResetPasswordResult{Failure: ConsumeFailureHashing, Err: err}
	}

	userID, err := deps.Consume(ctx, token, singleuse.KindPasswordReset)
	if err != nil {
		if errors.Is(err, singleuse.ErrInvalidOrExpired) {
			return ResetPasswordResult{Failure: ConsumeFailureInvalid, Err: err}
		}
		return ResetPasswordResult{Failure: ConsumeFailureStore, Err: err}
	}

	user, err := deps.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ResetPasswordResult{Failure: ConsumeFailureInvalid, Err: err, UserID: userID}
		}
		return ResetPasswordResult{Failure: ConsumeFailureStore, Err: err, UserID: userID}
	}

	if err := deps.UpdatePasswordHash(ctx, userID, hash, deps.Now()); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ResetPasswordResult{Failure: ConsumeFailureInvalid, Err: err, UserID: userID}
		}
		return ResetPasswordResult{Failure: ConsumeFailureStore, Err: err, UserID: userID}
	}

	revoked, err := deps.RevokeAll(ctx, userID, refresh.ReasonPasswordReset)
	if err != nil {
		return ResetPasswordResult{Failure: ConsumeFailureStore, Err: err, UserID: userID}
	}

	if err := deps.SendChanged(ctx, user.Email); err != nil {
		deps.Warn(ctx, "reset: password-changed mail failed", "user_id", userID, "error", err)
	}

	return ResetPasswordResult{UserID: userID, SessionsRevoked: revoked}
}
