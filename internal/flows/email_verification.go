package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/stagepass/account"
	"github.com/MrEthical07/stagepass/singleuse"
)

// RequestFailureKind classifies request-a-token flows (verification request,
// forgot password). Unknown accounts are not failures: callers must not be
// able to tell them apart from known ones.
type RequestFailureKind int

const (
	RequestFailureNone RequestFailureKind = iota
	RequestFailureValidation
	RequestFailureRateLimited
	RequestFailureStore
)

// RequestResult reports what a request-a-token flow did. Sent is false for
// unknown or already verified accounts.
type RequestResult struct {
	Failure RequestFailureKind
	Err     error
	Field   *FieldError
	UserID  string
	Sent    bool
	RetryAt time.Time
}

// RequestDeps captures dependencies of RunRequestVerification and
// RunForgotPassword.
type RequestDeps struct {
	Common
	Throttle   Throttle
	FindUser   FindUserByEmail
	IssueToken func(ctx context.Context, userID string) (string, error)
	SendMail   func(ctx context.Context, to, token string) error
}

// RunRequestVerification issues a fresh verification token for an unverified
// account and mails it. Earlier outstanding tokens stay valid.
func RunRequestVerification(ctx context.Context, email string, deps RequestDeps) RequestResult {
	return runRequest(ctx, email, deps, func(u *account.User) bool { return !u.EmailVerified })
}

// RunForgotPassword issues a password-reset token and mails it.
func RunForgotPassword(ctx context.Context, email string, deps RequestDeps) RequestResult {
	return runRequest(ctx, email, deps, func(*account.User) bool { return true })
}

func runRequest(ctx context.Context, email string, deps RequestDeps, eligible func(*account.User) bool) RequestResult {
	deps.defaults()
	if deps.Throttle == nil {
		deps.Throttle = allowAll
	}

	normalized, fieldErr := ValidateEmail(email)
	if fieldErr != nil {
		return RequestResult{Failure: RequestFailureValidation, Err: fieldErr, Field: fieldErr}
	}

	if retryAt, ok := deps.Throttle(ctx, normalized); !ok {
		return RequestResult{Failure: RequestFailureRateLimited, RetryAt: retryAt}
	}

	user, err := deps.FindUser(ctx, normalized)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return RequestResult{}
		}
		return RequestResult{Failure: RequestFailureStore, Err: err}
	}
	if !eligible(user) {
		return RequestResult{UserID: user.ID}
	}

	token, err := deps.IssueToken(ctx, user.ID)
	if err != nil {
		return RequestResult{Failure: RequestFailureStore, Err: err, UserID: user.ID}
	}

	if err := deps.SendMail(ctx, user.Email, token); err != nil {
		deps.Warn(ctx, "mail delivery failed", "user_id", user.ID, "error", err)
		return RequestResult{UserID: user.ID}
	}

	return RequestResult{UserID: user.ID, Sent: true}
}

// ConsumeFailureKind classifies token-consuming flows (verify email, reset
// password).
type ConsumeFailureKind int

const (
	ConsumeFailureNone ConsumeFailureKind = iota
	ConsumeFailureValidation
	ConsumeFailureInvalid
	ConsumeFailureHashing
	ConsumeFailureStore
)

// VerifyEmailResult carries the verified user id or failure metadata.
type VerifyEmailResult struct {
	Failure ConsumeFailureKind
	Err     error
	UserID  string
}

// VerifyEmailDeps captures verify-email dependencies.
type VerifyEmailDeps struct {
	Common
	Consume      func(ctx context.Context, secret string, kind singleuse.Kind) (string, error)
	MarkVerified func(ctx context.Context, userID string, now time.Time) error
}

// RunVerifyEmail consumes an email-verification token and marks its owner
// verified. It sends no mail.
func RunVerifyEmail(ctx context.Context, token string, deps VerifyEmailDeps) VerifyEmailResult {
	deps.defaults()

	userID, err := deps.Consume(ctx, token, singleuse.KindEmailVerification)
	if err != nil {
		if errors.Is(err, singleuse.ErrInvalidOrExpired) {
			return VerifyEmailResult{Failure: ConsumeFailureInvalid, Err: err}
		}
		return VerifyEmailResult{Failure: ConsumeFailureStore, Err: err}
	}

	if err := deps.MarkVerified(ctx, userID, deps.Now()); err != nil {
		// Token already burned; a deleted owner makes it simply invalid.
		if errors.Is(err, account.ErrNotFound) {
			return VerifyEmailResult{Failure: ConsumeFailureInvalid, Err: err, UserID: userID}
		}
		return VerifyEmailResult{Failure: ConsumeFailureStore, Err: err, UserID: userID}
	}

	return VerifyEmailResult{UserID: userID}
}
