package stagepass

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/stagepass/account"
)

// Kind classifies every error the Engine returns to callers.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidCredentials
	KindAccountLocked
	KindEmailNotVerified
	KindDuplicateEmail
	KindInvalidToken
	KindReuseDetected
	KindInvalidOrExpired
	KindValidation
	KindHashingFailure
	KindRateLimited
)

var kindNames = [...]string{
	KindInternal:           "internal",
	KindInvalidCredentials: "invalid_credentials",
	KindAccountLocked:      "account_locked",
	KindEmailNotVerified:   "email_not_verified",
	KindDuplicateEmail:     "duplicate_email",
	KindInvalidToken:       "invalid_token",
	KindReuseDetected:      "reuse_detected",
	KindInvalidOrExpired:   "invalid_or_expired",
	KindValidation:         "validation",
	KindHashingFailure:     "hashing_failure",
	KindRateLimited:        "rate_limited",
}

// String returns the snake_case name used in logs, audit events and HTTP
// error bodies.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the single error type returned by Engine operations. Two Errors
// match under errors.Is when their kinds are equal, so callers compare
// against the Err* sentinels and read the payload with errors.As.
type Error struct {
	Kind Kind
	// Field names the offending request field for KindValidation.
	Field string
	// Message is a human-readable detail. It never contains secrets.
	Message string
	// Until is the lockout end for KindAccountLocked and the retry time for
	// KindRateLimited.
	Until time.Time
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrAccountLocked      = &Error{Kind: KindAccountLocked, Message: "account temporarily locked"}
	ErrEmailNotVerified   = &Error{Kind: KindEmailNotVerified, Message: "email address not verified"}
	ErrDuplicateEmail     = &Error{Kind: KindDuplicateEmail, Message: "email already registered"}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken, Message: "invalid token"}
	ErrReuseDetected      = &Error{Kind: KindReuseDetected, Message: "refresh token reuse detected"}
	ErrInvalidOrExpired   = &Error{Kind: KindInvalidOrExpired, Message: "token invalid or expired"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrHashingFailure     = &Error{Kind: KindHashingFailure, Message: "password hashing failure"}
	ErrInternal           = &Error{Kind: KindInternal, Message: "internal error"}
	ErrRateLimited        = &Error{Kind: KindRateLimited, Message: "too many attempts"}
)

// Store sentinels re-exported for callers that implement UserStore.
var (
	ErrUserNotFound = account.ErrNotFound
	ErrEmailTaken   = account.ErrEmailTaken
)

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func validationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func lockedError(until time.Time) *Error {
	return &Error{Kind: KindAccountLocked, Message: ErrAccountLocked.Message, Until: until}
}

func rateLimitedError(retryAt time.Time) *Error {
	return &Error{Kind: KindRateLimited, Message: ErrRateLimited.Message, Until: retryAt}
}
