package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by stores when no live user matches.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Create when a live user already owns the
	// normalised email.
	ErrEmailTaken = errors.New("email already registered")
)

// User is the identity record. Users are soft-deleted, never removed.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	UserType            string     `json:"user_type"`
	EmailVerified       bool       `json:"email_verified"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockoutEnd          *time.Time `json:"lockout_end,omitempty"`
	Deleted             bool       `json:"deleted"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CreatedBy           string     `json:"created_by,omitempty"`
}

// LockedAt reports whether the lockout window is still open at now, and until when.
func (u *User) LockedAt(now time.Time) (time.Time, bool) {
	if u == nil || u.LockoutEnd == nil {
		return time.Time{}, false
	}
	if !u.LockoutEnd.After(now) {
		return time.Time{}, false
	}
	return *u.LockoutEnd, true
}

// LoginFailure is the counter state after a failed attempt was recorded.
type LoginFailure struct {
	Attempts   int
	LockoutEnd *time.Time
}

// Store persists users. RecordLoginFailure must be atomic: it increments
// the counter and, when the counter reaches threshold, sets the lockout end to
// lockUntil and resets the counter to zero, all in one step.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockUntil, now time.Time) (LoginFailure, error)
	RecordLoginSuccess(ctx context.Context, userID string, now time.Time) error
	MarkEmailVerified(ctx context.Context, userID string, now time.Time) error
	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error
}

// NormalizeEmail trims surrounding space and lower-cases the address. Every
// lookup and uniqueness check uses the normalised form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
