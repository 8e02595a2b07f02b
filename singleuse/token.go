package singleuse

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidOrExpired is returned for absent, expired, already used or
// wrong-kind secrets. The cases are deliberately indistinguishable.
var ErrInvalidOrExpired = errors.New("token invalid or expired")

// Kind separates verification tokens from reset tokens.
type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindEmailVerification || k == KindPasswordReset
}

// Token is one persisted single-use secret.
type Token struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      Kind       `json:"kind"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Store persists single-use tokens. Consume returns the owning user id after
// marking the token used, or ErrInvalidOrExpired.
type Store interface {
	Create(ctx context.Context, tok *Token) error
	Consume(ctx context.Context, hash string, kind Kind, now time.Time) (string, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
