package singleuse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MrEthical07/stagepass/internal"
)

// Config configures a Ledger. Both fields are optional.
type Config struct {
	Now   func() time.Time
	NewID func() string
}

// Ledger issues and redeems single-use secrets over a Store.
type Ledger struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewLedger builds a Ledger.
func NewLedger(store Store, cfg Config) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("single-use store is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return ulid.Make().String() }
	}
	return &Ledger{store: store, now: cfg.Now, newID: cfg.NewID}, nil
}

// Issue stores a new unused token of kind for userID, valid for ttl, and
// returns the secret.
func (l *Ledger) Issue(ctx context.Context, userID string, kind Kind, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if !kind.Valid() {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return "", errors.New("token TTL must be positive")
	}

	secret, err := internal.NewOpaqueSecret(internal.SingleUseSecretSize)
	if err != nil {
		return "", fmt.Errorf("generate %s secret: %w", kind, err)
	}

	now := l.now()
	tok := &Token{
		ID:        l.newID(),
		UserID:    userID,
		Kind:      kind,
		TokenHash: internal.HashSecret(secret),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := l.store.Create(ctx, tok); err != nil {
		return "", err
	}

	return secret, nil
}

// Consume redeems secret and returns the owning user id. Any failure to match
// an unused, unexpired token of kind is ErrInvalidOrExpired.
func (l *Ledger) Consume(ctx context.Context, secret string, kind Kind) (string, error) {
	if secret == "" || !kind.Valid() {
		return "", ErrInvalidOrExpired
	}
	return l.store.Consume(ctx, internal.HashSecret(secret), kind, l.now())
}

// PurgeExpired deletes tokens that expired before the given instant.
func (l *Ledger) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	return l.store.DeleteExpired(ctx, before)
}
