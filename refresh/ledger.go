package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrInvalidToken covers unknown, expired and deliberately revoked secrets.
	ErrInvalidToken = errors.New("refresh token invalid")
	// ErrReuseDetected is matched by *ReuseError.
	ErrReuseDetected = errors.New("refresh token reuse detected")
)

// ReuseError is returned by Rotate when an already-rotated secret is presented.
// It matches ErrReuseDetected under errors.Is.
type ReuseError struct {
	UserID   string
	RecordID string
	Revoked  int
}

func (e *ReuseError) Error() string {
	return fmt.Sprintf("refresh token reuse detected: record %s, %d active sessions revoked", e.RecordID, e.Revoked)
}

// Is reports whether target is ErrReuseDetected.
func (e *ReuseError) Is(target error) bool {
	return target == ErrReuseDetected
}

// Secrets produces refresh secrets and their storable digests.
type Secrets interface {
	NewRefreshSecret() (string, error)
	HashSecret(secret string) string
}

// Config configures a Ledger. Now and NewID default to the wall clock and ULIDs.
type Config struct {
	TTL   time.Duration
	Now   func() time.Time
	NewID func() string
}

// Ledger runs the refresh-token protocol over a Store.
type Ledger struct {
	store   Store
	secrets Secrets
	ttl     time.Duration
	now     func() time.Time
	newID   func() string
}

// Rotation is a successful exchange of one secret for the next.
type Rotation struct {
	Secret     string
	Record     *Record
	PreviousID string
}

// NewLedger builds a Ledger.
func NewLedger(store Store, secrets Secrets, cfg Config) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("refresh store is required")
	}
	if secrets == nil {
		return nil, errors.New("refresh secret source is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("refresh TTL must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return ulid.Make().String() }
	}

	return &Ledger{
		store:   store,
		secrets: secrets,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}, nil
}

// TTL returns the lifetime given to new records.
func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

// Issue creates a new Active record for userID and returns its secret. This is
// the only time the secret exists outside the caller.
func (l *Ledger) Issue(ctx context.Context, userID, clientIP string) (string, *Record, error) {
	if userID == "" {
		return "", nil, errors.New("user id is required")
	}

	secret, rec, err := l.newRecord(clientIP)
	if err != nil {
		return "", nil, err
	}
	rec.UserID = userID

	if err := l.store.Create(ctx, rec); err != nil {
		return "", nil, err
	}

	return secret, rec, nil
}

// Rotate exchanges presented for a new secret. It returns a *ReuseError only
// when the secret was already rotated, i.e. its record has a successor; that
// revokes every active record of the owner. Unknown and expired secrets, and
// secrets revoked without a successor (logout, logout-all, password reset,
// account deletion), return ErrInvalidToken and revoke nothing else.
func (l *Ledger) Rotate(ctx context.Context, presented, clientIP string) (*Rotation, error) {
	if presented == "" {
		return nil, ErrInvalidToken
	}

	secret, successor, err := l.newRecord(clientIP)
	if err != nil {
		return nil, err
	}

	res, err := l.store.Rotate(ctx, l.secrets.HashSecret(presented), successor, l.now())
	if err != nil {
		return nil, err
	}

	switch res.Outcome {
	case OutcomeRotated:
		successor.UserID = res.UserID
		return &Rotation{Secret: secret, Record: successor, PreviousID: res.PreviousID}, nil
	case OutcomeReused:
		return nil, &ReuseError{UserID: res.UserID, RecordID: res.PreviousID, Revoked: res.Revoked}
	default:
		return nil, ErrInvalidToken
	}
}

// Revoke ends the session behind secret. Unknown or already revoked secrets
// report false without error.
func (l *Ledger) Revoke(ctx context.Context, secret string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	return l.store.RevokeByHash(ctx, l.secrets.HashSecret(secret), ReasonLogout, l.now())
}

// RevokeAll revokes every Active record of userID without successors.
func (l *Ledger) RevokeAll(ctx context.Context, userID, reason string) (int, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}
	if reason == "" {
		reason = ReasonLogoutAll
	}
	return l.store.RevokeAllForUser(ctx, userID, reason, l.now())
}

// Active lists the Active records of userID.
func (l *Ledger) Active(ctx context.Context, userID string) ([]Record, error) {
	return l.store.ListActive(ctx, userID, l.now())
}

// PurgeExpired deletes records that expired before the given instant.
func (l *Ledger) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	return l.store.DeleteExpired(ctx, before)
}

func (l *Ledger) newRecord(clientIP string) (string, *Record, error) {
	secret, err := l.secrets.NewRefreshSecret()
	if err != nil {
		return "", nil, fmt.Errorf("generate refresh secret: %w", err)
	}

	now := l.now()
	return secret, &Record{
		ID:          l.newID(),
		TokenHash:   l.secrets.HashSecret(secret),
		ExpiresAt:   now.Add(l.ttl),
		CreatedAt:   now,
		CreatedByIP: clientIP,
	}, nil
}
