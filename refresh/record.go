package refresh

import (
	"context"
	"time"
)

// Revocation reasons recorded on revoked records.
const (
	ReasonRotated        = "rotated"
	ReasonReuse          = "reuse"
	ReasonExpired        = "expired"
	ReasonLogout         = "logout"
	ReasonLogoutAll      = "logout_all"
	ReasonPasswordReset  = "password_reset"
	ReasonAccountDeleted = "account_deleted"
)

// Record is one persisted refresh token. TokenHash is the digest of the secret;
// the secret itself is never stored.
type Record struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	TokenHash     string     `json:"-"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason string     `json:"revoked_reason,omitempty"`
	ReplacedByID  string     `json:"replaced_by_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CreatedByIP   string     `json:"created_by_ip,omitempty"`
}

// ActiveAt reports whether the record can still be rotated at now.
func (r *Record) ActiveAt(now time.Time) bool {
	return r != nil && !r.Revoked && now.Before(r.ExpiresAt)
}

// Outcome classifies the result of Store.Rotate.
type Outcome int

const (
	// OutcomeRotated means the presented record was revoked and the successor stored.
	OutcomeRotated Outcome = iota
	// OutcomeNotFound means no record has the presented hash.
	OutcomeNotFound
	// OutcomeExpired means the record had expired; it is now revoked.
	OutcomeExpired
	// OutcomeRevoked means the record was already revoked without a successor.
	OutcomeRevoked
	// OutcomeReused means the record had already been rotated; every Active
	// record of the owner is now revoked.
	OutcomeReused
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRotated:
		return "rotated"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	case OutcomeRevoked:
		return "revoked"
	case OutcomeReused:
		return "reused"
	default:
		return "unknown"
	}
}

// RotateResult reports what Store.Rotate did.
type RotateResult struct {
	Outcome Outcome
	// UserID owns the presented record; empty for OutcomeNotFound.
	UserID string
	// PreviousID is the presented record's ID; empty for OutcomeNotFound.
	PreviousID string
	// Revoked counts records revoked by a reuse cascade.
	Revoked int
}

// Store persists refresh records.
//
// Rotate must execute atomically with respect to every other call on the same
// record: look up presentedHash, then in order
//
//   - absent: OutcomeNotFound
//   - expired at now: revoke with ReasonExpired, OutcomeExpired
//   - revoked with a successor: revoke all Active records of the owner with
//     ReasonReuse, OutcomeReused
//   - revoked without a successor: OutcomeRevoked
//   - otherwise: store successor (its UserID is set from the presented record),
//     revoke the presented record with ReasonRotated and ReplacedByID set to
//     successor.ID, OutcomeRotated.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Rotate(ctx context.Context, presentedHash string, successor *Record, now time.Time) (RotateResult, error)
	RevokeByHash(ctx context.Context, hash, reason string, now time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID, reason string, now time.Time) (int, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]Record, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
