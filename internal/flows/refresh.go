package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/stagepass/account"
	"github.com/MrEthical07/stagepass/refresh"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureReuse
	RefreshFailureUserGone
	RefreshFailureStore
	RefreshFailureUserLookup
	RefreshFailureIssueAccess
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	// RecordID is the new record on success and the replayed record on reuse.
	RecordID   string
	PreviousID string
	// Revoked counts records revoked by a reuse cascade or a vanished user.
	Revoked int
	Tokens  *Tokens
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Common
	ClientIP string

	Rotate      func(ctx context.Context, presented, clientIP string) (*refresh.Rotation, error)
	RevokeAll   func(ctx context.Context, userID, reason string) (int, error)
	FindUser    FindUserByID
	IssueAccess func(user *account.User) (string, time.Time, error)
}

// RunRefresh rotates the presented secret and mints an access token for the
// record's owner. A user deleted since login loses every session.
//
// Once the store has committed the rotation the old secret is gone, so the
// remaining steps ignore cancellation of ctx: the caller must get the new
// secret back or a retry would be indistinguishable from a replay.
func RunRefresh(ctx context.Context, presented string, deps RefreshDeps) RefreshResult {
	deps.defaults()

	rot, err := deps.Rotate(ctx, presented, deps.ClientIP)
	if err != nil {
		var reuse *refresh.ReuseError
		switch {
		case errors.As(err, &reuse):
			return RefreshResult{
				Failure:  RefreshFailureReuse,
				Err:      err,
				UserID:   reuse.UserID,
				RecordID: reuse.RecordID,
				Revoked:  reuse.Revoked,
			}
		case errors.Is(err, refresh.ErrInvalidToken):
			return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
		default:
			return RefreshResult{Failure: RefreshFailureStore, Err: err}
		}
	}

	ctx = context.WithoutCancel(ctx)
	res := RefreshResult{
		UserID:     rot.Record.UserID,
		RecordID:   rot.Record.ID,
		PreviousID: rot.PreviousID,
	}

	user, err := deps.FindUser(ctx, rot.Record.UserID)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			res.Failure = RefreshFailureUserLookup
			res.Err = err
			return res
		}
		revoked, revokeErr := deps.RevokeAll(ctx, rot.Record.UserID, refresh.ReasonAccountDeleted)
		if revokeErr != nil {
			deps.Warn(ctx, "refresh: revoking sessions of deleted user failed", "user_id", rot.Record.UserID, "error", revokeErr)
		}
		res.Failure = RefreshFailureUserGone
		res.Err = err
		res.Revoked = revoked
		return res
	}

	access, accessExp, err := deps.IssueAccess(user)
	if err != nil {
		res.Failure = RefreshFailureIssueAccess
		res.Err = err
		return res
	}

	res.Tokens = &Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rot.Secret,
		RefreshExpiresAt: rot.Record.ExpiresAt,
		RecordID:         rot.Record.ID,
	}
	return res
}
