package stagepass

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/MrEthical07/stagepass/jwt"
)

// ValidateAccessToken verifies an access token and returns its claims.
// Every failure is KindInvalidToken; Message names the reason (expired,
// signature, malformed, issuer, audience).
func (e *Engine) ValidateAccessToken(ctx context.Context, token string) (*jwt.Claims, error) {
	start := time.Now()
	claims, err := e.issuer.ValidateAccessToken(token)
	e.observe(MetricValidateLatency, start)
	if err != nil {
		return nil, &Error{Kind: KindInvalidToken, Message: accessTokenReason(err)}
	}
	return claims, nil
}

func accessTokenReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return "expired"
	case errors.Is(err, jwt.ErrBadSignature):
		return "bad signature"
	case errors.Is(err, jwt.ErrIssuerMismatch):
		return "issuer mismatch"
	case errors.Is(err, jwt.ErrAudienceMismatch):
		return "audience mismatch"
	default:
		return "malformed"
	}
}

// Sessions lists the active refresh records of userID, newest first by
// creation. Token hashes are never serialised.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]Session, error) {
	if userID == "" {
		return nil, validationError("user_id", "is required")
	}
	ctx, span := e.startSpan(ctx, "Sessions")
	records, err := e.refresh.Active(ctx, userID)
	if err != nil {
		err = e.internalError(ctx, "REFRESH_LIST_FAILED", "sessions: listing", err, "user_id", userID)
		finish(span, err)
		return nil, err
	}
	finish(span, nil)

	slices.SortFunc(records, func(a, b Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return records, nil
}

// PurgeResult counts rows removed by Purge.
type PurgeResult struct {
	RefreshRecords  int `json:"refresh_records"`
	SingleUseTokens int `json:"single_use_tokens"`
}

// Purge deletes refresh records and single-use tokens that expired before
// now minus retain. Revoked records are kept until they expire so reuse of a
// rotated token is still detected.
func (e *Engine) Purge(ctx context.Context, retain time.Duration) (*PurgeResult, error) {
	ctx, span := e.startSpan(ctx, "Purge")
	before := e.clock.Now().Add(-retain)

	refreshed, err := e.refresh.PurgeExpired(ctx, before)
	if err != nil {
		err = e.internalError(ctx, "REFRESH_PURGE_FAILED", "purge: refresh records", err)
		finish(span, err)
		return nil, err
	}
	single, err := e.singleUse.PurgeExpired(ctx, before)
	if err != nil {
		err = e.internalError(ctx, "SINGLE_USE_PURGE_FAILED", "purge: single-use tokens", err)
		finish(span, err)
		return nil, err
	}
	finish(span, nil)

	e.logger.InfoContext(ctx, "purged expired tokens", "refresh_records", refreshed, "single_use_tokens", single)
	return &PurgeResult{RefreshRecords: refreshed, SingleUseTokens: single}, nil
}
