package stagepass

import (
	"context"
	"strconv"

	"github.com/MrEthical07/stagepass/internal/flows"
)

// RefreshSession exchanges a refresh token for a new token pair. The
// presented token is revoked and cannot be used again.
//
// Unknown, expired and logged-out tokens fail with KindInvalidToken.
// Presenting a token that was already rotated fails with KindReuseDetected
// and revokes every active session of its owner; the event is logged at warn
// level, audited as refresh_reuse_detected and counted.
func (e *Engine) RefreshSession(ctx context.Context, req RefreshRequest) (*TokenPair, error) {
	ctx, span := e.startSpan(ctx, "RefreshSession")
	res, err := e.refreshSession(ctx, req)
	finish(span, err)
	return res, err
}

func (e *Engine) refreshSession(ctx context.Context, req RefreshRequest) (*TokenPair, error) {
	result := flows.RunRefresh(ctx, req.RefreshToken, flows.RefreshDeps{
		Common:      e.common(),
		ClientIP:    ClientIPFromContext(ctx),
		Rotate:      e.refresh.Rotate,
		RevokeAll:   e.refresh.RevokeAll,
		FindUser:    e.users.FindByID,
		IssueAccess: e.issueAccess,
	})

	var err error
	switch result.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventRefreshSuccess,
			success:   true,
			userID:    result.UserID,
			recordID:  result.RecordID,
			metadata:  map[string]string{"previous_id": result.PreviousID},
		})
		return tokenPair(result.UserID, result.Tokens), nil
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.logger.WarnContext(ctx, "refresh token reuse detected, sessions revoked",
			"user_id", result.UserID, "record_id", result.RecordID, "revoked", result.Revoked)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventRefreshReuseDetected,
			userID:    result.UserID,
			recordID:  result.RecordID,
			err:       ErrReuseDetected,
			metadata:  map[string]string{"revoked": strconv.Itoa(result.Revoked)},
		})
		err = ErrReuseDetected
	case flows.RefreshFailureInvalid:
		err = ErrInvalidToken
		e.emitAudit(ctx, auditRecord{eventType: auditEventRefreshInvalid, err: err})
	case flows.RefreshFailureUserGone:
		err = ErrInvalidToken
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventSessionsRevokedForDeleted,
			userID:    result.UserID,
			recordID:  result.RecordID,
			err:       err,
			metadata:  map[string]string{"revoked": strconv.Itoa(result.Revoked)},
		})
	case flows.RefreshFailureStore:
		err = e.internalError(ctx, "REFRESH_ROTATE_FAILED", "refresh: rotating session", result.Err, "user_id", result.UserID)
	case flows.RefreshFailureUserLookup:
		err = e.internalError(ctx, "REFRESH_USER_LOOKUP_FAILED", "refresh: loading session owner after rotation", result.Err,
			"user_id", result.UserID, "record_id", result.RecordID)
	default:
		err = e.internalError(ctx, "ACCESS_TOKEN_ISSUE_FAILED", "refresh: issuing access token", result.Err, "user_id", result.UserID)
	}

	e.metricInc(MetricRefreshFailure)
	return nil, err
}
