package stagepass

import (
	"context"
	"strconv"

	"github.com/MrEthical07/stagepass/internal/flows"
)

// Logout revokes the session behind RefreshToken, or with All every active
// session of UserID. Unknown or already revoked tokens report Revoked 0.
// UserID must come from an authenticated context, never from the client.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) (*LogoutResult, error) {
	ctx, span := e.startSpan(ctx, "Logout")
	res, err := e.logout(ctx, req)
	finish(span, err)
	return res, err
}

func (e *Engine) logout(ctx context.Context, req LogoutRequest) (*LogoutResult, error) {
	result := flows.RunLogout(ctx, req.RefreshToken, req.UserID, req.All, flows.LogoutDeps{
		Common:    e.common(),
		Revoke:    e.refresh.Revoke,
		RevokeAll: e.refresh.RevokeAll,
	})

	switch result.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureValidation:
		return nil, fieldError(result.Field)
	default:
		return nil, e.internalError(ctx, "LOGOUT_FAILED", "logout: revoking sessions", result.Err, "user_id", req.UserID)
	}

	if result.All {
		e.metricInc(MetricLogoutAll)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLogoutAll,
			success:   true,
			userID:    req.UserID,
			metadata:  map[string]string{"revoked": strconv.Itoa(result.Revoked)},
		})
	} else {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLogoutSession,
			success:   result.Revoked > 0,
		})
	}

	return &LogoutResult{Revoked: result.Revoked}, nil
}
