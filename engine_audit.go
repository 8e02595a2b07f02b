package stagepass

import (
	"context"
)

const (
	auditEventRegisterSuccess           = "register_success"
	auditEventRegisterFailure           = "register_failure"
	auditEventInviteSuccess             = "invite_success"
	auditEventLoginSuccess              = "login_success"
	auditEventLoginFailure              = "login_failure"
	auditEventAccountLocked             = "account_locked"
	auditEventPasswordRehashed          = "password_rehashed"
	auditEventRefreshSuccess            = "refresh_success"
	auditEventRefreshInvalid            = "refresh_invalid"
	auditEventRefreshReuseDetected      = "refresh_reuse_detected"
	auditEventLogoutSession             = "logout_session"
	auditEventLogoutAll                 = "logout_all"
	auditEventEmailVerificationRequest  = "email_verification_request"
	auditEventEmailVerificationConfirm  = "email_verification_confirm"
	auditEventPasswordResetRequest      = "password_reset_request"
	auditEventPasswordResetConfirm      = "password_reset_confirm"
	auditEventRateLimitTriggered        = "rate_limit_triggered"
	auditEventSessionsRevokedForDeleted = "sessions_revoked_deleted_user"
)

// auditRecord is the per-call part of an audit event; the Engine fills in
// time, actor, IP and user agent.
type auditRecord struct {
	eventType string
	success   bool
	userID    string
	// actorID defaults to userID, then to the system actor.
	actorID  string
	recordID string
	err      error
	metadata map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, rec auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	actor := rec.actorID
	if actor == "" {
		actor = rec.userID
	}
	if actor == "" {
		actor = e.config.SystemActorID
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: rec.eventType,
		UserID:    rec.userID,
		ActorID:   actor,
		RecordID:  rec.recordID,
		IP:        ClientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   rec.success,
		Metadata:  rec.metadata,
	}
	if rec.err != nil {
		event.Error = KindOf(rec.err).String()
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, retryAt string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventRateLimitTriggered,
		err:       ErrRateLimited,
		metadata:  map[string]string{"scope": scope, "retry_at": retryAt},
	})
}
