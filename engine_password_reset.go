package stagepass

import (
	"context"
	"strconv"

	"github.com/MrEthical07/stagepass/internal/flows"
	"github.com/MrEthical07/stagepass/internal/rate"
	"github.com/MrEthical07/stagepass/singleuse"
)

// ForgotPassword mails a password-reset token. Unknown emails return nil
// without sending anything.
func (e *Engine) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	ctx, span := e.startSpan(ctx, "ForgotPassword")
	err := e.forgotPassword(ctx, req)
	finish(span, err)
	return err
}

func (e *Engine) forgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	result := flows.RunForgotPassword(ctx, req.Email, flows.RequestDeps{
		Common:     e.common(),
		Throttle:   e.throttle(rate.ActionForgot, "password_forgot"),
		FindUser:   e.users.FindByEmail,
		IssueToken: e.issueSingleUse(singleuse.KindPasswordReset, e.config.PasswordReset.TTL),
		SendMail:   e.mailer.SendPasswordReset,
	})
	return e.requestOutcome(ctx, result, auditEventPasswordResetRequest, MetricPasswordResetRequest, "PASSWORD_RESET_REQUEST_FAILED")
}

// ResetPassword consumes a password-reset token, stores the new password and
// revokes every session of the user. The new password is checked against the
// length policy before the token is consumed.
func (e *Engine) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*ResetPasswordResult, error) {
	ctx, span := e.startSpan(ctx, "ResetPassword")
	res, err := e.resetPassword(ctx, req)
	finish(span, err)
	return res, err
}

func (e *Engine) resetPassword(ctx context.Context, req ResetPasswordRequest) (*ResetPasswordResult, error) {
	result := flows.RunResetPassword(ctx, req.Token, req.NewPassword, flows.ResetPasswordDeps{
		Common:             e.common(),
		Policy:             e.passwordPolicy(),
		Hasher:             e.hasher,
		Consume:            e.singleUse.Consume,
		FindUser:           e.users.FindByID,
		UpdatePasswordHash: e.users.UpdatePasswordHash,
		RevokeAll:          e.refresh.RevokeAll,
		SendChanged:        e.mailer.SendPasswordChanged,
	})

	var err error
	switch result.Failure {
	case flows.ConsumeFailureNone:
		e.metricInc(MetricPasswordResetSuccess)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventPasswordResetConfirm,
			success:   true,
			userID:    result.UserID,
			metadata:  map[string]string{"sessions_revoked": strconv.Itoa(result.SessionsRevoked)},
		})
		return &ResetPasswordResult{UserID: result.UserID, SessionsRevoked: result.SessionsRevoked}, nil
	case flows.ConsumeFailureValidation:
		// Policy violations are not attempts on the token.
		return nil, fieldError(result.Field)
	case flows.ConsumeFailureInvalid:
		err = ErrInvalidOrExpired
	case flows.ConsumeFailureHashing:
		err = e.internalError(ctx, "PASSWORD_HASH_FAILED", "reset password: hashing", result.Err)
	default:
		err = e.internalError(ctx, "PASSWORD_RESET_FAILED", "reset password: applying", result.Err, "user_id", result.UserID)
	}

	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordResetConfirm, userID: result.UserID, err: err})
	return nil, err
}
