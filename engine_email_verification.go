package stagepass

import (
	"context"

	"github.com/MrEthical07/stagepass/internal/flows"
	"github.com/MrEthical07/stagepass/internal/rate"
	"github.com/MrEthical07/stagepass/singleuse"
)

// RequestEmailVerification mails a fresh verification token to an unverified
// account. Unknown and already verified emails return nil without sending
// anything, so the response does not reveal which addresses are registered.
func (e *Engine) RequestEmailVerification(ctx context.Context, req EmailVerificationRequest) error {
	ctx, span := e.startSpan(ctx, "RequestEmailVerification")
	err := e.requestEmailVerification(ctx, req)
	finish(span, err)
	return err
}

func (e *Engine) requestEmailVerification(ctx context.Context, req EmailVerificationRequest) error {
	result := flows.RunRequestVerification(ctx, req.Email, flows.RequestDeps{
		Common:     e.common(),
		Throttle:   e.throttle(rate.ActionVerification, "email_verification"),
		FindUser:   e.users.FindByEmail,
		IssueToken: e.issueSingleUse(singleuse.KindEmailVerification, e.config.EmailVerification.TTL),
		SendMail:   e.mailer.SendVerification,
	})
	return e.requestOutcome(ctx, result, auditEventEmailVerificationRequest, MetricEmailVerificationRequest, "VERIFICATION_REQUEST_FAILED")
}

// requestOutcome maps the shared result of verification and reset requests.
func (e *Engine) requestOutcome(ctx context.Context, result flows.RequestResult, event string, metric MetricID, code string) error {
	switch result.Failure {
	case flows.RequestFailureNone:
	case flows.RequestFailureValidation:
		return fieldError(result.Field)
	case flows.RequestFailureRateLimited:
		return rateLimitedError(result.RetryAt)
	default:
		return e.internalError(ctx, code, event+": issuing token", result.Err, "user_id", result.UserID)
	}

	e.metricInc(metric)
	e.emitAudit(ctx, auditRecord{
		eventType: event,
		success:   result.Sent,
		userID:    result.UserID,
		metadata:  map[string]string{"sent": boolString(result.Sent)},
	})
	return nil
}

// VerifyEmail consumes an email-verification token and marks its owner
// verified. Unknown, expired, used and wrong-kind tokens fail with
// KindInvalidOrExpired.
func (e *Engine) VerifyEmail(ctx context.Context, req VerifyEmailRequest) (*VerifyEmailResult, error) {
	ctx, span := e.startSpan(ctx, "VerifyEmail")
	res, err := e.verifyEmail(ctx, req)
	finish(span, err)
	return res, err
}

func (e *Engine) verifyEmail(ctx context.Context, req VerifyEmailRequest) (*VerifyEmailResult, error) {
	result := flows.RunVerifyEmail(ctx, req.Token, flows.VerifyEmailDeps{
		Common:       e.common(),
		Consume:      e.singleUse.Consume,
		MarkVerified: e.users.MarkEmailVerified,
	})

	var err error
	switch result.Failure {
	case flows.ConsumeFailureNone:
		e.metricInc(MetricEmailVerificationSuccess)
		e.emitAudit(ctx, auditRecord{eventType: auditEventEmailVerificationConfirm, success: true, userID: result.UserID})
		return &VerifyEmailResult{UserID: result.UserID}, nil
	case flows.ConsumeFailureInvalid:
		err = ErrInvalidOrExpired
	default:
		err = e.internalError(ctx, "EMAIL_VERIFY_FAILED", "verify email: consuming token", result.Err, "user_id", result.UserID)
	}

	e.metricInc(MetricEmailVerificationFailure)
	e.emitAudit(ctx, auditRecord{eventType: auditEventEmailVerificationConfirm, userID: result.UserID, err: err})
	return nil, err
}
