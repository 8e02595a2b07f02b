package stagepass

import (
	"context"

	"github.com/MrEthical07/stagepass/internal"
	"github.com/MrEthical07/stagepass/internal/flows"
	"github.com/MrEthical07/stagepass/singleuse"
)

const defaultUserType = "user"

// Register creates an unverified account and mails an email-verification
// token. It fails with KindValidation for a malformed email or a password
// outside the length policy, and KindDuplicateEmail when a live account
// already owns the normalised email. Mail failures are logged, not returned.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	ctx, span := e.startSpan(ctx, "Register")
	res, err := e.register(ctx, req)
	finish(span, err)
	return res, err
}

func (e *Engine) register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	result := flows.RunRegister(ctx, req.Email, req.Password, req.UserType, flows.RegisterDeps{
		Common:          e.common(),
		Policy:          e.passwordPolicy(),
		ActorID:         e.config.SystemActorID,
		DefaultUserType: defaultUserType,
		NewUserID:       e.newUserID,
		Hasher:          e.hasher,
		CreateUser:      e.users.Create,
		IssueToken:      e.issueSingleUse(singleuse.KindEmailVerification, e.config.EmailVerification.TTL),
		SendMail:        e.mailer.SendVerification,
	})

	switch result.Failure {
	case flows.RegisterFailureNone:
	case flows.RegisterFailureValidation:
		return nil, e.registerFailed(ctx, fieldError(result.Field))
	case flows.RegisterFailureDuplicate:
		e.metricInc(MetricRegisterDuplicate)
		return nil, e.registerFailed(ctx, ErrDuplicateEmail)
	case flows.RegisterFailureHashing:
		e.registerFailed(ctx, ErrHashingFailure)
		return nil, e.internalError(ctx, "PASSWORD_HASH_FAILED", "register: hashing password", result.Err)
	default:
		e.registerFailed(ctx, ErrInternal)
		return nil, e.internalError(ctx, "USER_CREATE_FAILED", "register: storing user", result.Err)
	}

	e.metricInc(MetricRegisterSuccess)
	if result.Token != "" {
		e.metricInc(MetricEmailVerificationRequest)
	}
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventRegisterSuccess,
		success:   true,
		userID:    result.User.ID,
		actorID:   e.config.SystemActorID,
		metadata:  map[string]string{"user_type": result.User.UserType},
	})

	return &RegisterResult{UserID: result.User.ID}, nil
}

func (e *Engine) registerFailed(ctx context.Context, err *Error) error {
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventRegisterFailure,
		actorID:   e.config.SystemActorID,
		err:       err,
	})
	return err
}

// Invite registers an account on behalf of the system actor without a usable
// password and mails the invitee a password-reset token. The invitee sets a
// password through ResetPassword; that also proves control of the address
// but does not mark it verified.
func (e *Engine) Invite(ctx context.Context, req InviteRequest) (*InviteResult, error) {
	ctx, span := e.startSpan(ctx, "Invite")
	res, err := e.invite(ctx, req)
	finish(span, err)
	return res, err
}

func (e *Engine) invite(ctx context.Context, req InviteRequest) (*InviteResult, error) {
	result := flows.RunRegister(ctx, req.Email, "", req.UserType, flows.RegisterDeps{
		Common:          e.common(),
		ActorID:         e.config.SystemActorID,
		DefaultUserType: defaultUserType,
		SkipPassword:    true,
		RandomSecret: func() (string, error) {
			return internal.NewOpaqueSecret(internal.SingleUseSecretSize)
		},
		NewUserID:  e.newUserID,
		Hasher:     e.hasher,
		CreateUser: e.users.Create,
		IssueToken: e.issueSingleUse(singleuse.KindPasswordReset, e.config.PasswordReset.TTL),
		SendMail:   e.mailer.SendInvitation,
	})

	switch result.Failure {
	case flows.RegisterFailureNone:
	case flows.RegisterFailureValidation:
		return nil, fieldError(result.Field)
	case flows.RegisterFailureDuplicate:
		e.metricInc(MetricRegisterDuplicate)
		return nil, ErrDuplicateEmail
	default:
		return nil, e.internalError(ctx, "USER_INVITE_FAILED", "invite: creating user", result.Err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventInviteSuccess,
		success:   true,
		userID:    result.User.ID,
		actorID:   e.config.SystemActorID,
		metadata:  map[string]string{"user_type": result.User.UserType, "mailed": boolString(result.Token != "")},
	})

	return &InviteResult{UserID: result.User.ID}, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
