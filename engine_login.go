package stagepass

import (
	"context"
	"time"

	"github.com/MrEthical07/stagepass/internal/flows"
	"github.com/MrEthical07/stagepass/internal/rate"
)

// Login authenticates by email and password and starts a session.
//
// Unknown email and wrong password both fail with KindInvalidCredentials
// after the same hashing work. A locked account fails with KindAccountLocked
// (Until set) before the password is checked. The threshold-th consecutive
// failure locks the account for Lockout.Duration. With
// EmailVerification.RequiredForLogin, correct credentials on an unverified
// account fail with KindEmailNotVerified.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "Login")
	res, err := e.login(ctx, req)
	finish(span, err)
	e.observe(MetricLoginLatency, start)
	return res, err
}

func (e *Engine) login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	result := flows.RunLogin(ctx, req.Email, req.Password, flows.LoginDeps{
		Common:             e.common(),
		LockoutThreshold:   e.config.Lockout.Threshold,
		LockoutDuration:    e.config.Lockout.Duration,
		RequireVerified:    e.config.EmailVerification.RequiredForLogin,
		UpgradeOnLogin:     e.config.Password.UpgradeOnLogin,
		ThrottleEmail:      e.throttle(rate.ActionLoginEmail, "login_email"),
		ThrottleIP:         e.throttle(rate.ActionLoginIP, "login_ip"),
		ClientIP:           ClientIPFromContext(ctx),
		FindUser:           e.users.FindByEmail,
		Hasher:             e.hasher,
		RecordFailure:      e.users.RecordLoginFailure,
		RecordSuccess:      e.users.RecordLoginSuccess,
		UpdatePasswordHash: e.users.UpdatePasswordHash,
		IssueSession:       e.issueSession,
	})

	var userID string
	if result.User != nil {
		userID = result.User.ID
	}
	if result.Rehashed {
		e.metricInc(MetricPasswordRehashed)
		e.emitAudit(ctx, auditRecord{eventType: auditEventPasswordRehashed, success: true, userID: userID})
	}

	var err error
	switch result.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventLoginSuccess,
			success:   true,
			userID:    userID,
			recordID:  result.Tokens.RecordID,
		})
		return tokenPair(userID, result.Tokens), nil
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		return nil, rateLimitedError(result.Until)
	case flows.LoginFailureUnknownUser:
		err = ErrInvalidCredentials
	case flows.LoginFailureBadPassword:
		err = ErrInvalidCredentials
		if result.LockedNow {
			e.metricInc(MetricAccountLocked)
			e.logger.WarnContext(ctx, "account locked after repeated login failures",
				"user_id", userID, "until", result.Until)
			e.emitAudit(ctx, auditRecord{
				eventType: auditEventAccountLocked,
				userID:    userID,
				err:       ErrAccountLocked,
				metadata:  map[string]string{"until": result.Until.UTC().Format(time.RFC3339)},
			})
		}
	case flows.LoginFailureLocked:
		e.metricInc(MetricLoginLocked)
		err = lockedError(result.Until)
	case flows.LoginFailureUnverified:
		e.metricInc(MetricLoginUnverified)
		err = ErrEmailNotVerified
	case flows.LoginFailureStore:
		err = e.internalError(ctx, "LOGIN_STORE_FAILED", "login: user store", result.Err, "user_id", userID)
	default:
		err = e.internalError(ctx, "LOGIN_ISSUE_FAILED", "login: issuing session", result.Err, "user_id", userID)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditRecord{eventType: auditEventLoginFailure, userID: userID, err: err})
	return nil, err
}
