package stagepass

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/stagepass/account"
	internalaudit "github.com/MrEthical07/stagepass/internal/audit"
	"github.com/MrEthical07/stagepass/refresh"
)

// User is the identity record persisted by a UserStore.
type User = account.User

// UserStore persists users. See account.Store for the atomicity contract of
// RecordLoginFailure.
type UserStore = account.Store

// Session is an active refresh record as returned by Engine.Sessions.
type Session = refresh.Record

// Clock supplies the current time. All expiry and lockout decisions use it.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Mailer delivers outbound email. Implementations receive raw single-use
// secrets and must not log them. Engine operations never fail because of a
// Mailer error.
type Mailer interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
	SendPasswordChanged(ctx context.Context, to string) error
	SendInvitation(ctx context.Context, to, token string) error
}

// LogMailer logs the mail it would send, without the secret. It is the
// Builder's default and is meant for development.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m LogMailer) SendVerification(ctx context.Context, to, _ string) error {
	m.logger().InfoContext(ctx, "mail: email verification", "to", to)
	return nil
}

func (m LogMailer) SendPasswordReset(ctx context.Context, to, _ string) error {
	m.logger().InfoContext(ctx, "mail: password reset", "to", to)
	return nil
}

func (m LogMailer) SendPasswordChanged(ctx context.Context, to string) error {
	m.logger().InfoContext(ctx, "mail: password changed", "to", to)
	return nil
}

func (m LogMailer) SendInvitation(ctx context.Context, to, _ string) error {
	m.logger().InfoContext(ctx, "mail: invitation", "to", to)
	return nil
}

// AuditEvent is one security-relevant outcome.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the Engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

/*
====================================
REQUESTS AND RESULTS
====================================
*/

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserType string `json:"user_type,omitempty"`
}

type RegisterResult struct {
	UserID string `json:"user_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is returned by Login and RefreshSession. RefreshToken is the raw
// secret; only its hash is stored.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest revokes one refresh token, or with All every active token of
// UserID.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	All          bool   `json:"all,omitempty"`
}

type LogoutResult struct {
	Revoked int `json:"revoked"`
}

type EmailVerificationRequest struct {
	Email string `json:"email"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type VerifyEmailResult struct {
	UserID string `json:"user_id"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ResetPasswordResult struct {
	UserID          string `json:"user_id"`
	SessionsRevoked int    `json:"sessions_revoked"`
}

// InviteRequest registers an account on behalf of the system actor and mails
// the invitee a password-reset token in place of a password.
type InviteRequest struct {
	Email    string `json:"email"`
	UserType string `json:"user_type,omitempty"`
}

type InviteResult struct {
	UserID string `json:"user_id"`
}
