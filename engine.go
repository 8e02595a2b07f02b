package stagepass

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/stagepass/account"
	internalaudit "github.com/MrEthical07/stagepass/internal/audit"
	"github.com/MrEthical07/stagepass/internal/flows"
	"github.com/MrEthical07/stagepass/internal/rate"
	"github.com/MrEthical07/stagepass/jwt"
	"github.com/MrEthical07/stagepass/password"
	"github.com/MrEthical07/stagepass/pkg/errutil"
	"github.com/MrEthical07/stagepass/refresh"
	"github.com/MrEthical07/stagepass/singleuse"
)

// Engine orchestrates registration, login, session refresh, logout, email
// verification and password reset over the configured stores.
//
// Engine instances are built by [Builder.Build] and are safe for concurrent
// use. Close stops the audit dispatcher.
type Engine struct {
	config    Config
	clock     Clock
	logger    *slog.Logger
	tracer    trace.Tracer
	users     UserStore
	hasher    *password.Argon2
	issuer    *jwt.Issuer
	refresh   *refresh.Ledger
	singleUse *singleuse.Ledger
	mailer    Mailer
	limiter   rate.Limiter
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	newUserID func() string
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the Engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID]HistogramSnapshot{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the Engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "stagepass."+op, trace.WithSpanKind(trace.SpanKindInternal))
}

// finish records the outcome on span and ends it.
func finish(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("stagepass.error_kind", KindOf(err).String()))
		span.SetStatus(codes.Error, KindOf(err).String())
	}
	span.End()
}

// internalError logs err with its oops code and returns the opaque
// ErrInternal. code tags errors that do not carry one yet.
func (e *Engine) internalError(ctx context.Context, code, msg string, err error, kv ...any) error {
	if errutil.Code(err) == "" {
		err = oops.Code(code).With(kv...).Wrap(err)
	}
	errutil.LogError(ctx, e.logger, msg, err)
	return ErrInternal
}

// warn adapts the logger to flows.Common.Warn.
func (e *Engine) warn(ctx context.Context, msg string, args ...any) {
	e.logger.WarnContext(ctx, msg, args...)
}

func (e *Engine) common() flows.Common {
	return flows.Common{Now: e.clock.Now, Warn: e.warn}
}

func (e *Engine) passwordPolicy() flows.PasswordPolicy {
	return flows.PasswordPolicy{
		MinLength: e.config.Password.MinLength,
		MaxLength: e.config.Password.MaxLength,
	}
}

// throttle adapts the rate limiter to flows.Throttle. Backend failures fail
// open with a warning: an unavailable limiter must not lock everyone out.
func (e *Engine) throttle(action rate.Action, scope string) flows.Throttle {
	return func(ctx context.Context, subject string) (time.Time, bool) {
		if e.limiter == nil || subject == "" {
			return time.Time{}, true
		}
		d, err := e.limiter.Allow(ctx, action, subject)
		if err != nil {
			e.logger.WarnContext(ctx, "rate limiter unavailable, allowing request",
				"action", string(action), "code", errutil.Code(err), "error", err)
			return time.Time{}, true
		}
		if !d.Allowed {
			e.emitRateLimit(ctx, scope, d.RetryAt.UTC().Format(time.RFC3339))
			return d.RetryAt, false
		}
		return time.Time{}, true
	}
}

// issueSession creates a refresh record and an access token for user.
func (e *Engine) issueSession(ctx context.Context, user *account.User) (*flows.Tokens, error) {
	secret, rec, err := e.refresh.Issue(ctx, user.ID, ClientIPFromContext(ctx))
	if err != nil {
		return nil, oops.Code("REFRESH_ISSUE_FAILED").With("user_id", user.ID).Wrap(err)
	}

	access, accessExp, err := e.issuer.IssueAccessToken(user.ID, user.Email, user.UserType)
	if err != nil {
		return nil, oops.Code("ACCESS_TOKEN_ISSUE_FAILED").With("user_id", user.ID).Wrap(err)
	}

	e.metricInc(MetricSessionCreated)
	return &flows.Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     secret,
		RefreshExpiresAt: rec.ExpiresAt,
		RecordID:         rec.ID,
	}, nil
}

func (e *Engine) issueAccess(user *account.User) (string, time.Time, error) {
	return e.issuer.IssueAccessToken(user.ID, user.Email, user.UserType)
}

func (e *Engine) issueSingleUse(kind singleuse.Kind, ttl time.Duration) func(context.Context, string) (string, error) {
	return func(ctx context.Context, userID string) (string, error) {
		return e.singleUse.Issue(ctx, userID, kind, ttl)
	}
}

func tokenPair(userID string, t *flows.Tokens) *TokenPair {
	return &TokenPair{
		AccessToken:      t.AccessToken,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshToken:     t.RefreshToken,
		RefreshExpiresAt: t.RefreshExpiresAt,
		UserID:           userID,
	}
}

func fieldError(f *flows.FieldError) *Error {
	return validationError(f.Field, f.Message)
}

func defaultNewUserID() string {
	return uuid.NewString()
}
