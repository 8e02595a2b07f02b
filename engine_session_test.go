package stagepass_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/stagepass"
	"github.com/MrEthical07/stagepass/account"
	"github.com/MrEthical07/stagepass/refresh"
	"github.com/MrEthical07/stagepass/store/memory"
)

func TestLogoutSingleSession(t *testing.T) {
	h := newHarness(t)
	userID := h.registerVerified(t)
	ctx := context.Background()

	keep := h.login(t)
	drop := h.login(t)

	res, err := h.engine.Logout(ctx, stagepass.LogoutRequest{RefreshToken: drop.RefreshToken})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Revoked)

	// A logged-out token is invalid, not a reuse signal.
	_, err = h.engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: drop.RefreshToken})
	assert.ErrorIs(t, err, stagepass.ErrInvalidToken)

	_, err = h.engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: keep.RefreshToken})
	require.NoError(t, err)

	res, err = h.engine.Logout(ctx, stagepass.LogoutRequest{RefreshToken: drop.RefreshToken})
	require.NoError(t, err)
	assert.Zero(t, res.Revoked)

	sessions, err := h.engine.Sessions(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestLogoutAll(t *testing.T) {
	h := newHarness(t)
	userID := h.registerVerified(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.login(t)
	}

	res, err := h.engine.Logout(ctx, stagepass.LogoutRequest{UserID: userID, All: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Revoked)

	sessions, err := h.engine.Sessions(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	ev, ok := hasEvent(h.auditEvents(), "logout_all")
	require.True(t, ok)
	assert.Equal(t, "3", ev.Metadata["revoked"])
}

func TestLogoutValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Logout(ctx, stagepass.LogoutRequest{})
	var verr *stagepass.Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "refresh_token", verr.Field)

	_, err = h.engine.Logout(ctx, stagepass.LogoutRequest{All: true})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "user_id", verr.Field)
}

func TestRefreshExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t)
	pair := h.login(t)

	h.clock.Advance(7*24*time.Hour + time.Second)
	_, err := h.engine.RefreshSession(context.Background(), stagepass.RefreshRequest{RefreshToken: pair.RefreshToken})
	assert.ErrorIs(t, err, stagepass.ErrInvalidToken)
}

func TestRefreshUnknownAndEmptyTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, token := range []string{"", "never-issued"} {
		_, err := h.engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: token})
		assert.ErrorIs(t, err, stagepass.ErrInvalidToken)
	}
	assert.Equal(t, uint64(2), h.engine.MetricsSnapshot().Counters[stagepass.MetricRefreshFailure])
}

func TestRefreshForDeletedUserRevokesSessions(t *testing.T) {
	h := newHarness(t)
	userID := h.registerVerified(t)
	ctx := context.Background()

	first := h.login(t)
	second := h.login(t)

	require.NoError(t, h.users.SoftDelete(userID, epoch))

	_, err := h.engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: first.RefreshToken})
	require.ErrorIs(t, err, stagepass.ErrInvalidToken)

	_, err = h.engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: second.RefreshToken})
	assert.ErrorIs(t, err, stagepass.ErrInvalidToken)

	ev, ok := hasEvent(h.auditEvents(), "sessions_revoked_deleted_user")
	require.True(t, ok)
	assert.Equal(t, userID, ev.UserID)
}

func TestRequestEmailVerification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Register(ctx, stagepass.RegisterRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	first := h.mailer.last(t, "verification").Token

	require.NoError(t, h.engine.RequestEmailVerification(ctx, stagepass.EmailVerificationRequest{Email: testEmail}))
	second := h.mailer.last(t, "verification").Token
	assert.NotEqual(t, first, second)

	// Both outstanding tokens are valid; the second is then moot.
	_, err = h.engine.VerifyEmail(ctx, stagepass.VerifyEmailRequest{Token: first})
	require.NoError(t, err)

	// Unknown and already verified addresses look the same as a send.
	require.NoError(t, h.engine.RequestEmailVerification(ctx, stagepass.EmailVerificationRequest{Email: "nobody@x.com"}))
	require.NoError(t, h.engine.RequestEmailVerification(ctx, stagepass.EmailVerificationRequest{Email: testEmail}))
	assert.Equal(t, 2, h.mailer.count("verification"))
}

func TestVerifyEmailTokenExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Register(ctx, stagepass.RegisterRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	h.clock.Advance(24*time.Hour + time.Second)
	_, err = h.engine.VerifyEmail(ctx, stagepass.VerifyEmailRequest{Token: h.mailer.last(t, "verification").Token})
	assert.ErrorIs(t, err, stagepass.ErrInvalidOrExpired)
}

func TestVerificationTokenCannotResetPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Register(ctx, stagepass.RegisterRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	token := h.mailer.last(t, "verification").Token

	_, err = h.engine.ResetPassword(ctx, stagepass.ResetPasswordRequest{Token: token, NewPassword: "a brand new secret"})
	require.ErrorIs(t, err, stagepass.ErrInvalidOrExpired)

	// Presenting it as the wrong kind does not burn it.
	_, err = h.engine.VerifyEmail(ctx, stagepass.VerifyEmailRequest{Token: token})
	assert.NoError(t, err)
}

func TestForgotPasswordUnknownEmailSendsNothing(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.engine.ForgotPassword(context.Background(), stagepass.ForgotPasswordRequest{Email: "nobody@x.com"}))
	assert.Zero(t, h.mailer.count("reset"))
}

func TestForgotPasswordRateLimited(t *testing.T) {
	h := newHarness(t, func(c *stagepass.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.ForgotPerHour = 1
		c.RateLimit.Burst = 1
	})
	h.registerVerified(t)
	ctx := context.Background()

	require.NoError(t, h.engine.ForgotPassword(ctx, stagepass.ForgotPasswordRequest{Email: testEmail}))
	err := h.engine.ForgotPassword(ctx, stagepass.ForgotPasswordRequest{Email: testEmail})
	assert.ErrorIs(t, err, stagepass.ErrRateLimited)
	assert.Equal(t, 1, h.mailer.count("reset"))
}

func TestResetPasswordPolicyKeepsToken(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t)
	ctx := context.Background()

	require.NoError(t, h.engine.ForgotPassword(ctx, stagepass.ForgotPasswordRequest{Email: testEmail}))
	token := h.mailer.last(t, "reset").Token

	_, err := h.engine.ResetPassword(ctx, stagepass.ResetPasswordRequest{Token: token, NewPassword: "short"})
	var verr *stagepass.Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "new_password", verr.Field)

	_, err = h.engine.ResetPassword(ctx, stagepass.ResetPasswordRequest{Token: token, NewPassword: "long enough now"})
	assert.NoError(t, err)
}

func TestPurgeRemovesExpiredTokens(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t)
	h.login(t)
	ctx := context.Background()

	h.clock.Advance(8 * 24 * time.Hour)
	res, err := h.engine.Purge(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RefreshRecords)
	assert.Equal(t, 1, res.SingleUseTokens)
}

func TestSessionsRequiresUserID(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Sessions(context.Background(), "")
	assert.ErrorIs(t, err, stagepass.ErrValidation)
}

// cancellingRefreshStore cancels the request context as soon as a rotation
// has been committed.
type cancellingRefreshStore struct {
	*memory.RefreshTokens
	cancel context.CancelFunc
}

func (s *cancellingRefreshStore) Rotate(ctx context.Context, hash string, successor *refresh.Record, now time.Time) (refresh.RotateResult, error) {
	res, err := s.RefreshTokens.Rotate(ctx, hash, successor, now)
	if s.cancel != nil {
		s.cancel()
	}
	return res, err
}

// ctxUsers fails lookups on a done context, like a database driver would.
type ctxUsers struct {
	*memory.Users
}

func (u ctxUsers) FindByID(ctx context.Context, id string) (*account.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return u.Users.FindByID(ctx, id)
}

func TestRefreshSurvivesCancellationAfterCommit(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t)
	first := h.login(t)
	second := h.login(t)

	store := &cancellingRefreshStore{RefreshTokens: h.refresh}
	engine, err := stagepass.New().
		WithConfig(testConfig()).
		WithStores(ctxUsers{h.users}, store, h.tokens).
		WithClock(h.clock).
		WithMailer(h.mailer).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.cancel = cancel

	rotated, err := engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	require.NotEmpty(t, rotated.AccessToken)
	require.NotEqual(t, first.RefreshToken, rotated.RefreshToken)
	store.cancel = nil

	// The new secret works and the other device was left alone.
	next, err := engine.RefreshSession(context.Background(), stagepass.RefreshRequest{RefreshToken: rotated.RefreshToken})
	require.NoError(t, err)
	_, err = engine.RefreshSession(context.Background(), stagepass.RefreshRequest{RefreshToken: second.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, next.RefreshToken)
}
