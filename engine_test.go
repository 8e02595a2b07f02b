package stagepass_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/stagepass"
	"github.com/MrEthical07/stagepass/refresh"
)

func TestScenarioRegisterThenVerifyThenLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.Register(ctx, stagepass.RegisterRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	user, err := h.users.FindByID(ctx, res.UserID)
	require.NoError(t, err)
	assert.False(t, user.EmailVerified)
	assert.Equal(t, stagepass.DefaultSystemActorID, user.CreatedBy)
	assert.Equal(t, "user", user.UserType)

	_, err = h.engine.Login(ctx, stagepass.LoginRequest{Email: testEmail, Password: testPassword})
	assert.ErrorIs(t, err, stagepass.ErrEmailNotVerified)

	mail := h.mailer.last(t, "verification")
	assert.Equal(t, testEmail, mail.To)

	verified, err := h.engine.VerifyEmail(ctx, stagepass.VerifyEmailRequest{Token: mail.Token})
	require.NoError(t, err)
	assert.Equal(t, res.UserID, verified.UserID)

	pair, err := h.engine.Login(ctx, stagepass.LoginRequest{Email: "  A@X.com ", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, res.UserID, pair.UserID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, epoch.Add(15*time.Minute), pair.AccessExpiresAt)
	assert.Equal(t, epoch.Add(7*24*time.Hour), pair.RefreshExpiresAt)

	claims, err := h.engine.ValidateAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, claims.UserID())
	assert.Equal(t, testEmail, claims.Email)

	_, err = h.engine.VerifyEmail(ctx, stagepass.VerifyEmailRequest{Token: mail.Token})
	assert.ErrorIs(t, err, stagepass.ErrInvalidOrExpired)
}

func TestScenarioLockoutAfterThreshold(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := h.engine.Login(ctx, stagepass.LoginRequest{Email: testEmail, Password: "wrong password"})
		require.ErrorIs(t, err, stagepass.ErrInvalidCredentials, "attempt %d", i)
	}

	_, err := h.engine.Login(ctx, stagepass.LoginRequest{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, stagepass.ErrAccountLocked)

	var locked *stagepass.Error
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, epoch.Add(15*time.Minute), locked.Until)

	h.clock.Advance(15 * time.Minute)
	h.login(t)

	snap := h.engine.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[stagepass.MetricAccountLocked])
	assert.Equal(t, uint64(1), snap.Counters[stagepass.MetricLoginLocked])

	events := h.auditEvents()
	ev, ok := hasEvent(events, "account_locked")
	require.True(t, ok)
	assert.Equal(t, "account_locked", ev.Error)
}

func TestScenarioRefreshReuseRevokesEverything(t *testing.T) {
	h := newHarness(t)
	userID := h.registerVerified(t)
	ctx := context.Background()

	first := h.login(t)
	other := h.login(t)

	second, err := h.engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: first.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, userID, second.UserID)

	_, err = h.engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: first.RefreshToken})
	require.ErrorIs(t, err, stagepass.ErrReuseDetected)

	_, err = h.engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: second.RefreshToken})
	assert.ErrorIs(t, err, stagepass.ErrInvalidToken)
	_, err = h.engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: other.RefreshToken})
	assert.ErrorIs(t, err, stagepass.ErrInvalidToken)

	sessions, err := h.engine.Sessions(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.Equal(t, uint64(1), h.engine.MetricsSnapshot().Counters[stagepass.MetricRefreshReuseDetected])

	ev, ok := hasEvent(h.auditEvents(), "refresh_reuse_detected")
	require.True(t, ok)
	assert.Equal(t, userID, ev.UserID)
	assert.Equal(t, "2", ev.Metadata["revoked"])
}

func TestScenarioForgotAndResetPassword(t *testing.T) {
	h := newHarness(t)
	userID := h.registerVerified(t)
	ctx := context.Background()

	before := h.login(t)
	active, err := h.engine.Sessions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, h.engine.ForgotPassword(ctx, stagepass.ForgotPasswordRequest{Email: testEmail}))
	token := h.mailer.last(t, "reset").Token

	res, err := h.engine.ResetPassword(ctx, stagepass.ResetPasswordRequest{Token: token, NewPassword: "a brand new secret"})
	require.NoError(t, err)
	assert.Equal(t, userID, res.UserID)
	assert.Equal(t, 1, res.SessionsRevoked)
	assert.Equal(t, 1, h.mailer.count("changed"))

	_, err = h.engine.ResetPassword(ctx, stagepass.ResetPasswordRequest{Token: token, NewPassword: "another new secret"})
	assert.ErrorIs(t, err, stagepass.ErrInvalidOrExpired)

	_, err = h.engine.RefreshSession(ctx, stagepass.RefreshRequest{RefreshToken: before.RefreshToken})
	assert.ErrorIs(t, err, stagepass.ErrInvalidToken)

	_, err = h.engine.Login(ctx, stagepass.LoginRequest{Email: testEmail, Password: testPassword})
	assert.ErrorIs(t, err, stagepass.ErrInvalidCredentials)

	_, err = h.engine.Login(ctx, stagepass.LoginRequest{Email: testEmail, Password: "a brand new secret"})
	assert.NoError(t, err)

	rec, ok := h.refresh.Get(active[0].ID)
	require.True(t, ok)
	assert.True(t, rec.Revoked)
	assert.Equal(t, refresh.ReasonPasswordReset, rec.RevokedReason)
}

func TestConcurrentRefreshHasSingleWinner(t *testing.T) {
	h := newHarness(t)
	h.registerVerified(t)
	pair := h.login(t)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		reused  int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.engine.RefreshSession(context.Background(), stagepass.RefreshRequest{RefreshToken: pair.RefreshToken})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, stagepass.ErrReuseDetected):
				reused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, reused)
}
