package stagepass_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/stagepass"
	"github.com/MrEthical07/stagepass/store/memory"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

const (
	testEmail    = "a@x.com"
	testPassword = "correct horse battery"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	Kind  string
	To    string
	Token string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) record(kind, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Kind: kind, To: to, Token: token})
	return m.err
}

func (m *recordingMailer) SendVerification(_ context.Context, to, token string) error {
	return m.record("verification", to, token)
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to, token string) error {
	return m.record("reset", to, token)
}

func (m *recordingMailer) SendPasswordChanged(_ context.Context, to string) error {
	return m.record("changed", to, "")
}

func (m *recordingMailer) SendInvitation(_ context.Context, to, token string) error {
	return m.record("invitation", to, token)
}

// last returns the most recent mail of kind.
func (m *recordingMailer) last(t testing.TB, kind string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail sent", kind)
	return sentMail{}
}

func (m *recordingMailer) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	engine  *stagepass.Engine
	clock   *testClock
	mailer  *recordingMailer
	users   *memory.Users
	refresh *memory.RefreshTokens
	tokens  *memory.SingleUseTokens
	audit   *stagepass.ChannelSink
}

func testConfig() stagepass.Config {
	cfg := stagepass.DefaultConfig()
	cfg.JWT.SigningKey = "0123456789abcdef0123456789abcdef"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.Enabled = false
	return cfg
}

type harnessOption func(*stagepass.Config)

func newHarness(t testing.TB, opts ...harnessOption) *harness {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{
		clock:   &testClock{now: epoch},
		mailer:  &recordingMailer{},
		users:   memory.NewUsers(),
		refresh: memory.NewRefreshTokens(),
		tokens:  memory.NewSingleUseTokens(),
		audit:   stagepass.NewChannelSink(1024),
	}
	h.engine = h.build(t, cfg)
	return h
}

// build wires another Engine over the harness stores, clock and mailer.
func (h *harness) build(t testing.TB, cfg stagepass.Config) *stagepass.Engine {
	t.Helper()
	engine, err := stagepass.New().
		WithConfig(cfg).
		WithStores(h.users, h.refresh, h.tokens).
		WithClock(h.clock).
		WithMailer(h.mailer).
		WithAuditSink(h.audit).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

// registerVerified registers testEmail and verifies it with the mailed token.
func (h *harness) registerVerified(t testing.TB) string {
	t.Helper()
	ctx := context.Background()

	res, err := h.engine.Register(ctx, stagepass.RegisterRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	_, err = h.engine.VerifyEmail(ctx, stagepass.VerifyEmailRequest{Token: h.mailer.last(t, "verification").Token})
	require.NoError(t, err)
	return res.UserID
}

func (h *harness) login(t testing.TB) *stagepass.TokenPair {
	t.Helper()
	pair, err := h.engine.Login(context.Background(), stagepass.LoginRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	return pair
}

// auditEvents closes the engine and drains every delivered event.
func (h *harness) auditEvents() []stagepass.AuditEvent {
	h.engine.Close()
	var events []stagepass.AuditEvent
	for {
		select {
		case ev := <-h.audit.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func hasEvent(events []stagepass.AuditEvent, eventType string) (stagepass.AuditEvent, bool) {
	for _, ev := range events {
		if ev.EventType == eventType {
			return ev, true
		}
	}
	return stagepass.AuditEvent{}, false
}
