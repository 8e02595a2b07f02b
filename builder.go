package stagepass

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	internalaudit "github.com/MrEthical07/stagepass/internal/audit"
	"github.com/MrEthical07/stagepass/internal/rate"
	"github.com/MrEthical07/stagepass/jwt"
	"github.com/MrEthical07/stagepass/password"
	"github.com/MrEthical07/stagepass/refresh"
	"github.com/MrEthical07/stagepass/singleuse"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config

	users     UserStore
	refresh   refresh.Store
	singleUse singleuse.Store

	clock       Clock
	mailer      Mailer
	logger      *slog.Logger
	tracer      trace.Tracer
	auditSink   AuditSink
	rateRedis   redis.UniversalClient
	ratePrefix  string
	newUserID   func() string
	newRecordID func() string

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStores sets the three persistence collaborators. All are required.
func (b *Builder) WithStores(users UserStore, refreshStore refresh.Store, singleUse singleuse.Store) *Builder {
	b.users = users
	b.refresh = refreshStore
	b.singleUse = singleUse
	return b
}

// WithClock overrides the wall clock for every expiry and lockout decision.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithMailer sets the outbound mail collaborator. Defaults to LogMailer.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracer overrides the tracer from the global otel provider.
func (b *Builder) WithTracer(tracer trace.Tracer) *Builder {
	b.tracer = tracer
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRedisRateLimiter shares throttling counters through Redis instead of
// the per-process token buckets.
func (b *Builder) WithRedisRateLimiter(client redis.UniversalClient, prefix string) *Builder {
	b.rateRedis = client
	b.ratePrefix = prefix
	return b
}

// WithIDGenerators overrides user and record id generation, mostly for tests.
// Nil keeps the default (UUIDv4 users, ULID records).
func (b *Builder) WithIDGenerators(userID, recordID func() string) *Builder {
	b.newUserID = userID
	b.newRecordID = recordID
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.LatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine. It starts the
// audit dispatcher goroutine when auditing is enabled; Engine.Close stops it.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil || b.refresh == nil || b.singleUse == nil {
		return nil, errors.New("user, refresh and single-use stores are required")
	}

	clock := b.clock
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := b.tracer
	if tracer == nil {
		tracer = otel.Tracer("stagepass")
	}
	mailer := b.mailer
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	newUserID := b.newUserID
	if newUserID == nil {
		newUserID = defaultNewUserID
	}

	hasher, err := password.NewArgon2(cfg.Password.hasher())
	if err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}

	issuer, err := jwt.NewIssuer(jwt.Config{
		AccessTTL:  cfg.JWT.AccessTTL,
		SigningKey: []byte(cfg.JWT.SigningKey),
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Now:        clock.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	refreshLedger, err := refresh.NewLedger(b.refresh, issuer, refresh.Config{
		TTL:   cfg.Refresh.TTL,
		Now:   clock.Now,
		NewID: b.newRecordID,
	})
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	singleUseLedger, err := singleuse.NewLedger(b.singleUse, singleuse.Config{
		Now:   clock.Now,
		NewID: b.newRecordID,
	})
	if err != nil {
		return nil, fmt.Errorf("singleuse: %w", err)
	}

	engine := &Engine{
		config:    cfg,
		clock:     clock,
		logger:    logger,
		tracer:    tracer,
		users:     b.users,
		hasher:    hasher,
		issuer:    issuer,
		refresh:   refreshLedger,
		singleUse: singleUseLedger,
		mailer:    mailer,
		limiter:   b.buildLimiter(cfg, clock),
		metrics:   NewMetrics(cfg.Metrics),
		newUserID: newUserID,
	}

	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = internalaudit.NewSlogSink(logger)
		}
		engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink)
	}

	b.built = true
	return engine, nil
}

func (b *Builder) buildLimiter(cfg Config, clock Clock) rate.Limiter {
	if !cfg.RateLimit.Enabled {
		return rate.Nop{}
	}

	login := rate.Policy{
		Limit:  cfg.RateLimit.LoginPerMinute,
		Window: time.Minute,
		Burst:  cfg.RateLimit.Burst,
	}
	policies := rate.Policies{
		rate.ActionLoginEmail: login,
		rate.ActionLoginIP:    login,
		rate.ActionForgot: {
			Limit:  cfg.RateLimit.ForgotPerHour,
			Window: time.Hour,
			Burst:  cfg.RateLimit.Burst,
		},
		rate.ActionVerification: {
			Limit:  cfg.RateLimit.VerificationPerHour,
			Window: time.Hour,
			Burst:  cfg.RateLimit.Burst,
		},
	}

	if b.rateRedis != nil {
		return rate.NewRedis(b.rateRedis, b.ratePrefix, policies, clock.Now)
	}
	return rate.NewMemory(policies, clock.Now)
}
