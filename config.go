package stagepass

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/stagepass/password"
)

// DefaultSystemActorID is the actor stamped on records created by the
// service itself (self-registration, CLI invitations).
const DefaultSystemActorID = "00000000-0000-0000-0000-000000000000"

const minSigningKeyBytes = 32

// Config is the Engine configuration. Field tags follow the YAML layout read
// by package config.
type Config struct {
	SystemActorID     string                  `koanf:"system_actor_id"`
	JWT               JWTConfig               `koanf:"jwt"`
	Refresh           RefreshConfig           `koanf:"refresh"`
	Lockout           LockoutConfig           `koanf:"lockout"`
	Password          PasswordConfig          `koanf:"password"`
	EmailVerification EmailVerificationConfig `koanf:"email_verification"`
	PasswordReset     PasswordResetConfig     `koanf:"password_reset"`
	RateLimit         RateLimitConfig         `koanf:"rate_limit"`
	Audit             AuditConfig             `koanf:"audit"`
	Metrics           MetricsConfig           `koanf:"metrics"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures HS256 access tokens. SigningKey must be at least 32
// bytes.
type JWTConfig struct {
	SigningKey string        `koanf:"signing_key"`
	Issuer     string        `koanf:"issuer"`
	Audience   string        `koanf:"audience"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
}

/*
====================================
SESSION CONFIG
====================================
*/

type RefreshConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// LockoutConfig locks an account for Duration after Threshold consecutive
// failed logins.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Duration  time.Duration `koanf:"duration"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id parameters and the length policy.
// Memory is in KiB.
type PasswordConfig struct {
	Memory         uint32 `koanf:"memory"`
	Time           uint32 `koanf:"time"`
	Parallelism    uint8  `koanf:"parallelism"`
	SaltLength     uint32 `koanf:"salt_length"`
	KeyLength      uint32 `koanf:"key_length"`
	MinLength      int    `koanf:"min_length"`
	MaxLength      int    `koanf:"max_length"`
	UpgradeOnLogin bool   `koanf:"upgrade_on_login"`
}

func (c PasswordConfig) hasher() password.Config {
	return password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

/*
====================================
SINGLE-USE TOKEN CONFIG
====================================
*/

type EmailVerificationConfig struct {
	TTL              time.Duration `koanf:"ttl"`
	RequiredForLogin bool          `koanf:"required_for_login"`
}

type PasswordResetConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

/*
====================================
RATE LIMIT / AUDIT / METRICS CONFIG
====================================
*/

// RateLimitConfig throttles login per email and per client IP, and
// forgot-password and verification requests per email.
type RateLimitConfig struct {
	Enabled             bool `koanf:"enabled"`
	LoginPerMinute      int  `koanf:"login_per_minute"`
	ForgotPerHour       int  `koanf:"forgot_per_hour"`
	VerificationPerHour int  `koanf:"verification_per_hour"`
	Burst               int  `koanf:"burst"`
}

type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	DropIfFull bool `koanf:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled           bool `koanf:"enabled"`
	LatencyHistograms bool `koanf:"latency_histograms"`
}

// DefaultConfig returns a complete configuration except for the JWT signing
// key, which has no safe default.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		SystemActorID: DefaultSystemActorID,
		JWT: JWTConfig{
			Issuer:    "stagepass",
			Audience:  "stagepass",
			AccessTTL: 15 * time.Minute,
		},
		Refresh: RefreshConfig{TTL: 7 * 24 * time.Hour},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MinLength:      8,
			MaxLength:      1024,
			UpgradeOnLogin: true,
		},
		EmailVerification: EmailVerificationConfig{
			TTL:              24 * time.Hour,
			RequiredForLogin: true,
		},
		PasswordReset: PasswordResetConfig{TTL: time.Hour},
		RateLimit: RateLimitConfig{
			Enabled:             true,
			LoginPerMinute:      20,
			ForgotPerHour:       5,
			VerificationPerHour: 5,
			Burst:               5,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:           true,
			LatencyHistograms: true,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := uuid.Parse(c.SystemActorID); err != nil {
		return fmt.Errorf("system_actor_id must be a UUID: %w", err)
	}

	// JWT
	if len(c.JWT.SigningKey) < minSigningKeyBytes {
		return errors.New("jwt.signing_key must be at least 32 bytes")
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return errors.New("jwt.issuer and jwt.audience are required")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("jwt.access_ttl must be > 0")
	}

	// Sessions
	if c.Refresh.TTL <= 0 {
		return errors.New("refresh.ttl must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("refresh.ttl must exceed jwt.access_ttl")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("lockout.threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("lockout.duration must be > 0")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("password.min_length must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("password.max_length must be >= password.min_length")
	}

	// Single-use tokens
	if c.EmailVerification.TTL <= 0 {
		return errors.New("email_verification.ttl must be > 0")
	}
	if c.PasswordReset.TTL <= 0 {
		return errors.New("password_reset.ttl must be > 0")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.LoginPerMinute <= 0 || c.RateLimit.ForgotPerHour <= 0 || c.RateLimit.VerificationPerHour <= 0 {
			return errors.New("rate_limit limits must be > 0 when enabled")
		}
		if c.RateLimit.Burst < 0 {
			return errors.New("rate_limit.burst must be >= 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit.buffer_size must be > 0 when enabled")
	}

	return nil
}
