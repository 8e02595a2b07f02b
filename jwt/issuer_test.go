package jwt

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestIssuer(t *testing.T, clock *fakeClock, mutate func(*Config)) *Issuer {
	t.Helper()
	cfg := Config{
		AccessTTL:  15 * time.Minute,
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Issuer:     "stagepass",
		Audience:   "festival-app",
		Now:        clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	issuer, err := NewIssuer(cfg)
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}
	return issuer
}

func TestIssueAndValidate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, clock, nil)

	token, expiry, err := issuer.IssueAccessToken("user-1", "a@x.com", "attendee")
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}
	if !expiry.Equal(clock.now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", expiry)
	}

	claims, err := issuer.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken error: %v", err)
	}
	if claims.UserID() != "user-1" || claims.Email != "a@x.com" || claims.UserType != "attendee" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
	if claims.Issuer != "stagepass" || len(claims.Audience) != 1 || claims.Audience[0] != "festival-app" {
		t.Fatalf("unexpected iss/aud: %q %v", claims.Issuer, claims.Audience)
	}
}

func TestIssueAssignsUniqueTokenIDs(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(t, clock, nil)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		token, _, err := issuer.IssueAccessToken("user-1", "a@x.com", "attendee")
		if err != nil {
			t.Fatalf("IssueAccessToken error: %v", err)
		}
		claims, err := issuer.ValidateAccessToken(token)
		if err != nil {
			t.Fatalf("ValidateAccessToken error: %v", err)
		}
		if seen[claims.ID] {
			t.Fatalf("duplicate jti %s", claims.ID)
		}
		seen[claims.ID] = true
	}
}

func TestValidateExpiredHasNoLeeway(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	issuer := newTestIssuer(t, clock, nil)

	token, _, err := issuer.IssueAccessToken("user-1", "a@x.com", "attendee")
	if err != nil {
		t.Fatalf("IssueAccessToken error: %v", err)
	}

	clock.now = clock.now.Add(15*time.Minute + time.Second)
	if _, err := issuer.ValidateAccessToken(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestValidateDistinguishesFailureKinds(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(t, clock, nil)

	otherKey := newTestIssuer(t, clock, func(c *Config) {
		c.SigningKey = []byte("ffffffffffffffffffffffffffffffff")
	})
	otherIssuer := newTestIssuer(t, clock, func(c *Config) { c.Issuer = "someone-else" })
	otherAudience := newTestIssuer(t, clock, func(c *Config) { c.Audience = "admin-console" })

	mint := func(i *Issuer) string {
		token, _, err := i.IssueAccessToken("user-1", "a@x.com", "attendee")
		if err != nil {
			t.Fatalf("IssueAccessToken error: %v", err)
		}
		return token
	}

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "foreign key", token: mint(otherKey), want: ErrBadSignature},
		{name: "foreign issuer", token: mint(otherIssuer), want: ErrIssuerMismatch},
		{name: "foreign audience", token: mint(otherAudience), want: ErrAudienceMismatch},
		{name: "garbage", token: "not-a-token", want: ErrMalformed},
		{name: "empty", token: "", want: ErrMalformed},
		{name: "bad segment", token: "a.b.c", want: ErrMalformed},
		{name: "alg none", token: noneToken(t), want: ErrBadSignature},
		{name: "tampered payload", token: tamper(t, mint(issuer)), want: ErrBadSignature},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := issuer.ValidateAccessToken(tc.token)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateMissingIssuerClaim(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(t, clock, nil)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ID:        "jti",
		Audience:  jwt.ClaimStrings{"festival-app"},
		ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("SignedString error: %v", err)
	}

	if _, err := issuer.ValidateAccessToken(token); !errors.Is(err, ErrIssuerMismatch) {
		t.Fatalf("expected ErrIssuerMismatch, got %v", err)
	}
}

func TestNewIssuerRejectsBadConfig(t *testing.T) {
	cases := map[string]Config{
		"ttl":      {SigningKey: make([]byte, 32), Issuer: "i", Audience: "a"},
		"key":      {AccessTTL: time.Minute, SigningKey: []byte("short"), Issuer: "i", Audience: "a"},
		"issuer":   {AccessTTL: time.Minute, SigningKey: make([]byte, 32), Audience: "a"},
		"audience": {AccessTTL: time.Minute, SigningKey: make([]byte, 32), Issuer: "i"},
	}
	for name, cfg := range cases {
		if _, err := NewIssuer(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestRefreshSecretShapeAndHash(t *testing.T) {
	issuer := newTestIssuer(t, &fakeClock{now: time.Now()}, nil)

	secret, err := issuer.NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret error: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil {
		t.Fatalf("secret is not base64url: %v", err)
	}
	if len(raw) < 48 {
		t.Fatalf("expected >= 48 bytes of entropy, got %d", len(raw))
	}

	hash := issuer.HashSecret(secret)
	if hash == secret || strings.Contains(hash, secret) {
		t.Fatal("hash must not embed the secret")
	}
	if hash != issuer.HashSecret(secret) {
		t.Fatal("hash must be deterministic")
	}
}

func noneToken(t *testing.T) string {
	t.Helper()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "stagepass",
		Audience:  jwt.ClaimStrings{"festival-app"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("none token: %v", err)
	}
	return token
}

func tamper(t *testing.T, token string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	forged := strings.Replace(string(payload), "attendee", "organizer", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))
	return strings.Join(parts, ".")
}
