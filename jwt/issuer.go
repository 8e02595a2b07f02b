package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/stagepass/internal"
)

const minSigningKeyBytes = 32

var (
	// ErrExpired reports an access token whose exp has passed.
	ErrExpired = errors.New("access token expired")
	// ErrBadSignature reports a token signed with another key or algorithm.
	ErrBadSignature = errors.New("access token signature invalid")
	// ErrMalformed reports a token that cannot be decoded or lacks required claims.
	ErrMalformed = errors.New("access token malformed")
	// ErrIssuerMismatch reports a validly signed token minted for another issuer.
	ErrIssuerMismatch = errors.New("access token issuer mismatch")
	// ErrAudienceMismatch reports a validly signed token minted for another audience.
	ErrAudienceMismatch = errors.New("access token audience mismatch")
)

// Config configures an Issuer. SigningKey is the HMAC-SHA-256 secret and must
// be at least 32 bytes.
type Config struct {
	AccessTTL  time.Duration
	SigningKey []byte
	Issuer     string
	Audience   string
	Now        func() time.Time
}

// Claims is the access token payload.
type Claims struct {
	Email    string `json:"email"`
	UserType string `json:"user_type"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Issuer mints and validates HS256 access tokens and produces refresh
// secrets. It is safe for concurrent use.
type Issuer struct {
	config Config
	parser *jwt.Parser
}

// NewIssuer validates cfg and builds an Issuer. Validation uses zero leeway.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if len(cfg.SigningKey) < minSigningKeyBytes {
		return nil, errors.New("hs256 signing key must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.SigningKey = append([]byte(nil), cfg.SigningKey...)

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	)

	return &Issuer{config: cfg, parser: parser}, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.config.AccessTTL
}

// IssueAccessToken signs a token for the user and returns it with its expiry.
func (i *Issuer) IssueAccessToken(userID, email, userType string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}

	now := i.config.Now()
	expiresAt := now.Add(i.config.AccessTTL)

	claims := Claims{
		Email:    email,
		UserType: userType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			Issuer:    i.config.Issuer,
			Audience:  jwt.ClaimStrings{i.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.SigningKey)
	if err != nil {
		return "", time.Time{}, err
	}

	// NumericDate truncates to seconds; report what the token actually carries.
	return token, claims.ExpiresAt.Time, nil
}

// ValidateAccessToken verifies signature, issuer, audience and expiry. On
// failure it returns exactly one of ErrExpired, ErrBadSignature, ErrMalformed,
// ErrIssuerMismatch or ErrAudienceMismatch.
func (i *Issuer) ValidateAccessToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := i.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return i.config.SigningKey, nil
	})
	if err != nil {
		return nil, classify(err, claims)
	}
	if !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrMalformed
	}

	return claims, nil
}

func classify(err error, claims *Claims) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuerMismatch
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceMismatch
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		switch {
		case claims.Issuer == "":
			return ErrIssuerMismatch
		case len(claims.Audience) == 0:
			return ErrAudienceMismatch
		}
		return ErrMalformed
	default:
		return ErrMalformed
	}
}

// NewRefreshSecret returns 48 random bytes as an unpadded base64url string.
func (i *Issuer) NewRefreshSecret() (string, error) {
	return internal.NewOpaqueSecret(internal.RefreshSecretSize)
}

// HashSecret returns the storable one-way digest of a refresh secret.
func (i *Issuer) HashSecret(secret string) string {
	return internal.HashSecret(secret)
}
