package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/stagepass/account"
)

// Tokens is a freshly issued session: a signed access token plus the raw
// refresh secret of a new ledger record.
type Tokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	RecordID         string
}

// PasswordHasher is the subset of the password package used by flows.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) bool
	NeedsUpgrade(encodedHash string) bool
	DummyHash() string
}

// Common groups dependencies shared by every flow.
type Common struct {
	Now  func() time.Time
	Warn func(ctx context.Context, msg string, args ...any)
}

func (c *Common) defaults() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Warn == nil {
		c.Warn = func(context.Context, string, ...any) {}
	}
}

// FindUserByEmail and FindUserByID are the user lookups used by flows. Both
// return account.ErrNotFound for unknown or deleted users.
type (
	FindUserByEmail func(ctx context.Context, email string) (*account.User, error)
	FindUserByID    func(ctx context.Context, id string) (*account.User, error)
)

// Throttle reports whether one more attempt for subject is allowed and, if
// not, when to retry.
type Throttle func(ctx context.Context, subject string) (retryAt time.Time, allowed bool)

func allowAll(context.Context, string) (time.Time, bool) { return time.Time{}, true }
