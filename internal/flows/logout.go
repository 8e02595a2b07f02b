package flows

import (
	"context"

	"github.com/MrEthical07/stagepass/refresh"
)

// LogoutFailureKind classifies logout flow failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureValidation
	LogoutFailureStore
)

// LogoutResult reports how many records were revoked.
type LogoutResult struct {
	Failure LogoutFailureKind
	Err     error
	Field   *FieldError
	All     bool
	Revoked int
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Common
	Revoke    func(ctx context.Context, secret string) (bool, error)
	RevokeAll func(ctx context.Context, userID, reason string) (int, error)
}

// RunLogout revokes every active record of userID when all is set, otherwise
// the single record behind secret. Unknown or already revoked secrets revoke
// nothing and are not an error.
func RunLogout(ctx context.Context, secret, userID string, all bool, deps LogoutDeps) LogoutResult {
	deps.defaults()

	if all {
		if userID == "" {
			f := &FieldError{Field: "user_id", Message: "is required to log out everywhere"}
			return LogoutResult{Failure: LogoutFailureValidation, Err: f, Field: f, All: true}
		}
		n, err := deps.RevokeAll(ctx, userID, refresh.ReasonLogoutAll)
		if err != nil {
			return LogoutResult{Failure: LogoutFailureStore, Err: err, All: true}
		}
		return LogoutResult{All: true, Revoked: n}
	}

	if secret == "" {
		f := &FieldError{Field: "refresh_token", Message: "is required"}
		return LogoutResult{Failure: LogoutFailureValidation, Err: f, Field: f}
	}
	ok, err := deps.Revoke(ctx, secret)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err}
	}
	if ok {
		return LogoutResult{Revoked: 1}
	}
	return LogoutResult{}
}
