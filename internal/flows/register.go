package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/stagepass/account"
)

// RegisterFailureKind classifies register flow failures for root-level mapping.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureValidation
	RegisterFailureHashing
	RegisterFailureDuplicate
	RegisterFailureStore
)

// RegisterResult carries either the created user or failure metadata.
type RegisterResult struct {
	Failure RegisterFailureKind
	Err     error
	Field   *FieldError
	User    *account.User
	// Token is the single-use secret issued alongside the account, empty
	// when issuing it failed.
	Token string
}

// RegisterDeps captures register and invite dependencies.
type RegisterDeps struct {
	Common
	Policy PasswordPolicy
	// ActorID is stamped into User.CreatedBy.
	ActorID         string
	DefaultUserType string
	// SkipPassword registers an account without a usable password (invites).
	// The stored hash is a hash of a random secret nobody knows.
	SkipPassword bool
	RandomSecret func() (string, error)

	NewUserID  func() string
	Hasher     PasswordHasher
	CreateUser func(ctx context.Context, user *account.User) error
	IssueToken func(ctx context.Context, userID string) (string, error)
	SendMail   func(ctx context.Context, to, token string) error
}

// RunRegister validates the request, stores the user and issues the follow-up
// token (verification, or reset for invites). Token and mail failures are
// reported through Warn only: the account exists and the user can request a
// new token.
func RunRegister(ctx context.Context, email, password, userType string, deps RegisterDeps) RegisterResult {
	deps.defaults()

	normalized, fieldErr := ValidateEmail(email)
	if fieldErr != nil {
		return RegisterResult{Failure: RegisterFailureValidation, Err: fieldErr, Field: fieldErr}
	}

	if deps.SkipPassword {
		secret, err := deps.RandomSecret()
		if err != nil {
			return RegisterResult{Failure: RegisterFailureHashing, Err: err}
		}
		password = secret
	} else if fieldErr := deps.Policy.Check("password", password); fieldErr != nil {
		return RegisterResult{Failure: RegisterFailureValidation, Err: fieldErr, Field: fieldErr}
	}

	hash, err := deps.Hasher.Hash(password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHashing, Err: err}
	}

	if userType == "" {
		userType = deps.DefaultUserType
	}
	now := deps.Now()
	user := &account.User{
		ID:           deps.NewUserID(),
		Email:        normalized,
		PasswordHash: hash,
		UserType:     userType,
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedBy:    deps.ActorID,
	}

	if err := deps.CreateUser(ctx, user); err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return RegisterResult{Failure: RegisterFailureDuplicate, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureStore, Err: err}
	}

	token, err := deps.IssueToken(ctx, user.ID)
	if err != nil {
		deps.Warn(ctx, "register: issuing follow-up token failed", "user_id", user.ID, "error", err)
		return RegisterResult{User: user}
	}

	if err := deps.SendMail(ctx, user.Email, token); err != nil {
		deps.Warn(ctx, "register: mail delivery failed", "user_id", user.ID, "error", err)
	}

	return RegisterResult{User: user, Token: token}
}
