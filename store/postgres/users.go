package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/MrEthical07/stagepass/account"
)

const userColumns = `id, email, password_hash, user_type, email_verified,
	failed_login_attempts, lockout_end, deleted, created_at, updated_at, created_by`

// Users is an account.Store on PostgreSQL.
type Users struct {
	pool poolIface
}

var _ account.Store = (*Users)(nil)

// NewUsers returns a store using pool. *pgxpool.Pool satisfies the parameter.
func NewUsers(pool poolIface) *Users {
	return &Users{pool: pool}
}

func (s *Users) FindByEmail(ctx context.Context, email string) (*account.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+`
		FROM users WHERE lower(email) = $1 AND NOT deleted`, account.NormalizeEmail(email))
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	return u, err
}

func (s *Users) FindByID(ctx context.Context, id string) (*account.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+`
		FROM users WHERE id = $1 AND NOT deleted`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	return u, err
}

func (s *Users) Create(ctx context.Context, u *account.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, account.NormalizeEmail(u.Email), u.PasswordHash, u.UserType, u.EmailVerified,
		u.FailedLoginAttempts, u.LockoutEnd, u.Deleted, u.CreatedAt, u.UpdatedAt, u.CreatedBy,
	)
	if isUniqueViolation(err) {
		return account.ErrEmailTaken
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return nil
}

// RecordLoginFailure increments and, at threshold, converts the counter into
// a lockout in one statement, so concurrent failures cannot be lost.
func (s *Users) RecordLoginFailure(ctx context.Context, userID string, threshold int, lockUntil, now time.Time) (account.LoginFailure, error) {
	var (
		attempts int
		end      *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		UPDATE users SET
			failed_login_attempts = CASE
				WHEN $2 > 0 AND failed_login_attempts + 1 >= $2 THEN 0
				ELSE failed_login_attempts + 1 END,
			lockout_end = CASE
				WHEN $2 > 0 AND failed_login_attempts + 1 >= $2 THEN $3
				ELSE lockout_end END,
			updated_at = $4
		WHERE id = $1 AND NOT deleted
		RETURNING failed_login_attempts, lockout_end`,
		userID, threshold, lockUntil, now,
	).Scan(&attempts, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.LoginFailure{}, account.ErrNotFound
	}
	if err != nil {
		return account.LoginFailure{}, oops.Code("USER_LOGIN_FAILURE_FAILED").With("user_id", userID).Wrap(err)
	}
	return account.LoginFailure{Attempts: attempts, LockoutEnd: end}, nil
}

func (s *Users) RecordLoginSuccess(ctx context.Context, userID string, now time.Time) error {
	return s.exec(ctx, "USER_LOGIN_SUCCESS_FAILED", userID, `
		UPDATE users SET failed_login_attempts = 0, lockout_end = NULL, updated_at = $2
		WHERE id = $1 AND NOT deleted`, userID, now)
}

func (s *Users) MarkEmailVerified(ctx context.Context, userID string, now time.Time) error {
	return s.exec(ctx, "USER_VERIFY_FAILED", userID, `
		UPDATE users SET email_verified = TRUE, updated_at = $2
		WHERE id = $1 AND NOT deleted`, userID, now)
}

func (s *Users) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	return s.exec(ctx, "USER_PASSWORD_UPDATE_FAILED", userID, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1 AND NOT deleted`, userID, hash, now)
}

func (s *Users) exec(ctx context.Context, code, userID, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return oops.Code(code).With("user_id", userID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*account.User, error) {
	var u account.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.UserType, &u.EmailVerified,
		&u.FailedLoginAttempts, &u.LockoutEnd, &u.Deleted, &u.CreatedAt, &u.UpdatedAt, &u.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, oops.Code("USER_SCAN_FAILED").Wrap(err)
	}
	return &u, nil
}
