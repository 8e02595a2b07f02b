package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/MrEthical07/stagepass/refresh"
)

// RefreshTokens is a refresh.Store on PostgreSQL.
type RefreshTokens struct {
	pool poolIface
}

var _ refresh.Store = (*RefreshTokens)(nil)

// NewRefreshTokens returns a store using pool.
func NewRefreshTokens(pool poolIface) *RefreshTokens {
	return &RefreshTokens{pool: pool}
}

const insertRefresh = `
	INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, created_by_ip)
	VALUES ($1, $2, $3, $4, $5, $6)`

func (s *RefreshTokens) Create(ctx context.Context, rec *refresh.Record) error {
	_, err := s.pool.Exec(ctx, insertRefresh,
		rec.ID, rec.UserID, rec.TokenHash, rec.ExpiresAt, rec.CreatedAt, rec.CreatedByIP)
	if err != nil {
		return oops.Code("REFRESH_CREATE_FAILED").With("id", rec.ID).With("user_id", rec.UserID).Wrap(err)
	}
	return nil
}

// Rotate locks the presented row for the rest of the transaction. A second
// caller presenting the same secret blocks on the lock and then observes the
// committed rotation, which it reports as reuse.
func (s *RefreshTokens) Rotate(ctx context.Context, presentedHash string, successor *refresh.Record, now time.Time) (refresh.RotateResult, error) {
	var res refresh.RotateResult
	err := inTx(ctx, s.pool, "rotate refresh token", func(tx pgx.Tx) error {
		res = refresh.RotateResult{}

		var (
			id, userID, replacedBy string
			expiresAt              time.Time
			revoked                bool
		)
		err := tx.QueryRow(ctx, `
			SELECT id, user_id, expires_at, revoked, COALESCE(replaced_by_id, '')
			FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE`, presentedHash,
		).Scan(&id, &userID, &expiresAt, &revoked, &replacedBy)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Outcome = refresh.OutcomeNotFound
			return nil
		}
		if err != nil {
			return oops.Code("REFRESH_LOOKUP_FAILED").Wrap(err)
		}
		res.UserID, res.PreviousID = userID, id

		switch {
		case !now.Before(expiresAt):
			res.Outcome = refresh.OutcomeExpired
			if revoked {
				return nil
			}
			return revokeByID(ctx, tx, id, refresh.ReasonExpired, now)
		case revoked && replacedBy != "":
			res.Outcome = refresh.OutcomeReused
			n, err := revokeUser(ctx, tx, userID, refresh.ReasonReuse, now)
			res.Revoked = n
			return err
		case revoked:
			res.Outcome = refresh.OutcomeRevoked
			return nil
		}

		if _, err := tx.Exec(ctx, insertRefresh,
			successor.ID, userID, successor.TokenHash, successor.ExpiresAt, successor.CreatedAt, successor.CreatedByIP,
		); err != nil {
			return oops.Code("REFRESH_CREATE_FAILED").With("id", successor.ID).Wrap(err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked = TRUE, revoked_at = $2, revoked_reason = $3, replaced_by_id = $4
			WHERE id = $1`, id, now, refresh.ReasonRotated, successor.ID,
		); err != nil {
			return oops.Code("REFRESH_REVOKE_FAILED").With("id", id).Wrap(err)
		}
		res.Outcome = refresh.OutcomeRotated
		return nil
	})
	if err != nil {
		return refresh.RotateResult{}, err
	}
	if res.Outcome == refresh.OutcomeRotated {
		successor.UserID = res.UserID
	}
	return res, nil
}

func (s *RefreshTokens) RevokeByHash(ctx context.Context, hash, reason string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE token_hash = $1 AND NOT revoked`, hash, now, reason)
	if err != nil {
		return false, oops.Code("REFRESH_REVOKE_FAILED").Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *RefreshTokens) RevokeAllForUser(ctx context.Context, userID, reason string, now time.Time) (int, error) {
	return revokeUser(ctx, s.pool, userID, reason, now)
}

func (s *RefreshTokens) ListActive(ctx context.Context, userID string, now time.Time) ([]refresh.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at, created_by_ip
		FROM refresh_tokens
		WHERE user_id = $1 AND NOT revoked AND expires_at > $2
		ORDER BY id`, userID, now)
	if err != nil {
		return nil, oops.Code("REFRESH_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	defer rows.Close()

	var out []refresh.Record
	for rows.Next() {
		var r refresh.Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.TokenHash, &r.ExpiresAt, &r.CreatedAt, &r.CreatedByIP); err != nil {
			return nil, oops.Code("REFRESH_SCAN_FAILED").Wrap(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("REFRESH_LIST_FAILED").With("user_id", userID).Wrap(err)
	}
	return out, nil
}

func (s *RefreshTokens) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("REFRESH_PURGE_FAILED").Wrap(err)
	}
	return int(tag.RowsAffected()), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func revokeByID(ctx context.Context, db execer, id, reason string, now time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE id = $1 AND NOT revoked`, id, now, reason)
	if err != nil {
		return oops.Code("REFRESH_REVOKE_FAILED").With("id", id).Wrap(err)
	}
	return nil
}

func revokeUser(ctx context.Context, db execer, userID, reason string, now time.Time) (int, error) {
	tag, err := db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND NOT revoked AND expires_at > $2`, userID, now, reason)
	if err != nil {
		return 0, oops.Code("REFRESH_REVOKE_ALL_FAILED").With("user_id", userID).Wrap(err)
	}
	return int(tag.RowsAffected()), nil
}
