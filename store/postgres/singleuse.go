package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/MrEthical07/stagepass/singleuse"
)

// SingleUseTokens is a singleuse.Store on PostgreSQL.
type SingleUseTokens struct {
	pool poolIface
}

var _ singleuse.Store = (*SingleUseTokens)(nil)

// NewSingleUseTokens returns a store using pool.
func NewSingleUseTokens(pool poolIface) *SingleUseTokens {
	return &SingleUseTokens{pool: pool}
}

func (s *SingleUseTokens) Create(ctx context.Context, tok *singleuse.Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO single_use_tokens (id, user_id, kind, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tok.ID, tok.UserID, string(tok.Kind), tok.TokenHash, tok.ExpiresAt, tok.CreatedAt)
	if err != nil {
		return oops.Code("SINGLE_USE_CREATE_FAILED").With("kind", string(tok.Kind)).Wrap(err)
	}
	return nil
}

// Consume flips used in a single conditional UPDATE; of any number of
// concurrent callers, exactly one sees a returned row.
func (s *SingleUseTokens) Consume(ctx context.Context, hash string, kind singleuse.Kind, now time.Time) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx, `
		UPDATE single_use_tokens SET used = TRUE, used_at = $3
		WHERE token_hash = $1 AND kind = $2 AND NOT used AND expires_at > $3
		RETURNING user_id`, hash, string(kind), now,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", singleuse.ErrInvalidOrExpired
	}
	if err != nil {
		return "", oops.Code("SINGLE_USE_CONSUME_FAILED").With("kind", string(kind)).Wrap(err)
	}
	return userID, nil
}

func (s *SingleUseTokens) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM single_use_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("SINGLE_USE_PURGE_FAILED").Wrap(err)
	}
	return int(tag.RowsAffected()), nil
}
