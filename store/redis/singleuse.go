package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/MrEthical07/stagepass/singleuse"
)

// SingleUseTokens is a singleuse.Store on Redis. Used tokens are kept until
// their expiry so a replay is indistinguishable from any other miss.
type SingleUseTokens struct {
	redis goredis.UniversalClient
	keys  keyspace
	// backoff builds the retry policy for WATCH conflicts.
	backoff func() retry.Backoff
}

var _ singleuse.Store = (*SingleUseTokens)(nil)

// NewSingleUseTokens returns a store using keys under prefix.
func NewSingleUseTokens(client goredis.UniversalClient, prefix string) *SingleUseTokens {
	return &SingleUseTokens{
		redis: client,
		keys:  newKeyspace(prefix),
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(4, retry.WithJitter(time.Millisecond, retry.NewExponential(2*time.Millisecond)))
		},
	}
}

func (s *SingleUseTokens) Create(ctx context.Context, tok *singleuse.Token) error {
	key := s.keys.singleUse(tok.TokenHash)
	_, err := s.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"id", tok.ID,
			"user_id", tok.UserID,
			"kind", string(tok.Kind),
			"expires_at", millis(tok.ExpiresAt),
			"used", "0",
			"created_at", millis(tok.CreatedAt),
		)
		pipe.PExpireAt(ctx, key, tok.ExpiresAt)
		return nil
	})
	if err != nil {
		return unavailable("create single-use token", err)
	}
	return nil
}

func (s *SingleUseTokens) Consume(ctx context.Context, hash string, kind singleuse.Kind, now time.Time) (string, error) {
	key := s.keys.singleUse(hash)

	var userID string
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		err := s.redis.Watch(ctx, func(tx *goredis.Tx) error {
			f, err := tx.HMGet(ctx, key, "user_id", "kind", "expires_at", "used").Result()
			if err != nil {
				return err
			}
			uid, _ := f[0].(string)
			k, _ := f[1].(string)
			expRaw, _ := f[2].(string)
			used, _ := f[3].(string)
			exp, perr := strconv.ParseInt(expRaw, 10, 64)
			if uid == "" || perr != nil || singleuse.Kind(k) != kind || used == "1" || millis(now) >= exp {
				return singleuse.ErrInvalidOrExpired
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.HSet(ctx, key, "used", "1", "used_at", millis(now))
				return nil
			})
			if err != nil {
				return err
			}
			userID = uid
			return nil
		}, key)

		if errors.Is(err, goredis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return userID, nil
	case errors.Is(err, singleuse.ErrInvalidOrExpired):
		return "", singleuse.ErrInvalidOrExpired
	case errors.Is(err, goredis.TxFailedErr):
		// Persistent contention means another caller keeps winning the token.
		return "", singleuse.ErrInvalidOrExpired
	default:
		return "", unavailable("consume single-use token", err)
	}
}

// DeleteExpired is a no-op: token keys expire in Redis at their ExpiresAt.
func (s *SingleUseTokens) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
