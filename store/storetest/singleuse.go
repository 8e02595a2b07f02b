package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/stagepass/singleuse"
)

// SingleUseFactory returns a fresh, empty store.
type SingleUseFactory func(t *testing.T) (store singleuse.Store, setNow func(time.Time))

func token(userID string, kind singleuse.Kind, now time.Time, ttl time.Duration) *singleuse.Token {
	id := nextID("su")
	return &singleuse.Token{
		ID:        id,
		UserID:    userID,
		Kind:      kind,
		TokenHash: "hash-" + id,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// RunSingleUseStore exercises the singleuse.Store contract.
func RunSingleUseStore(t *testing.T, factory SingleUseFactory) {
	t.Run("consume once", func(t *testing.T) {
		store, setNow := factory(t)
		ctx := context.Background()
		setNow(Epoch)

		tok := token("u1", singleuse.KindPasswordReset, Epoch, time.Hour)
		require.NoError(t, store.Create(ctx, tok))

		uid, err := store.Consume(ctx, tok.TokenHash, singleuse.KindPasswordReset, Epoch)
		require.NoError(t, err)
		assert.Equal(t, "u1", uid)

		_, err = store.Consume(ctx, tok.TokenHash, singleuse.KindPasswordReset, Epoch)
		assert.ErrorIs(t, err, singleuse.ErrInvalidOrExpired)
	})

	t.Run("kind mismatch leaves token usable", func(t *testing.T) {
		store, setNow := factory(t)
		ctx := context.Background()
		setNow(Epoch)

		tok := token("u1", singleuse.KindEmailVerification, Epoch, time.Hour)
		require.NoError(t, store.Create(ctx, tok))

		_, err := store.Consume(ctx, tok.TokenHash, singleuse.KindPasswordReset, Epoch)
		assert.ErrorIs(t, err, singleuse.ErrInvalidOrExpired)

		uid, err := store.Consume(ctx, tok.TokenHash, singleuse.KindEmailVerification, Epoch)
		require.NoError(t, err)
		assert.Equal(t, "u1", uid)
	})

	t.Run("unknown and expired", func(t *testing.T) {
		store, setNow := factory(t)
		ctx := context.Background()
		setNow(Epoch)

		_, err := store.Consume(ctx, "missing", singleuse.KindPasswordReset, Epoch)
		assert.ErrorIs(t, err, singleuse.ErrInvalidOrExpired)

		tok := token("u1", singleuse.KindPasswordReset, Epoch, time.Minute)
		require.NoError(t, store.Create(ctx, tok))

		at := Epoch.Add(time.Minute)
		setNow(at)
		_, err = store.Consume(ctx, tok.TokenHash, singleuse.KindPasswordReset, at)
		assert.ErrorIs(t, err, singleuse.ErrInvalidOrExpired)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		store, setNow := factory(t)
		ctx := context.Background()
		setNow(Epoch)

		tok := token("u1", singleuse.KindPasswordReset, Epoch, time.Hour)
		require.NoError(t, store.Create(ctx, tok))

		var (
			wg      sync.WaitGroup
			winners atomic.Int32
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Consume(ctx, tok.TokenHash, singleuse.KindPasswordReset, Epoch); err == nil {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, winners.Load())
	})
}
