package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/stagepass/refresh"
)

// Epoch is the instant suites start their clocks at.
var Epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// RefreshFactory returns a fresh, empty store. setNow is called whenever the
// suite moves its clock, for backends with their own notion of time.
type RefreshFactory func(t *testing.T) (store refresh.Store, setNow func(time.Time))

var seq struct {
	sync.Mutex
	n int
}

func nextID(prefix string) string {
	seq.Lock()
	defer seq.Unlock()
	seq.n++
	return fmt.Sprintf("%s-%06d", prefix, seq.n)
}

func record(userID string, now time.Time, ttl time.Duration) *refresh.Record {
	id := nextID("rt")
	return &refresh.Record{
		ID:        id,
		UserID:    userID,
		TokenHash: "hash-" + id,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// RunRefreshStore exercises the refresh.Store contract.
func RunRefreshStore(t *testing.T, factory RefreshFactory) {
	t.Run("rotate retires presented and stores successor", func(t *testing.T) {
		store, setNow := factory(t)
		ctx := context.Background()
		now := Epoch
		setNow(now)

		first := record("u1", now, time.Hour)
		require.NoError(t, store.Create(ctx, first))

		next := record("", now, time.Hour)
		res, err := store.Rotate(ctx, first.TokenHash, next, now)
		require.NoError(t, err)
		assert.Equal(t, refresh.OutcomeRotated, res.Outcome)
		assert.Equal(t, "u1", res.UserID)
		assert.Equal(t, first.ID, res.PreviousID)
		assert.Equal(t, "u1", next.UserID)

		active, err := store.ListActive(ctx, "u1", now)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, next.ID, active[0].ID)
	})

	t.Run("unknown hash", func(t *testing.T) {
		store, setNow := factory(t)
		setNow(Epoch)
		res, err := store.Rotate(context.Background(), "missing", record("", Epoch, time.Hour), Epoch)
		require.NoError(t, err)
		assert.Equal(t, refresh.OutcomeNotFound, res.Outcome)
	})

	t.Run("replay of rotated record cascades", func(t *testing.T) {
		store, setNow := factory(t)
		ctx := context.Background()
		now := Epoch
		setNow(now)

		first := record("u1", now, time.Hour)
		sibling := record("u1", now, time.Hour)
		foreign := record("u2", now, time.Hour)
		for _, r := range []*refresh.Record{first, sibling, foreign} {
			require.NoError(t, store.Create(ctx, r))
		}

		_, err := store.Rotate(ctx, first.TokenHash, record("", now, time.Hour), now)
		require.NoError(t, err)

		res, err := store.Rotate(ctx, first.TokenHash, record("", now, time.Hour), now)
		require.NoError(t, err)
		assert.Equal(t, refresh.OutcomeReused, res.Outcome)
		assert.Equal(t, 2, res.Revoked)

		active, err := store.ListActive(ctx, "u1", now)
		require.NoError(t, err)
		assert.Empty(t, active)

		active, err = store.ListActive(ctx, "u2", now)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("revoked without successor is plain revoked", func(t *testing.T) {
		store, setNow := factory(t)
		ctx := context.Background()
		setNow(Epoch)

		r := record("u1", Epoch, time.Hour)
		require.NoError(t, store.Create(ctx, r))

		ok, err := store.RevokeByHash(ctx, r.TokenHash, refresh.ReasonLogout, Epoch)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = store.RevokeByHash(ctx, r.TokenHash, refresh.ReasonLogout, Epoch)
		require.NoError(t, err)
		assert.False(t, ok)

		res, err := store.Rotate(ctx, r.TokenHash, record("", Epoch, time.Hour), Epoch)
		require.NoError(t, err)
		assert.Equal(t, refresh.OutcomeRevoked, res.Outcome)
	})

	t.Run("expired record is reported expired", func(t *testing.T) {
		store, setNow := factory(t)
		ctx := context.Background()
		setNow(Epoch)

		r := record("u1", Epoch, time.Minute)
		require.NoError(t, store.Create(ctx, r))

		later := Epoch.Add(30 * time.Second)
		setNow(later)
		active, err := store.ListActive(ctx, "u1", later)
		require.NoError(t, err)
		assert.Len(t, active, 1)

		// Exactly at ExpiresAt the record is no longer usable.
		at := Epoch.Add(time.Minute)
		res, err := store.Rotate(ctx, r.TokenHash, record("", at, time.Hour), at)
		require.NoError(t, err)
		assert.Contains(t, []refresh.Outcome{refresh.OutcomeExpired, refresh.OutcomeNotFound}, res.Outcome)
	})

	t.Run("revoke all for user", func(t *testing.T) {
		store, setNow := factory(t)
		ctx := context.Background()
		setNow(Epoch)

		for range 3 {
			require.NoError(t, store.Create(ctx, record("u1", Epoch, time.Hour)))
		}
		require.NoError(t, store.Create(ctx, record("u2", Epoch, time.Hour)))

		n, err := store.RevokeAllForUser(ctx, "u1", refresh.ReasonPasswordReset, Epoch)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = store.RevokeAllForUser(ctx, "u1", refresh.ReasonPasswordReset, Epoch)
		require.NoError(t, err)
		assert.Zero(t, n)

		active, err := store.ListActive(ctx, "u2", Epoch)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("concurrent rotation has one winner", func(t *testing.T) {
		store, setNow := factory(t)
		ctx := context.Background()
		setNow(Epoch)

		r := record("u1", Epoch, time.Hour)
		require.NoError(t, store.Create(ctx, r))

		const workers = 16
		outcomes := make(chan refresh.Outcome, workers)
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := store.Rotate(ctx, r.TokenHash, record("", Epoch, time.Hour), Epoch)
				if err != nil {
					t.Errorf("rotate: %v", err)
					return
				}
				outcomes <- res.Outcome
			}()
		}
		wg.Wait()
		close(outcomes)

		rotated := 0
		for o := range outcomes {
			if o == refresh.OutcomeRotated {
				rotated++
			} else {
				assert.Equal(t, refresh.OutcomeReused, o)
			}
		}
		assert.Equal(t, 1, rotated)
	})
}
