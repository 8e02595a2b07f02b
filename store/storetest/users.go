package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/stagepass/account"
)

// UserFactory returns a fresh, empty store.
type UserFactory func(t *testing.T) account.Store

// NewUser returns a user with a unique id and the given email.
func NewUser(email string) *account.User {
	return &account.User{
		ID:           nextID("user"),
		Email:        email,
		PasswordHash: "$argon2id$placeholder",
		UserType:     "member",
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
	}
}

// RunUserStore exercises the account.Store contract.
func RunUserStore(t *testing.T, factory UserFactory) {
	t.Run("create and find", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		u := NewUser("Ada@Example.com")
		u.Email = account.NormalizeEmail(u.Email)
		require.NoError(t, store.Create(ctx, u))

		byEmail, err := store.FindByEmail(ctx, "  ADA@example.COM ")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
		assert.Equal(t, "ada@example.com", byEmail.Email)

		byID, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.PasswordHash, byID.PasswordHash)
		assert.False(t, byID.EmailVerified)

		_, err = store.FindByID(ctx, "nobody")
		assert.ErrorIs(t, err, account.ErrNotFound)
		_, err = store.FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("duplicate email is case-insensitive", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, NewUser("dup@example.com")))
		err := store.Create(ctx, NewUser(account.NormalizeEmail("DUP@example.com")))
		assert.ErrorIs(t, err, account.ErrEmailTaken)
	})

	t.Run("failure counter locks at threshold", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		u := NewUser("lock@example.com")
		require.NoError(t, store.Create(ctx, u))

		until := Epoch.Add(15 * time.Minute)
		for i := 1; i < 3; i++ {
			f, err := store.RecordLoginFailure(ctx, u.ID, 3, until, Epoch)
			require.NoError(t, err)
			assert.Equal(t, i, f.Attempts)
			assert.Nil(t, f.LockoutEnd)
		}

		f, err := store.RecordLoginFailure(ctx, u.ID, 3, until, Epoch)
		require.NoError(t, err)
		assert.Zero(t, f.Attempts)
		require.NotNil(t, f.LockoutEnd)
		assert.True(t, f.LockoutEnd.Equal(until))

		got, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		end, locked := got.LockedAt(Epoch)
		assert.True(t, locked)
		assert.True(t, end.Equal(until))

		require.NoError(t, store.RecordLoginSuccess(ctx, u.ID, Epoch))
		got, err = store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LockoutEnd)
		assert.Zero(t, got.FailedLoginAttempts)
	})

	t.Run("concurrent failures are not lost", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		u := NewUser("race@example.com")
		require.NoError(t, store.Create(ctx, u))

		const attempts = 20
		var wg sync.WaitGroup
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.RecordLoginFailure(ctx, u.ID, 1000, Epoch.Add(time.Hour), Epoch); err != nil {
					t.Errorf("record failure: %v", err)
				}
			}()
		}
		wg.Wait()

		got, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, attempts, got.FailedLoginAttempts)
	})

	t.Run("verification and password updates", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		u := NewUser("upd@example.com")
		require.NoError(t, store.Create(ctx, u))

		later := Epoch.Add(time.Hour)
		require.NoError(t, store.MarkEmailVerified(ctx, u.ID, later))
		require.NoError(t, store.UpdatePasswordHash(ctx, u.ID, "$argon2id$new", later))

		got, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.EmailVerified)
		assert.Equal(t, "$argon2id$new", got.PasswordHash)
		assert.True(t, got.UpdatedAt.Equal(later))

		assert.ErrorIs(t, store.MarkEmailVerified(ctx, "nobody", later), account.ErrNotFound)
		assert.ErrorIs(t, store.UpdatePasswordHash(ctx, "nobody", "x", later), account.ErrNotFound)
	})
}
