package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/stagepass/account"
)

// Users is an in-memory account.Store.
type Users struct {
	mu      sync.Mutex
	byID    map[string]*account.User
	byEmail map[string]string
}

var _ account.Store = (*Users)(nil)

// NewUsers returns an empty store.
func NewUsers() *Users {
	return &Users{
		byID:    make(map[string]*account.User),
		byEmail: make(map[string]string),
	}
}

func (s *Users) FindByEmail(_ context.Context, email string) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[account.NormalizeEmail(email)]
	if !ok {
		return nil, account.ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *Users) FindByID(_ context.Context, id string) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok || u.Deleted {
		return nil, account.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Users) Create(_ context.Context, user *account.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := account.NormalizeEmail(user.Email)
	if _, taken := s.byEmail[email]; taken {
		return account.ErrEmailTaken
	}

	stored := cloneUser(user)
	stored.Email = email
	s.byID[stored.ID] = stored
	s.byEmail[email] = stored.ID
	return nil
}

func (s *Users) RecordLoginFailure(_ context.Context, userID string, threshold int, lockUntil, now time.Time) (account.LoginFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok || u.Deleted {
		return account.LoginFailure{}, account.ErrNotFound
	}

	u.FailedLoginAttempts++
	if threshold > 0 && u.FailedLoginAttempts >= threshold {
		until := lockUntil
		u.LockoutEnd = &until
		u.FailedLoginAttempts = 0
	}
	u.UpdatedAt = now

	return account.LoginFailure{Attempts: u.FailedLoginAttempts, LockoutEnd: cloneTime(u.LockoutEnd)}, nil
}

func (s *Users) RecordLoginSuccess(_ context.Context, userID string, now time.Time) error {
	return s.update(userID, now, func(u *account.User) {
		u.FailedLoginAttempts = 0
		u.LockoutEnd = nil
	})
}

func (s *Users) MarkEmailVerified(_ context.Context, userID string, now time.Time) error {
	return s.update(userID, now, func(u *account.User) {
		u.EmailVerified = true
	})
}

func (s *Users) UpdatePasswordHash(_ context.Context, userID, hash string, now time.Time) error {
	return s.update(userID, now, func(u *account.User) {
		u.PasswordHash = hash
	})
}

// SoftDelete marks the user deleted and frees the email for re-registration.
func (s *Users) SoftDelete(userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok || u.Deleted {
		return account.ErrNotFound
	}
	u.Deleted = true
	u.UpdatedAt = now
	delete(s.byEmail, u.Email)
	return nil
}

func (s *Users) update(userID string, now time.Time, fn func(*account.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok || u.Deleted {
		return account.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = now
	return nil
}

func cloneUser(u *account.User) *account.User {
	if u == nil {
		return nil
	}
	c := *u
	c.LockoutEnd = cloneTime(u.LockoutEnd)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
