package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/stagepass/refresh"
)

// RefreshTokens is an in-memory refresh.Store.
type RefreshTokens struct {
	mu     sync.Mutex
	byID   map[string]*refresh.Record
	byHash map[string]string
	byUser map[string]map[string]struct{}
}

var _ refresh.Store = (*RefreshTokens)(nil)

// NewRefreshTokens returns an empty store.
func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{
		byID:   make(map[string]*refresh.Record),
		byHash: make(map[string]string),
		byUser: make(map[string]map[string]struct{}),
	}
}

func (s *RefreshTokens) Create(_ context.Context, rec *refresh.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insert(rec)
	return nil
}

func (s *RefreshTokens) Rotate(_ context.Context, presentedHash string, successor *refresh.Record, now time.Time) (refresh.RotateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[presentedHash]
	if !ok {
		return refresh.RotateResult{Outcome: refresh.OutcomeNotFound}, nil
	}
	rec := s.byID[id]
	res := refresh.RotateResult{UserID: rec.UserID, PreviousID: rec.ID}

	switch {
	case !now.Before(rec.ExpiresAt):
		revoke(rec, refresh.ReasonExpired, now)
		res.Outcome = refresh.OutcomeExpired
	case rec.Revoked && rec.ReplacedByID != "":
		res.Revoked = s.revokeAll(rec.UserID, refresh.ReasonReuse, now)
		res.Outcome = refresh.OutcomeReused
	case rec.Revoked:
		res.Outcome = refresh.OutcomeRevoked
	default:
		successor.UserID = rec.UserID
		s.insert(successor)
		revoke(rec, refresh.ReasonRotated, now)
		rec.ReplacedByID = successor.ID
		res.Outcome = refresh.OutcomeRotated
	}

	return res, nil
}

func (s *RefreshTokens) RevokeByHash(_ context.Context, hash, reason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[hash]
	if !ok {
		return false, nil
	}
	return revoke(s.byID[id], reason, now), nil
}

func (s *RefreshTokens) RevokeAllForUser(_ context.Context, userID, reason string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revokeAll(userID, reason, now), nil
}

func (s *RefreshTokens) ListActive(_ context.Context, userID string, now time.Time) ([]refresh.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]refresh.Record, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		rec := s.byID[id]
		if rec.ActiveAt(now) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RefreshTokens) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, rec := range s.byID {
		if rec.ExpiresAt.Before(before) {
			delete(s.byID, id)
			delete(s.byHash, rec.TokenHash)
			delete(s.byUser[rec.UserID], id)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the record with id, for inspection in tests and tools.
func (s *RefreshTokens) Get(id string) (refresh.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return refresh.Record{}, false
	}
	return *rec, true
}

func (s *RefreshTokens) insert(rec *refresh.Record) {
	stored := *rec
	s.byID[stored.ID] = &stored
	s.byHash[stored.TokenHash] = stored.ID
	if s.byUser[stored.UserID] == nil {
		s.byUser[stored.UserID] = make(map[string]struct{})
	}
	s.byUser[stored.UserID][stored.ID] = struct{}{}
}

func (s *RefreshTokens) revokeAll(userID, reason string, now time.Time) int {
	n := 0
	for id := range s.byUser[userID] {
		rec := s.byID[id]
		if rec.ActiveAt(now) && revoke(rec, reason, now) {
			n++
		}
	}
	return n
}

func revoke(rec *refresh.Record, reason string, now time.Time) bool {
	if rec.Revoked {
		return false
	}
	at := now
	rec.Revoked = true
	rec.RevokedAt = &at
	rec.RevokedReason = reason
	return true
}
