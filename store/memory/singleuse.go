package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/stagepass/singleuse"
)

// SingleUseTokens is an in-memory singleuse.Store.
type SingleUseTokens struct {
	mu     sync.Mutex
	byHash map[string]*singleuse.Token
}

var _ singleuse.Store = (*SingleUseTokens)(nil)

// NewSingleUseTokens returns an empty store.
func NewSingleUseTokens() *SingleUseTokens {
	return &SingleUseTokens{byHash: make(map[string]*singleuse.Token)}
}

func (s *SingleUseTokens) Create(_ context.Context, tok *singleuse.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *tok
	s.byHash[stored.TokenHash] = &stored
	return nil
}

func (s *SingleUseTokens) Consume(_ context.Context, hash string, kind singleuse.Kind, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.byHash[hash]
	if !ok || tok.Kind != kind || tok.Used || !now.Before(tok.ExpiresAt) {
		return "", singleuse.ErrInvalidOrExpired
	}

	at := now
	tok.Used = true
	tok.UsedAt = &at
	return tok.UserID, nil
}

func (s *SingleUseTokens) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for hash, tok := range s.byHash {
		if tok.ExpiresAt.Before(before) {
			delete(s.byHash, hash)
			n++
		}
	}
	return n, nil
}
