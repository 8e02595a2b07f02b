package refresh_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/stagepass/internal"
	"github.com/MrEthical07/stagepass/refresh"
	"github.com/MrEthical07/stagepass/store/memory"
)

type secrets struct{}

func (secrets) NewRefreshSecret() (string, error) {
	return internal.NewOpaqueSecret(internal.RefreshSecretSize)
}

func (secrets) HashSecret(secret string) string { return internal.HashSecret(secret) }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLedger(t *testing.T) (*refresh.Ledger, *memory.RefreshTokens, *clock) {
	t.Helper()

	store := memory.NewRefreshTokens()
	clk := &clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	l, err := refresh.NewLedger(store, secrets{}, refresh.Config{TTL: time.Hour, Now: clk.Now})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l, store, clk
}

func TestRotateChainsRecords(t *testing.T) {
	l, store, _ := newLedger(t)
	ctx := context.Background()

	s1, r1, err := l.Issue(ctx, "u1", "10.0.0.1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rot, err := l.Rotate(ctx, s1, "10.0.0.2")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if rot.Secret == s1 {
		t.Fatal("rotation must produce a new secret")
	}
	if rot.PreviousID != r1.ID || rot.Record.UserID != "u1" {
		t.Fatalf("unexpected rotation: %+v", rot)
	}

	old, _ := store.Get(r1.ID)
	if !old.Revoked || old.RevokedReason != refresh.ReasonRotated || old.ReplacedByID != rot.Record.ID {
		t.Fatalf("presented record not retired: %+v", old)
	}
	next, _ := store.Get(rot.Record.ID)
	if !next.ActiveAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("successor must be active: %+v", next)
	}
}

func TestRotateReuseRevokesEverySession(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	s1, _, _ := l.Issue(ctx, "u1", "")
	other, _, _ := l.Issue(ctx, "u1", "")
	stranger, _, _ := l.Issue(ctx, "u2", "")

	rot, err := l.Rotate(ctx, s1, "")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	_, err = l.Rotate(ctx, s1, "")
	if !errors.Is(err, refresh.ErrReuseDetected) {
		t.Fatalf("expected reuse, got %v", err)
	}
	var reuse *refresh.ReuseError
	if !errors.As(err, &reuse) || reuse.UserID != "u1" || reuse.Revoked != 2 {
		t.Fatalf("unexpected reuse detail: %+v", reuse)
	}

	for _, s := range []string{rot.Secret, other} {
		if _, err := l.Rotate(ctx, s, ""); !errors.Is(err, refresh.ErrInvalidToken) {
			t.Fatalf("expected invalid after cascade, got %v", err)
		}
	}
	if _, err := l.Rotate(ctx, stranger, ""); err != nil {
		t.Fatalf("other users must be unaffected: %v", err)
	}
}

func TestRotateRejections(t *testing.T) {
	l, store, clk := newLedger(t)
	ctx := context.Background()

	if _, err := l.Rotate(ctx, "", ""); !errors.Is(err, refresh.ErrInvalidToken) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := l.Rotate(ctx, "never-issued", ""); !errors.Is(err, refresh.ErrInvalidToken) {
		t.Fatalf("unknown: %v", err)
	}

	_, sibling, _ := l.Issue(ctx, "u1", "")
	loggedOut, _, _ := l.Issue(ctx, "u1", "")
	if ok, err := l.Revoke(ctx, loggedOut); err != nil || !ok {
		t.Fatalf("Revoke: %v %v", ok, err)
	}
	if ok, _ := l.Revoke(ctx, loggedOut); ok {
		t.Fatal("second revoke must report false")
	}
	if _, err := l.Rotate(ctx, loggedOut, ""); !errors.Is(err, refresh.ErrInvalidToken) {
		t.Fatalf("logged out secret must be invalid, not reuse: %v", err)
	}
	active, err := l.Active(ctx, "u1")
	if err != nil || len(active) != 1 || active[0].ID != sibling.ID {
		t.Fatalf("sibling session must survive: %+v %v", active, err)
	}

	expiring, rec, _ := l.Issue(ctx, "u1", "")
	clk.Advance(time.Hour)
	if _, err := l.Rotate(ctx, expiring, ""); !errors.Is(err, refresh.ErrInvalidToken) {
		t.Fatalf("expired: %v", err)
	}
	got, _ := store.Get(rec.ID)
	if !got.Revoked || got.RevokedReason != refresh.ReasonExpired {
		t.Fatalf("expired record should be revoked as expired: %+v", got)
	}
}

func TestRevokeAllAndActive(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	for range 3 {
		if _, _, err := l.Issue(ctx, "u1", ""); err != nil {
			t.Fatalf("Issue: %v", err)
		}
	}

	active, err := l.Active(ctx, "u1")
	if err != nil || len(active) != 3 {
		t.Fatalf("Active: %d %v", len(active), err)
	}

	n, err := l.RevokeAll(ctx, "u1", refresh.ReasonPasswordReset)
	if err != nil || n != 3 {
		t.Fatalf("RevokeAll: %d %v", n, err)
	}
	if n, _ := l.RevokeAll(ctx, "u1", ""); n != 0 {
		t.Fatalf("RevokeAll must be idempotent, revoked %d", n)
	}
	if active, _ := l.Active(ctx, "u1"); len(active) != 0 {
		t.Fatalf("expected no active records, got %d", len(active))
	}
}

func TestPurgeExpired(t *testing.T) {
	l, _, clk := newLedger(t)
	ctx := context.Background()

	_, _, _ = l.Issue(ctx, "u1", "")
	clk.Advance(2 * time.Hour)
	_, _, _ = l.Issue(ctx, "u1", "")

	n, err := l.PurgeExpired(ctx, clk.Now())
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpired: %d %v", n, err)
	}
}

func TestConcurrentRotateHasOneWinner(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	secret, _, _ := l.Issue(ctx, "u1", "")

	const workers = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		reuses   int
		unknowns []error
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.Rotate(ctx, secret, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, refresh.ErrReuseDetected), errors.Is(err, refresh.ErrInvalidToken):
				reuses++
			default:
				unknowns = append(unknowns, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if reuses != workers-1 || len(unknowns) != 0 {
		t.Fatalf("unexpected losers: reuse=%d other=%v", reuses, unknowns)
	}
	if active, _ := l.Active(ctx, "u1"); len(active) != 0 {
		t.Fatalf("reuse cascade must leave no active sessions, got %d", len(active))
	}
}

func TestNewLedgerValidation(t *testing.T) {
	store := memory.NewRefreshTokens()
	if _, err := refresh.NewLedger(nil, secrets{}, refresh.Config{TTL: time.Hour}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := refresh.NewLedger(store, nil, refresh.Config{TTL: time.Hour}); err == nil {
		t.Fatal("expected error for nil secrets")
	}
	if _, err := refresh.NewLedger(store, secrets{}, refresh.Config{}); err == nil {
		t.Fatal("expected error for zero TTL")
	}
}
