// Command stagepass-loadtest measures access-token validation and concurrent
// refresh rotation against Redis, or an embedded miniredis when no address
// is given.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/stagepass/jwt"
	"github.com/MrEthical07/stagepass/refresh"
	redisstore "github.com/MrEthical07/stagepass/store/redis"
)

type sessionState struct {
	mu      sync.Mutex
	userID  string
	access  string
	secret  string
	retired string
}

type options struct {
	sessions    int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

func main() {
	var opts options
	fs := pflag.NewFlagSet("stagepass-loadtest", pflag.ExitOnError)
	fs.IntVar(&opts.sessions, "sessions", 10000, "number of sessions to seed")
	fs.IntVar(&opts.concurrency, "concurrency", 128, "number of concurrent workers")
	fs.IntVar(&opts.ops, "ops", 100000, "operations per phase")
	fs.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	fs.StringVar(&opts.prefix, "prefix", "lt", "key prefix")
	_ = fs.Parse(os.Args[1:])

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return errors.New("sessions, concurrency, and ops must be > 0")
	}

	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("failed to start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	issuer, err := jwt.NewIssuer(jwt.Config{
		AccessTTL:  15 * time.Minute,
		SigningKey: []byte("loadtest-signing-key-0123456789abcdef"),
		Issuer:     "stagepass",
		Audience:   "stagepass",
	})
	if err != nil {
		return err
	}
	ledger, err := refresh.NewLedger(redisstore.NewRefreshTokens(client, opts.prefix), issuer, refresh.Config{TTL: 24 * time.Hour})
	if err != nil {
		return err
	}

	states, err := seed(ctx, ledger, issuer, opts.sessions)
	if err != nil {
		return err
	}

	validate := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand) error {
		_, err := issuer.ValidateAccessToken(states[r.IntN(len(states))].access)
		return err
	})
	rotate := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand) error {
		state := &states[r.IntN(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()
		rot, err := ledger.Rotate(ctx, state.secret, "")
		if err != nil {
			return err
		}
		state.retired, state.secret = state.secret, rot.Secret
		return nil
	})

	// Presenting a retired secret must be detected as reuse every time.
	var missed atomic.Int64
	reuse := runPhase(min(opts.ops, len(states)), opts.concurrency, func(r *rand.Rand) error {
		state := &states[r.IntN(len(states))]
		state.mu.Lock()
		retired := state.retired
		state.mu.Unlock()
		if retired == "" {
			return nil
		}
		_, err := ledger.Rotate(ctx, retired, "")
		if !errors.Is(err, refresh.ErrReuseDetected) {
			missed.Add(1)
		}
		return nil
	})

	fmt.Println("---- results ----")
	printStats("validate", validate)
	printStats("rotate", rotate)
	printStats("reuse", reuse)
	if n := missed.Load(); n > 0 {
		return fmt.Errorf("%d replayed secrets were not reported as reuse", n)
	}
	return nil
}

func seed(ctx context.Context, ledger *refresh.Ledger, issuer *jwt.Issuer, n int) ([]sessionState, error) {
	fmt.Printf("seeding %d sessions...\n", n)
	start := time.Now()
	states := make([]sessionState, n)
	for i := range states {
		userID := fmt.Sprintf("user-%d", i)
		secret, _, err := ledger.Issue(ctx, userID, "")
		if err != nil {
			return nil, fmt.Errorf("seed session %d: %w", i, err)
		}
		access, _, err := issuer.IssueAccessToken(userID, userID+"@loadtest.invalid", "user")
		if err != nil {
			return nil, err
		}
		states[i].userID, states[i].access, states[i].secret = userID, access, secret
	}
	fmt.Printf("seeded in %s\n", time.Since(start).Round(time.Millisecond))
	return states, nil
}

// runPhase runs op ops times across concurrency workers and records each
// call's latency.
func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker uint64) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), worker))
			for {
				if int(cursor.Add(1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(uint64(w))
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	slices.Sort(samples)
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
