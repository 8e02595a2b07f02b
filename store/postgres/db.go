package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// poolIface is the subset of *pgxpool.Pool the stores use. pgxmock satisfies it.
type poolIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ poolIface = (*pgxpool.Pool)(nil)

// Open connects a pool and verifies it with a ping. maxConns <= 0 keeps the
// pgxpool default.
func Open(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "parse dsn").Wrap(err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return pool, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// isTransient reports errors that a fresh attempt of the same transaction can
// succeed past.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}

func txBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.WithJitterPercent(20, retry.NewExponential(5*time.Millisecond)))
}

// inTx runs fn in a transaction, retrying on serialization failures and
// deadlocks. fn's changes are committed only when it returns nil.
func inTx(ctx context.Context, pool poolIface, op string, fn func(tx pgx.Tx) error) error {
	return retry.Do(ctx, txBackoff(), func(ctx context.Context) error {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return oops.Code("DB_TX_BEGIN_FAILED").With("operation", op).Wrap(err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(tx); err != nil {
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return oops.Code("DB_TX_COMMIT_FAILED").With("operation", op).Wrap(err)
		}
		return nil
	})
}
