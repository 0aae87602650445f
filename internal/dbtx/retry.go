package dbtx

import (
	"context"
	"database/sql"
	"errors"
	mathrand "math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"auditoria.org/internal/obs"
)

// Postgres error classes eligible for automatic retry. Class 40 covers
// serialization_failure (40001) and deadlock_detected (40P01); 55P03 is
// lock_not_available when a NOWAIT/timeout lock acquisition loses the race.
const (
	pgClassTxRollback     = "40"
	pgErrLockNotAvailable = "55P03"
)

// RetryPolicy bounds re-execution of a transactional unit of work. The delay
// before attempt n is BaseDelay*(n+1) plus a random jitter in [0, Jitter).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Jitter     time.Duration
}

// DefaultRetryPolicy matches the production defaults: two retries, 100ms
// base delay, up to 25ms of jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  100 * time.Millisecond,
		Jitter:     25 * time.Millisecond,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(attempt+1)
	if p.Jitter > 0 {
		d += time.Duration(mathrand.Int63n(int64(p.Jitter)))
	}
	return d
}

// Retryable reports whether err is a transient storage failure worth
// re-running the whole unit of work for. Business outcomes (version
// conflicts, validation failures, not-found) never classify as retryable;
// they are returned as distinct sentinel errors by the stores, not as
// *pgconn.PgError values.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, pgClassTxRollback) {
			return true
		}
		return pgErr.Code == pgErrLockNotAvailable
	}
	return false
}

// Runner executes units of work with the transaction envelope and retry
// policy applied. It is constructed once with the shared pool handle and
// passed to every service, keeping the pool lifecycle explicit.
type Runner struct {
	db     *sql.DB
	policy RetryPolicy
}

// NewRunner wraps db with the given retry policy.
func NewRunner(db *sql.DB, policy RetryPolicy) *Runner {
	return &Runner{db: db, policy: policy.normalized()}
}

// DB exposes the underlying pool for read-only paths that do not need a
// transaction.
func (r *Runner) DB() *sql.DB { return r.db }

// Transactional runs fn inside a transaction and re-executes it from scratch
// after a retryable failure, up to the policy bound. The unit of work must be
// safe to re-run from its start: any idempotency lookup belongs inside fn so
// a retry rediscovers work a previously committed attempt already finished.
func (r *Runner) Transactional(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := WithTx(ctx, r.db, nil, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !Retryable(err) || attempt >= r.policy.MaxRetries {
			return lastErr
		}
		obs.ObserveTxRetry()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.policy.delay(attempt)):
		}
	}
}
