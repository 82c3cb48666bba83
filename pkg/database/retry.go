package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBaseWait = time.Second
	retryJitterFraction  = 0.25
)

// retryBackoff returns 1s, 2s, 4s... for attempt 0, 1, 2... with ±25% jitter.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := defaultRetryBaseWait << attempt
	jitter := time.Duration(float64(base) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- jitter only
	return base + jitter
}

// isConnectionError reports whether err is a transient connectivity failure
// worth retrying, as opposed to a SQL or constraint error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.Timeout(err)
}

// retrier runs an operation up to attempts times, sleeping retryBackoff
// between tries while retryable(err) holds. sleep is swapped in tests.
type retrier struct {
	attempts  int
	logger    *slog.Logger
	retryable func(error) bool
	sleep     func(ctx context.Context, d time.Duration) error
}

func newRetrier(logger *slog.Logger, retryable func(error) bool) *retrier {
	return &retrier{
		attempts:  defaultRetryAttempts,
		logger:    logger,
		retryable: retryable,
		sleep:     sleepContext,
	}
}

func (r *retrier) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !r.retryable(err) || attempt == r.attempts-1 {
			break
		}
		wait := retryBackoff(attempt)
		if r.logger != nil {
			r.logger.WarnContext(ctx, op+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", r.attempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		if serr := r.sleep(ctx, wait); serr != nil {
			return fmt.Errorf("%s: context done during retry: %w", op, serr)
		}
	}
	if r.retryable(err) {
		return fmt.Errorf("%s after %d attempts: %w", op, r.attempts, err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
