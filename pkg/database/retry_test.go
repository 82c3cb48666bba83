package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryBackoff_WithinJitterBounds(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		base := defaultRetryBaseWait << attempt
		lo := time.Duration(float64(base) * (1 - retryJitterFraction))
		hi := time.Duration(float64(base) * (1 + retryJitterFraction))
		for i := 0; i < 20; i++ {
			d := retryBackoff(attempt)
			assert.GreaterOrEqual(t, d, lo)
			assert.LessOrEqual(t, d, hi)
		}
	}
	assert.Positive(t, retryBackoff(0))
	assert.LessOrEqual(t, retryBackoff(-1), time.Duration(float64(defaultRetryBaseWait)*(1+retryJitterFraction)))
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"reset", syscall.ECONNRESET, true},
		{"eof", fmt.Errorf("read: %w", io.EOF), true},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route")}, true},
		{"connect error", &pgconn.ConnectError{}, true},
		{"sql error", &pgconn.PgError{Code: "42601", Message: "syntax error"}, false},
		{"plain", errors.New("duplicate key value"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConnectionError(tt.err))
		})
	}
}

func fastRetrier(retryable func(error) bool) (*retrier, *[]time.Duration) {
	var waits []time.Duration
	r := newRetrier(nil, retryable)
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	r, waits := fastRetrier(func(error) bool { return true })

	calls := 0
	err := r.do(context.Background(), "connect", func() error {
		calls++
		if calls < 3 {
			return syscall.ECONNREFUSED
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *waits, 2)
}

func TestRetrier_GivesUpAfterMaxAttempts(t *testing.T) {
	r, waits := fastRetrier(func(error) bool { return true })

	calls := 0
	err := r.do(context.Background(), "connect", func() error {
		calls++
		return syscall.ECONNREFUSED
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Contains(t, err.Error(), "connect after 3 attempts")
	assert.Equal(t, defaultRetryAttempts, calls)
	assert.Len(t, *waits, defaultRetryAttempts-1)
}

func TestRetrier_NonRetryableReturnsImmediately(t *testing.T) {
	r, waits := fastRetrier(func(error) bool { return false })
	sqlErr := errors.New("syntax error")

	calls := 0
	err := r.do(context.Background(), "migrate", func() error {
		calls++
		return sqlErr
	})

	assert.Same(t, sqlErr, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
}

func TestRetrier_StopsWhenContextDone(t *testing.T) {
	r := newRetrier(nil, func(error) bool { return true })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.do(ctx, "connect", func() error { return syscall.ECONNREFUSED })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
