package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/crosspost/internal/platform/kind"
)

func newTestClient(maxAttempts int) (*Client, *[]time.Duration) {
	c := New(Config{
		MaxAttempts: maxAttempts,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	})
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func TestDoSuccessNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, delays := newTestClient(3)
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Empty(t, *delays)
}

func TestDoRetriesServerErrorsWithIncreasingDelay(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, delays := newTestClient(3)
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.Len(t, *delays, 2)
	assert.Equal(t, 1*time.Second, (*delays)[0])
	assert.Equal(t, 2*time.Second, (*delays)[1])
}

func TestDoExhaustsRetriesOnPersistentServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := newTestClient(3)
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)

	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	var perr *kind.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, kind.PermanentAPI, perr.Kind)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
}

func TestDoNeverRetriesAuthFailures(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(status)
		}))

		c, delays := newTestClient(3)
		_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)
		srv.Close()

		require.Error(t, err)
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "status %d must not be retried", status)
		assert.Empty(t, *delays)
		assert.Equal(t, kind.Authentication, kind.Of(err))
	}
}

func TestDoHonorsRetryAfterOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, delays := newTestClient(3)
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	// Retry-After overrides the 1s computed backoff for the first attempt.
	require.Len(t, *delays, 1)
	assert.GreaterOrEqual(t, (*delays)[0], 5*time.Second)
}

func TestDoRateLimitExhaustionCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := newTestClient(2)
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)

	var perr *kind.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, kind.RateLimit, perr.Kind)
	assert.Equal(t, 7, perr.RetryAfter)
	assert.True(t, perr.Retryable())
}

func TestDoConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c, delays := newTestClient(3)
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil)

	require.Error(t, err)
	assert.Equal(t, kind.TransientNetwork, kind.Of(err))
	assert.Len(t, *delays, 2)
}

func TestDoNonRetryableClientErrorReturnsResponse(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad caption"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(3)
	resp, err := c.Do(context.Background(), http.MethodPost, srv.URL, &Options{Body: []byte("{}")})

	// Adapters own interpretation of application-level errors.
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDoCancelledContextStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(Config{MaxAttempts: 3, BaseDelay: time.Second})
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.Do(ctx, http.MethodGet, srv.URL, nil)
	require.ErrorIs(t, err, context.Canceled)
}
