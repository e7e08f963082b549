package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/obs"
)

func newTestClient(maxAttempts int) *Client {
	c := New(Options{
		Name:              "test",
		RequestsPerSecond: 1000,
		Burst:             100,
		MaxAttempts:       maxAttempts,
		Logger:            obs.Discard(),
	})
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestNew_Defaults(t *testing.T) {
	c := New(Options{Name: "kroger"})

	assert.Equal(t, 3, c.maxAttempts)
	assert.Equal(t, int64(4<<20), c.maxBody)
	assert.Equal(t, DefaultUserAgent, c.userAgent)
	assert.Equal(t, 15*time.Second, c.httpClient.Timeout)
	assert.NotNil(t, c.rateLimiter)
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1000 * time.Millisecond},
		{3, 2000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			assert.Equal(t, tt.expected, exponentialBackoff(tt.attempt))
		})
	}
}

func TestGetJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price": 2.49}`))
	}))
	defer server.Close()

	var out struct {
		Price float64 `json:"price"`
	}
	err := newTestClient(3).GetJSON(context.Background(), server.URL, map[string]string{"Authorization": "Bearer abc"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2.49, out.Price)
}

func TestGet_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	body, err := newTestClient(3).Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(2).Get(context.Background(), server.URL, nil)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_ClientErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, domain.ErrPriceNotFound},
		{"forbidden", http.StatusForbidden, domain.ErrSourceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestClient(3).Get(context.Background(), server.URL, nil)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestPostForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":1800}`))
	}))
	defer server.Close()

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	form := url.Values{"grant_type": {"client_credentials"}}
	err := newTestClient(1).PostForm(context.Background(), server.URL, form, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "tok", out.AccessToken)
	assert.Equal(t, 1800, out.ExpiresIn)
}

func TestGet_BodyIsCapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	c := New(Options{Name: "test", MaxBodyBytes: 100, Logger: obs.Discard()})
	body, err := c.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Len(t, body, 100)
}

func TestGet_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(3).Get(ctx, "http://127.0.0.1:1", nil)
	assert.Error(t, err)
}
