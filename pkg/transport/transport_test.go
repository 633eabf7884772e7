package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagedl/pkg/errors"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c, err := New(Options{})
	require.NoError(t, err)

	data, err := c.FetchBytes(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestFetchContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4")
		w.Write([]byte("abcd"))
	}))
	defer srv.Close()

	c, err := New(Options{})
	require.NoError(t, err)

	body, size, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, int64(4), size)
}

func TestFetchStatusClassification(t *testing.T) {
	cases := map[int]errors.Kind{
		http.StatusUnauthorized:        errors.KindAuthRequired,
		http.StatusForbidden:           errors.KindAuthRequired,
		http.StatusNotFound:            errors.KindNotFound,
		http.StatusGone:                errors.KindNotFound,
		http.StatusTooManyRequests:     errors.KindRateLimit,
		http.StatusInternalServerError: errors.KindNetwork,
		http.StatusBadGateway:          errors.KindNetwork,
	}
	for status, kind := range cases {
		status, kind := status, kind
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c, err := New(Options{})
		require.NoError(t, err)

		_, _, err = c.Fetch(context.Background(), srv.URL)
		require.Error(t, err, "status %d", status)
		assert.Equal(t, kind, errors.KindOf(err), "status %d", status)

		var ce *errors.Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, status, ce.Code)
		srv.Close()
	}
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer srv.Close()

	c, err := New(Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err = c.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
}

func TestCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "custom-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "token123", r.Header.Get("X-Auth"))
	}))
	defer srv.Close()

	c, err := New(Options{
		UserAgent: "custom-agent",
		Headers:   map[string]string{"X-Auth": "token123"},
	})
	require.NoError(t, err)

	_, err = c.FetchBytes(context.Background(), srv.URL)
	require.NoError(t, err)
}

func TestCookieJar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("sessionid"); err == nil {
			w.Write([]byte(cookie.Value))
			return
		}
		w.Write([]byte("none"))
	}))
	defer srv.Close()

	c, err := New(Options{})
	require.NoError(t, err)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	c.SetCookies(u, []*http.Cookie{{Name: "sessionid", Value: "s3cr3t"}})

	data, err := c.FetchBytes(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", string(data))
}

// blockedLimiter never grants a request slot.
type blockedLimiter struct{}

func (blockedLimiter) Allow() bool { return false }
func (blockedLimiter) Wait()       { select {} }
func (blockedLimiter) Reset()      {}

func TestRequestPacerHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should never reach the server")
	}))
	defer srv.Close()

	c, err := New(Options{RequestLimiter: blockedLimiter{}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err = c.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInvalidProxy(t *testing.T) {
	_, err := New(Options{Proxy: "://not-a-url"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}
