package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/types"
)

func TestRateLimiter_PerClient(t *testing.T) {
	handler := newTestServer(t, defaultTestConfig(), &ServerConfig{RateLimit: 0.001, RateBurst: 2}).GetHandler()

	request := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, request("10.0.0.1:1001").Code)

	limited := request("10.0.0.1:1002")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decodeResponse[types.ErrorResponse](t, limited).Error)

	// Other clients have their own bucket
	assert.Equal(t, http.StatusOK, request("10.0.0.2:1000").Code)
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := newRateLimiter(1000, 1, zap.NewNop())

	require.True(t, rl.allow("a"))
	require.True(t, rl.allow("b"))
	require.Len(t, rl.limiters, 2)

	// Buckets refill within a couple of milliseconds at 1000/s
	time.Sleep(10 * time.Millisecond)

	rl.mu.Lock()
	rl.sweepLocked()
	rl.mu.Unlock()
	assert.Empty(t, rl.limiters)

	// A drained bucket is kept
	slow := newRateLimiter(0.001, 1, zap.NewNop())
	require.True(t, slow.allow("a"))
	slow.mu.Lock()
	slow.sweepLocked()
	slow.mu.Unlock()
	assert.Len(t, slow.limiters, 1)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.10:5555"
	assert.Equal(t, "192.168.1.10", clientIP(req))

	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", clientIP(req))
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	handler := requestLogger(zap.New(core), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trees", nil))
	require.Equal(t, http.StatusTeapot, w.Code)

	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/trees", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
}
