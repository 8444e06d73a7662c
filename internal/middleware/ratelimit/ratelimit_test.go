package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(cfg)
	t.Cleanup(rl.Stop)
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func allowed(rl *Limiter, ip string) bool {
	ok, _ := rl.Allow(ip)
	return ok
}

func TestAllowWithinWindow(t *testing.T) {
	rl, now := newTestLimiter(t, Config{Requests: 2, Window: time.Minute})

	assert.True(t, allowed(rl, "10.0.0.1"))
	assert.True(t, allowed(rl, "10.0.0.1"))
	assert.False(t, allowed(rl, "10.0.0.1"))
	assert.True(t, allowed(rl, "10.0.0.2"), "clients are tracked separately")

	ok, wait := rl.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, wait)

	*now = now.Add(time.Minute)
	assert.True(t, allowed(rl, "10.0.0.1"), "a new window resets the count")

	m := rl.GetMetrics()
	assert.Equal(t, int64(2), m.TotalHits)
	assert.Equal(t, int64(2), m.ClientCount)
}

func TestCleanupForgetsIdleClients(t *testing.T) {
	rl, now := newTestLimiter(t, Config{Requests: 1, Window: time.Minute})
	rl.Allow("a")
	*now = now.Add(3 * time.Minute)
	rl.Allow("b")

	rl.cleanupStaleEntries()
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestMiddlewareOnlyLimitsConfiguredMethods(t *testing.T) {
	rl, _ := newTestLimiter(t, Config{Requests: 1, Window: time.Minute, Methods: []string{http.MethodPost}})
	h := rl.Middleware(func(*http.Request) string { return "1.2.3.4" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	do := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/records", nil))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodPost).Code)
	limited := do(http.MethodPost)
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, do(http.MethodGet).Code)
	}
}

func TestNewLimiterDefaults(t *testing.T) {
	rl := NewLimiter(Config{})
	defer rl.Stop()
	assert.Equal(t, 60, rl.limit)
	assert.Equal(t, time.Minute, rl.window)
	assert.True(t, rl.Applies(http.MethodPatch), "no methods means every method")
}
