package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterMax(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 2)
	h := rl.Handler(okHandler())

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/temp/a.mp4", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	other := httptest.NewRequest(http.MethodGet, "/temp/a.mp4", nil)
	other.RemoteAddr = "203.0.113.8:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ok, _, _ := rl.check("1.1.1.1")
	assert.True(t, ok)
	ok, _, reset := rl.check("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, 61, reset)

	now = now.Add(61 * time.Second)
	ok, _, _ = rl.check("1.1.1.1")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	rl.sweep()
	assert.Zero(t, rl.entries())
}

func TestCORSAllowsGet(t *testing.T) {
	h := CORS(nil, zap.NewNop())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/temp/a.mp4", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
