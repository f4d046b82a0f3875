package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func doRateLimited(t *testing.T, h echo.HandlerFunc, ip string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	clock := newTestClock()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5, Now: clock.Now})(okHandler)

	for i := 0; i < 5; i++ {
		rec, err := doRateLimited(t, h, "10.0.0.1")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	clock := newTestClock()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2, Now: clock.Now})(okHandler)

	for i := 0; i < 2; i++ {
		if _, err := doRateLimited(t, h, "10.0.0.1"); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec, err := doRateLimited(t, h, "10.0.0.1")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("expected Retry-After '1', got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", got)
	}

	clock.Advance(time.Second)
	if _, err := doRateLimited(t, h, "10.0.0.1"); err != nil {
		t.Errorf("expected request to pass after refill, got %v", err)
	}
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	clock := newTestClock()
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, Now: clock.Now})(okHandler)

	if _, err := doRateLimited(t, h, "10.0.0.1"); err != nil {
		t.Fatalf("client A first request: %v", err)
	}
	if _, err := doRateLimited(t, h, "10.0.0.1"); err == nil {
		t.Fatal("expected client A to be limited")
	}
	if _, err := doRateLimited(t, h, "10.0.0.2"); err != nil {
		t.Errorf("expected client B to be unaffected, got %v", err)
	}
}

func TestRateLimit_SkipperAndDisabled(t *testing.T) {
	clock := newTestClock()
	skipAll := func(echo.Context) bool { return true }
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, Skipper: skipAll, Now: clock.Now})(okHandler)
	for i := 0; i < 3; i++ {
		if _, err := doRateLimited(t, h, "10.0.0.1"); err != nil {
			t.Fatalf("skipped request %d: %v", i+1, err)
		}
	}

	disabled := RateLimit(RateLimitConfig{Now: clock.Now})(okHandler)
	for i := 0; i < 3; i++ {
		if _, err := doRateLimited(t, disabled, "10.0.0.1"); err != nil {
			t.Fatalf("disabled request %d: %v", i+1, err)
		}
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 50 {
		t.Errorf("expected 50 rps, got %v", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 100 {
		t.Errorf("expected burst 100, got %d", cfg.BurstSize)
	}
}

func TestRateLimiterStore_EvictsIdleClients(t *testing.T) {
	clock := newTestClock()
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})

	store.reserve("10.0.0.1", clock.Now())
	clock.Advance(2 * time.Minute)
	store.reserve("10.0.0.2", clock.Now())

	if got := store.size(); got != 1 {
		t.Errorf("expected idle client to be evicted, %d remain", got)
	}
}

func TestRateLimiterStore_ZeroIdleTTLStillEvicts(t *testing.T) {
	clock := newTestClock()
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 50, BurstSize: 100})

	for i := 0; i < 5000; i++ {
		store.reserve(fmt.Sprintf("10.%d.%d.1", i/256, i%256), clock.Now())
	}
	clock.Advance(24 * time.Hour)
	store.reserve("192.168.1.1", clock.Now())

	if got := store.size(); got != 1 {
		t.Errorf("expected idle clients to be evicted, %d remain", got)
	}
}
