package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventtix/ticket-service/internal/config"
)

func rateLimitContext(t *testing.T, userID string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/events/ev-1/tickets/reserve", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/events/:eventId/tickets/reserve")
	if userID != "" {
		c.Set("user_id", userID)
	}
	return c
}

func TestRateKey(t *testing.T) {
	c := rateLimitContext(t, "user-1")
	assert.Equal(t, "rl:user-1:POST /api/events/:eventId/tickets/reserve", rateKey("rl", c))

	// Same user, different route: separate buckets.
	other := rateLimitContext(t, "user-1")
	other.SetPath("/api/tickets/:ticketId/purchase")
	assert.NotEqual(t, rateKey("rl", c), rateKey("rl", other))

	// No principal falls back to the client IP.
	anon := rateLimitContext(t, "")
	assert.Equal(t, "rl:ip:203.0.113.9:POST /api/events/:eventId/tickets/reserve", rateKey("rl", anon))
}

func TestNewTokenBucket_NoopWithoutRedis(t *testing.T) {
	mw := NewTokenBucket(config.LoadRateLimitConfig(), nil)
	called := false
	h := mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	c := rateLimitContext(t, "user-1")
	require.NoError(t, h(c))
	assert.True(t, called)
}

func TestLoadRateLimitConfig_Floors(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "-3")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := config.LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.GreaterOrEqual(t, cfg.TTL, 5*cfg.RefillInterval)
}
