package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/config"
)

func limitedEcho(t *testing.T, cfg config.RateLimitConfig) (*echo.Echo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	mw := TokenBucket(cfg, rdb, zap.NewNop())
	e.POST("/login", ok, mw)
	e.POST("/forgot", ok, mw)
	return e, mr
}

func bucket(capacity int) config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       capacity,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}
}

func TestTokenBucketBlocksWhenEmpty(t *testing.T) {
	e, _ := limitedEcho(t, bucket(2))

	first := serve(e, http.MethodPost, "/login", "")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/login", "").Code)

	blocked := serve(e, http.MethodPost, "/login", "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/forgot", "").Code, "buckets are per route")
}

func TestTokenBucketDisabled(t *testing.T) {
	cfg := bucket(1)
	cfg.Enabled = false
	e, _ := limitedEcho(t, cfg)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/login", "").Code)
	}
}

func TestTokenBucketFailsOpen(t *testing.T) {
	e, mr := limitedEcho(t, bucket(1))
	mr.Close()
	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/login", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/login", "").Code)
}
