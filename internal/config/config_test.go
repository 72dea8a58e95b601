package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_V1_PREFIX", "/api/v1/")
	t.Setenv("ALGORITHM", "hs512")
	t.Setenv("RATE_LIMIT_AUTH_PER_MINUTE", "0")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	s := Load()
	assert.Equal(t, "/api/v1", s.APIV1Prefix)
	assert.Equal(t, "HS512", s.Algorithm)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.CORSOrigins)
	assert.Equal(t, 1, s.RateLimit.AuthPerMinute)
	assert.Equal(t, "/api/v1/auth", s.RateLimit.AuthPrefix)
	assert.Equal(t, int64(30*24*3600), s.AccessTokenTTLSeconds())
	assert.True(t, s.ImageTypeAllowed(" IMAGE/PNG "))
	assert.False(t, s.ImageTypeAllowed("video/mp4"))
	assert.Contains(t, s.AllowedChatTypes, "video/mp4")
	assert.Contains(t, s.AllowedChatTypes, "image/png")
	assert.NotContains(t, s.AllowedChatTypes, "text/html")
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("SMS_CODE_EXPIRE_MINUTES", "soon")
	t.Setenv("HIDE_ERROR_DETAILS", "maybe")

	s := Load()
	assert.Equal(t, 5, s.SMS.CodeExpireMinutes)
	assert.True(t, s.HideErrorDetails)
}

func TestRateLimitPaths(t *testing.T) {
	c := LoadRateLimitConfig("/api/v1")
	assert.True(t, c.IsAuthPath("/api/v1/auth"))
	assert.True(t, c.IsAuthPath("/api/v1/auth/send-code"))
	assert.False(t, c.IsAuthPath("/api/v1/authors"))
	assert.Equal(t, c.AuthPerMinute, c.LimitFor("/api/v1/auth/verify-code"))
	assert.Equal(t, c.DefaultPerMinute, c.LimitFor("/api/v1/gas-stations"))
	assert.True(t, c.Exempt("/docs"))
	assert.False(t, c.Exempt("/docs/x"))
}

func TestCacheConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := LoadCacheConfig()
		assert.True(t, c.Enabled)
		assert.Equal(t, map[string]bool{"GET": true}, c.Methods)
		assert.Equal(t, 30*time.Second, c.TTL)
		assert.Equal(t, "ads", c.Prefix)
	})

	t.Run("ttl forms", func(t *testing.T) {
		t.Setenv("CACHE_TTL", "45")
		assert.Equal(t, 45*time.Second, LoadCacheConfig().TTL)
		t.Setenv("CACHE_TTL", "2m")
		assert.Equal(t, 2*time.Minute, LoadCacheConfig().TTL)
		t.Setenv("CACHE_TTL", "-1s")
		assert.Equal(t, 30*time.Second, LoadCacheConfig().TTL)
	})

	t.Run("methods", func(t *testing.T) {
		t.Setenv("CACHE_METHODS", "get, head")
		require.Len(t, LoadCacheConfig().Methods, 2)
		assert.True(t, LoadCacheConfig().Methods["HEAD"])
	})
}

func TestRedisAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_TLS", "1")
	c := LoadRedisConfig()
	assert.Equal(t, "redis:6379", c.Addr)
	assert.True(t, c.TLS)
}
