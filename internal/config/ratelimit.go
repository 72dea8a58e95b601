package config

import (
	"strings"
	"time"
)

// RateLimitConfig configures the sliding-window limiter. Two limits apply:
// AuthPerMinute for any path under the auth prefix and DefaultPerMinute
// elsewhere. Window is fixed at one minute because Retry-After is reported
// as the window length.
type RateLimitConfig struct {
	Enabled          bool
	AuthPerMinute    int
	DefaultPerMinute int
	Window           time.Duration
	AuthPrefix       string
	ExemptPaths      []string
	Backend          string // memory | redis
	Prefix           string // redis key namespace
}

func LoadRateLimitConfig(apiPrefix string) RateLimitConfig {
	def := RateLimitConfig{
		Enabled:          flag("RATE_LIMIT_ENABLED", true),
		AuthPerMinute:    num("RATE_LIMIT_AUTH_PER_MINUTE", 5),
		DefaultPerMinute: num("RATE_LIMIT_DEFAULT_PER_MINUTE", 60),
		Window:           time.Minute,
		AuthPrefix:       apiPrefix + "/auth",
		ExemptPaths:      []string{"/", "/docs", "/redoc", "/openapi.json"},
		Backend:          str("RATE_LIMIT_BACKEND", "memory"),
		Prefix:           str("RATE_LIMIT_PREFIX", "rl"),
	}
	if def.AuthPerMinute < 1 {
		def.AuthPerMinute = 1
	}
	if def.DefaultPerMinute < 1 {
		def.DefaultPerMinute = 1
	}
	return def
}

// LimitFor returns the request budget for a path.
func (c RateLimitConfig) LimitFor(path string) int {
	if c.IsAuthPath(path) {
		return c.AuthPerMinute
	}
	return c.DefaultPerMinute
}

// IsAuthPath reports whether path falls under the auth prefix.
func (c RateLimitConfig) IsAuthPath(path string) bool {
	return c.AuthPrefix != "" && (path == c.AuthPrefix || strings.HasPrefix(path, c.AuthPrefix+"/"))
}

// Exempt reports whether a path bypasses the limiter entirely.
func (c RateLimitConfig) Exempt(path string) bool {
	for _, p := range c.ExemptPaths {
		if p == path {
			return true
		}
	}
	return false
}
