package config

import (
	"strings"
	"time"

	"github.com/spf13/cast"
)

// CacheConfig drives the Redis response cache in front of the public ad
// listing. Without a Redis client the middleware is a pass-through.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

func LoadCacheConfig() CacheConfig {
	methods := map[string]bool{}
	for _, m := range list("CACHE_METHODS", "GET") {
		methods[strings.ToUpper(m)] = true
	}
	return CacheConfig{
		Enabled:      flag("CACHE_ENABLED", true),
		Methods:      methods,
		TTL:          duration("CACHE_TTL", 30*time.Second),
		Prefix:       str("CACHE_PREFIX", "ads"),
		MaxBodyBytes: num("CACHE_MAX_BODY_BYTES", 256<<10),
	}
}

// duration accepts Go durations ("45s") or bare seconds ("45").
func duration(key string, def time.Duration) time.Duration {
	raw := str(key, "")
	if raw == "" {
		return def
	}
	if n, err := cast.ToIntE(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
