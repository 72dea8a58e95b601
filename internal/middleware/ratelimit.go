package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/config"
	"github.com/iliyamo/autopoint-backend/internal/metrics"
)

const rateLimitedDetail = "Превышен лимит запросов. Попробуйте позже."

// WindowStore records request timestamps per key and answers whether one
// more request fits into the sliding window.
type WindowStore interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (allowed bool, remaining int, err error)
}

// MemoryStore keeps the windows in process. Keys whose window has emptied
// are swept lazily.
type MemoryStore struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	lastGC  time.Time
	sweepAt time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hits: make(map[string][]time.Time), sweepAt: time.Minute}
}

func (s *MemoryStore) Hit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	ts := prune(s.hits[key], cutoff)
	if now.Sub(s.lastGC) > s.sweepAt {
		for k, v := range s.hits {
			if k != key && len(prune(v, cutoff)) == 0 {
				delete(s.hits, k)
			}
		}
		s.lastGC = now
	}
	if len(ts) >= limit {
		s.hits[key] = ts
		return false, 0, nil
	}
	ts = append(ts, now)
	s.hits[key] = ts
	return true, limit - len(ts), nil
}

// prune drops timestamps at or before cutoff; ts is sorted.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// slidingWindow prunes, counts and conditionally records in one round trip
// so concurrent instances agree on the count.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
	local count = redis.call('ZCARD', key)
	if count >= limit then
		return {0, 0}
	end
	redis.call('ZADD', key, now_ms, member)
	redis.call('PEXPIRE', key, window_ms)
	return {1, limit - count - 1}
`)

// RedisStore keeps each window in a sorted set scored by timestamp, shared
// by every API instance.
type RedisStore struct {
	RDB    *redis.Client
	Prefix string
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, int, error) {
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatInt(seq(), 10)
	res, err := slidingWindow.Run(ctx, s.RDB, []string{s.Prefix + ":" + key},
		now.UnixMilli(), window.Milliseconds(), limit, member).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, redis.Nil
	}
	return res[0] == 1, int(res[1]), nil
}

var (
	seqMu sync.Mutex
	seqN  int64
)

// seq disambiguates members recorded in the same nanosecond.
func seq() int64 {
	seqMu.Lock()
	defer seqMu.Unlock()
	seqN++
	return seqN
}

// NewStore picks the backend named by cfg. Redis falls back to memory when
// no client is available.
func NewStore(cfg config.RateLimitConfig, rdb *redis.Client) WindowStore {
	if strings.EqualFold(cfg.Backend, "redis") && rdb != nil {
		return &RedisStore{RDB: rdb, Prefix: cfg.Prefix}
	}
	return NewMemoryStore()
}

// RateLimit enforces the per client-IP and path budget. Store failures let
// the request through. WebSocket upgrades are never limited.
func RateLimit(cfg config.RateLimitConfig, store WindowStore, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !cfg.Enabled || store == nil {
			return next
		}
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if cfg.Exempt(path) || isWebSocket(req) {
				return next(c)
			}
			limit := cfg.LimitFor(path)
			allowed, remaining, err := store.Hit(req.Context(), ClientIP(req)+":"+path, limit, cfg.Window, time.Now())
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("ratelimit: store error, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				tier := "default"
				if cfg.IsAuthPath(path) {
					tier = "auth"
				}
				metrics.IncRateLimited(tier)
				retry := int(cfg.Window / time.Second)
				h.Set("Retry-After", strconv.Itoa(retry))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"detail":      rateLimitedDetail,
					"retry_after": retry,
				})
			}
			return next(c)
		}
	}
}

// ClientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then
// the transport peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
