package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/autopoint-backend/internal/config"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop(), true)
	e.Validator = NewValidator()
	return e
}

func do(e *echo.Echo, method, path string, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	s, _ := body["detail"].(string)
	return s
}

func rateCfg() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled: true, AuthPerMinute: 2, DefaultPerMinute: 3, Window: time.Minute,
		AuthPrefix: "/api/v1/auth", ExemptPaths: []string{"/"}, Prefix: "rl",
	}
}

func TestMemoryStoreSlidingWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ok, remaining, err := s.Hit(ctx, "k", 3, time.Minute, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2-i, remaining)
	}
	ok, _, _ := s.Hit(ctx, "k", 3, time.Minute, t0.Add(30*time.Second))
	assert.False(t, ok)

	// the first hit slides out of the window
	ok, remaining, _ := s.Hit(ctx, "k", 3, time.Minute, t0.Add(60*time.Second+time.Millisecond))
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)

	ok, _, _ = s.Hit(ctx, "other", 3, time.Minute, t0)
	assert.True(t, ok, "keys are independent")
}

func TestRedisStoreSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := &RedisStore{RDB: rdb, Prefix: "rl"}
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		ok, remaining, err := s.Hit(ctx, "1.2.3.4:/x", 2, time.Minute, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1-i, remaining)
	}
	ok, remaining, err := s.Hit(ctx, "1.2.3.4:/x", 2, time.Minute, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)

	ok, _, err = s.Hit(ctx, "1.2.3.4:/x", 2, time.Minute, t0.Add(61*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("rl:1.2.3.4:/x"))
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, int, time.Duration, time.Time) (bool, int, error) {
	return false, 0, errors.New("store down")
}

func TestRateLimitMiddleware(t *testing.T) {
	e := newEcho()
	e.Use(RateLimit(rateCfg(), NewMemoryStore(), zerolog.Nop()))
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.POST("/api/v1/auth/send-code", ok)
	e.GET("/api/v1/places", ok)
	e.GET("/", ok)
	ip := map[string]string{"X-Forwarded-For": "10.0.0.1, 172.16.0.1"}

	t.Run("AuthTier", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rec := do(e, http.MethodPost, "/api/v1/auth/send-code", "", ip)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		}
		rec := do(e, http.MethodPost, "/api/v1/auth/send-code", "", ip)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, rateLimitedDetail, body["detail"])
		assert.Equal(t, float64(60), body["retry_after"])

		other := do(e, http.MethodPost, "/api/v1/auth/send-code", "", map[string]string{"X-Real-IP": "10.0.0.2"})
		assert.Equal(t, http.StatusOK, other.Code, "different client ip has its own window")
	})

	t.Run("DefaultTier", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/v1/places", "", ip).Code)
		}
		assert.Equal(t, http.StatusTooManyRequests, do(e, http.MethodGet, "/api/v1/places", "", ip).Code)
	})

	t.Run("ExemptAndWebSocket", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/", "", ip).Code)
		}
		rec := do(e, http.MethodGet, "/api/v1/places", "", map[string]string{"X-Forwarded-For": "10.0.0.1", "Upgrade": "websocket"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("FailsOpen", func(t *testing.T) {
		e2 := newEcho()
		e2.Use(RateLimit(rateCfg(), failingStore{}, zerolog.Nop()))
		e2.GET("/x", ok)
		assert.Equal(t, http.StatusOK, do(e2, http.MethodGet, "/x", "", nil).Code)
	})
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", ClientIP(r))
	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(r))
	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}

func TestResponseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20}

	calls := 0
	e := newEcho()
	e.GET("/ads", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}, ResponseCache(cfg, rdb, zerolog.Nop()))

	first := do(e, http.MethodGet, "/ads?position=home_banner", "", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := do(e, http.MethodGet, "/ads?position=home_banner", "", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 1, calls)

	assert.Equal(t, "MISS", do(e, http.MethodGet, "/ads?position=other", "", nil).Header().Get("X-Cache"))

	require.NoError(t, InvalidateCache(context.Background(), rdb, "cache"))
	assert.Equal(t, "MISS", do(e, http.MethodGet, "/ads?position=home_banner", "", nil).Header().Get("X-Cache"))
	assert.Equal(t, 3, calls)
}

func TestSecureHeadersAndBodyLimit(t *testing.T) {
	e := newEcho()
	e.Use(BodyLimit(16), SecureHeaders())
	e.POST("/x", func(c echo.Context) error {
		c.Response().Header().Set("Server", "leaky/1.0")
		return c.NoContent(http.StatusNoContent)
	})

	rec := do(e, http.MethodPost, "/x", `{"a":1}`, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	for k, v := range securityHeaders {
		assert.Equal(t, v, rec.Header().Get(k), k)
	}
	assert.Empty(t, rec.Header().Get("Server"))

	big := do(e, http.MethodPost, "/x", `{"a":"`+strings.Repeat("x", 64)+`"}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, big.Code)
	assert.NotEmpty(t, detail(t, big))
}

func TestErrorHandler(t *testing.T) {
	e := newEcho()
	e.Use(Recover(zerolog.Nop()))
	e.GET("/boom", func(echo.Context) error { return errors.New("db exploded") })
	e.GET("/panic", func(echo.Context) error { panic("nil map") })
	e.GET("/missing", func(echo.Context) error { return echo.NewHTTPError(http.StatusNotFound, "Place not found") })
	e.GET("/auth", func(echo.Context) error { return echo.ErrUnauthorized })

	rec := do(e, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, InternalErrorDetail, detail(t, rec))

	rec = do(e, http.MethodGet, "/panic", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, InternalErrorDetail, detail(t, rec))

	rec = do(e, http.MethodGet, "/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Place not found", detail(t, rec))

	rec = do(e, http.MethodGet, "/auth", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	var logged bytes.Buffer
	traced := echo.New()
	traced.HTTPErrorHandler = ErrorHandler(zerolog.New(&logged), true)
	traced.GET("/boom", func(echo.Context) error { return errors.New("db exploded") })
	do(traced, http.MethodGet, "/boom", "", nil)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(logged.Bytes(), &entry))
	assert.Equal(t, "db exploded", entry["error"])
	assert.Contains(t, entry["stack"], "runtime/debug.Stack")

	shown := echo.New()
	shown.HTTPErrorHandler = ErrorHandler(zerolog.Nop(), false)
	shown.GET("/boom", func(echo.Context) error { return errors.New("db exploded") })
	assert.Equal(t, "db exploded", detail(t, do(shown, http.MethodGet, "/boom", "", nil)))
}

type signIn struct {
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
	Code        string `json:"code" validate:"required,len=4,numeric"`
}

func TestValidator(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate(&signIn{PhoneNumber: "+998901234567", Code: "1234"}))

	cases := []struct {
		in   signIn
		want string
	}{
		{signIn{Code: "1234"}, "phone_number: field required"},
		{signIn{PhoneNumber: "12345", Code: "1234"}, "phone_number: must be a phone number in +998XXXXXXXXX format"},
		{signIn{PhoneNumber: "+998901234567", Code: "12"}, "code: must have length 4"},
	}
	for _, tc := range cases {
		err := v.Validate(&tc.in)
		var he *echo.HTTPError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnprocessableEntity, he.Code)
		assert.Equal(t, tc.want, he.Message)
	}
}

type stubAuth struct {
	users map[string]model.User
}

func (s stubAuth) Authenticate(_ context.Context, raw string) (model.User, error) {
	u, ok := s.users[raw]
	if !ok {
		return model.User{}, service.ErrUnauthorized
	}
	return u, nil
}

type stubAdmins struct{ any bool }

func (s *stubAdmins) AnyAdmin(context.Context) (bool, error) { return s.any, nil }

func TestGuardTiers(t *testing.T) {
	admins := &stubAdmins{}
	g := &Guard{
		Auth: stubAuth{users: map[string]model.User{
			"user":    {ID: 1, IsActive: true},
			"blocked": {ID: 2, IsActive: false, IsBlocked: true},
			"admin":   {ID: 3, IsActive: true, IsAdmin: true},
		}},
		Admins: admins,
	}
	e := newEcho()
	whoami := func(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{"id": UserID(c)}) }
	e.GET("/me", whoami, g.Authenticated())
	e.GET("/active", whoami, g.Active())
	e.GET("/admin", whoami, g.Admin())
	e.GET("/optional", whoami, g.Optional())
	e.POST("/create-admin", whoami, g.AdminBootstrap())

	bearer := func(tok string) map[string]string { return map[string]string{"Authorization": "Bearer " + tok} }

	cases := []struct {
		path   string
		token  string
		status int
	}{
		{"/me", "", http.StatusUnauthorized},
		{"/me", "garbage", http.StatusUnauthorized},
		{"/me", "blocked", http.StatusOK},
		{"/active", "blocked", http.StatusForbidden},
		{"/active", "user", http.StatusOK},
		{"/admin", "user", http.StatusForbidden},
		{"/admin", "admin", http.StatusOK},
		{"/optional", "", http.StatusOK},
		{"/optional", "garbage", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.path+"/"+tc.token, func(t *testing.T) {
			hdr := map[string]string{}
			if tc.token != "" {
				hdr = bearer(tc.token)
			}
			rec := do(e, http.MethodGet, tc.path, "", hdr)
			assert.Equal(t, tc.status, rec.Code)
		})
	}

	rec := do(e, http.MethodGet, "/optional", "", bearer("blocked"))
	assert.JSONEq(t, `{"id":0}`, rec.Body.String(), "blocked users browse anonymously")

	t.Run("Bootstrap", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/create-admin", "", nil).Code)
		admins.any = true
		assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/create-admin", "", nil).Code)
		assert.Equal(t, http.StatusForbidden, do(e, http.MethodPost, "/create-admin", "", bearer("user")).Code)
		assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/create-admin", "", bearer("admin")).Code)
	})
}
