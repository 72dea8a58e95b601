// Package router wires the edge middleware stack and registers every
// endpoint under the API prefix.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/config"
	"github.com/iliyamo/autopoint-backend/internal/handler"
	"github.com/iliyamo/autopoint-backend/internal/metrics"
	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

// Handlers bundles every endpoint group.
type Handlers struct {
	Auth          *handler.AuthHandler
	Admin         *handler.AdminHandler
	Profile       *handler.ProfileHandler
	Places        []*handler.PlaceHandler
	Notifications *handler.NotificationHandler
	Chat          *handler.ChatHandler
	Support       *handler.SupportHandler
	Ads           *handler.AdHandler
	Readiness     handler.Readiness
}

// Deps carries what the middleware stack needs.
type Deps struct {
	Cfg   config.Settings
	Guard *middleware.Guard
	Redis *redis.Client
	Log   zerolog.Logger
}

// New builds the echo instance with the edge stack applied. Outermost
// first: request id, access log, panic recovery, metrics, CORS, rate
// limit, body cap and security headers. Errors are rendered by the shield.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()
	e.HTTPErrorHandler = middleware.ErrorHandler(d.Log, d.Cfg.HideErrorDetails)
	e.Pre(echomw.RemoveTrailingSlash())

	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(middleware.Recover(d.Log))
	if d.Cfg.MetricsEnabled {
		metrics.Register()
		e.Use(metrics.Middleware())
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     d.Cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		AllowCredentials: true,
	}))
	e.Use(middleware.RateLimit(d.Cfg.RateLimit, middleware.NewStore(d.Cfg.RateLimit, d.Redis), d.Log))
	e.Use(middleware.BodyLimit(d.Cfg.MaxRequestSize))
	e.Use(middleware.SecureHeaders())
	return e
}

// Register mounts the service routes, the static uploads tree and the
// API groups.
func Register(e *echo.Echo, d Deps, h Handlers) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", h.Readiness.Ready)
	if d.Cfg.MetricsEnabled {
		e.GET("/metrics", metrics.Handler())
	}
	e.Static(service.URLPrefix, d.Cfg.UploadDir)

	api := e.Group(d.Cfg.APIV1Prefix)
	registerAuth(api, d.Guard, h.Auth)
	registerAdmin(api, d.Guard, h.Admin, h.Notifications, h.Support)
	registerProfile(api, d.Guard, h.Profile)
	for _, p := range h.Places {
		registerPlaces(api, d.Guard, p)
	}
	registerNotifications(api, d.Guard, h.Notifications)
	registerChat(api, d.Guard, h.Chat)
	registerSupport(api, d.Guard, h.Support)
	registerAds(api, d, h.Ads)
}
