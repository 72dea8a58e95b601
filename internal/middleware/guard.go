package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

const (
	ctxUser  = "user"
	ctxToken = "token"
)

var (
	errNotAuthenticated = echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	errBadCredentials   = echo.NewHTTPError(http.StatusUnauthorized, "Could not validate credentials")
	errInactive         = echo.NewHTTPError(http.StatusForbidden, "Inactive user")
	errNotAdmin         = echo.NewHTTPError(http.StatusForbidden, "Not enough permissions")
)

// Authenticator resolves a raw bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (model.User, error)
}

// AdminLookup reports whether any admin exists yet.
type AdminLookup interface {
	AnyAdmin(ctx context.Context) (bool, error)
}

// Guard implements the bearer tiers: authenticated, active and admin, plus
// an optional variant that never fails.
type Guard struct {
	Auth   Authenticator
	Admins AdminLookup
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization)), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (g *Guard) resolve(c echo.Context, raw string) (model.User, error) {
	if raw == "" {
		return model.User{}, errNotAuthenticated
	}
	u, err := g.Auth.Authenticate(c.Request().Context(), raw)
	if errors.Is(err, service.ErrUnauthorized) {
		return model.User{}, errBadCredentials
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (g *Guard) tier(check func(model.User) error) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := BearerToken(c.Request())
			u, err := g.resolve(c, raw)
			if err != nil {
				return err
			}
			if check != nil {
				if err := check(u); err != nil {
					return err
				}
			}
			c.Set(ctxUser, u)
			c.Set(ctxToken, raw)
			return next(c)
		}
	}
}

func requireActive(u model.User) error {
	if !u.CanAct() {
		return errInactive
	}
	return nil
}

func requireAdmin(u model.User) error {
	if err := requireActive(u); err != nil {
		return err
	}
	if !u.IsAdmin {
		return errNotAdmin
	}
	return nil
}

// Authenticated requires a valid, unrevoked token for an existing user.
func (g *Guard) Authenticated() echo.MiddlewareFunc { return g.tier(nil) }

// Active additionally requires is_active and not blocked.
func (g *Guard) Active() echo.MiddlewareFunc { return g.tier(requireActive) }

// Admin additionally requires is_admin.
func (g *Guard) Admin() echo.MiddlewareFunc { return g.tier(requireAdmin) }

// Optional attaches the user when the token resolves to an active one and
// otherwise continues anonymously.
func (g *Guard) Optional() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := BearerToken(c.Request())
			if raw != "" {
				if u, err := g.resolve(c, raw); err == nil && u.CanAct() {
					c.Set(ctxUser, u)
					c.Set(ctxToken, raw)
				}
			}
			return next(c)
		}
	}
}

// AdminBootstrap lets the request through unauthenticated while no admin
// exists, and requires an admin token afterwards.
func (g *Guard) AdminBootstrap() echo.MiddlewareFunc {
	admin := g.Admin()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := admin(next)
		return func(c echo.Context) error {
			exists, err := g.Admins.AnyAdmin(c.Request().Context())
			if err != nil {
				return err
			}
			if !exists {
				return next(c)
			}
			return guarded(c)
		}
	}
}

// CurrentUser returns the user attached by a guard.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(ctxUser).(model.User)
	return u, ok
}

// CurrentToken returns the raw bearer token attached by a guard.
func CurrentToken(c echo.Context) string {
	s, _ := c.Get(ctxToken).(string)
	return s
}

// UserID returns the attached user's id or zero.
func UserID(c echo.Context) uint64 {
	u, _ := CurrentUser(c)
	return u.ID
}
