package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health is the liveness check used by load balancers. It never touches
// the backing stores.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Readiness pings MySQL and, when configured, Redis.
type Readiness struct {
	DB    *sql.DB
	Redis *redis.Client
}

// Ready handles GET /readyz. Redis is optional, so its failure is reported
// without failing the check.
func (r Readiness) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	out := echo.Map{"database": "ok", "redis": "disabled"}
	status := http.StatusOK
	if err := r.DB.PingContext(ctx); err != nil {
		out["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if r.Redis != nil {
		out["redis"] = "ok"
		if err := r.Redis.Ping(ctx).Err(); err != nil {
			out["redis"] = err.Error()
		}
	}
	return c.JSON(status, out)
}
