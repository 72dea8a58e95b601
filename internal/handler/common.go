package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"

	"github.com/iliyamo/autopoint-backend/internal/repository"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

// requestTimeout bounds every database round trip made by a handler.
const requestTimeout = 5 * time.Second

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// bind decodes the body into dst and runs the registered validator.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "body: invalid JSON")
	}
	return c.Validate(dst)
}

// pathID parses a positive integer path parameter. A malformed id is a 422
// like every other schema violation.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnprocessableEntity, name+": must be a positive integer")
	}
	return id, nil
}

// page reads skip/limit from the query string. Out of range values are
// clamped by the repositories.
type page struct {
	Skip  int `query:"skip" validate:"gte=0"`
	Limit int `query:"limit" validate:"gte=0,lte=100"`
}

func pageOf(c echo.Context) (page, error) {
	var p page
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &p); err != nil {
		return p, echo.NewHTTPError(http.StatusUnprocessableEntity, "query: invalid pagination")
	}
	if err := c.Validate(&p); err != nil {
		return p, err
	}
	return p, nil
}

// queryBool returns nil when the parameter is absent.
func queryBool(c echo.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, name+": must be a boolean")
	}
	return &v, nil
}

func queryFloat(c echo.Context, name string) (*float64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, name+": must be a number")
	}
	return &v, nil
}

func queryUint(c echo.Context, name string) (*uint64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, name+": must be a positive integer")
	}
	return &v, nil
}

func queryString(c echo.Context, name string) *string {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil
	}
	return &raw
}

// storeError maps repository sentinels onto HTTP errors. notFound is the
// detail used for a 404.
func storeError(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	case errors.Is(err, repository.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "Not enough permissions")
	case errors.Is(err, repository.ErrDuplicate), errors.Is(err, repository.ErrConflict):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

// formFile fetches a multipart file or fails with 422.
func formFile(c echo.Context, field string) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, field+": field required")
	}
	return fh, nil
}

// uploadError maps uploader failures to 400/413.
func uploadError(err error) error {
	switch {
	case errors.Is(err, service.ErrUnsupportedType):
		return echo.NewHTTPError(http.StatusBadRequest, "Unsupported file type")
	case errors.Is(err, service.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "File too large")
	}
	return err
}

func success() echo.Map { return echo.Map{"success": true} }
