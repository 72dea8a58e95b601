package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// InternalErrorDetail is the body of a hidden 500.
const InternalErrorDetail = "Произошла внутренняя ошибка сервера"

// ErrorHandler renders every error as {"detail": ...}. *echo.HTTPError keeps
// its code and message; anything else is a logged 500 whose text is shown
// only when hide is false.
func ErrorHandler(log zerolog.Logger, hide bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		detail := InternalErrorDetail

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			detail = messageOf(he)
			if code >= 500 {
				logUnhandled(log, c, err)
				if hide {
					detail = InternalErrorDetail
				}
			}
		} else {
			logUnhandled(log, c, err)
			if !hide {
				detail = err.Error()
			}
		}

		if code == http.StatusUnauthorized {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, echo.Map{"detail": detail})
		}
		if err != nil {
			log.Error().Err(err).Msg("write error response")
		}
	}
}

func messageOf(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprint(m)
	}
}

func logUnhandled(log zerolog.Logger, c echo.Context, err error) {
	log.Error().Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Bytes("stack", debug.Stack()).
		Msg("unhandled error")
}
