package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/coord/pkg/envelope"
)

// Recovery turns a handler panic into a 500 envelope carrying the request
// ID, and logs the stack.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				rid, _ := c.Get("request_id").(string)
				logger.Error().
					Str("request_id", rid).
					Str("path", c.Request().URL.Path).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				if c.Response().Committed {
					err = nil
					return
				}
				err = c.JSON(http.StatusInternalServerError,
					envelope.Fail(fmt.Errorf("internal error (request %q)", rid)))
			}()
			return next(c)
		}
	}
}
