package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/coord/pkg/envelope"
)

// RequestTimeout puts a deadline on each request context and answers 504
// when the handler has not returned by then. WebSocket upgrades under /ws
// are long-lived and skipped.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasPrefix(c.Request().URL.Path, "/ws") {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if ctx.Err() != context.DeadlineExceeded {
					return ctx.Err()
				}
				if c.Response().Committed {
					return nil
				}
				return c.JSON(http.StatusGatewayTimeout,
					envelope.Fail(fmt.Errorf("request exceeded %s: %w", timeout, ctx.Err())))
			}
		}
	}
}
