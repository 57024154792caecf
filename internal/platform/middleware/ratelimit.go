package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// ExpiresIn drops the bucket of a peer that has been quiet this long.
	ExpiresIn time.Duration
}

// DefaultPeerRateLimit bounds how fast one workstation may push messages.
func DefaultPeerRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 20, Burst: 40, ExpiresIn: 3 * time.Minute}
}

// RateLimit limits requests per remote IP with a token bucket.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     cfg.Burst,
		ExpiresIn: cfg.ExpiresIn,
	})
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "cannot identify peer")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set("Retry-After", "1")
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}
