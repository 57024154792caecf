package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps request bodies. Sizes are written "512K", "1M", "8M" or as
// a bare byte count; unparseable values fall back to 1 MB. Requests over the
// limit are answered 413 before the handler binds them.
func BodyLimit(limit string) echo.MiddlewareFunc {
	limitBytes := ParseSize(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > limitBytes {
				return tooLarge(limitBytes)
			}
			req.Body = &limitedReadCloser{ReadCloser: req.Body, remaining: limitBytes, limit: limitBytes}
			return next(c)
		}
	}
}

type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	limit     int64
}

func (r *limitedReadCloser) Read(p []byte) (int, error) {
	if r.remaining < 0 {
		return 0, tooLarge(r.limit)
	}
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.ReadCloser.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		return 0, tooLarge(r.limit)
	}
	return n, err
}

func tooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds %d bytes", limit))
}

// ParseSize converts "512K", "1M", "2G" (optionally with a B suffix) to bytes.
func ParseSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")
	if s == "" {
		return 1 << 20
	}

	mult := int64(1)
	switch s[len(s)-1] {
	case 'G':
		mult = 1 << 30
	case 'M':
		mult = 1 << 20
	case 'K':
		mult = 1 << 10
	}
	if mult > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 1 << 20
	}
	return n * mult
}
