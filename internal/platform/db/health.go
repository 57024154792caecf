package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/coord/internal/platform/fault"
	"github.com/clinicdesk/coord/pkg/envelope"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	AcquireCount  int64  `json:"acquire_count"`
	AcquireWait   string `json:"acquire_wait"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		AcquireCount:  stat.AcquireCount(),
		AcquireWait:   stat.AcquireDuration().String(),
	}
}

// Pinger is anything that can prove the shared store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreHealth is the payload of GET /health/db.
type StoreHealth struct {
	Driver  string     `json:"driver"`
	Healthy bool       `json:"healthy"`
	Pool    *PoolStats `json:"pool,omitempty"`
}

// HealthHandler reports whether the shared store answers within five seconds.
// stats may be nil for drivers without a connection pool.
func HealthHandler(driver string, p Pinger, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		health := &StoreHealth{Driver: driver, Healthy: true}
		if stats != nil {
			health.Pool = stats()
		}
		if p == nil {
			return envelope.JSON(c, http.StatusOK, health, nil)
		}
		if err := p.Ping(ctx); err != nil {
			health.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, &envelope.Response{
				Success: false,
				Data:    health,
				Error:   err.Error(),
				Code:    fault.Code(fault.ErrStoreUnavailable),
			})
		}
		return envelope.JSON(c, http.StatusOK, health, nil)
	}
}
