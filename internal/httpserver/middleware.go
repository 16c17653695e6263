package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

// requestMetrics records per-route request counts and latency and logs each
// request at debug level.
func (s *Server) requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		status := c.Response().Status
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.HTTP.ObserveRequest(path, c.Request().Method, status, elapsed)
		}
		s.log.Debug("request",
			logger.String("method", c.Request().Method),
			logger.String("path", path),
			logger.Int("status", status),
			logger.Duration("duration", elapsed))
		return nil
	}
}
