// Package httpserver exposes the device buffer status, recent periodic
// reports and Prometheus metrics over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
	"github.com/tphakala/audiodevicebuffer/internal/errors"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
	"github.com/tphakala/audiodevicebuffer/internal/observability"
)

const (
	ComponentHTTP          = "httpserver"
	DefaultShutdownTimeout = 5 * time.Second
)

// StatusSource reports the current device buffer status.
type StatusSource interface {
	Status() audiocore.Status
}

// ReportSource returns stored periodic reports.
type ReportSource interface {
	Recent(dir *audiocore.Direction) []audiocore.Report
	Latest(dir audiocore.Direction) (audiocore.Report, bool)
}

// Config configures the server.
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
}

// Server serves the status API.
type Server struct {
	Echo    *echo.Echo
	config  Config
	status  StatusSource
	reports ReportSource
	metrics *observability.Metrics
	log     logger.Logger
}

// New creates a server with its routes registered. Any of status, reports and
// m may be nil; the matching routes then answer 503 or are not registered.
func New(cfg Config, status StatusSource, reports ReportSource, m *observability.Metrics, log logger.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	s := &Server{
		Echo:    echo.New(),
		config:  cfg,
		status:  status,
		reports: reports,
		metrics: m,
		log:     log,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.configureMiddleware()
	s.initRoutes()
	return s
}

func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(s.requestMetrics)
}

func (s *Server) initRoutes() {
	s.Echo.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	v1 := s.Echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/reports", s.handleReports)
	v1.GET("/reports/latest", s.handleLatestReports)
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Echo.Start(s.config.Listen)
	}()
	s.log.Info("HTTP server started", logger.String("listen", s.config.Listen))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component(ComponentHTTP).
			Category(errors.CategoryNetwork).
			Context("listen", s.config.Listen).
			Build()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		return errors.New(err).
			Component(ComponentHTTP).
			Category(errors.CategoryHTTP).
			Build()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("HTTP server stopped")
	return nil
}
