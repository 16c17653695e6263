// Package telemetry wires error reporting and report fan-out for the device
// buffer: Sentry for errors and telemetry samples, an in-memory store of recent
// periodic reports, and fan-out helpers combining several sinks.
package telemetry

import (
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/audiodevicebuffer/internal/errors"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

// Config configures Sentry reporting. Reporting is opt-in.
type Config struct {
	Enabled     bool
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
	Debug       bool
}

// Sentry owns the hub used for error reporting and telemetry samples.
type Sentry struct {
	hub *sentry.Hub
	log logger.Logger
}

// SentryOption configures InitSentry.
type SentryOption func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, used in tests.
func WithTransport(t sentry.Transport) SentryOption {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// InitSentry creates a Sentry client and installs it as the reporter for
// enhanced errors. It returns nil without error when reporting is disabled.
func InitSentry(cfg Config, log logger.Logger, opts ...SentryOption) (*Sentry, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	if !cfg.Enabled {
		log.Info("sentry telemetry is disabled")
		return nil, nil
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}

	options := sentry.ClientOptions{
		Dsn:              cfg.DSN,
		SampleRate:       cfg.SampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: false,
		Environment:      cfg.Environment,
		ServerName:       "",
		Release:          cfg.Release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	client, err := sentry.NewClient(options)
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Context("operation", "sentry_init").
			Category(errors.CategoryConfiguration).
			Build()
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("go_version", runtime.Version())
	})
	errors.SetTelemetryReporter(errors.NewSentryReporterWithHub(hub))

	log.Info("sentry telemetry initialized",
		logger.String("environment", cfg.Environment),
		logger.String("release", cfg.Release))
	return &Sentry{hub: hub, log: log}, nil
}

// Hub returns the hub events are captured on.
func (s *Sentry) Hub() *sentry.Hub { return s.hub }

// Close flushes pending events and detaches the error reporter.
func (s *Sentry) Close(timeout time.Duration) bool {
	if s == nil {
		return true
	}
	errors.SetTelemetryReporter(nil)
	ok := s.hub.Flush(timeout)
	if !ok {
		s.log.Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
	return ok
}

// applyPrivacyFilters strips host identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
