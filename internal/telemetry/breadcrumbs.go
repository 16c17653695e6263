package telemetry

import (
	"github.com/getsentry/sentry-go"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
)

// Breadcrumbs records telemetry samples and periodic reports as Sentry
// breadcrumbs so they accompany later error events. A recording session that
// captured only silence is also captured as a warning event.
type Breadcrumbs struct {
	hub *sentry.Hub
}

// NewBreadcrumbs returns a sink writing to s. A nil s yields a no-op sink.
func NewBreadcrumbs(s *Sentry) *Breadcrumbs {
	b := &Breadcrumbs{}
	if s != nil {
		b.hub = s.hub
	}
	return b
}

// RecordBoolean implements audiocore.Telemetry.
func (b *Breadcrumbs) RecordBoolean(name string, value bool) {
	if b.hub == nil {
		return
	}
	b.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Type:     "default",
		Category: "telemetry",
		Message:  name,
		Level:    sentry.LevelInfo,
		Data:     map[string]any{"value": value},
	}, nil)

	if name == audiocore.TelemetryRecordedOnlyZeros && value {
		b.hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("component", "audiocore")
			scope.SetLevel(sentry.LevelWarning)
			scope.SetFingerprint([]string{name})
			b.hub.CaptureMessage("recording session captured only silence")
		})
	}
}

// HandleReport implements audiocore.ReportSink.
func (b *Breadcrumbs) HandleReport(r audiocore.Report) {
	if b.hub == nil {
		return
	}
	b.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "default",
		Category:  "report." + r.Direction.String(),
		Message:   r.String(),
		Level:     sentry.LevelInfo,
		Timestamp: r.Time,
	}, nil)
}
