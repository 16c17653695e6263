package mqtt

import (
	"time"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
)

// ReportDTO is the payload published for every periodic report.
//
// Field names are part of the published topic contract; add fields, do not
// rename them.
type ReportDTO struct {
	Direction  string    `json:"direction"`
	SessionID  string    `json:"sessionId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	ElapsedMs  int64     `json:"elapsedMs"`
	SampleRate int       `json:"sampleRate"`
	Callbacks  uint64    `json:"callbacks"`
	Samples    uint64    `json:"samples"`
	Rate       int       `json:"rate"`
	Level      int16     `json:"level"`
	Line       string    `json:"line"`
}

// TelemetryDTO is the payload published for a boolean telemetry sample.
type TelemetryDTO struct {
	Name      string    `json:"name"`
	Value     bool      `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReportDTO converts a report into its published form.
func NewReportDTO(r audiocore.Report, sessionID string) ReportDTO {
	return ReportDTO{
		Direction:  r.Direction.String(),
		SessionID:  sessionID,
		Timestamp:  r.Time.UTC(),
		ElapsedMs:  r.Elapsed.Milliseconds(),
		SampleRate: r.SampleRate,
		Callbacks:  r.Callbacks,
		Samples:    r.Samples,
		Rate:       r.Rate,
		Level:      r.Level,
		Line:       r.String(),
	}
}
