package telemetry

import "github.com/tphakala/audiodevicebuffer/internal/audiocore"

// MultiTelemetry forwards each sample to every member.
type MultiTelemetry []audiocore.Telemetry

// NewMultiTelemetry drops nil members.
func NewMultiTelemetry(members ...audiocore.Telemetry) MultiTelemetry {
	out := make(MultiTelemetry, 0, len(members))
	for _, m := range members {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// RecordBoolean implements audiocore.Telemetry.
func (m MultiTelemetry) RecordBoolean(name string, value bool) {
	for _, t := range m {
		t.RecordBoolean(name, value)
	}
}

// MultiSink forwards each report to every member.
type MultiSink []audiocore.ReportSink

// NewMultiSink drops nil members.
func NewMultiSink(members ...audiocore.ReportSink) MultiSink {
	out := make(MultiSink, 0, len(members))
	for _, m := range members {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// HandleReport implements audiocore.ReportSink.
func (m MultiSink) HandleReport(r audiocore.Report) {
	for _, s := range m {
		s.HandleReport(r)
	}
}
