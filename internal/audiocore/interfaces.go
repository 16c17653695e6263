package audiocore

import (
	"fmt"
	"time"

	"github.com/tphakala/audiodevicebuffer/internal/observability/metrics"
)

// BytesPerSample is the size of one 16-bit PCM sample.
const BytesPerSample = 2

// Direction identifies the recording or playout side of the buffer.
type Direction int

const (
	DirectionRecord Direction = iota
	DirectionPlayout
)

// String returns the metric label of the direction.
func (d Direction) String() string {
	if d == DirectionPlayout {
		return metrics.DirectionPlayout
	}
	return metrics.DirectionRecord
}

func (d Direction) tag() string {
	if d == DirectionPlayout {
		return "PLAY"
	}
	return "REC"
}

// ChannelType selects which input channel(s) to record.
type ChannelType int

const (
	ChannelLeft ChannelType = iota
	ChannelRight
	ChannelBoth
)

// RecordedData is handed to the transport for every captured buffer.
type RecordedData struct {
	Samples       []byte // interleaved 16-bit PCM, valid until the call returns
	Frames        int
	BytesPerFrame int
	Channels      int
	SampleRate    int
	TotalDelayMs  int
	ClockDrift    int
	MicLevel      uint32
	KeyPressed    bool
}

// PlayoutRequest describes the audio the driver needs next.
type PlayoutRequest struct {
	Frames        int
	BytesPerFrame int
	Channels      int
	SampleRate    int
}

// PlayoutResult is returned by the transport after filling a playout buffer.
// ElapsedTimeMs and NTPTimeMs are -1 when unknown.
type PlayoutResult struct {
	Frames        int
	ElapsedTimeMs int64
	NTPTimeMs     int64
}

// AudioTransport consumes recorded audio and produces playout audio.
// Methods are called on the real-time goroutines and must not block.
type AudioTransport interface {
	// RecordedDataIsAvailable consumes one recorded buffer and returns the
	// new mic level suggested by the application.
	RecordedDataIsAvailable(data RecordedData) (newMicLevel uint32, err error)

	// NeedMorePlayData fills dst (len = Frames*BytesPerFrame) with playout audio.
	NeedMorePlayData(req PlayoutRequest, dst []byte) (PlayoutResult, error)
}

// Telemetry receives named call-quality events.
type Telemetry interface {
	RecordBoolean(name string, value bool)
}

// TelemetryRecordedOnlyZeros is emitted when a long enough recording session stops.
const TelemetryRecordedOnlyZeros = "Audio.RecordedOnlyZeros"

// Report is one direction's statistics for one reporting window.
type Report struct {
	Direction  Direction
	Time       time.Time
	Elapsed    time.Duration
	SampleRate int    // configured rate in Hz
	Callbacks  uint64 // callbacks during the window
	Samples    uint64 // frames during the window
	Rate       int    // measured frames per second, rounded
	Level      int16  // peak absolute sample value during the window
}

// String formats the report as a single log line, e.g.
//
//	[REC : 10000msec, 16kHz] callbacks: 1000, samples: 160000, rate: 16000, level: 1234
func (r Report) String() string {
	return fmt.Sprintf("[%-4s: %dmsec, %dkHz] callbacks: %d, samples: %d, rate: %d, level: %d",
		r.Direction.tag(), r.Elapsed.Milliseconds(), r.SampleRate/1000,
		r.Callbacks, r.Samples, r.Rate, r.Level)
}

// ReportSink receives periodic reports on the worker goroutine. Implementations
// must return quickly.
type ReportSink interface {
	HandleReport(r Report)
}

// ReportSinkFunc adapts a function to ReportSink.
type ReportSinkFunc func(Report)

// HandleReport calls f(r).
func (f ReportSinkFunc) HandleReport(r Report) { f(r) }

// TelemetryFunc adapts a function to Telemetry.
type TelemetryFunc func(name string, value bool)

// RecordBoolean calls f(name, value).
func (f TelemetryFunc) RecordBoolean(name string, value bool) { f(name, value) }
