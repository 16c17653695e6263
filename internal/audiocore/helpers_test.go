package audiocore

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevicebuffer/internal/clock"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
	"github.com/tphakala/audiodevicebuffer/internal/observability/metrics"
)

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *DeviceBuffer
	clk      *clock.Fake
	registry *prometheus.Registry

	mu        sync.Mutex
	reports   []Report
	telemetry []bool
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		clk:      clock.NewFake(testEpoch),
		registry: prometheus.NewRegistry(),
	}
	m, err := metrics.NewDeviceBufferMetrics(env.registry)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Clock = env.clk
	cfg.WorkerQueueSize = 4096
	for _, fn := range mutate {
		fn(&cfg)
	}

	env.db, err = NewDeviceBuffer(cfg,
		WithLogger(logger.NewDiscardLogger()),
		WithMetrics(m),
		WithReportSink(ReportSinkFunc(func(r Report) {
			env.mu.Lock()
			env.reports = append(env.reports, r)
			env.mu.Unlock()
		})),
		WithTelemetry(TelemetryFunc(func(name string, value bool) {
			if name != TelemetryRecordedOnlyZeros {
				return
			}
			env.mu.Lock()
			env.telemetry = append(env.telemetry, value)
			env.mu.Unlock()
		})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.db.Close() })
	return env
}

// step advances the clock by d and waits for the worker to handle the tick.
func (e *testEnv) step(t *testing.T, d time.Duration) {
	t.Helper()
	e.clk.Advance(d)
	require.NoError(t, e.db.Flush())
}

func (e *testEnv) snapshot(t *testing.T) StatsSnapshot {
	t.Helper()
	s, err := e.db.Snapshot(t.Context())
	require.NoError(t, err)
	return s
}

func (e *testEnv) reportCopy() []Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Report(nil), e.reports...)
}

func (e *testEnv) telemetryCopy() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bool(nil), e.telemetry...)
}

// metricValue returns the value of the first series of name whose labels
// include all of the given label pairs.
func (e *testEnv) metricValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := e.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			found++
		}
	}
	return found == len(want)
}

// pcm returns frames*channels samples all set to value.
func pcm(frames, channels int, value int16) []byte {
	b := make([]byte, frames*channels*BytesPerSample)
	for i := 0; i < len(b); i += BytesPerSample {
		binary.LittleEndian.PutUint16(b[i:], uint16(value))
	}
	return b
}

// fakeTransport records what the buffer hands it and fills playout
// buffers with a constant sample.
type fakeTransport struct {
	mu sync.Mutex

	recorded    []RecordedData
	micLevel    uint32
	deliverErr  error
	playSample  int16
	playFrames  int // frames to report; <0 means all requested
	playErr     error
	playoutReqs []PlayoutRequest
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{playFrames: -1}
}

func (f *fakeTransport) RecordedDataIsAvailable(data RecordedData) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data.Samples = append([]byte(nil), data.Samples...)
	f.recorded = append(f.recorded, data)
	return f.micLevel, f.deliverErr
}

func (f *fakeTransport) NeedMorePlayData(req PlayoutRequest, dst []byte) (PlayoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playoutReqs = append(f.playoutReqs, req)
	if f.playErr != nil {
		return PlayoutResult{Frames: req.Frames, ElapsedTimeMs: -1, NTPTimeMs: -1}, f.playErr
	}
	copy(dst, pcm(req.Frames, req.Channels, f.playSample))
	frames := req.Frames
	if f.playFrames >= 0 {
		frames = f.playFrames
	}
	return PlayoutResult{Frames: frames, ElapsedTimeMs: -1, NTPTimeMs: -1}, nil
}

func (f *fakeTransport) lastRecorded() RecordedData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recorded[len(f.recorded)-1]
}
