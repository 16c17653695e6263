package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
	"github.com/tphakala/audiodevicebuffer/internal/errors"
)

type fakeClient struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	publishErr  error
	messages    map[string][][]byte
	disconnects int
}

func newFakeClient() *fakeClient { return &fakeClient{messages: make(map[string][][]byte)} }

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.messages[topic] = append(f.messages[topic], payload)
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeClient) payloads(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.messages[topic]...)
}

func runPublisher(t *testing.T, p *Publisher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestPublisherReport(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	p := NewPublisher(fc, "adb/", WithSessionLookup(func(d audiocore.Direction) string {
		if d == audiocore.DirectionRecord {
			return "rec-session"
		}
		return ""
	}))
	stop := runPublisher(t, p)

	report := audiocore.Report{
		Direction:  audiocore.DirectionRecord,
		Time:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Elapsed:    10 * time.Second,
		SampleRate: 48000,
		Callbacks:  1000,
		Samples:    480000,
		Rate:       48000,
		Level:      1234,
	}
	p.HandleReport(report)

	topic := p.ReportTopic(audiocore.DirectionRecord)
	assert.Equal(t, "adb/report/record", topic)
	require.Eventually(t, func() bool { return len(fc.payloads(topic)) == 1 }, time.Second, time.Millisecond)
	stop()

	var got ReportDTO
	require.NoError(t, json.Unmarshal(fc.payloads(topic)[0], &got))
	assert.Equal(t, "record", got.Direction)
	assert.Equal(t, "rec-session", got.SessionID)
	assert.Equal(t, int64(10000), got.ElapsedMs)
	assert.Equal(t, uint64(480000), got.Samples)
	assert.Equal(t, int16(1234), got.Level)
	assert.Equal(t, report.String(), got.Line)
	assert.Equal(t, uint64(1), p.Sent())
	assert.Equal(t, 1, fc.disconnects)
}

func TestPublisherTelemetry(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	p := NewPublisher(fc, "adb")
	stop := runPublisher(t, p)

	p.RecordBoolean(audiocore.TelemetryRecordedOnlyZeros, true)
	topic := p.TelemetryTopic(audiocore.TelemetryRecordedOnlyZeros)
	require.Eventually(t, func() bool { return len(fc.payloads(topic)) == 1 }, time.Second, time.Millisecond)
	stop()

	var got TelemetryDTO
	require.NoError(t, json.Unmarshal(fc.payloads(topic)[0], &got))
	assert.Equal(t, audiocore.TelemetryRecordedOnlyZeros, got.Name)
	assert.True(t, got.Value)
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	p := NewPublisher(newFakeClient(), "adb", WithQueueSize(1))
	p.RecordBoolean("a", true)
	p.RecordBoolean("b", false)
	p.HandleReport(audiocore.Report{})
	assert.Equal(t, uint64(2), p.Dropped())
}

func TestPublisherDropsWhenBrokerUnreachable(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	fc.connectErr = errors.NewStd("refused")
	p := NewPublisher(fc, "adb")
	stop := runPublisher(t, p)

	p.RecordBoolean("a", true)
	require.Eventually(t, func() bool { return p.Dropped() == 1 }, time.Second, time.Millisecond)
	stop()
	assert.Zero(t, p.Sent())
}

func TestPublisherPublishError(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	fc.publishErr = errors.NewStd("broken pipe")
	p := NewPublisher(fc, "adb")
	stop := runPublisher(t, p)

	p.HandleReport(audiocore.Report{Direction: audiocore.DirectionPlayout})
	require.Eventually(t, func() bool { return p.Dropped() == 1 }, time.Second, time.Millisecond)
	stop()
}

func TestPublisherSatisfiesSinks(t *testing.T) {
	t.Parallel()
	var _ audiocore.ReportSink = (*Publisher)(nil)
	var _ audiocore.Telemetry = (*Publisher)(nil)
}
