package run

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
	"github.com/tphakala/audiodevicebuffer/internal/audiocore/sources/malgo"
	"github.com/tphakala/audiodevicebuffer/internal/conf"
	"github.com/tphakala/audiodevicebuffer/internal/errors"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
	"github.com/tphakala/audiodevicebuffer/internal/transport"
)

type fakeDevice struct {
	buf      malgo.Buffer
	cfg      malgo.Config
	errs     chan error
	restarts chan struct{}

	mu          sync.Mutex
	starts      int
	stops       int
	restartsRun int
	restartErr  error
}

func (f *fakeDevice) Start() error {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	if err := f.buf.StartRecording(); err != nil {
		return err
	}
	return f.buf.StartPlayout()
}

func (f *fakeDevice) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	if err := f.buf.StopRecording(); err != nil {
		return err
	}
	return f.buf.StopPlayout()
}

// Restart cycles the buffer directions on the calling goroutine, as the
// malgo driver does.
func (f *fakeDevice) Restart() error {
	f.mu.Lock()
	f.restartsRun++
	err := f.restartErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if err := f.buf.StopRecording(); err != nil {
		return err
	}
	if err := f.buf.StopPlayout(); err != nil {
		return err
	}
	if err := f.buf.StartRecording(); err != nil {
		return err
	}
	return f.buf.StartPlayout()
}

func (f *fakeDevice) Errors() <-chan error { return f.errs }

func (f *fakeDevice) RestartRequests() <-chan struct{} { return f.restarts }

func (f *fakeDevice) restartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restartsRun
}

func (f *fakeDevice) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func useFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	fake := &fakeDevice{errs: make(chan error, 1), restarts: make(chan struct{}, 1)}
	orig := newDevice
	newDevice = func(cfg malgo.Config, buf malgo.Buffer, _ logger.Logger) (deviceDriver, error) {
		fake.cfg, fake.buf = cfg, buf
		return fake, nil
	}
	t.Cleanup(func() { newDevice = orig })
	return fake
}

func testSettings() *conf.Settings {
	s := conf.Default()
	s.HTTP.Enabled = false
	s.Audio.SampleRate = 16000
	return s
}

func TestPipelineStartsAndStopsDevice(t *testing.T) {
	fake := useFakeDevice(t)
	settings := testSettings()

	p, err := newPipeline(settings)
	require.NoError(t, err)
	defer p.close()

	assert.Equal(t, malgo.ModeDuplex, fake.cfg.Mode)
	assert.Equal(t, uint32(16000), fake.cfg.SampleRate)
	assert.IsType(t, &transport.Loopback{}, p.transport)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.run(ctx) }()

	require.Eventually(t, func() bool {
		st := p.buffer.Status()
		return st.Record.Active && st.Playout.Active && st.TransportAttached
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, p.sessionID(audiocore.DirectionRecord))

	cancel()
	require.NoError(t, <-done)
	starts, stops := fake.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.False(t, p.buffer.Status().Record.Active)
}

func TestPipelineRestartsDeviceOnControlGoroutine(t *testing.T) {
	fake := useFakeDevice(t)
	p, err := newPipeline(testSettings())
	require.NoError(t, err)
	defer p.close()
	p.restartDelay = time.Millisecond

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.run(ctx) }()

	require.Eventually(t, func() bool { return p.buffer.Status().Record.Active }, 2*time.Second, time.Millisecond)
	firstSession := p.sessionID(audiocore.DirectionRecord)

	fake.restarts <- struct{}{}
	require.Eventually(t, func() bool { return fake.restartCount() == 1 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		st := p.buffer.Status()
		return st.Record.Active && st.Playout.Active
	}, 2*time.Second, time.Millisecond)
	assert.NotEqual(t, firstSession, p.sessionID(audiocore.DirectionRecord), "directions restarted with a new session")

	cancel()
	require.NoError(t, <-done, "control operations ran on the control goroutine")
}

func TestPipelineFailedRestartStopsRun(t *testing.T) {
	fake := useFakeDevice(t)
	fake.restartErr = errors.Newf("device gone").
		Category(errors.CategoryAudioDevice).
		Timing("restart_device", time.Millisecond).
		Build()
	p, err := newPipeline(testSettings())
	require.NoError(t, err)
	defer p.close()
	p.restartDelay = time.Millisecond

	fake.restarts <- struct{}{}
	err = p.run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device gone")
	assert.Equal(t, 1, fake.restartCount())

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "restart_device", ee.GetContext()["operation"])
	assert.Equal(t, int64(1), ee.GetContext()["duration_ms"])
}

func TestPipelineNonFatalDeviceErrorKeepsRunning(t *testing.T) {
	fake := useFakeDevice(t)
	p, err := newPipeline(testSettings())
	require.NoError(t, err)
	defer p.close()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.run(ctx) }()

	fake.errs <- errors.NewStd("short buffer")
	require.Eventually(t, func() bool { return len(fake.errs) == 0 }, time.Second, time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("run stopped early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	require.NoError(t, <-done)
}

func TestPipelineWAVTransport(t *testing.T) {
	useFakeDevice(t)
	settings := testSettings()
	settings.Transport.Type = "wav"
	settings.Transport.WAVOutput = t.TempDir() + "/out.wav"

	p, err := newPipeline(settings)
	require.NoError(t, err)
	defer p.close()

	split, ok := p.transport.(*transport.Split)
	require.True(t, ok)
	assert.NotNil(t, split.Consumer)
	assert.Nil(t, split.Producer)
	assert.Len(t, p.closers, 1)
}

func TestPipelineWithoutTransport(t *testing.T) {
	useFakeDevice(t)
	settings := testSettings()
	settings.Transport.Type = "none"

	p, err := newPipeline(settings)
	require.NoError(t, err)
	defer p.close()
	assert.Nil(t, p.transport)
}
