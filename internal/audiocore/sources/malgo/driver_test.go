package malgo

import (
	"fmt"
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevicebuffer/internal/errors"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

// fakeBuffer records the calls the data callback makes.
type fakeBuffer struct {
	recorded  [][]byte
	frames    []int
	delivered int

	playSample byte
	produced   int // <0: all requested frames
	playErr    error
	setErr     error

	controlCalls []string
	failControl  string
}

func (f *fakeBuffer) SetRecordingSampleRate(int) error { return nil }
func (f *fakeBuffer) SetPlayoutSampleRate(int) error   { return nil }
func (f *fakeBuffer) SetRecordingChannels(int) error   { return nil }
func (f *fakeBuffer) SetPlayoutChannels(int) error     { return nil }
func (f *fakeBuffer) StartRecording() error            { return f.control("start_recording") }
func (f *fakeBuffer) StopRecording() error             { return f.control("stop_recording") }
func (f *fakeBuffer) StartPlayout() error              { return f.control("start_playout") }
func (f *fakeBuffer) StopPlayout() error               { return f.control("stop_playout") }

func (f *fakeBuffer) control(op string) error {
	f.controlCalls = append(f.controlCalls, op)
	if op == f.failControl {
		return fmt.Errorf("%s failed", op)
	}
	return nil
}

func (f *fakeBuffer) SetRecordedBuffer(data []byte, frames int) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.recorded = append(f.recorded, append([]byte(nil), data...))
	f.frames = append(f.frames, frames)
	return nil
}

func (f *fakeBuffer) DeliverRecordedData() error {
	f.delivered++
	return nil
}

func (f *fakeBuffer) RequestPlayoutData(frames int) (int, error) {
	if f.playErr != nil {
		return 0, f.playErr
	}
	if f.produced >= 0 {
		return f.produced, nil
	}
	return frames, nil
}

func (f *fakeBuffer) GetPlayoutData(dst []byte) (int, error) {
	for i := range dst {
		dst[i] = f.playSample
	}
	return len(dst) / 2, nil
}

func newTestDriver(t *testing.T, mode Mode, buf Buffer) *Driver {
	t.Helper()
	d, err := NewDriver(Config{Mode: mode, PlaybackChannels: 2}, buf, logger.NewDiscardLogger())
	require.NoError(t, err)
	return d
}

func TestNewDriverDefaults(t *testing.T) {
	t.Parallel()

	d, err := NewDriver(Config{}, &fakeBuffer{}, logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, ModeDuplex, d.config.Mode)
	assert.Equal(t, uint32(48000), d.config.SampleRate)
	assert.Equal(t, uint32(10), d.config.PeriodMillis)
	assert.True(t, d.capture)
	assert.True(t, d.playback)
	assert.False(t, d.IsRunning())
	require.NoError(t, d.Stop(), "stopping a stopped driver is a no-op")

	_, err = NewDriver(Config{Mode: "loopback"}, &fakeBuffer{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestOnDataFeedsRecording(t *testing.T) {
	t.Parallel()

	buf := &fakeBuffer{produced: -1}
	d := newTestDriver(t, ModeCapture, buf)

	input := []byte{1, 0, 2, 0, 3, 0}
	output := make([]byte, 12)
	d.onData(output, input, 3)

	require.Len(t, buf.recorded, 1)
	assert.Equal(t, input, buf.recorded[0])
	assert.Equal(t, []int{3}, buf.frames)
	assert.Equal(t, 1, buf.delivered)
	assert.Equal(t, make([]byte, 12), output, "capture mode leaves output alone")
}

func TestOnDataSkipsDeliverOnError(t *testing.T) {
	t.Parallel()

	buf := &fakeBuffer{setErr: fmt.Errorf("wrong goroutine")}
	d := newTestDriver(t, ModeCapture, buf)

	d.onData(nil, []byte{0, 0}, 1)
	assert.Zero(t, buf.delivered)
	assert.Equal(t, uint64(1), d.CallbackErrors())

	select {
	case err := <-d.Errors():
		assert.EqualError(t, err, "wrong goroutine")
	default:
		t.Fatal("expected callback error on channel")
	}
}

func TestOnDataFillsPlayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		produced int
		playErr  error
		want     []byte
	}{
		{
			name:     "full",
			produced: -1,
			want:     []byte{7, 7, 7, 7, 7, 7, 7, 7},
		},
		{
			name:     "partial zero-fills tail",
			produced: 1,
			want:     []byte{7, 7, 7, 7, 0, 0, 0, 0},
		},
		{
			name:     "nothing produced plays silence",
			produced: 0,
			want:     make([]byte, 8),
		},
		{
			name:    "error plays silence",
			playErr: fmt.Errorf("closed"),
			want:    make([]byte, 8),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := &fakeBuffer{playSample: 7, produced: tt.produced, playErr: tt.playErr}
			d := newTestDriver(t, ModePlayback, buf)

			output := []byte{9, 9, 9, 9, 9, 9, 9, 9}
			d.onData(output, []byte{1, 1}, 2)
			assert.Equal(t, tt.want, output)
			assert.Empty(t, buf.recorded, "playback mode ignores input")
		})
	}
}

func TestSelectDevice(t *testing.T) {
	t.Parallel()

	devices := []candidate{
		{name: "HDA Intel PCH: ALC892 Analog", id: ":0,0"},
		{name: "USB Audio Device", id: ":1,0", isDefault: true},
		{name: "Loopback", id: ":2,0"},
	}

	tests := []struct {
		name    string
		query   string
		want    int
		wantErr bool
	}{
		{"empty selects default", "", 1, false},
		{"default alias", "default", 1, false},
		{"sysdefault alias", "sysdefault", 1, false},
		{"exact name", "Loopback", 2, false},
		{"decoded id", ":0,0", 0, false},
		{"partial name", "USB", 1, false},
		{"missing", "Bluetooth", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := selectDevice(devices, tt.query)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	idx, err := selectDevice([]candidate{{name: "only"}}, "")
	require.NoError(t, err)
	assert.Zero(t, idx, "first device when none is default")
}

func TestFormatInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format malgo.FormatType
		size   int
		name   string
	}{
		{malgo.FormatU8, 1, "U8"},
		{malgo.FormatS16, 2, "S16"},
		{malgo.FormatS24, 3, "S24"},
		{malgo.FormatS32, 4, "S32"},
		{malgo.FormatF32, 4, "F32"},
		{malgo.FormatUnknown, 0, "Unknown"},
	}
	for _, tt := range tests {
		size, name := formatInfo(tt.format)
		assert.Equal(t, tt.size, size, tt.name)
		assert.Equal(t, tt.name, name)
	}
	assert.Equal(t, 1920, frameBytes(2, 480))
	assert.Equal(t, "capture", kindName(malgo.Capture))
	assert.Equal(t, "playback", kindName(malgo.Playback))
}

func TestHexToASCII(t *testing.T) {
	t.Parallel()

	s, err := hexToASCII("3a312c30")
	require.NoError(t, err)
	assert.Equal(t, ":1,0", s)

	_, err = hexToASCII("zz")
	require.Error(t, err)
}

func TestUnexpectedStopRequestsRestart(t *testing.T) {
	t.Parallel()

	buf := &fakeBuffer{}
	d := newTestDriver(t, ModeDuplex, buf)

	// Stopped driver: nothing to restart.
	d.onDeviceStop()
	assert.Empty(t, d.RestartRequests())
	assert.Empty(t, d.Errors())

	d.running.Store(true)
	d.onDeviceStop()
	d.onDeviceStop()
	assert.Len(t, d.RestartRequests(), 1, "pending requests coalesce")
	require.Len(t, d.Errors(), 2)
	assert.True(t, errors.IsCategory(<-d.Errors(), errors.CategoryAudioDevice))

	// A stop requested through Stop is not reported.
	<-d.RestartRequests()
	d.stopping.Store(true)
	d.onDeviceStop()
	assert.Empty(t, d.RestartRequests())
	assert.Empty(t, buf.controlCalls, "the audio thread never touches control operations")
}

func TestRestartCyclesBufferDirections(t *testing.T) {
	t.Parallel()

	buf := &fakeBuffer{}
	d := newTestDriver(t, ModeDuplex, buf)
	require.NoError(t, d.restartBuffer(48000))
	assert.Equal(t, []string{"stop_recording", "stop_playout", "start_recording", "start_playout"}, buf.controlCalls)

	buf = &fakeBuffer{failControl: "start_playout"}
	d = newTestDriver(t, ModeDuplex, buf)
	require.EqualError(t, d.restartBuffer(48000), "start_playout failed")
	assert.Equal(t, "stop_playout", buf.controlCalls[len(buf.controlCalls)-1], "directions stopped again on failure")

	buf = &fakeBuffer{}
	d = newTestDriver(t, ModeCapture, buf)
	require.NoError(t, d.restartBuffer(16000))
	assert.Equal(t, []string{"stop_recording", "start_recording"}, buf.controlCalls)
}

func TestRestartStoppedDriverIsNoop(t *testing.T) {
	t.Parallel()

	buf := &fakeBuffer{}
	d := newTestDriver(t, ModeDuplex, buf)
	require.NoError(t, d.Restart())
	assert.Empty(t, buf.controlCalls)
}
