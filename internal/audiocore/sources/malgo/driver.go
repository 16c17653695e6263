// Package malgo drives a DeviceBuffer from a miniaudio device through
// github.com/gen2brain/malgo. The device data callback is the recording and
// playout real-time goroutine of the buffer.
package malgo

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"golang.org/x/time/rate"

	"github.com/tphakala/audiodevicebuffer/internal/errors"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

// Mode selects which directions of the device are opened.
type Mode string

const (
	ModeDuplex   Mode = "duplex"
	ModeCapture  Mode = "capture"
	ModePlayback Mode = "playback"
)

// Buffer is the part of audiocore.DeviceBuffer used by the driver.
type Buffer interface {
	SetRecordingSampleRate(hz int) error
	SetPlayoutSampleRate(hz int) error
	SetRecordingChannels(channels int) error
	SetPlayoutChannels(channels int) error
	StartRecording() error
	StopRecording() error
	StartPlayout() error
	StopPlayout() error

	SetRecordedBuffer(data []byte, frames int) error
	DeliverRecordedData() error
	RequestPlayoutData(frames int) (int, error)
	GetPlayoutData(dst []byte) (int, error)
}

// Config configures the device.
type Config struct {
	Mode             Mode
	CaptureDevice    string
	PlaybackDevice   string
	SampleRate       uint32
	CaptureChannels  uint32
	PlaybackChannels uint32
	PeriodMillis     uint32
}

// Driver owns a malgo device and feeds the buffer from its data callback.
type Driver struct {
	config Config
	buffer Buffer
	logger logger.Logger

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	running  atomic.Bool
	stopping atomic.Bool

	capture  bool
	playback bool

	errorChan      chan error
	restartChan    chan struct{}
	callbackErrors atomic.Uint64
	rtWarn         rate.Sometimes
}

// NewDriver validates cfg and returns a stopped driver.
func NewDriver(cfg Config, buf Buffer, log logger.Logger) (*Driver, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeDuplex
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.CaptureChannels == 0 {
		cfg.CaptureChannels = 1
	}
	if cfg.PlaybackChannels == 0 {
		cfg.PlaybackChannels = 1
	}
	if cfg.PeriodMillis == 0 {
		cfg.PeriodMillis = 10
	}
	if cfg.Mode != ModeDuplex && cfg.Mode != ModeCapture && cfg.Mode != ModePlayback {
		return nil, errors.Newf("unknown device mode %q", cfg.Mode).
			Component(ComponentMalgo).
			Category(errors.CategoryValidation).
			Build()
	}
	if log == nil {
		log = logger.Global().Module(ComponentMalgo)
	}

	return &Driver{
		config:      cfg,
		buffer:      buf,
		logger:      log,
		capture:     cfg.Mode != ModePlayback,
		playback:    cfg.Mode != ModeCapture,
		errorChan:   make(chan error, 10),
		restartChan: make(chan struct{}, 1),
		rtWarn:      rate.Sometimes{Interval: 5 * time.Second},
	}, nil
}

// Errors returns device and callback errors. Errors are dropped when nobody reads.
func (d *Driver) Errors() <-chan error {
	return d.errorChan
}

// RestartRequests signals that the device stopped unexpectedly. The control
// goroutine should respond by calling Restart.
func (d *Driver) RestartRequests() <-chan struct{} {
	return d.restartChan
}

// CallbackErrors returns the number of buffer errors seen in the data callback.
func (d *Driver) CallbackErrors() uint64 {
	return d.callbackErrors.Load()
}

// IsRunning reports whether the device is started.
func (d *Driver) IsRunning() bool {
	return d.running.Load()
}

// Start opens the device, configures and starts the buffer directions, then
// starts the device. Start and Stop must be called from the buffer's
// control goroutine.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	begin := time.Now()
	if d.running.Load() {
		return errors.Newf("audio device already running").
			Component(ComponentMalgo).
			Category(errors.CategoryState).
			Build()
	}

	ctx, err := initContext(func(message string) {
		d.logger.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return err
	}

	device, err := d.initDevice(ctx)
	if err != nil {
		releaseContext(ctx)
		return err
	}

	if err := d.startBuffer(int(device.SampleRate())); err != nil {
		device.Uninit()
		releaseContext(ctx)
		return err
	}

	d.stopping.Store(false)
	if err := device.Start(); err != nil {
		d.stopBuffer()
		device.Uninit()
		releaseContext(ctx)
		return errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Timing("start_device", time.Since(begin)).
			Build()
	}

	d.ctx, d.device = ctx, device
	d.running.Store(true)
	d.logger.Info("audio device started",
		logger.String("mode", string(d.config.Mode)),
		logger.Uint32("sample_rate", device.SampleRate()),
		logger.Uint32("period_ms", d.config.PeriodMillis))
	return nil
}

func (d *Driver) initDevice(ctx *malgo.AllocatedContext) (*malgo.Device, error) {
	deviceType := malgo.Duplex
	switch d.config.Mode {
	case ModeCapture:
		deviceType = malgo.Capture
	case ModePlayback:
		deviceType = malgo.Playback
	}

	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.SampleRate = d.config.SampleRate
	deviceConfig.PeriodSizeInMilliseconds = d.config.PeriodMillis
	deviceConfig.Alsa.NoMMap = 1

	if d.capture {
		info, err := findDevice(ctx, malgo.Capture, d.config.CaptureDevice)
		if err != nil {
			return nil, err
		}
		deviceConfig.Capture.Format = malgo.FormatS16
		deviceConfig.Capture.Channels = d.config.CaptureChannels
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
		d.logger.Info("capture device selected", logger.String("name", info.Name()))
	}
	if d.playback {
		info, err := findDevice(ctx, malgo.Playback, d.config.PlaybackDevice)
		if err != nil {
			return nil, err
		}
		deviceConfig.Playback.Format = malgo.FormatS16
		deviceConfig.Playback.Channels = d.config.PlaybackChannels
		deviceConfig.Playback.DeviceID = info.ID.Pointer()
		d.logger.Info("playback device selected", logger.String("name", info.Name()))
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: d.onDeviceStop,
	})
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_device").
			Context("mode", string(d.config.Mode)).
			Build()
	}

	// Samples are handed to the buffer untouched, so the device must run S16.
	if d.capture && device.CaptureFormat() != malgo.FormatS16 {
		_, name := formatInfo(device.CaptureFormat())
		device.Uninit()
		return nil, errors.Newf("capture format %s is not S16", name).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_device").
			Build()
	}
	if d.playback && device.PlaybackFormat() != malgo.FormatS16 {
		_, name := formatInfo(device.PlaybackFormat())
		device.Uninit()
		return nil, errors.Newf("playback format %s is not S16", name).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_device").
			Build()
	}
	return device, nil
}

func (d *Driver) startBuffer(sampleRate int) error {
	if d.capture {
		if err := d.buffer.SetRecordingSampleRate(sampleRate); err != nil {
			return err
		}
		if err := d.buffer.SetRecordingChannels(int(d.config.CaptureChannels)); err != nil {
			return err
		}
		if err := d.buffer.StartRecording(); err != nil {
			return err
		}
	}
	if d.playback {
		if err := d.buffer.SetPlayoutSampleRate(sampleRate); err != nil {
			d.stopBuffer()
			return err
		}
		if err := d.buffer.SetPlayoutChannels(int(d.config.PlaybackChannels)); err != nil {
			d.stopBuffer()
			return err
		}
		if err := d.buffer.StartPlayout(); err != nil {
			d.stopBuffer()
			return err
		}
	}
	return nil
}

func (d *Driver) stopBuffer() {
	if d.capture {
		if err := d.buffer.StopRecording(); err != nil {
			d.logger.Warn("failed to stop recording", logger.Error(err))
		}
	}
	if d.playback {
		if err := d.buffer.StopPlayout(); err != nil {
			d.logger.Warn("failed to stop playout", logger.Error(err))
		}
	}
}

// Stop stops the device and the buffer directions. Stopping a stopped
// driver is a no-op.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return nil
	}
	d.stopping.Store(true)

	begin := time.Now()
	var stopErr error
	if err := d.device.Stop(); err != nil {
		stopErr = errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Timing("stop_device", time.Since(begin)).
			Build()
	}
	d.device.Uninit()
	d.device = nil
	releaseContext(d.ctx)
	d.ctx = nil

	d.stopBuffer()
	d.running.Store(false)
	d.logger.Info("audio device stopped")
	return stopErr
}

// onData is the device data callback. It runs on the audio thread.
func (d *Driver) onData(output, input []byte, frameCount uint32) {
	frames := int(frameCount)

	if d.capture && len(input) > 0 {
		if err := d.buffer.SetRecordedBuffer(input, frames); err != nil {
			d.callbackError("set_recorded_buffer", err)
		} else if err := d.buffer.DeliverRecordedData(); err != nil {
			d.callbackError("deliver_recorded_data", err)
		}
	}

	if d.playback && len(output) > 0 {
		d.fillOutput(output, frames)
	}
}

func (d *Driver) fillOutput(output []byte, frames int) {
	produced, err := d.buffer.RequestPlayoutData(frames)
	if err != nil {
		clear(output)
		d.callbackError("request_playout_data", err)
		return
	}
	if produced == 0 {
		clear(output)
		return
	}
	if _, err := d.buffer.GetPlayoutData(output); err != nil {
		clear(output)
		d.callbackError("get_playout_data", err)
		return
	}
	if tail := frameBytes(d.config.PlaybackChannels, produced); tail < len(output) {
		clear(output[tail:])
	}
}

func (d *Driver) callbackError(op string, err error) {
	d.callbackErrors.Add(1)
	d.rtWarn.Do(func() {
		d.logger.Warn("audio callback error",
			logger.String("operation", op),
			logger.Error(err),
			logger.Uint64("total", d.callbackErrors.Load()))
	})
	select {
	case d.errorChan <- err:
	default:
	}
}

// onDeviceStop is called when the device stops, either by Stop or
// unexpectedly. An unexpected stop is reported and a restart is requested
// from the control goroutine.
func (d *Driver) onDeviceStop() {
	if d.stopping.Load() || !d.running.Load() {
		return
	}
	err := errors.Newf("audio device stopped unexpectedly").
		Component(ComponentMalgo).
		Category(errors.CategoryAudioDevice).
		Build()
	select {
	case d.errorChan <- err:
	default:
	}
	select {
	case d.restartChan <- struct{}{}:
	default:
	}
}

// Restart restarts a device that stopped unexpectedly. The buffer directions
// are stopped and started again so the thread guards bind to the audio
// thread of the restarted device. Restart must be called from the buffer's
// control goroutine; it is a no-op when the driver is stopped.
func (d *Driver) Restart() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() || d.stopping.Load() || d.device == nil {
		return nil
	}
	begin := time.Now()
	if err := d.restartBuffer(int(d.device.SampleRate())); err != nil {
		return errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Timing("restart_device", time.Since(begin)).
			Build()
	}
	if err := d.device.Start(); err != nil {
		d.stopBuffer()
		return errors.New(err).
			Component(ComponentMalgo).
			Category(errors.CategoryAudioDevice).
			Timing("restart_device", time.Since(begin)).
			Build()
	}
	d.logger.Info("audio device restarted", logger.Duration("took", time.Since(begin)))
	return nil
}

// restartBuffer cycles the buffer directions of the opened device.
func (d *Driver) restartBuffer(sampleRate int) error {
	d.stopBuffer()
	return d.startBuffer(sampleRate)
}
