package run

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
	"github.com/tphakala/audiodevicebuffer/internal/audiocore/sources/malgo"
	"github.com/tphakala/audiodevicebuffer/internal/buildinfo"
	"github.com/tphakala/audiodevicebuffer/internal/conf"
	"github.com/tphakala/audiodevicebuffer/internal/httpserver"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
	"github.com/tphakala/audiodevicebuffer/internal/mqtt"
	"github.com/tphakala/audiodevicebuffer/internal/observability"
	"github.com/tphakala/audiodevicebuffer/internal/telemetry"
	"github.com/tphakala/audiodevicebuffer/internal/transport"
)

const (
	sentryFlushTimeout = 2 * time.Second

	// deviceRestartDelay gives the backend time to settle after an
	// unexpected device stop.
	deviceRestartDelay = time.Second
)

// deviceDriver is the part of malgo.Driver the pipeline uses.
type deviceDriver interface {
	Start() error
	Stop() error
	Restart() error
	Errors() <-chan error
	RestartRequests() <-chan struct{}
}

// newDevice opens the audio device driver; replaced in tests.
var newDevice = func(cfg malgo.Config, buf malgo.Buffer, log logger.Logger) (deviceDriver, error) {
	d, err := malgo.NewDriver(cfg, buf, log)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// pipeline holds every component of a run.
type pipeline struct {
	settings  *conf.Settings
	log       logger.Logger
	sentry    *telemetry.Sentry
	metrics   *observability.Metrics
	store     *telemetry.ReportStore
	publisher *mqtt.Publisher
	buffer    *audiocore.DeviceBuffer
	transport audiocore.AudioTransport
	closers   []io.Closer
	device    deviceDriver
	http      *httpserver.Server

	restartDelay time.Duration
	deviceWarn   rate.Sometimes
}

func newPipeline(settings *conf.Settings) (_ *pipeline, err error) {
	central := logger.Global()
	p := &pipeline{
		settings:     settings,
		log:          central.Module("run"),
		restartDelay: deviceRestartDelay,
		deviceWarn:   rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	defer func() {
		if err != nil {
			p.close()
		}
	}()

	p.sentry, err = telemetry.InitSentry(telemetry.Config{
		Enabled:     settings.Sentry.Enabled,
		DSN:         settings.Sentry.DSN,
		Environment: settings.Sentry.Environment,
		SampleRate:  settings.Sentry.SampleRate,
		Debug:       settings.Sentry.Debug,
		Release:     buildinfo.Get().Release(),
	}, central.Module("telemetry"))
	if err != nil {
		return nil, err
	}

	p.metrics, err = observability.NewMetrics()
	if err != nil {
		return nil, err
	}
	p.store = telemetry.NewReportStore(settings.HTTP.ReportRetention)

	breadcrumbs := telemetry.NewBreadcrumbs(p.sentry)
	sinks := []audiocore.ReportSink{p.store, breadcrumbs}
	tel := []audiocore.Telemetry{breadcrumbs}

	if settings.MQTT.Enabled {
		client, err := mqtt.NewClient(mqtt.Config{
			Broker:            settings.MQTT.Broker,
			ClientID:          settings.MQTT.ClientID,
			Username:          settings.MQTT.Username,
			Password:          settings.MQTT.Password,
			Topic:             settings.MQTT.Topic,
			QoS:               byte(settings.MQTT.QoS),
			Retain:            settings.MQTT.Retain,
			ReconnectCooldown: mqtt.DefaultConfig().ReconnectCooldown,
		}, p.metrics.MQTT, central.Module("mqtt"))
		if err != nil {
			return nil, err
		}
		p.publisher = mqtt.NewPublisher(client, settings.MQTT.Topic,
			mqtt.WithPublisherLogger(central.Module("mqtt")),
			mqtt.WithSessionLookup(p.sessionID))
		sinks = append(sinks, p.publisher)
		tel = append(tel, p.publisher)
	}

	p.buffer, err = audiocore.NewDeviceBuffer(settings.AudioCoreConfig(),
		audiocore.WithLogger(central.Module(audiocore.ComponentAudioCore)),
		audiocore.WithMetrics(p.metrics.DeviceBuffer),
		audiocore.WithTelemetry(telemetry.NewMultiTelemetry(tel...)),
		audiocore.WithReportSink(telemetry.NewMultiSink(sinks...)))
	if err != nil {
		return nil, err
	}

	if err := p.buildTransport(central.Module(transport.ComponentTransport)); err != nil {
		return nil, err
	}

	p.device, err = newDevice(malgo.Config{
		Mode:             malgo.Mode(settings.Device.Mode),
		CaptureDevice:    settings.Device.Capture,
		PlaybackDevice:   settings.Device.Playback,
		SampleRate:       uint32(settings.Audio.SampleRate),
		CaptureChannels:  uint32(settings.Audio.RecordChannels),
		PlaybackChannels: uint32(settings.Audio.PlayoutChannels),
		PeriodMillis:     uint32(settings.Device.PeriodMillis),
	}, p.buffer, central.Module(malgo.ComponentMalgo))
	if err != nil {
		return nil, err
	}

	if settings.HTTP.Enabled {
		p.http = httpserver.New(httpserver.Config{Listen: settings.HTTP.Listen},
			p.buffer, p.store, p.metrics, central.Module(httpserver.ComponentHTTP))
	}
	return p, nil
}

// buildTransport creates the transport selected in the settings.
func (p *pipeline) buildTransport(log logger.Logger) error {
	t := p.settings.Transport
	switch t.Type {
	case "loopback":
		bytesPerMs := p.settings.Audio.SampleRate / 1000 * p.settings.Audio.RecordChannels * audiocore.BytesPerSample
		lb, err := transport.NewLoopback(bytesPerMs*t.LoopbackMillis, log)
		if err != nil {
			return err
		}
		p.transport = lb
	case "wav":
		split := &transport.Split{}
		if t.WAVInput != "" {
			src, err := transport.NewWAVSource(t.WAVInput, t.Loop)
			if err != nil {
				return err
			}
			p.closers = append(p.closers, src)
			split.Producer = src
		}
		if t.WAVOutput != "" {
			sink, err := transport.NewWAVSink(t.WAVOutput, p.settings.Audio.SampleRate, p.settings.Audio.RecordChannels)
			if err != nil {
				return err
			}
			p.closers = append(p.closers, sink)
			split.Consumer = sink
		}
		p.transport = split
	}
	return nil
}

// sessionID tags MQTT reports with the active session of their direction.
func (p *pipeline) sessionID(dir audiocore.Direction) string {
	if p.buffer == nil {
		return ""
	}
	st := p.buffer.Status()
	if dir == audiocore.DirectionRecord {
		return st.Record.SessionID
	}
	return st.Playout.SessionID
}

func (p *pipeline) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if p.http != nil {
		g.Go(func() error { return p.http.Run(gctx) })
	}
	if p.publisher != nil {
		g.Go(func() error { return p.publisher.Run(gctx) })
	}
	g.Go(func() error { return p.runAudio(gctx) })
	return g.Wait()
}

// runAudio owns the buffer's control goroutine: the transport is attached,
// the device started and stopped, and restarted after an unexpected stop.
func (p *pipeline) runAudio(ctx context.Context) error {
	if p.transport != nil {
		if err := p.buffer.RegisterAudioCallback(p.transport); err != nil {
			return err
		}
	}
	if err := p.device.Start(); err != nil {
		return err
	}
	defer func() {
		if err := p.device.Stop(); err != nil {
			p.log.Error("failed to stop audio device", logger.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-p.device.Errors():
			p.deviceWarn.Do(func() {
				p.log.Warn("audio device error", logger.Error(err))
			})
		case <-p.device.RestartRequests():
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.restartDelay):
			}
			if err := p.device.Restart(); err != nil {
				p.log.Error("failed to restart audio device", logger.Error(err))
				return err
			}
		}
	}
}

// close releases everything newPipeline created, in reverse order.
func (p *pipeline) close() {
	if p.buffer != nil {
		if err := p.buffer.Close(); err != nil {
			p.log.Warn("failed to close device buffer", logger.Error(err))
		}
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			p.log.Warn("failed to close transport", logger.Error(err))
		}
	}
	p.sentry.Close(sentryFlushTimeout)
}
