package audiocore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/tphakala/audiodevicebuffer/internal/clock"
	"github.com/tphakala/audiodevicebuffer/internal/errors"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
	"github.com/tphakala/audiodevicebuffer/internal/observability/metrics"
)

const directionControl = "control"

// Option configures a DeviceBuffer.
type Option func(*DeviceBuffer)

// WithLogger sets the logger. The default is the global "audiocore" module logger.
func WithLogger(l logger.Logger) Option {
	return func(db *DeviceBuffer) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. The default registers on a private registry.
func WithMetrics(m *metrics.DeviceBufferMetrics) Option {
	return func(db *DeviceBuffer) {
		if m != nil {
			db.metrics = m
		}
	}
}

// WithTelemetry sets the receiver of call-quality events.
func WithTelemetry(t Telemetry) Option {
	return func(db *DeviceBuffer) {
		db.telemetry = t
	}
}

// WithReportSink sets the receiver of periodic reports.
func WithReportSink(s ReportSink) Option {
	return func(db *DeviceBuffer) {
		db.sink = s
	}
}

type transportHolder struct {
	t AudioTransport
}

// DeviceBuffer sits between an audio driver and an AudioTransport. See the
// package documentation for which goroutine may call which method.
type DeviceBuffer struct {
	cfg       Config
	clock     clock.Clock
	logger    logger.Logger
	metrics   *metrics.DeviceBufferMetrics
	telemetry Telemetry
	sink      ReportSink

	controlChecker ThreadChecker
	recordChecker  ThreadChecker
	playoutChecker ThreadChecker

	transport atomic.Pointer[transportHolder]
	recording atomic.Bool
	playing   atomic.Bool
	closed    atomic.Bool

	recSampleRate  atomic.Int64
	playSampleRate atomic.Int64
	recChannels    atomic.Int64
	playChannels   atomic.Int64

	playDelayMs     atomic.Int64
	recDelayMs      atomic.Int64
	typing          atomic.Bool
	currentMicLevel atomic.Uint32
	newMicLevel     atomic.Uint32
	onlySilence     atomic.Bool

	recPeakScans  atomic.Uint64
	playPeakScans atomic.Uint64

	mu          sync.Mutex
	recStarted  time.Time
	playStarted time.Time
	recSession  string
	playSession string

	// Owned by the recording goroutine.
	recBuf       SampleBuffer
	recStatCount int

	// Owned by the playout goroutine.
	playBuf       SampleBuffer
	playStatCount int

	// Owned by the worker goroutine.
	worker   *worker
	stats    statsAggregator
	reporter *periodicReporter

	rtWarn    rate.Sometimes
	closeOnce sync.Once
}

// NewDeviceBuffer creates a DeviceBuffer and starts its stats worker.
// Call Close to stop the worker.
func NewDeviceBuffer(cfg Config, opts ...Option) (*DeviceBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	db := &DeviceBuffer{
		cfg:    cfg,
		clock:  cfg.Clock,
		rtWarn: rate.Sometimes{Interval: time.Second},
	}
	db.onlySilence.Store(true)

	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = GetLogger()
	}
	if db.metrics == nil {
		m, err := metrics.NewDeviceBufferMetrics(prometheus.NewRegistry())
		if err != nil {
			return nil, errors.New(err).
				Component(ComponentAudioCore).
				Category(errors.CategorySystem).
				Context("operation", "create_metrics").
				Build()
		}
		db.metrics = m
	}

	db.worker = newWorker(cfg.WorkerQueueSize, db.process)
	db.reporter = newPeriodicReporter(db.clock, cfg.ReportInterval, db.worker.post)
	db.worker.start()

	db.logger.Debug("device buffer created",
		logger.Duration("report_interval", cfg.ReportInterval),
		logger.Int("stats_sampling_divisor", cfg.StatsSamplingDivisor),
		logger.Int("worker_queue_size", cfg.WorkerQueueSize))
	return db, nil
}

// Close stops the reporter and the stats worker. Pending stats updates are
// discarded. Close is safe to call more than once.
func (db *DeviceBuffer) Close() error {
	db.closeOnce.Do(func() {
		db.closed.Store(true)
		db.worker.close()
		// The worker has exited, so its reporter state can be touched here.
		db.reporter.stop()
		if n := db.worker.droppedCount(); n > 0 {
			db.logger.Warn("stats messages dropped during lifetime", logger.Uint64("dropped", n))
		}
		db.logger.Debug("device buffer closed")
	})
	return nil
}

// Flush waits until the worker has handled every message posted before the call.
func (db *DeviceBuffer) Flush() error {
	if !db.worker.flush() {
		return ErrClosed
	}
	return nil
}

// Snapshot returns a copy of the statistics as seen by the worker.
func (db *DeviceBuffer) Snapshot(ctx context.Context) (StatsSnapshot, error) {
	reply := make(chan StatsSnapshot, 1)
	if !db.worker.post(workItem{kind: workSnapshot, reply: reply}) {
		return StatsSnapshot{}, ErrClosed
	}
	select {
	case s := <-reply:
		return s, nil
	case <-db.worker.stopped:
		return StatsSnapshot{}, ErrClosed
	case <-ctx.Done():
		return StatsSnapshot{}, ctx.Err()
	}
}

// RegisterAudioCallback sets the transport. It fails while either direction
// is active. A nil transport unregisters the current one.
func (db *DeviceBuffer) RegisterAudioCallback(t AudioTransport) error {
	if err := db.checkControl("register_audio_callback"); err != nil {
		return err
	}
	if db.recording.Load() || db.playing.Load() {
		return newError(ErrTransportWhileActive, errors.CategoryState, "register_audio_callback").
			Context("recording", db.recording.Load()).
			Context("playing", db.playing.Load()).
			Build()
	}
	if t == nil {
		db.transport.Store(nil)
		db.logger.Info("audio transport unregistered")
		return nil
	}
	db.transport.Store(&transportHolder{t: t})
	db.logger.Info("audio transport registered")
	return nil
}

// StartRecording activates the recording direction. It is a no-op when
// recording is already active.
func (db *DeviceBuffer) StartRecording() error {
	return db.start(DirectionRecord, "start_recording")
}

// StartPlayout activates the playout direction. It is a no-op when playout
// is already active.
func (db *DeviceBuffer) StartPlayout() error {
	return db.start(DirectionPlayout, "start_playout")
}

func (db *DeviceBuffer) start(dir Direction, op string) error {
	if err := db.checkControl(op); err != nil {
		return err
	}
	if db.closed.Load() {
		return newError(ErrClosed, errors.CategoryState, op).Build()
	}
	active, other := db.activity(dir)
	if active.Load() {
		return nil
	}

	db.checker(dir).Detach()
	db.worker.post(workItem{kind: workResetStats, dir: dir})
	if !other.Load() {
		db.worker.post(workItem{kind: workStartReporter})
	}
	if dir == DirectionRecord {
		// The driver delivers nothing before Start returns, so the flag can
		// be reset from here.
		db.onlySilence.Store(true)
	}

	now := db.clock.Now()
	session := uuid.NewString()
	db.mu.Lock()
	if dir == DirectionRecord {
		db.recStarted, db.recSession = now, session
	} else {
		db.playStarted, db.playSession = now, session
	}
	db.mu.Unlock()

	active.Store(true)
	db.metrics.SetActive(dir.String(), true)
	db.logger.Info("direction started",
		logger.String("direction", dir.String()),
		logger.String("session_id", session))
	return nil
}

// StopRecording deactivates recording. Sessions of at least
// Config.MinValidCallDuration emit the RecordedOnlyZeros telemetry event.
func (db *DeviceBuffer) StopRecording() error {
	return db.stop(DirectionRecord, "stop_recording")
}

// StopPlayout deactivates playout. It is a no-op when playout is not active.
func (db *DeviceBuffer) StopPlayout() error {
	return db.stop(DirectionPlayout, "stop_playout")
}

func (db *DeviceBuffer) stop(dir Direction, op string) error {
	if err := db.checkControl(op); err != nil {
		return err
	}
	active, other := db.activity(dir)
	if !active.Load() {
		return nil
	}
	active.Store(false)
	if !other.Load() {
		db.worker.post(workItem{kind: workStopReporter})
	}

	db.mu.Lock()
	started, session := db.recStarted, db.recSession
	if dir == DirectionPlayout {
		started, session = db.playStarted, db.playSession
	}
	db.mu.Unlock()

	elapsed := db.clock.Now().Sub(started)
	db.metrics.SetActive(dir.String(), false)
	db.metrics.ObserveSession(dir.String(), elapsed.Seconds())
	db.logger.Info("direction stopped",
		logger.String("direction", dir.String()),
		logger.String("session_id", session),
		logger.Duration("duration", elapsed))

	if dir != DirectionRecord {
		return nil
	}
	if elapsed < db.cfg.MinValidCallDuration {
		db.logger.Debug("recording too short for silence telemetry", logger.Duration("duration", elapsed))
		return nil
	}
	onlyZeros := db.onlySilence.Load()
	db.metrics.RecordOnlyZeros(onlyZeros)
	if db.telemetry != nil {
		db.telemetry.RecordBoolean(TelemetryRecordedOnlyZeros, onlyZeros)
	}
	if onlyZeros {
		db.logger.Warn("recorded only zeros", logger.String("session_id", session))
	}
	return nil
}

// Recording reports whether recording is active.
func (db *DeviceBuffer) Recording() bool { return db.recording.Load() }

// Playing reports whether playout is active.
func (db *DeviceBuffer) Playing() bool { return db.playing.Load() }

// SetRecordingSampleRate sets the recording sample rate in Hz.
func (db *DeviceBuffer) SetRecordingSampleRate(hz int) error {
	return db.setConfigValue(&db.recSampleRate, hz, "set_recording_sample_rate", "recording sample rate set", "sample_rate")
}

// SetPlayoutSampleRate sets the playout sample rate in Hz.
func (db *DeviceBuffer) SetPlayoutSampleRate(hz int) error {
	return db.setConfigValue(&db.playSampleRate, hz, "set_playout_sample_rate", "playout sample rate set", "sample_rate")
}

// SetRecordingChannels sets the number of recorded channels.
func (db *DeviceBuffer) SetRecordingChannels(channels int) error {
	return db.setConfigValue(&db.recChannels, channels, "set_recording_channels", "recording channels set", "channels")
}

// SetPlayoutChannels sets the number of playout channels.
func (db *DeviceBuffer) SetPlayoutChannels(channels int) error {
	return db.setConfigValue(&db.playChannels, channels, "set_playout_channels", "playout channels set", "channels")
}

func (db *DeviceBuffer) setConfigValue(dst *atomic.Int64, v int, op, msg, key string) error {
	if err := db.checkControl(op); err != nil {
		return err
	}
	if v < 0 {
		return newError(ErrInvalidArgument, errors.CategoryValidation, op).
			Context(key, v).
			Build()
	}
	dst.Store(int64(v))
	db.logger.Info(msg, logger.Int(key, v))
	return nil
}

// RecordingSampleRate returns the recording sample rate in Hz.
func (db *DeviceBuffer) RecordingSampleRate() int { return int(db.recSampleRate.Load()) }

// PlayoutSampleRate returns the playout sample rate in Hz.
func (db *DeviceBuffer) PlayoutSampleRate() int { return int(db.playSampleRate.Load()) }

// RecordingChannels returns the number of recorded channels.
func (db *DeviceBuffer) RecordingChannels() int { return int(db.recChannels.Load()) }

// PlayoutChannels returns the number of playout channels.
func (db *DeviceBuffer) PlayoutChannels() int { return int(db.playChannels.Load()) }

// SetRecordingChannel selects the recorded channel. Channel selection is not
// implemented; ChannelBoth is the only accepted value.
func (db *DeviceBuffer) SetRecordingChannel(ch ChannelType) error {
	if ch != ChannelBoth {
		return newError(ErrInvalidChannel, errors.CategoryValidation, "set_recording_channel").
			Context("channel", int(ch)).
			Build()
	}
	return newError(ErrNotImplemented, errors.CategoryNotImplemented, "set_recording_channel").Build()
}

// RecordingChannel is not implemented.
func (db *DeviceBuffer) RecordingChannel() (ChannelType, error) {
	return ChannelBoth, newError(ErrNotImplemented, errors.CategoryNotImplemented, "recording_channel").Build()
}

// StartInputFileRecording does nothing.
func (db *DeviceBuffer) StartInputFileRecording(string) error { return nil }

// StopInputFileRecording does nothing.
func (db *DeviceBuffer) StopInputFileRecording() error { return nil }

// StartOutputFileRecording does nothing.
func (db *DeviceBuffer) StartOutputFileRecording(string) error { return nil }

// StopOutputFileRecording does nothing.
func (db *DeviceBuffer) StopOutputFileRecording() error { return nil }

// SetVQEData stores the current playout and recording delays. Their sum is
// passed to the transport as the total delay.
func (db *DeviceBuffer) SetVQEData(playDelayMs, recDelayMs int) error {
	if err := db.checkThread(&db.recordChecker, DirectionRecord, "set_vqe_data"); err != nil {
		return err
	}
	db.playDelayMs.Store(int64(playDelayMs))
	db.recDelayMs.Store(int64(recDelayMs))
	return nil
}

// SetTypingStatus stores whether a key press was detected for the current buffer.
func (db *DeviceBuffer) SetTypingStatus(keyPressed bool) error {
	if err := db.checkThread(&db.recordChecker, DirectionRecord, "set_typing_status"); err != nil {
		return err
	}
	db.typing.Store(keyPressed)
	return nil
}

// SetCurrentMicLevel stores the mic level passed to the transport.
func (db *DeviceBuffer) SetCurrentMicLevel(level uint32) error {
	if err := db.checkThread(&db.recordChecker, DirectionRecord, "set_current_mic_level"); err != nil {
		return err
	}
	db.currentMicLevel.Store(level)
	return nil
}

// NewMicLevel returns the mic level most recently suggested by the transport.
func (db *DeviceBuffer) NewMicLevel() uint32 {
	return db.newMicLevel.Load()
}

// SetRecordedBuffer copies frames frames of interleaved 16-bit PCM from data
// into the recording buffer. Every Config.StatsSamplingDivisor calls the peak
// level is measured.
func (db *DeviceBuffer) SetRecordedBuffer(data []byte, frames int) error {
	const op = "set_recorded_buffer"
	if err := db.checkThread(&db.recordChecker, DirectionRecord, op); err != nil {
		return err
	}
	size, err := db.bufferSize(DirectionRecord, frames, op)
	if err != nil {
		return err
	}
	if len(data) < size {
		return newError(ErrShortBuffer, errors.CategoryValidation, op).
			Context("required_bytes", size).
			Context("available_bytes", len(data)).
			Build()
	}

	if db.recBuf.SetData(data[:size]) {
		db.logger.Debug("recording buffer resized", logger.Int("bytes", size))
	}

	var peak int16
	db.recStatCount++
	if db.recStatCount >= db.cfg.StatsSamplingDivisor {
		db.recStatCount = 0
		peak = MaxAbsInt16(db.recBuf.Bytes())
		db.recPeakScans.Add(1)
		db.metrics.IncPeakMeasurements(DirectionRecord.String())
		if peak > 0 {
			db.onlySilence.Store(false)
		}
	}

	db.postStats(DirectionRecord, peak, frames)
	return nil
}

// DeliverRecordedData hands the recording buffer to the transport. Without a
// transport it does nothing. Transport failures are logged and counted.
func (db *DeviceBuffer) DeliverRecordedData() error {
	const op = "deliver_recorded_data"
	if err := db.checkThread(&db.recordChecker, DirectionRecord, op); err != nil {
		return err
	}
	holder := db.transport.Load()
	if holder == nil {
		db.logger.Debug("no audio transport, recorded data discarded")
		return nil
	}
	channels := int(db.recChannels.Load())
	if channels == 0 {
		return newError(ErrNoChannels, errors.CategoryValidation, op).Build()
	}

	bytesPerFrame := BytesPerSample * channels
	newLevel, err := holder.t.RecordedDataIsAvailable(RecordedData{
		Samples:       db.recBuf.Bytes(),
		Frames:        db.recBuf.Len() / bytesPerFrame,
		BytesPerFrame: bytesPerFrame,
		Channels:      channels,
		SampleRate:    int(db.recSampleRate.Load()),
		TotalDelayMs:  int(db.playDelayMs.Load() + db.recDelayMs.Load()),
		ClockDrift:    0,
		MicLevel:      db.currentMicLevel.Load(),
		KeyPressed:    db.typing.Load(),
	})
	if err != nil {
		db.metrics.IncTransportErrors(metrics.TransportErrorDeliver)
		db.rtWarn.Do(func() {
			db.logger.Error("transport failed to consume recorded data", logger.Error(err))
		})
		return nil
	}
	db.newMicLevel.Store(newLevel)
	return nil
}

// RequestPlayoutData asks the transport for frames frames of playout audio
// and returns the number of frames it produced. Without a transport the
// buffer is sized but not filled, and 0 is returned.
func (db *DeviceBuffer) RequestPlayoutData(frames int) (int, error) {
	const op = "request_playout_data"
	if err := db.checkThread(&db.playoutChecker, DirectionPlayout, op); err != nil {
		return 0, err
	}
	size, err := db.bufferSize(DirectionPlayout, frames, op)
	if err != nil {
		return 0, err
	}
	if db.playBuf.SetSize(size) {
		db.logger.Debug("playout buffer resized", logger.Int("bytes", size))
	}

	holder := db.transport.Load()
	if holder == nil {
		db.logger.Debug("no audio transport, playout buffer not filled")
		return 0, nil
	}

	channels := int(db.playChannels.Load())
	res, err := holder.t.NeedMorePlayData(PlayoutRequest{
		Frames:        frames,
		BytesPerFrame: BytesPerSample * channels,
		Channels:      channels,
		SampleRate:    int(db.playSampleRate.Load()),
	}, db.playBuf.Bytes())

	produced := res.Frames
	if err != nil {
		db.metrics.IncTransportErrors(metrics.TransportErrorRequest)
		db.rtWarn.Do(func() {
			db.logger.Error("transport failed to produce playout data", logger.Error(err))
		})
		clear(db.playBuf.Bytes())
		produced = 0
	}
	produced = min(max(produced, 0), frames)

	var peak int16
	db.playStatCount++
	if db.playStatCount >= db.cfg.StatsSamplingDivisor {
		db.playStatCount = 0
		peak = MaxAbsInt16(db.playBuf.Bytes())
		db.playPeakScans.Add(1)
		db.metrics.IncPeakMeasurements(DirectionPlayout.String())
	}

	db.postStats(DirectionPlayout, peak, produced)
	return produced, nil
}

// GetPlayoutData copies the playout buffer into dst and returns the number
// of frames copied.
func (db *DeviceBuffer) GetPlayoutData(dst []byte) (int, error) {
	const op = "get_playout_data"
	if err := db.checkThread(&db.playoutChecker, DirectionPlayout, op); err != nil {
		return 0, err
	}
	n := db.playBuf.Len()
	if n == 0 {
		return 0, newError(ErrEmptyPlayoutBuffer, errors.CategoryState, op).Build()
	}
	if len(dst) < n {
		return 0, newError(ErrDestinationTooSmall, errors.CategoryValidation, op).
			Context("required_bytes", n).
			Context("available_bytes", len(dst)).
			Build()
	}
	channels := int(db.playChannels.Load())
	if channels == 0 {
		return 0, newError(ErrNoChannels, errors.CategoryValidation, op).Build()
	}
	copy(dst, db.playBuf.Bytes())
	return n / (BytesPerSample * channels), nil
}

// RecordingBufferLen returns the recording buffer size in bytes. Only valid
// on the recording goroutine.
func (db *DeviceBuffer) RecordingBufferLen() int { return db.recBuf.Len() }

// PlayoutBufferLen returns the playout buffer size in bytes. Only valid on
// the playout goroutine.
func (db *DeviceBuffer) PlayoutBufferLen() int { return db.playBuf.Len() }

func (db *DeviceBuffer) bufferSize(dir Direction, frames int, op string) (int, error) {
	if frames < 0 {
		return 0, newError(ErrInvalidArgument, errors.CategoryValidation, op).
			Context("frames", frames).
			Build()
	}
	channels := db.recChannels.Load()
	if dir == DirectionPlayout {
		channels = db.playChannels.Load()
	}
	if channels == 0 {
		return 0, newError(ErrNoChannels, errors.CategoryValidation, op).
			Context("direction", dir.String()).
			Build()
	}
	return frames * int(channels) * BytesPerSample, nil
}

func (db *DeviceBuffer) postStats(dir Direction, peak int16, frames int) {
	if db.worker.tryPost(workItem{kind: workUpdateStats, dir: dir, peak: peak, frames: frames}) {
		return
	}
	if db.closed.Load() {
		return
	}
	db.metrics.IncDroppedMessages()
	db.rtWarn.Do(func() {
		db.logger.Warn("stats worker queue full, update dropped",
			logger.String("direction", dir.String()),
			logger.Uint64("dropped_total", db.worker.droppedCount()))
	})
}

func (db *DeviceBuffer) activity(dir Direction) (active, other *atomic.Bool) {
	if dir == DirectionPlayout {
		return &db.playing, &db.recording
	}
	return &db.recording, &db.playing
}

func (db *DeviceBuffer) checker(dir Direction) *ThreadChecker {
	if dir == DirectionPlayout {
		return &db.playoutChecker
	}
	return &db.recordChecker
}

func (db *DeviceBuffer) checkControl(op string) error {
	if db.controlChecker.CalledOnValidThread() {
		return nil
	}
	return db.threadViolation(directionControl, op)
}

func (db *DeviceBuffer) checkThread(tc *ThreadChecker, dir Direction, op string) error {
	if tc.CalledOnValidThread() {
		return nil
	}
	return db.threadViolation(dir.String(), op)
}

func (db *DeviceBuffer) threadViolation(direction, op string) error {
	db.metrics.IncThreadViolations(direction)
	err := newError(ErrThreadAffinity, errors.CategoryThreadAffinity, op).
		Context("direction", direction).
		Priority(errors.PriorityHigh).
		Build()
	if db.cfg.PanicOnThreadViolation {
		panic(err)
	}
	db.rtWarn.Do(func() {
		db.logger.Error("thread affinity violation",
			logger.String("direction", direction),
			logger.String("operation", op))
	})
	return err
}

// process runs on the worker goroutine.
func (db *DeviceBuffer) process(item workItem) {
	switch item.kind {
	case workUpdateStats:
		db.stats.update(item.dir, item.peak, item.frames)
	case workResetStats:
		db.stats.reset(item.dir)
	case workStartReporter:
		db.stats.rollAll()
		db.reporter.start(db.clock.Now())
	case workStopReporter:
		db.reporter.stop()
	case workReporterTick:
		db.reportTick(item.gen, item.at)
	case workSync:
		close(item.done)
	case workSnapshot:
		item.reply <- StatsSnapshot{
			Record:         db.stats.rec,
			Playout:        db.stats.play,
			ReporterActive: db.reporter.active,
			ReportRounds:   db.reporter.rounds,
		}
	}
}

func (db *DeviceBuffer) reportTick(gen uint64, now time.Time) {
	elapsed, emit, ok := db.reporter.tick(gen, now)
	if !ok {
		return
	}
	if emit {
		db.emitReport(DirectionRecord, int(db.recSampleRate.Load()), now, elapsed)
		db.emitReport(DirectionPlayout, int(db.playSampleRate.Load()), now, elapsed)
		db.metrics.IncReports()
	} else {
		db.stats.rollAll()
	}
}

func (db *DeviceBuffer) emitReport(dir Direction, sampleRate int, now time.Time, elapsed time.Duration) {
	callbacks, samples, level := db.stats.get(dir).roll()
	r := Report{
		Direction:  dir,
		Time:       now,
		Elapsed:    elapsed,
		SampleRate: sampleRate,
		Callbacks:  callbacks,
		Samples:    samples,
		Rate:       int(float64(samples)/elapsed.Seconds() + 0.5),
		Level:      level,
	}
	db.logger.Info(r.String())
	db.metrics.RecordReport(dir.String(), callbacks, samples, sampleRate, r.Rate, level)
	if db.sink != nil {
		db.sink.HandleReport(r)
	}
}
