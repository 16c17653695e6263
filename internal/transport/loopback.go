package transport

import (
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
	"github.com/tphakala/audiodevicebuffer/internal/errors"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

// LoopbackStats counts ring buffer overruns and underruns.
type LoopbackStats struct {
	BytesQueued int    `json:"bytes_queued"`
	Capacity    int    `json:"capacity"`
	Overruns    uint64 `json:"overruns"`
	Underruns   uint64 `json:"underruns"`
}

// Loopback plays recorded audio back after the delay given by the queued
// bytes. Recording and playout must use the same frame size.
type Loopback struct {
	rb     *ringbuffer.RingBuffer
	logger logger.Logger

	overruns  atomic.Uint64
	underruns atomic.Uint64
	warn      rate.Sometimes
}

// NewLoopback returns a loopback holding up to capacity bytes.
func NewLoopback(capacity int, log logger.Logger) (*Loopback, error) {
	if capacity <= 0 {
		return nil, errors.Newf("invalid loopback capacity: %d, must be greater than 0", capacity).
			Component(ComponentTransport).
			Category(errors.CategoryValidation).
			Build()
	}
	if log == nil {
		log = logger.Global().Module(ComponentTransport)
	}
	return &Loopback{
		rb:     ringbuffer.New(capacity),
		logger: log,
		warn:   rate.Sometimes{Interval: 5 * time.Second},
	}, nil
}

var _ audiocore.AudioTransport = (*Loopback)(nil)

// RecordedDataIsAvailable queues the recorded samples. When the ring is full
// the whole buffer is dropped and counted as an overrun.
func (l *Loopback) RecordedDataIsAvailable(data audiocore.RecordedData) (uint32, error) {
	if len(data.Samples) > l.rb.Free() {
		l.overruns.Add(1)
		l.warn.Do(func() {
			l.logger.Warn("loopback full, recorded buffer dropped",
				logger.Int("bytes", len(data.Samples)),
				logger.Int("free", l.rb.Free()),
				logger.Uint64("overruns", l.overruns.Load()))
		})
		return data.MicLevel, nil
	}
	if _, err := l.rb.Write(data.Samples); err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return data.MicLevel, errors.New(err).
			Component(ComponentTransport).
			Category(errors.CategoryTransport).
			Context("operation", "loopback_write").
			Build()
	}
	return data.MicLevel, nil
}

// NeedMorePlayData fills dst with whole frames from the ring. A short ring
// produces fewer frames and counts an underrun.
func (l *Loopback) NeedMorePlayData(req audiocore.PlayoutRequest, dst []byte) (audiocore.PlayoutResult, error) {
	if req.BytesPerFrame <= 0 {
		return noTiming(0), nil
	}
	avail := l.rb.Length()
	want := min(len(dst), avail-avail%req.BytesPerFrame)
	want -= want % req.BytesPerFrame

	n := 0
	if want > 0 {
		var err error
		n, err = l.rb.Read(dst[:want])
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			return noTiming(0), errors.New(err).
				Component(ComponentTransport).
				Category(errors.CategoryTransport).
				Context("operation", "loopback_read").
				Build()
		}
	}
	if n < len(dst) {
		l.underruns.Add(1)
		clear(dst[n:])
	}
	return noTiming(n / req.BytesPerFrame), nil
}

// Stats returns the current ring usage and counters.
func (l *Loopback) Stats() LoopbackStats {
	return LoopbackStats{
		BytesQueued: l.rb.Length(),
		Capacity:    l.rb.Capacity(),
		Overruns:    l.overruns.Load(),
		Underruns:   l.underruns.Load(),
	}
}

// Reset drops all queued audio.
func (l *Loopback) Reset() {
	l.rb.Reset()
}
