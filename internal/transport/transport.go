// Package transport provides audio transports for the device buffer: an
// in-memory loopback, WAV file playback and WAV file capture.
package transport

import (
	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
)

// ComponentTransport identifies errors raised by this package
const ComponentTransport = "transport"

// Consumer receives recorded audio.
type Consumer interface {
	RecordedDataIsAvailable(data audiocore.RecordedData) (uint32, error)
}

// Producer fills playout buffers.
type Producer interface {
	NeedMorePlayData(req audiocore.PlayoutRequest, dst []byte) (audiocore.PlayoutResult, error)
}

// Split combines a Consumer and a Producer into an audiocore.AudioTransport.
// A nil Consumer discards recorded audio; a nil Producer produces no frames.
type Split struct {
	Consumer Consumer
	Producer Producer
}

var _ audiocore.AudioTransport = (*Split)(nil)

// RecordedDataIsAvailable forwards to the Consumer.
func (s *Split) RecordedDataIsAvailable(data audiocore.RecordedData) (uint32, error) {
	if s.Consumer == nil {
		return data.MicLevel, nil
	}
	return s.Consumer.RecordedDataIsAvailable(data)
}

// NeedMorePlayData forwards to the Producer.
func (s *Split) NeedMorePlayData(req audiocore.PlayoutRequest, dst []byte) (audiocore.PlayoutResult, error) {
	if s.Producer == nil {
		return noTiming(0), nil
	}
	return s.Producer.NeedMorePlayData(req, dst)
}

func noTiming(frames int) audiocore.PlayoutResult {
	return audiocore.PlayoutResult{Frames: frames, ElapsedTimeMs: -1, NTPTimeMs: -1}
}
