package audiocore

import (
	"github.com/tphakala/audiodevicebuffer/internal/errors"
)

// ComponentAudioCore identifies errors raised by this package
const ComponentAudioCore = "audiocore"

var (
	// ErrTransportWhileActive is returned when registering a transport while a direction is active
	ErrTransportWhileActive = errors.NewStd("audio transport cannot be changed while recording or playing")

	// ErrThreadAffinity is returned when a direction is used from a goroutine other than the bound one
	ErrThreadAffinity = errors.NewStd("called from unexpected goroutine")

	// ErrNoChannels is returned by data operations while the channel count is zero
	ErrNoChannels = errors.NewStd("channel count is zero")

	// ErrShortBuffer is returned when the source holds fewer bytes than the frame count requires
	ErrShortBuffer = errors.NewStd("source buffer shorter than frame count")

	// ErrEmptyPlayoutBuffer is returned by GetPlayoutData before any RequestPlayoutData
	ErrEmptyPlayoutBuffer = errors.NewStd("playout buffer is empty")

	// ErrDestinationTooSmall is returned when GetPlayoutData cannot fit the playout buffer
	ErrDestinationTooSmall = errors.NewStd("destination smaller than playout buffer")

	// ErrInvalidArgument is returned for negative rates, channel counts or frame counts
	ErrInvalidArgument = errors.NewStd("invalid argument")

	// ErrInvalidChannel is returned by SetRecordingChannel for anything but ChannelBoth
	ErrInvalidChannel = errors.NewStd("only ChannelBoth is supported")

	// ErrNotImplemented is returned by legacy entry points without an implementation
	ErrNotImplemented = errors.NewStd("not implemented")

	// ErrClosed is returned by operations that need the worker after Close
	ErrClosed = errors.NewStd("device buffer closed")
)

// newError wraps a sentinel with the component and category used by this package.
func newError(err error, category errors.ErrorCategory, operation string) *errors.ErrorBuilder {
	return errors.New(err).
		Component(ComponentAudioCore).
		Category(category).
		Context("operation", operation)
}
