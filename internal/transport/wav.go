package transport

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
	"github.com/tphakala/audiodevicebuffer/internal/errors"
)

const wavBitDepth = 16

// wavAudioFormat is the WAVE format tag for integer PCM.
const wavAudioFormat = 1

// WAVSink writes recorded audio to a 16-bit PCM WAV file.
type WAVSink struct {
	mu     sync.Mutex
	file   *os.File
	enc    *wav.Encoder
	format *audio.Format
	ints   []int
	frames uint64
	closed bool
	path   string
}

// NewWAVSink creates path and writes a WAV header for the given format.
func NewWAVSink(path string, sampleRate, channels int) (*WAVSink, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, errors.Newf("invalid WAV format: %d Hz, %d channels", sampleRate, channels).
			Component(ComponentTransport).
			Category(errors.CategoryValidation).
			Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fileError(err, "create_directory", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fileError(err, "create_file", path)
	}
	return &WAVSink{
		file:   f,
		enc:    wav.NewEncoder(f, sampleRate, wavBitDepth, channels, wavAudioFormat),
		format: &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		path:   path,
	}, nil
}

var _ Consumer = (*WAVSink)(nil)

// RecordedDataIsAvailable appends the samples to the file. The format must
// match the one the sink was created with.
func (s *WAVSink) RecordedDataIsAvailable(data audiocore.RecordedData) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return data.MicLevel, errors.New(audiocore.ErrClosed).
			Component(ComponentTransport).
			Category(errors.CategoryState).
			Context("operation", "wav_write").
			Build()
	}
	if data.Channels != s.format.NumChannels || data.SampleRate != s.format.SampleRate {
		return data.MicLevel, errors.Newf("recorded format %d Hz/%d ch does not match WAV %d Hz/%d ch",
			data.SampleRate, data.Channels, s.format.SampleRate, s.format.NumChannels).
			Component(ComponentTransport).
			Category(errors.CategoryValidation).
			Build()
	}

	s.ints = pcmToInts(s.ints, data.Samples)
	if err := s.enc.Write(&audio.IntBuffer{Data: s.ints, Format: s.format, SourceBitDepth: wavBitDepth}); err != nil {
		return data.MicLevel, fileError(err, "wav_write", s.path)
	}
	s.frames += uint64(data.Frames)
	return data.MicLevel, nil
}

// Frames returns the number of frames written.
func (s *WAVSink) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close finalizes the WAV header and closes the file.
func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	encErr := s.enc.Close()
	fileErr := s.file.Close()
	if encErr != nil {
		return fileError(encErr, "wav_finalize", s.path)
	}
	if fileErr != nil {
		return fileError(fileErr, "close_file", s.path)
	}
	return nil
}

// WAVSource plays a 16-bit PCM WAV file.
type WAVSource struct {
	mu       sync.Mutex
	file     *os.File
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	loop     bool
	eof      bool
	path     string
	channels int
	rate     int
}

// NewWAVSource opens path for playout. With loop set the file restarts at
// its end; otherwise playout produces silence after the last frame.
func NewWAVSource(path string, loop bool) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fileError(err, "open_file", path)
	}
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		_ = f.Close()
		return nil, errors.Newf("input is not a valid WAV audio file: %s", filepath.Base(path)).
			Component(ComponentTransport).
			Category(errors.CategoryValidation).
			Build()
	}
	if dec.BitDepth != wavBitDepth {
		_ = f.Close()
		return nil, errors.Newf("unsupported bit depth: %d", dec.BitDepth).
			Component(ComponentTransport).
			Category(errors.CategoryValidation).
			Build()
	}
	return &WAVSource{
		file:     f,
		dec:      dec,
		buf:      &audio.IntBuffer{Format: &audio.Format{SampleRate: int(dec.SampleRate), NumChannels: int(dec.NumChans)}},
		loop:     loop,
		path:     path,
		channels: int(dec.NumChans),
		rate:     int(dec.SampleRate),
	}, nil
}

var _ Producer = (*WAVSource)(nil)

// SampleRate returns the file's sample rate.
func (s *WAVSource) SampleRate() int { return s.rate }

// Channels returns the file's channel count.
func (s *WAVSource) Channels() int { return s.channels }

// NeedMorePlayData decodes up to req.Frames frames into dst. The playout
// channel count must match the file.
func (s *WAVSource) NeedMorePlayData(req audiocore.PlayoutRequest, dst []byte) (audiocore.PlayoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Channels != s.channels {
		clear(dst)
		return noTiming(0), errors.Newf("playout channels %d do not match WAV channels %d", req.Channels, s.channels).
			Component(ComponentTransport).
			Category(errors.CategoryValidation).
			Build()
	}

	want := min(req.Frames*req.Channels, len(dst)/audiocore.BytesPerSample)
	got := 0
	rewound := false
	for got < want && !s.eof {
		n, err := s.read(want - got)
		if err != nil {
			clear(dst)
			return noTiming(0), err
		}
		for i, v := range s.buf.Data[:n] {
			binary.LittleEndian.PutUint16(dst[(got+i)*audiocore.BytesPerSample:], uint16(int16(v)))
		}
		got += n
		if n > 0 {
			rewound = false
			continue
		}
		// An empty read right after a rewind means the file has no samples.
		if !s.loop || rewound {
			s.eof = true
			break
		}
		if err := s.rewind(); err != nil {
			clear(dst)
			return noTiming(0), err
		}
		rewound = true
	}
	clear(dst[got*audiocore.BytesPerSample:])
	return noTiming(got / req.Channels), nil
}

func (s *WAVSource) read(samples int) (int, error) {
	if cap(s.buf.Data) < samples {
		s.buf.Data = make([]int, samples)
	}
	s.buf.Data = s.buf.Data[:samples]
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fileError(err, "wav_read", s.path)
	}
	return n, nil
}

func (s *WAVSource) rewind() error {
	if err := s.dec.Rewind(); err != nil {
		return fileError(err, "wav_rewind", s.path)
	}
	return nil
}

// Close closes the file.
func (s *WAVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Close(); err != nil {
		return fileError(err, "close_file", s.path)
	}
	return nil
}

// pcmToInts converts little-endian 16-bit samples into dst, reusing its capacity.
func pcmToInts(dst []int, pcm []byte) []int {
	n := len(pcm) / audiocore.BytesPerSample
	if cap(dst) < n {
		dst = make([]int, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*audiocore.BytesPerSample:])))
	}
	return dst
}

func fileError(err error, operation, path string) error {
	return errors.New(err).
		Component(ComponentTransport).
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		Context("file", filepath.Base(path)).
		Build()
}
