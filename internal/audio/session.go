// Package audio acquires microphone audio and exposes it as a stream of raw
// PCM frames with level metering and an optional in-memory recording.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lingualive/internal/domain"
	"lingualive/internal/observability/logging"
	"lingualive/internal/observability/metrics"
	"lingualive/internal/ports"
)

const (
	defaultChunkSize     = 4096
	defaultLevelInterval = 50 * time.Millisecond
	frameBuffer          = 32
	readerExitTimeout    = 2 * time.Second
)

// ErrNoRecording is returned by Recording before any capture.
var ErrNoRecording = errors.New("no recording available")

// Options configures a Session.
type Options struct {
	Capture        ports.AudioCapture
	Base           ports.AudioConfig
	Profile        Profile
	Formats        []string
	ChunkSize      int
	LevelInterval  time.Duration
	RecordingLimit int
	Metrics        *metrics.Metrics
}

// Session owns at most one capture stream at a time.
type Session struct {
	opts Options
	log  zerolog.Logger

	mu        sync.Mutex
	state     domain.AudioState
	gen       int
	stream    ports.AudioStream
	format    string
	cfg       ports.AudioConfig
	frames    chan []byte
	done      chan struct{}
	readerEnd chan struct{}
	meter     *levelMeter
	recorder  *recorder
	err       error
}

func NewSession(opts Options) *Session {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.LevelInterval <= 0 {
		opts.LevelInterval = defaultLevelInterval
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	return &Session{
		opts:  opts,
		log:   logging.WithComponent("audio"),
		state: domain.AudioStateIdle,
	}
}

// Start acquires the microphone. Failures leave the session in the error
// state with nothing held.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == domain.AudioStateAcquiring || s.state == domain.AudioStateActive || s.state == domain.AudioStateStopping {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.gen++
	gen := s.gen
	s.state = domain.AudioStateAcquiring
	s.err = nil
	s.mu.Unlock()

	format, err := NegotiateFormat(s.opts.Formats)
	if err != nil {
		return s.failStart(gen, err)
	}

	cfg := Constraints(s.opts.Profile, s.opts.Base)
	stream, err := s.opts.Capture.Start(ctx, cfg)
	if err != nil {
		return s.failStart(gen, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		// reset while acquiring
		s.mu.Unlock()
		release(s.log, "stream", stream.Stop)
		return fmt.Errorf("%w: capture reset during start", ErrDeviceUnavailable)
	}
	s.stream = stream
	s.format = format
	s.cfg = cfg
	s.frames = make(chan []byte, frameBuffer)
	s.done = make(chan struct{})
	s.readerEnd = make(chan struct{})
	s.meter = newLevelMeter()
	s.recorder = newRecorder(s.opts.RecordingLimit)
	s.state = domain.AudioStateActive
	go s.read(gen, stream, s.frames, s.done, s.readerEnd, s.meter, s.recorder)
	s.mu.Unlock()

	s.log.Info().
		Str("profile", s.opts.Profile.String()).
		Str("format", format).
		Int("sampleRate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Msg("microphone acquired")
	return nil
}

func (s *Session) failStart(gen int, err error) error {
	s.opts.Metrics.RecordCaptureError(Kind(err))
	s.mu.Lock()
	if s.gen == gen {
		s.state = domain.AudioStateError
		s.err = err
	}
	s.mu.Unlock()
	s.log.Warn().Err(err).Msg("microphone acquisition failed")
	return err
}

func (s *Session) read(gen int, stream io.Reader, frames chan<- []byte, done <-chan struct{}, end chan<- struct{}, meter *levelMeter, rec *recorder) {
	defer close(end)
	defer close(frames)

	buf := make([]byte, s.opts.ChunkSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			frame := append([]byte(nil), buf[:n]...)
			meter.observe(frame)
			rec.write(frame)
			s.opts.Metrics.RecordAudioCaptured(n)
			select {
			case frames <- frame:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case <-done:
			default:
				s.lost(gen, err)
			}
			return
		}
	}
}

// lost records a mid-session capture failure.
func (s *Session) lost(gen int, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		err = fmt.Errorf("%w: capture stream ended", ErrDeviceUnavailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != domain.AudioStateActive {
		return
	}
	s.err = err
	s.state = domain.AudioStateError
	s.opts.Metrics.RecordCaptureError(Kind(err))
	s.log.Error().Err(err).Msg("microphone lost")
}

// Frames returns the PCM frame channel of the current capture. It is
// closed when capture ends for any reason.
func (s *Session) Frames() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Stop releases the stream, meter and recorder. It is idempotent and always
// leaves the session idle.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stream == nil && s.meter == nil {
		if s.state == domain.AudioStateAcquiring {
			s.gen++
		}
		s.state = domain.AudioStateIdle
		s.mu.Unlock()
		return nil
	}
	stream, meter, rec, end := s.stream, s.meter, s.recorder, s.readerEnd
	s.stream = nil
	s.meter = nil
	s.state = domain.AudioStateStopping
	s.closeDoneLocked()
	s.mu.Unlock()

	if stream != nil {
		release(s.log, "stream", stream.Stop)
	}
	if meter != nil {
		release(s.log, "meter", meter.close)
	}
	if rec != nil {
		release(s.log, "recorder", rec.seal)
	}
	if end != nil {
		select {
		case <-end:
		case <-time.After(readerExitTimeout):
			s.log.Debug().Msg("capture reader did not exit in time")
		}
	}

	s.mu.Lock()
	s.state = domain.AudioStateIdle
	s.mu.Unlock()
	s.log.Info().Msg("microphone released")
	return nil
}

// ForceReset drops every tracked reference regardless of state without
// waiting on the reader.
func (s *Session) ForceReset() {
	s.mu.Lock()
	stream, meter, rec := s.stream, s.meter, s.recorder
	s.gen++
	s.stream = nil
	s.meter = nil
	s.err = nil
	s.closeDoneLocked()
	s.state = domain.AudioStateIdle
	s.mu.Unlock()

	if stream != nil {
		release(s.log, "stream", stream.Stop)
	}
	if meter != nil {
		release(s.log, "meter", meter.close)
	}
	if rec != nil {
		release(s.log, "recorder", rec.seal)
	}
	s.log.Info().Msg("audio capture force reset")
}

func (s *Session) closeDoneLocked() {
	if s.done == nil {
		return
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// LevelSignal ticks normalized input levels until capture stops or ctx
// ends. Without an active capture the returned channel is already closed.
func (s *Session) LevelSignal(ctx context.Context) <-chan float64 {
	out := make(chan float64, 1)

	s.mu.Lock()
	meter := s.meter
	active := s.state == domain.AudioStateActive
	s.mu.Unlock()

	if !active || meter == nil {
		close(out)
		return out
	}

	go func() {
		defer close(out)
		ticker := time.NewTicker(s.opts.LevelInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-meter.done:
				return
			case <-ticker.C:
				select {
				case out <- meter.level():
				default:
				}
			}
		}
	}()
	return out
}

// Recording encodes the PCM captured by the current or last session.
func (s *Session) Recording() ([]byte, string, error) {
	s.mu.Lock()
	rec, format, cfg := s.recorder, s.format, s.cfg
	s.mu.Unlock()

	if rec == nil {
		return nil, "", ErrNoRecording
	}
	encoded, err := Encode(format, rec.bytes(), cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, "", err
	}
	return encoded, format, nil
}

// State returns the capture lifecycle state.
func (s *Session) State() domain.AudioState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the last capture, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Config returns the effective constraints of the current capture.
func (s *Session) Config() ports.AudioConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// release runs one cleanup step, logging and swallowing failures.
func release(log zerolog.Logger, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Str("step", name).Interface("panic", r).Msg("release step panicked")
		}
	}()
	if err := fn(); err != nil {
		log.Debug().Err(err).Str("step", name).Msg("release step failed")
	}
}
