// Package recognition runs a recognizer stream as an explicit state machine
// with bounded automatic restarts.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lingualive/internal/domain"
	"lingualive/internal/observability/logging"
	"lingualive/internal/observability/metrics"
	"lingualive/internal/ports"
)

const defaultDrainTimeout = 4 * time.Second

var (
	// ErrAlreadyRunning is returned by Start on a running session.
	ErrAlreadyRunning = errors.New("recognition session already running")
	// ErrRestartsExhausted ends a session whose restart budget ran out.
	ErrRestartsExhausted = errors.New("recognizer restart attempts exhausted")
)

// Config wires a Session.
type Config struct {
	Provider     ports.TranscriptionProvider
	Name         string
	Streaming    ports.StreamingConfig
	Policy       RestartPolicy
	DrainTimeout time.Duration

	// OnFragment receives fragments in strictly increasing ResultIndex.
	OnFragment func(domain.TranscriptFragment)
	OnState    func(Transition)

	Metrics   *metrics.Metrics
	AfterFunc func(time.Duration, func()) *time.Timer
}

// Session owns at most one recognizer stream at a time.
type Session struct {
	cfg Config
	log zerolog.Logger

	mu        sync.Mutex
	state     State
	gen       int
	stream    ports.StreamingSession
	ctx       context.Context
	cancel    context.CancelFunc
	timer     *time.Timer
	attempt   int
	offset    int
	lastIndex int
	lastFinal int
	draining  bool
	drained   chan struct{}
	err       error
}

func NewSession(cfg Config) *Session {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Policy.BaseDelay <= 0 {
		cfg.Policy = DefaultRestartPolicy(false)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = time.AfterFunc
	}
	return &Session{
		cfg:       cfg,
		log:       logging.WithComponent("recognition").With().Str("sttProvider", cfg.Name).Logger(),
		state:     StateStopped,
		lastIndex: -1,
		lastFinal: -1,
	}
}

// Start opens the first stream synchronously.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped && s.state != StateErrored {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.gen++
	gen := s.gen
	s.state = StateStarting
	s.attempt, s.offset, s.lastIndex, s.lastFinal = 0, 0, -1, -1
	s.draining = false
	s.err = nil
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	streamCtx := s.ctx
	s.mu.Unlock()

	stream, err := s.cfg.Provider.StartStreaming(streamCtx, s.cfg.Streaming)
	if err != nil {
		s.handle(Event{Kind: EventStreamFailed, Gen: gen, Err: err})
		return fmt.Errorf("start recognizer: %w", err)
	}
	s.handle(Event{Kind: EventStreamOpened, Gen: gen, Stream: stream})

	if state := s.State(); state != StateListening {
		return fmt.Errorf("start recognizer: session %s during start", state)
	}
	s.log.Info().Msg("recognizer listening")
	return nil
}

// Stop half-closes the stream and drains remaining fragments until the
// stream ends, the drain timeout passes or ctx is done.
func (s *Session) Stop(ctx context.Context) error {
	s.handle(Event{Kind: EventStopRequested})

	s.mu.Lock()
	draining, drained := s.draining, s.drained
	s.mu.Unlock()

	if draining {
		timeout := time.NewTimer(s.cfg.DrainTimeout)
		defer timeout.Stop()
		select {
		case <-drained:
		case <-timeout.C:
			s.log.Warn().Dur("timeout", s.cfg.DrainTimeout).Msg("recognizer drain timed out")
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	var stream ports.StreamingSession
	notify := func() {}
	if s.draining {
		s.gen++
		s.draining = false
		s.state = StateStopped
		stream, s.stream = s.stream, nil
		s.closeDrainedLocked()
		notify = s.notify(Transition{State: StateStopped})
	}
	cancel := s.cancel
	s.mu.Unlock()

	closeStream(s.log, stream)()
	notify()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Abort closes the stream immediately. Pending fragments are dropped.
func (s *Session) Abort() {
	s.mu.Lock()
	s.gen++
	wasRunning := s.state != StateStopped && s.state != StateErrored
	stream := s.stream
	s.stream = nil
	s.state = StateStopped
	s.stopTimerLocked()
	s.closeDrainedLocked()
	cancel := s.cancel
	s.mu.Unlock()

	closeStream(s.log, stream)()
	if cancel != nil {
		cancel()
	}
	if wasRunning {
		s.notify(Transition{State: StateStopped})()
	}
}

// SendAudio forwards a PCM frame. Frames are dropped while no stream is
// listening.
func (s *Session) SendAudio(frame []byte) error {
	s.mu.Lock()
	stream := s.stream
	listening := s.state == StateListening && !s.draining
	s.mu.Unlock()

	if !listening || stream == nil {
		s.cfg.Metrics.RecordFrameDropped()
		return nil
	}
	return stream.SendAudio(frame)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to Errored.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) handle(ev Event) {
	for _, effect := range s.dispatch(ev) {
		effect()
	}
}

// dispatch applies ev under the lock and returns side effects for the
// caller to run after unlocking.
func (s *Session) dispatch(ev Event) []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventStreamOpened:
		if ev.Gen != s.gen || (s.state != StateStarting && s.state != StateRestarting) {
			return []func(){closeStream(s.log, ev.Stream)}
		}
		resumed := s.state == StateRestarting
		s.stream = ev.Stream
		s.state = StateListening
		if resumed {
			s.offset = s.lastIndex + 1
			s.log.Info().Int("attempt", s.attempt).Msg("recognizer resumed")
		}
		gen, stream := ev.Gen, ev.Stream
		return []func(){
			func() { go s.pump(gen, stream) },
			s.notify(Transition{State: StateListening, Attempt: s.attempt}),
		}

	case EventStreamFailed:
		if ev.Gen != s.gen {
			return nil
		}
		switch s.state {
		case StateStarting:
			return s.failLocked(ev.Err)
		case StateRestarting:
			return s.restartLocked(ev.Err)
		}
		return nil

	case EventFragment:
		if ev.Gen != s.gen || s.state != StateListening {
			return nil
		}
		fragment := ev.Fragment
		fragment.ResultIndex += s.offset
		if fragment.ResultIndex < s.lastIndex || fragment.ResultIndex <= s.lastFinal {
			s.cfg.Metrics.RecordStaleFragment()
			return nil
		}
		s.lastIndex = fragment.ResultIndex
		if fragment.IsFinal {
			s.lastFinal = fragment.ResultIndex
		}
		s.attempt = 0
		s.cfg.Metrics.RecordFragment(fragment.IsFinal)
		if cb := s.cfg.OnFragment; cb != nil {
			return []func(){func() { cb(fragment) }}
		}
		return nil

	case EventStreamEnded:
		if ev.Gen != s.gen {
			return nil
		}
		effects := []func(){closeStream(s.log, s.stream)}
		s.stream = nil
		if s.draining {
			s.draining = false
			s.state = StateStopped
			s.closeDrainedLocked()
			return append(effects, s.notify(Transition{State: StateStopped}))
		}
		if s.state != StateListening {
			return effects
		}
		return append(effects, s.restartLocked(ev.Err)...)

	case EventRestartDue:
		if ev.Gen != s.gen || s.state != StateRestarting {
			return nil
		}
		s.gen++
		gen, ctx := s.gen, s.ctx
		return []func(){func() { s.reopen(ctx, gen) }}

	case EventStopRequested:
		switch s.state {
		case StateListening:
			if s.draining {
				return nil
			}
			s.draining = true
			s.drained = make(chan struct{})
			stream := s.stream
			return []func(){func() {
				if stream == nil {
					return
				}
				if err := stream.CloseSend(); err != nil {
					s.log.Debug().Err(err).Msg("recognizer half-close failed")
				}
			}}
		case StateStarting, StateRestarting:
			s.gen++
			s.state = StateStopped
			s.stopTimerLocked()
			stream := s.stream
			s.stream = nil
			return []func(){closeStream(s.log, stream), s.notify(Transition{State: StateStopped})}
		case StateErrored:
			s.gen++
			s.state = StateStopped
			s.stopTimerLocked()
			stream := s.stream
			s.stream = nil
			return []func(){closeStream(s.log, stream), s.notify(Transition{State: StateStopped})}
		}
		return nil
	}
	return nil
}

// restartLocked schedules the next attempt or gives up.
func (s *Session) restartLocked(cause error) []func() {
	if errors.Is(cause, ports.ErrUnrecoverable) {
		return s.failLocked(cause)
	}
	s.attempt++
	if s.cfg.Policy.Exhausted(s.attempt) {
		return s.failLocked(fmt.Errorf("%w after %d attempts: %v", ErrRestartsExhausted, s.attempt-1, cause))
	}

	delay := s.cfg.Policy.Delay(s.attempt)
	s.state = StateRestarting
	s.cfg.Metrics.RecordRestart(s.cfg.Name)
	if cause != nil {
		s.cfg.Metrics.RecordRecognizerError(s.cfg.Name, "stream")
	}
	s.log.Warn().Err(cause).Int("attempt", s.attempt).Dur("delay", delay).Msg("recognizer ended unexpectedly; restarting")

	gen := s.gen
	s.stopTimerLocked()
	s.timer = s.cfg.AfterFunc(delay, func() {
		s.handle(Event{Kind: EventRestartDue, Gen: gen})
	})
	return []func(){s.notify(Transition{State: StateRestarting, Attempt: s.attempt, Delay: delay, Err: cause})}
}

func (s *Session) failLocked(err error) []func() {
	s.state = StateErrored
	s.err = err
	kind := "stream"
	if errors.Is(err, ports.ErrUnrecoverable) {
		kind = "unrecoverable"
	} else if errors.Is(err, ErrRestartsExhausted) {
		kind = "exhausted"
	}
	s.cfg.Metrics.RecordRecognizerError(s.cfg.Name, kind)
	s.log.Error().Err(err).Msg("recognizer failed")
	return []func(){s.notify(Transition{State: StateErrored, Attempt: s.attempt, Err: err})}
}

func (s *Session) reopen(ctx context.Context, gen int) {
	stream, err := s.cfg.Provider.StartStreaming(ctx, s.cfg.Streaming)
	if err != nil {
		s.handle(Event{Kind: EventStreamFailed, Gen: gen, Err: err})
		return
	}
	s.handle(Event{Kind: EventStreamOpened, Gen: gen, Stream: stream})
}

// pump forwards one stream's fragments, then reports its end.
func (s *Session) pump(gen int, stream ports.StreamingSession) {
	for fragment := range stream.Events() {
		s.handle(Event{Kind: EventFragment, Gen: gen, Fragment: fragment})
	}
	s.handle(Event{Kind: EventStreamEnded, Gen: gen, Err: stream.Wait()})
}

func (s *Session) notify(t Transition) func() {
	cb := s.cfg.OnState
	return func() {
		if cb != nil {
			cb(t)
		}
	}
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) closeDrainedLocked() {
	if s.drained == nil {
		return
	}
	select {
	case <-s.drained:
	default:
		close(s.drained)
	}
}

func closeStream(log zerolog.Logger, stream ports.StreamingSession) func() {
	return func() {
		if stream == nil {
			return
		}
		if err := stream.Close(); err != nil {
			log.Debug().Err(err).Msg("recognizer stream close failed")
		}
	}
}
