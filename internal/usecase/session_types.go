package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lingualive/internal/domain"
	"lingualive/internal/recognition"
)

type activeSession struct {
	id       string
	provider domain.Provider
	started  time.Time
	log      zerolog.Logger

	// ctx outlives Stop so in-flight translations can finish. Abort and
	// ForceReset cancel it.
	ctx    context.Context
	cancel context.CancelFunc

	recognizer *recognition.Session
	utterances *utteranceBuilder
	sequencer  *sequencer
	inflight   sync.WaitGroup
	audioDone  chan struct{}

	stateMu   sync.Mutex
	state     domain.SessionState
	ending    bool
	sealed    bool
	discarded bool
}

func (s *activeSession) setState(state domain.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *activeSession) getState() domain.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// beginEnd claims the teardown. Only the first caller gets true.
func (s *activeSession) beginEnd() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.ending {
		return false
	}
	s.ending = true
	return true
}

func (s *activeSession) isEnding() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.ending
}

// discard drops every result that has not been recorded yet.
func (s *activeSession) discard() {
	s.stateMu.Lock()
	s.discarded = true
	s.stateMu.Unlock()
	s.cancel()
}

func (s *activeSession) isDiscarded() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.discarded
}

// track registers one in-flight translation. It refuses once the session is
// sealed or discarded, so no Add can race the teardown's Wait.
func (s *activeSession) track() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.sealed || s.discarded {
		return false
	}
	s.inflight.Add(1)
	return true
}

// seal stops accepting recognizer results. With flush set, the pending
// interim is promoted and returned already tracked.
func (s *activeSession) seal(flush bool) (domain.Utterance, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.sealed = true
	if !flush || s.discarded {
		return domain.Utterance{}, false
	}
	utt, ok := s.utterances.Flush()
	if ok {
		s.inflight.Add(1)
	}
	return utt, ok
}

// waitInflight waits for dispatched translations up to grace.
func (s *activeSession) waitInflight(ctx context.Context, grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
