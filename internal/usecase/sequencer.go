package usecase

import (
	"sync"

	"lingualive/internal/transcript"
)

// sequencer releases entries in utterance order regardless of the order
// their translations complete in.
type sequencer struct {
	mu      sync.Mutex
	next    int
	pending map[int]*transcript.NewEntry
	emit    func(transcript.NewEntry)
}

func newSequencer(emit func(transcript.NewEntry)) *sequencer {
	return &sequencer{next: 1, pending: make(map[int]*transcript.NewEntry), emit: emit}
}

// Submit records the entry for seq and emits every entry that is now
// contiguous. Emission happens under the lock so entries never interleave.
func (s *sequencer) Submit(seq int, entry transcript.NewEntry) {
	s.release(seq, &entry)
}

// Skip marks seq as producing no entry so later ones are not held back.
func (s *sequencer) Skip(seq int) {
	s.release(seq, nil)
}

func (s *sequencer) release(seq int, entry *transcript.NewEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < s.next {
		return
	}
	s.pending[seq] = entry
	for {
		ready, ok := s.pending[s.next]
		if !ok {
			return
		}
		delete(s.pending, s.next)
		s.next++
		if ready != nil {
			s.emit(*ready)
		}
	}
}

// Pending reports how many entries wait on an earlier utterance.
func (s *sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
