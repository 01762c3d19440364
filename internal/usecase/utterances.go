package usecase

import (
	"strings"
	"sync"

	"lingualive/internal/domain"
)

// utteranceBuilder turns final fragments into numbered utterances. The
// latest interim is kept so a session stopped mid-phrase still records it.
type utteranceBuilder struct {
	mu      sync.Mutex
	nextSeq int
	pending *domain.TranscriptFragment
}

func newUtteranceBuilder() *utteranceBuilder {
	return &utteranceBuilder{nextSeq: 1}
}

// Interim remembers the latest interim text of the open utterance.
func (b *utteranceBuilder) Interim(fragment domain.TranscriptFragment) {
	if strings.TrimSpace(fragment.Text) == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = &fragment
}

// Final closes the open utterance.
func (b *utteranceBuilder) Final(fragment domain.TranscriptFragment) (domain.Utterance, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	return b.nextLocked(fragment)
}

// Reset drops the open utterance after a recognizer restart.
func (b *utteranceBuilder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

// Flush promotes the pending interim to an utterance.
func (b *utteranceBuilder) Flush() (domain.Utterance, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return domain.Utterance{}, false
	}
	fragment := *b.pending
	b.pending = nil
	return b.nextLocked(fragment)
}

func (b *utteranceBuilder) nextLocked(fragment domain.TranscriptFragment) (domain.Utterance, bool) {
	text := strings.Join(strings.Fields(fragment.Text), " ")
	if text == "" {
		return domain.Utterance{}, false
	}
	utterance := domain.Utterance{
		Seq:                b.nextSeq,
		Text:               text,
		ResultIndex:        fragment.ResultIndex,
		Confidence:         fragment.Confidence,
		Language:           fragment.Language,
		LanguageConfidence: fragment.LanguageConfidence,
	}
	b.nextSeq++
	return utterance, true
}
