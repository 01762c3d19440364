// Package transcript keeps the ordered log of finalized entries for one
// recording session.
package transcript

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lingualive/internal/domain"
)

var (
	// ErrSessionActive is returned by StartSession while recording.
	ErrSessionActive = errors.New("transcript session already active")
	// ErrNoSession is returned when entries are added before StartSession.
	ErrNoSession = errors.New("no transcript session")
	// ErrSessionMismatch is returned when an entry targets a replaced session.
	ErrSessionMismatch = errors.New("transcript session changed")
)

// NewEntry carries the caller-supplied fields of a ledger entry.
type NewEntry struct {
	UtteranceSeq     int
	OriginalText     string
	TranslatedText   string
	SourceLanguage   string
	TargetLanguage   string
	Confidence       *float64
	TranslationError string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDSource overrides the entry and session id generator.
func WithIDSource(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// Ledger is an append-only, thread-safe entry log.
type Ledger struct {
	mu    sync.Mutex
	now   func() time.Time
	newID func() string

	sessionID string
	entries   []domain.TranscriptEntry
	startTime time.Time
	stopTime  time.Time
	recording bool
}

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StartSession resets the ledger and begins a new session.
func (l *Ledger) StartSession() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.recording {
		return "", ErrSessionActive
	}
	l.sessionID = l.newID()
	l.entries = nil
	l.startTime = l.now()
	l.stopTime = time.Time{}
	l.recording = true
	return l.sessionID, nil
}

// StopSession freezes recording. Entries stay until ClearSession.
func (l *Ledger) StopSession() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.recording {
		return
	}
	l.recording = false
	l.stopTime = l.now()
}

// ClearSession discards every entry and all timing state.
func (l *Ledger) ClearSession() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sessionID = ""
	l.entries = nil
	l.startTime = time.Time{}
	l.stopTime = time.Time{}
	l.recording = false
}

// SessionID returns the current session id, or "" when cleared.
func (l *Ledger) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// Recording reports whether a session is active.
func (l *Ledger) Recording() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recording
}

// AddEntry appends to the current session. Entries may still arrive after
// StopSession.
func (l *Ledger) AddEntry(entry NewEntry) (domain.TranscriptEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sessionID == "" {
		return domain.TranscriptEntry{}, ErrNoSession
	}
	return l.appendLocked(entry), nil
}

// AddEntryFor appends only if sessionID is still the current session.
func (l *Ledger) AddEntryFor(sessionID string, entry NewEntry) (domain.TranscriptEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sessionID == "" {
		return domain.TranscriptEntry{}, ErrNoSession
	}
	if l.sessionID != sessionID {
		return domain.TranscriptEntry{}, ErrSessionMismatch
	}
	return l.appendLocked(entry), nil
}

func (l *Ledger) appendLocked(entry NewEntry) domain.TranscriptEntry {
	recorded := domain.TranscriptEntry{
		ID:               l.newID(),
		UtteranceSeq:     entry.UtteranceSeq,
		Timestamp:        l.now(),
		OriginalText:     entry.OriginalText,
		TranslatedText:   entry.TranslatedText,
		SourceLanguage:   entry.SourceLanguage,
		TargetLanguage:   entry.TargetLanguage,
		TranslationError: entry.TranslationError,
	}
	if entry.Confidence != nil {
		recorded.Confidence = domain.Confidence(*entry.Confidence)
	}
	l.entries = append(l.entries, recorded)
	return recorded
}

// Entries returns a copy of the entries in append order.
func (l *Ledger) Entries() []domain.TranscriptEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.TranscriptEntry(nil), l.entries...)
}

// DurationSeconds is measured to now while recording, else to the stop time.
func (l *Ledger) DurationSeconds() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.durationLocked()
}

func (l *Ledger) durationLocked() int {
	if l.startTime.IsZero() {
		return 0
	}
	end := l.stopTime
	if l.recording {
		end = l.now()
	}
	if end.Before(l.startTime) {
		return 0
	}
	return int(end.Sub(l.startTime) / time.Second)
}

// WordCount sums whitespace-delimited words of every original text.
func (l *Ledger) WordCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return wordCount(l.entries)
}

func wordCount(entries []domain.TranscriptEntry) int {
	total := 0
	for _, entry := range entries {
		total += len(strings.Fields(entry.OriginalText))
	}
	return total
}

// Summary derives statistics from the current contents.
func (l *Ledger) Summary() domain.Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summaryLocked()
}

func (l *Ledger) summaryLocked() domain.Summary {
	end := l.stopTime
	if l.recording {
		end = l.now()
	}
	if l.startTime.IsZero() {
		end = time.Time{}
	}
	return domain.Summary{
		SessionID:       l.sessionID,
		WordCount:       wordCount(l.entries),
		EntryCount:      len(l.entries),
		DurationSeconds: l.durationLocked(),
		StartTime:       l.startTime,
		EndTime:         end,
		Recording:       l.recording,
	}
}

// snapshot captures everything an export needs under one lock.
func (l *Ledger) snapshot() (domain.Summary, []domain.TranscriptEntry, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summaryLocked(), append([]domain.TranscriptEntry(nil), l.entries...), l.now()
}
