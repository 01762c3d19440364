package ports

import (
	"context"
	"errors"
	"fmt"
	"io"

	"lingualive/internal/domain"
)

// ErrUnrecoverable marks provider failures that must not trigger a restart.
var ErrUnrecoverable = errors.New("unrecoverable provider error")

// Unrecoverable wraps err so errors.Is(err, ErrUnrecoverable) holds.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string

	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// AudioStream is a live capture stream.
type AudioStream interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture opens microphone capture streams.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioStream, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate      int
	Channels        int
	Encoding        string
	InterimResults  bool
	Language        string
	MaxAlternatives int
}

// StreamingSession is one open recognizer stream.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptFragment
	Wait() error
	Close() error
}

// TranscriptionProvider opens recognizer streams.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Punctuator restores punctuation on a finalized utterance.
type Punctuator interface {
	Punctuate(text string, language string) string
}

// Translator translates finalized utterances.
type Translator interface {
	Translate(ctx context.Context, req domain.TranslationRequest) (domain.TranslationResult, error)
	TranslateWithDetection(ctx context.Context, req domain.TranslationRequest) (domain.TranslationResult, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// TranscriptPublisher forwards transcript activity to downstream consumers.
type TranscriptPublisher interface {
	PublishInterim(ctx context.Context, sessionID string, fragment domain.TranscriptFragment) error
	PublishEntry(ctx context.Context, sessionID string, entry domain.TranscriptEntry) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	InterimTranscript(fragment domain.TranscriptFragment)
	EntryRecorded(entry domain.TranscriptEntry)
	SessionError(code domain.ErrorCode, detail string)
}
