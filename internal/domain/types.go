package domain

import "time"

// SessionState models the recording session lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateStarting  SessionState = "starting"
	SessionStateRecording SessionState = "recording"
	SessionStateStopping  SessionState = "stopping"
	SessionStateError     SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady                SessionStateReason = "ready"
	SessionReasonRecordingStarted     SessionStateReason = "recording_started"
	SessionReasonRecognizerRestarting SessionStateReason = "recognizer_restarting"
	SessionReasonRecognizerResumed    SessionStateReason = "recognizer_resumed"
	SessionReasonStopping             SessionStateReason = "stopping"
	SessionReasonSessionSaved         SessionStateReason = "session_saved"
	SessionReasonTranscriptCopied     SessionStateReason = "transcript_copied"
	SessionReasonClipboardFailed      SessionStateReason = "transcript_clipboard_failed"
	SessionReasonNoTranscript         SessionStateReason = "no_transcript"
	SessionReasonRecordingDiscarded   SessionStateReason = "recording_discarded"
	SessionReasonRecognizerFailed     SessionStateReason = "recognizer_failed"
	SessionReasonMicrophoneLost       SessionStateReason = "microphone_lost"
	SessionReasonStartFailed          SessionStateReason = "start_failed"
	SessionReasonProviderSwitched     SessionStateReason = "provider_switched"
	SessionReasonForceReset           SessionStateReason = "force_reset"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodePermissionDenied  ErrorCode = "permission_denied"
	ErrorCodeDeviceUnavailable ErrorCode = "device_unavailable"
	ErrorCodeUnsupportedFormat ErrorCode = "unsupported_format"
	ErrorCodeAudioStop         ErrorCode = "audio_stop"
	ErrorCodeAudioStream       ErrorCode = "audio_stream"
	ErrorCodeTranscription     ErrorCode = "transcription"
	ErrorCodeTranslation       ErrorCode = "translation"
	ErrorCodeClipboard         ErrorCode = "clipboard"
	ErrorCodePublish           ErrorCode = "publish"
)

// AudioState is the capture adapter lifecycle.
type AudioState string

const (
	AudioStateIdle      AudioState = "idle"
	AudioStateAcquiring AudioState = "acquiring"
	AudioStateActive    AudioState = "active"
	AudioStateStopping  AudioState = "stopping"
	AudioStateError     AudioState = "error"
)

// TranscriptFragment is a single recognizer result update, interim or final.
type TranscriptFragment struct {
	Text        string   `json:"text"`
	IsFinal     bool     `json:"isFinal"`
	ResultIndex int      `json:"resultIndex"`
	Confidence  *float64 `json:"confidence,omitempty"`

	// Language is set when the recognizer reports a detected language.
	Language           string  `json:"language,omitempty"`
	LanguageConfidence float64 `json:"languageConfidence,omitempty"`
}

// Utterance is one finalized phrase ready for punctuation and translation.
type Utterance struct {
	Seq                int      `json:"seq"`
	Text               string   `json:"text"`
	ResultIndex        int      `json:"resultIndex"`
	Confidence         *float64 `json:"confidence,omitempty"`
	Language           string   `json:"language,omitempty"`
	LanguageConfidence float64  `json:"languageConfidence,omitempty"`
}

// TranscriptEntry is an immutable (original, translated) pair in the ledger.
type TranscriptEntry struct {
	ID               string    `json:"id"`
	UtteranceSeq     int       `json:"utteranceSeq,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	OriginalText     string    `json:"originalText"`
	TranslatedText   string    `json:"translatedText"`
	SourceLanguage   string    `json:"sourceLanguage"`
	TargetLanguage   string    `json:"targetLanguage"`
	Confidence       *float64  `json:"confidence,omitempty"`
	TranslationError string    `json:"translationError,omitempty"`
}

// Summary is derived from the ledger contents on demand.
type Summary struct {
	SessionID       string    `json:"sessionId,omitempty"`
	WordCount       int       `json:"wordCount"`
	EntryCount      int       `json:"entryCount"`
	DurationSeconds int       `json:"durationSeconds"`
	StartTime       time.Time `json:"startTime,omitempty"`
	EndTime         time.Time `json:"endTime,omitempty"`
	Recording       bool      `json:"recording"`
}

// TranslationRequest is a single translate or translate-with-detection call.
type TranslationRequest struct {
	Text              string
	SourceLanguage    string
	TargetLanguage    string
	EnablePunctuation bool
}

// TranslationResult is the translator's answer for one utterance.
type TranslationResult struct {
	OriginalText        string  `json:"original_text,omitempty"`
	TranslatedText      string  `json:"translated_text"`
	SourceLanguage      string  `json:"source_language,omitempty"`
	TargetLanguage      string  `json:"target_language,omitempty"`
	Confidence          float64 `json:"confidence"`
	DetectedLanguage    string  `json:"detected_language,omitempty"`
	DetectionConfidence float64 `json:"detection_confidence,omitempty"`
	IsReliableDetection bool    `json:"is_reliable_detection,omitempty"`
}

// Detection is the detect-language answer.
type Detection struct {
	DetectedLanguage string  `json:"detected_language"`
	Confidence       float64 `json:"confidence"`
	IsReliable       bool    `json:"is_reliable"`
}

// StopResult is returned once recording is stopped and the ledger is frozen.
type StopResult struct {
	Summary    Summary `json:"summary"`
	Transcript string  `json:"transcript"`
	Copied     bool    `json:"copied"`
}

// Status summarizes the current runtime status.
type Status struct {
	State      SessionState `json:"state"`
	Active     bool         `json:"active"`
	Provider   string       `json:"provider"`
	Recognizer string       `json:"recognizer,omitempty"`
	Audio      AudioState   `json:"audio"`
	SessionID  string       `json:"sessionId,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// Confidence returns a pointer suitable for optional confidence fields.
func Confidence(value float64) *float64 {
	return &value
}
