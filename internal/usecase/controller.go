package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lingualive/internal/audio"
	"lingualive/internal/domain"
	"lingualive/internal/observability/logging"
	"lingualive/internal/observability/metrics"
	"lingualive/internal/ports"
	"lingualive/internal/recognition"
	"lingualive/internal/transcript"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrSessionActive   = errors.New("recording session already active")
)

const (
	defaultStopGrace          = 2 * time.Second
	defaultTranslationTimeout = 12 * time.Second
)

// ProviderResolver returns the recognizer for a provider choice.
type ProviderResolver func(domain.Provider) (ports.TranscriptionProvider, error)

// Config controls recording and translation behavior.
type Config struct {
	Provider           domain.Provider
	Streaming          ports.StreamingConfig
	Policy             recognition.RestartPolicy
	DrainTimeout       time.Duration
	SourceLanguage     string
	TargetLanguage     string
	AutoDetect         bool
	EnablePunctuation  bool
	TranslationTimeout time.Duration
	StopGrace          time.Duration
	CopyOnStop         bool
}

// Dependencies are the collaborators of a SessionController.
type Dependencies struct {
	Audio      *audio.Session
	Providers  ProviderResolver
	Punctuator ports.Punctuator
	Translator ports.Translator
	Ledger     *transcript.Ledger
	Clipboard  ports.Clipboard
	Publisher  ports.TranscriptPublisher
	Events     ports.EventSink
	Metrics    *metrics.Metrics
}

// SessionController orchestrates capture, recognition, punctuation,
// translation and the transcript ledger.
type SessionController struct {
	audio      *audio.Session
	providers  ProviderResolver
	punctuator ports.Punctuator
	translator ports.Translator
	ledger     *transcript.Ledger
	publisher  ports.TranscriptPublisher
	events     ports.EventSink
	metrics    *metrics.Metrics
	finalizer  transcriptFinalizer
	cfg        Config
	log        zerolog.Logger

	mu       sync.Mutex
	provider domain.Provider
	current  *activeSession
	starting bool
	state    domain.SessionState
	message  string
}

func NewSessionController(deps Dependencies, cfg Config) *SessionController {
	if cfg.Provider == nil {
		cfg.Provider = domain.RemoteProvider{Service: domain.RemoteRelay}
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	if cfg.TranslationTimeout <= 0 {
		cfg.TranslationTimeout = defaultTranslationTimeout
	}
	if cfg.SourceLanguage == "" {
		cfg.SourceLanguage = "en"
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "es"
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	return &SessionController{
		audio:      deps.Audio,
		providers:  deps.Providers,
		punctuator: deps.Punctuator,
		translator: deps.Translator,
		ledger:     deps.Ledger,
		publisher:  deps.Publisher,
		events:     deps.Events,
		metrics:    deps.Metrics,
		finalizer:  newTranscriptFinalizer(deps.Ledger, deps.Clipboard, deps.Events, cfg.CopyOnStop),
		cfg:        cfg,
		log:        logging.WithComponent("session"),
		provider:   cfg.Provider,
		state:      domain.SessionStateIdle,
	}
}

// Start acquires the microphone, opens the recognizer and begins a new
// ledger session.
func (c *SessionController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.current != nil || c.starting {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.starting = true
	provider := c.provider
	c.state = domain.SessionStateStarting
	c.mu.Unlock()

	active, err := c.start(ctx, provider)

	c.mu.Lock()
	c.starting = false
	if err == nil {
		c.current = active
		c.state = domain.SessionStateRecording
		c.message = ""
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}

	c.metrics.RecordSessionStart()
	active.log.Info().Str("sttProvider", provider.String()).Msg("recording started")
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return nil
}

func (c *SessionController) start(ctx context.Context, provider domain.Provider) (*activeSession, error) {
	if err := c.audio.Start(ctx); err != nil {
		return nil, c.failStart(err, errorCodeFor(err))
	}

	recognizer, err := c.providers(provider)
	if err != nil {
		c.releaseAudio()
		return nil, c.failStart(err, domain.ErrorCodeStartup)
	}

	sessionID, err := c.ledger.StartSession()
	if err != nil {
		c.releaseAudio()
		return nil, c.failStart(err, domain.ErrorCodeStartup)
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	active := &activeSession{
		id:         sessionID,
		provider:   provider,
		started:    time.Now(),
		log:        logging.WithProvider(sessionID, provider.String()),
		ctx:        sessionCtx,
		cancel:     cancel,
		utterances: newUtteranceBuilder(),
		audioDone:  make(chan struct{}),
		state:      domain.SessionStateStarting,
	}
	active.sequencer = newSequencer(func(entry transcript.NewEntry) {
		c.recordEntry(active, entry)
	})

	streaming := c.cfg.Streaming
	audioCfg := c.audio.Config()
	if audioCfg.SampleRate > 0 {
		streaming.SampleRate = audioCfg.SampleRate
		streaming.Channels = audioCfg.Channels
	}
	active.recognizer = recognition.NewSession(recognition.Config{
		Provider:     recognizer,
		Name:         provider.String(),
		Streaming:    streaming,
		Policy:       c.cfg.Policy,
		DrainTimeout: c.cfg.DrainTimeout,
		OnFragment:   func(f domain.TranscriptFragment) { c.handleFragment(active, f) },
		OnState:      func(t recognition.Transition) { c.handleRecognizerState(active, t) },
		Metrics:      c.metrics,
	})

	if err := active.recognizer.Start(sessionCtx); err != nil {
		cancel()
		c.ledger.StopSession()
		c.releaseAudio()
		return nil, c.failStart(err, domain.ErrorCodeTranscription)
	}

	active.setState(domain.SessionStateRecording)
	go func() {
		pumpAudioFrames(c.audio.Frames(), active.recognizer, active.log, active.audioDone)
		c.handleAudioEnded(active)
	}()
	return active, nil
}

func (c *SessionController) failStart(err error, code domain.ErrorCode) error {
	if errors.Is(err, audio.ErrAlreadyActive) {
		c.mu.Lock()
		c.state = domain.SessionStateIdle
		c.mu.Unlock()
		return ErrSessionActive
	}

	c.mu.Lock()
	c.state = domain.SessionStateError
	c.message = err.Error()
	c.mu.Unlock()

	c.log.Warn().Err(err).Str("code", string(code)).Msg("failed to start recording")
	c.events.SessionError(code, err.Error())
	c.events.SessionStateChanged(domain.SessionStateError, domain.SessionReasonStartFailed)
	return err
}

// Stop ends the active session gracefully. Finals still in flight are
// drained, and translations dispatched before the stop are recorded even
// when they finish after it returns.
func (c *SessionController) Stop(ctx context.Context) (domain.StopResult, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.StopResult{}, err
	}
	if !active.beginEnd() {
		return domain.StopResult{}, ErrNoActiveSession
	}

	active.setState(domain.SessionStateStopping)
	c.setState(domain.SessionStateStopping)
	c.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonStopping)

	c.releaseAudio()
	<-active.audioDone

	if err := active.recognizer.Stop(ctx); err != nil {
		active.log.Debug().Err(err).Msg("recognizer stop failed")
	}
	if utt, ok := active.seal(true); ok {
		c.finalizeUtterance(active, utt)
	}
	c.ledger.StopSession()

	if !active.waitInflight(ctx, c.cfg.StopGrace) {
		active.log.Info().Int("waiting", active.sequencer.Pending()).Msg("translations still in flight; they will be recorded when done")
	}

	result, reason := c.finalizer.Finalize(ctx)
	c.metrics.RecordSessionEnd(time.Since(active.started).Seconds())
	active.log.Info().Int("entries", result.Summary.EntryCount).Int("words", result.Summary.WordCount).Msg("recording stopped")
	c.finishSession(active, domain.SessionStateIdle, reason, "")
	return result, nil
}

// Abort tears the session down immediately and discards in-flight results.
func (c *SessionController) Abort() error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}
	if !active.beginEnd() {
		return ErrNoActiveSession
	}

	active.discard()
	active.recognizer.Abort()
	c.releaseAudio()
	<-active.audioDone
	c.ledger.StopSession()

	c.metrics.RecordSessionAborted("discarded")
	c.finishSession(active, domain.SessionStateIdle, domain.SessionReasonRecordingDiscarded, "")
	return nil
}

// ForceReset drops every capture and recognizer reference from any state.
func (c *SessionController) ForceReset() {
	c.mu.Lock()
	active := c.current
	c.current = nil
	c.state = domain.SessionStateIdle
	c.message = ""
	c.mu.Unlock()

	if active != nil {
		active.beginEnd()
		active.discard()
		active.recognizer.Abort()
		c.metrics.RecordSessionAborted("force_reset")
	}
	c.audio.ForceReset()
	c.ledger.StopSession()

	c.log.Info().Msg("session force reset")
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonForceReset)
}

// SwitchProvider selects the recognizer for the next start. An active
// session is stopped first.
func (c *SessionController) SwitchProvider(ctx context.Context, provider domain.Provider) error {
	if provider == nil {
		return errors.New("provider is required")
	}
	if _, err := c.providers(provider); err != nil {
		return fmt.Errorf("switch provider: %w", err)
	}

	if _, err := c.getCurrent(); err == nil {
		if _, err := c.Stop(ctx); err != nil && !errors.Is(err, ErrNoActiveSession) {
			return err
		}
	}

	c.mu.Lock()
	c.provider = provider
	c.mu.Unlock()

	c.log.Info().Str("sttProvider", provider.String()).Msg("speech provider switched")
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonProviderSwitched)
	return nil
}

// Status returns the current runtime status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	status := domain.Status{
		State:    c.state,
		Provider: c.provider.String(),
		Message:  c.message,
	}
	active := c.current
	c.mu.Unlock()

	status.Audio = c.audio.State()
	status.SessionID = c.ledger.SessionID()
	if active != nil {
		status.State = active.getState()
		status.Recognizer = string(active.recognizer.State())
	}
	status.Active = status.State == domain.SessionStateRecording || status.State == domain.SessionStateStopping || status.State == domain.SessionStateStarting
	return status
}

func (c *SessionController) Summary() domain.Summary { return c.ledger.Summary() }

func (c *SessionController) Entries() []domain.TranscriptEntry { return c.ledger.Entries() }

// Export serializes the transcript in the named format.
func (c *SessionController) Export(format string) (transcript.Export, error) {
	parsed, err := transcript.ParseFormat(format)
	if err != nil {
		return transcript.Export{}, err
	}
	return c.ledger.Export(parsed)
}

// Clear discards the transcript. It is refused while recording.
func (c *SessionController) Clear() error {
	c.mu.Lock()
	busy := c.current != nil || c.starting
	c.mu.Unlock()
	if busy {
		return ErrSessionActive
	}
	c.ledger.ClearSession()
	return nil
}

// Levels streams microphone levels while capture is active.
func (c *SessionController) Levels(ctx context.Context) <-chan float64 {
	return c.audio.LevelSignal(ctx)
}

// Recording returns the encoded audio of the current or last session.
func (c *SessionController) Recording() ([]byte, string, error) {
	return c.audio.Recording()
}

func (c *SessionController) handleRecognizerState(active *activeSession, t recognition.Transition) {
	if active.isEnding() || active.getState() != domain.SessionStateRecording {
		return
	}
	switch t.State {
	case recognition.StateRestarting:
		active.utterances.Reset()
		c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecognizerRestarting)
	case recognition.StateListening:
		if t.Attempt > 0 {
			c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecognizerResumed)
		}
	case recognition.StateErrored:
		go c.fail(active, domain.SessionReasonRecognizerFailed, domain.ErrorCodeTranscription, t.Err)
	}
}

func (c *SessionController) handleAudioEnded(active *activeSession) {
	if active.isEnding() {
		return
	}
	err := c.audio.Err()
	if err == nil {
		err = fmt.Errorf("%w: capture ended", audio.ErrDeviceUnavailable)
	}
	c.fail(active, domain.SessionReasonMicrophoneLost, errorCodeFor(err), err)
}

// fail ends the session after a session-wide failure. Translations already
// dispatched are still recorded.
func (c *SessionController) fail(active *activeSession, reason domain.SessionStateReason, code domain.ErrorCode, cause error) {
	if !active.beginEnd() {
		return
	}
	detail := string(reason)
	if cause != nil {
		detail = cause.Error()
	}
	active.log.Error().Err(cause).Str("reason", string(reason)).Msg("recording session failed")
	c.events.SessionError(code, detail)

	active.recognizer.Abort()
	active.seal(false)
	c.releaseAudio()
	c.ledger.StopSession()

	c.metrics.RecordSessionAborted(string(reason))
	c.finishSession(active, domain.SessionStateError, reason, detail)
}

func (c *SessionController) releaseAudio() {
	if err := c.audio.Stop(); err != nil {
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
}

func (c *SessionController) getCurrent() (*activeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNoActiveSession
	}
	return c.current, nil
}

func (c *SessionController) setState(state domain.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *SessionController) finishSession(active *activeSession, state domain.SessionState, reason domain.SessionStateReason, message string) {
	active.setState(state)
	go func() {
		active.inflight.Wait()
		active.cancel()
	}()

	c.mu.Lock()
	if c.current == active {
		c.current = nil
		c.state = state
		c.message = message
	}
	c.mu.Unlock()

	c.events.SessionStateChanged(state, reason)
}

// errorCodeFor maps capture failures onto boundary error codes.
func errorCodeFor(err error) domain.ErrorCode {
	switch audio.Kind(err) {
	case "permission_denied":
		return domain.ErrorCodePermissionDenied
	case "device_unavailable":
		return domain.ErrorCodeDeviceUnavailable
	case "unsupported_format":
		return domain.ErrorCodeUnsupportedFormat
	default:
		return domain.ErrorCodeStartup
	}
}

type noopPublisher struct{}

func (noopPublisher) PublishInterim(context.Context, string, domain.TranscriptFragment) error {
	return nil
}

func (noopPublisher) PublishEntry(context.Context, string, domain.TranscriptEntry) error {
	return nil
}
