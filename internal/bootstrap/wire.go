package bootstrap

import (
	"errors"
	"fmt"

	"lingualive/internal/audio"
	"lingualive/internal/config"
	"lingualive/internal/domain"
	"lingualive/internal/events"
	"lingualive/internal/observability/metrics"
	"lingualive/internal/ports"
	"lingualive/internal/providers/batch"
	"lingualive/internal/providers/deepgram"
	"lingualive/internal/providers/google"
	"lingualive/internal/providers/local"
	"lingualive/internal/providers/relay"
	"lingualive/internal/punctuation"
	"lingualive/internal/recognition"
	"lingualive/internal/transcript"
	"lingualive/internal/translation"
	"lingualive/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Publisher  *events.Publisher
	Translator *translation.Client

	google *google.Provider
}

// Close releases provider clients and flushes the publisher.
func (s Services) Close() error {
	var errs []error
	if s.Publisher != nil {
		errs = append(errs, s.Publisher.Close())
	}
	if s.google != nil {
		errs = append(errs, s.google.Close())
	}
	return errors.Join(errs...)
}

// Build wires all backend dependencies for cfg.
func Build(cfg config.Config, eventSink ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	subs, err := punctuation.LoadSubstitutions(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	m := metrics.DefaultMetrics
	profile := audio.DetectProfile(cfg.Audio.Platform)

	capture := audio.NewSession(audio.Options{
		Capture: audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		Base: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		Profile:        profile,
		Formats:        cfg.Audio.Formats,
		ChunkSize:      cfg.Session.ChunkSize,
		LevelInterval:  cfg.Audio.LevelInterval,
		RecordingLimit: cfg.Audio.RecordingLimitBytes,
		Metrics:        m,
	})

	googleProvider := google.NewProvider(google.Config{
		Language: cfg.Google.Language,
		Model:    cfg.Google.Model,
		Endpoint: cfg.Google.Endpoint,
	})
	resolver := newProviderResolver(cfg, googleProvider)
	if _, err := resolver(cfg.Recognition.Provider); err != nil {
		return Services{}, err
	}

	publisher := events.New(events.Config{
		Brokers:      cfg.Kafka.Brokers,
		TopicInterim: cfg.Kafka.TopicInterim,
		TopicEntries: cfg.Kafka.TopicEntries,
		Principal:    cfg.Kafka.Principal,
		Enabled:      cfg.Kafka.Enabled,
		Metrics:      m,
	})

	policy := recognition.DefaultRestartPolicy(profile == audio.ProfileMobile)
	policy.BaseDelay = cfg.Recognition.RestartDelay
	if profile == audio.ProfileMobile {
		policy.BaseDelay = cfg.Recognition.RestartMobileDelay
	}
	policy.MaxAttempts = cfg.Recognition.RestartMaxAttempts

	translator := translation.NewClient(translation.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Translation.Timeout,
		Metrics: m,
	})

	controller := usecase.NewSessionController(
		usecase.Dependencies{
			Audio:      capture,
			Providers:  resolver,
			Punctuator: punctuation.New(subs),
			Translator: translator,
			Ledger:     transcript.NewLedger(),
			Clipboard:  clipboard,
			Publisher:  publisher,
			Events:     eventSink,
			Metrics:    m,
		},
		usecase.Config{
			Provider: cfg.Recognition.Provider,
			Streaming: ports.StreamingConfig{
				SampleRate:      cfg.Audio.SampleRate,
				Channels:        cfg.Audio.Channels,
				Encoding:        "linear16",
				InterimResults:  true,
				Language:        cfg.Translation.SourceLanguage,
				MaxAlternatives: audio.MaxAlternatives(profile),
			},
			Policy:             policy,
			DrainTimeout:       cfg.Recognition.DrainTimeout,
			SourceLanguage:     cfg.Translation.SourceLanguage,
			TargetLanguage:     cfg.Translation.TargetLanguage,
			AutoDetect:         cfg.Translation.AutoDetect,
			EnablePunctuation:  cfg.Translation.EnablePunctuation,
			TranslationTimeout: cfg.Translation.Timeout,
			StopGrace:          cfg.Session.StopGrace,
			CopyOnStop:         cfg.Session.CopyOnStop,
		},
	)

	return Services{
		Controller: controller,
		Config:     cfg,
		Publisher:  publisher,
		Translator: translator,
		google:     googleProvider,
	}, nil
}

// newProviderResolver maps provider choices onto configured recognizers.
func newProviderResolver(cfg config.Config, googleProvider *google.Provider) usecase.ProviderResolver {
	deepgramProvider := deepgram.NewProvider(deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
	})
	relayProvider := relay.NewProvider(relay.Config{
		BaseURL:  cfg.Backend.BaseURL,
		Language: cfg.Translation.SourceLanguage,
	})
	batchProvider := batch.NewProvider(batch.Config{
		BaseURL:    cfg.Backend.BaseURL,
		Interval:   cfg.Backend.BatchInterval,
		AutoDetect: cfg.Translation.AutoDetect,
	})
	localProvider := local.NewProvider(local.Config{
		Command: cfg.Local.Command,
		Args:    cfg.Local.Args,
	})

	return func(provider domain.Provider) (ports.TranscriptionProvider, error) {
		switch p := provider.(type) {
		case domain.LocalProvider:
			return localProvider, nil
		case domain.RemoteProvider:
			switch p.Service {
			case domain.RemoteDeepgram:
				return deepgramProvider, nil
			case domain.RemoteRelay:
				return relayProvider, nil
			case domain.RemoteGoogle:
				return googleProvider, nil
			case domain.RemoteBatch:
				return batchProvider, nil
			}
		}
		return nil, fmt.Errorf("unsupported speech provider %v", provider)
	}
}
