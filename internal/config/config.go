package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lingualive/internal/domain"
)

// Config stores runtime configuration for the daemon.
type Config struct {
	Service     ServiceConfig
	Audio       AudioConfig
	Recognition RecognitionConfig
	Deepgram    DeepgramConfig
	Backend     BackendConfig
	Google      GoogleConfig
	Local       LocalConfig
	Translation TranslationConfig
	Rules       RulesConfig
	Session     SessionConfig
	Kafka       KafkaConfig
}

type ServiceConfig struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

type AudioConfig struct {
	RecorderCommand     string
	InputFormat         string
	InputDevice         string
	SampleRate          int
	Channels            int
	Platform            string // auto, desktop or mobile
	Formats             []string
	LevelInterval       time.Duration
	RecordingLimitBytes int
}

type RecognitionConfig struct {
	Provider           domain.Provider
	RestartMaxAttempts int
	RestartDelay       time.Duration
	RestartMobileDelay time.Duration
	DrainTimeout       time.Duration
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

// BackendConfig points at the LinguaLive API used by the relay and batch
// recognizers and by translation.
type BackendConfig struct {
	BaseURL       string
	BatchInterval time.Duration
}

type GoogleConfig struct {
	Language string
	Model    string
	Endpoint string
}

type LocalConfig struct {
	Command string
	Args    []string
}

type TranslationConfig struct {
	SourceLanguage    string
	TargetLanguage    string
	AutoDetect        bool
	EnablePunctuation bool
	Timeout           time.Duration
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type SessionConfig struct {
	ChunkSize  int
	StopGrace  time.Duration
	CopyOnStop bool
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicInterim string
	TopicEntries string
	Principal    string
}

// Load reads an optional .env file, then resolves configuration from
// environment variables and defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	rulesPath := strings.TrimSpace(os.Getenv("LINGUALIVE_RULES_FILE"))
	if rulesPath == "" {
		rulesPath = filepath.Join(home, ".config", "lingualive", "vocabulary.rules")
	}

	provider, err := domain.ParseProvider(os.Getenv("LINGUALIVE_STT_PROVIDER"))
	if err != nil {
		return Config{}, fmt.Errorf("LINGUALIVE_STT_PROVIDER: %w", err)
	}

	cfg := Config{
		Service: ServiceConfig{
			HTTPAddr:  envOrDefault("LINGUALIVE_HTTP_ADDR", "127.0.0.1:8765"),
			LogLevel:  envOrDefault("LINGUALIVE_LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LINGUALIVE_LOG_FORMAT", "console"),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("LINGUALIVE_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("LINGUALIVE_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("LINGUALIVE_AUDIO_INPUT_DEVICE"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			SampleRate:          envOrDefaultInt("LINGUALIVE_SAMPLE_RATE", 16000),
			Channels:            envOrDefaultInt("LINGUALIVE_CHANNELS", 1),
			Platform:            strings.ToLower(envOrDefault("LINGUALIVE_PLATFORM", "auto")),
			Formats:             envList("LINGUALIVE_AUDIO_FORMATS", []string{"audio/wav", "audio/L16"}),
			LevelInterval:       envMillis("LINGUALIVE_LEVEL_INTERVAL_MS", 50),
			RecordingLimitBytes: envOrDefaultInt("LINGUALIVE_RECORDING_LIMIT_BYTES", 32<<20),
		},
		Recognition: RecognitionConfig{
			Provider:           provider,
			RestartMaxAttempts: envOrDefaultInt("LINGUALIVE_RESTART_MAX_ATTEMPTS", 10),
			RestartDelay:       envMillis("LINGUALIVE_RESTART_DELAY_MS", 250),
			RestartMobileDelay: envMillis("LINGUALIVE_RESTART_MOBILE_DELAY_MS", 1000),
			DrainTimeout:       envMillis("LINGUALIVE_DRAIN_TIMEOUT_MS", 4000),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		Backend: BackendConfig{
			BaseURL:       envOrDefault("LINGUALIVE_BACKEND_URL", "http://localhost:8000"),
			BatchInterval: envMillis("LINGUALIVE_BATCH_INTERVAL_MS", 3000),
		},
		Google: GoogleConfig{
			Language: envOrDefault("GOOGLE_SPEECH_LANGUAGE", "en-US"),
			Model:    strings.TrimSpace(os.Getenv("GOOGLE_SPEECH_MODEL")),
			Endpoint: strings.TrimSpace(os.Getenv("GOOGLE_SPEECH_ENDPOINT")),
		},
		Local: LocalConfig{
			Command: envOrDefault("LINGUALIVE_LOCAL_COMMAND", "whisper-stream"),
			Args:    strings.Fields(os.Getenv("LINGUALIVE_LOCAL_ARGS")),
		},
		Translation: TranslationConfig{
			SourceLanguage:    envOrDefault("LINGUALIVE_SOURCE_LANGUAGE", "en"),
			TargetLanguage:    envOrDefault("LINGUALIVE_TARGET_LANGUAGE", "es"),
			AutoDetect:        envOrDefaultBool("LINGUALIVE_AUTO_DETECT", false),
			EnablePunctuation: envOrDefaultBool("LINGUALIVE_ENABLE_PUNCTUATION", true),
			Timeout:           envMillis("LINGUALIVE_TRANSLATION_TIMEOUT_MS", 12000),
		},
		Rules: RulesConfig{
			Path:           rulesPath,
			IterationLimit: envOrDefaultInt("LINGUALIVE_RULE_ITERATION_LIMIT", 30),
		},
		Session: SessionConfig{
			ChunkSize:  envOrDefaultInt("LINGUALIVE_AUDIO_CHUNK_SIZE", 4096),
			StopGrace:  envMillis("LINGUALIVE_STOP_GRACE_MS", 2000),
			CopyOnStop: envOrDefaultBool("LINGUALIVE_COPY_ON_STOP", false),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envList("KAFKA_BROKERS", nil),
			TopicInterim: envOrDefault("KAFKA_TOPIC_INTERIM", "lingualive.transcripts.interim"),
			TopicEntries: envOrDefault("KAFKA_TOPIC_ENTRIES", "lingualive.transcripts.entries"),
			Principal:    strings.TrimSpace(os.Getenv("KAFKA_PRINCIPAL")),
		},
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.RecordingLimitBytes < 0 {
		cfg.Audio.RecordingLimitBytes = 0
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Recognition.RestartMaxAttempts < 0 {
		cfg.Recognition.RestartMaxAttempts = 0
	}
	switch cfg.Audio.Platform {
	case "auto", "desktop", "mobile":
	default:
		return Config{}, fmt.Errorf("LINGUALIVE_PLATFORM: unsupported platform %q", cfg.Audio.Platform)
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envMillis reads a non-negative millisecond count.
func envMillis(key string, fallback int) time.Duration {
	value := envOrDefaultInt(key, fallback)
	if value < 0 {
		value = fallback
	}
	return time.Duration(value) * time.Millisecond
}

func envList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
