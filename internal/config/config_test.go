package config

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"lingualive/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LINGUALIVE_RULES_FILE", "")
	t.Setenv("LINGUALIVE_STT_PROVIDER", "")
	t.Setenv("LINGUALIVE_AUDIO_FORMATS", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_ENABLED", "")
	t.Setenv("LINGUALIVE_HTTP_ADDR", "")
	t.Setenv("LINGUALIVE_PLATFORM", "")
	t.Setenv("LINGUALIVE_RESTART_DELAY_MS", "")
	t.Setenv("LINGUALIVE_RESTART_MOBILE_DELAY_MS", "")
	t.Setenv("LINGUALIVE_TRANSLATION_TIMEOUT_MS", "")
	t.Setenv("LINGUALIVE_ENABLE_PUNCTUATION", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Service.HTTPAddr != "127.0.0.1:8765" {
		t.Fatalf("unexpected http addr: %q", cfg.Service.HTTPAddr)
	}
	if cfg.Rules.Path != filepath.Join(home, ".config", "lingualive", "vocabulary.rules") {
		t.Fatalf("unexpected rules path: %q", cfg.Rules.Path)
	}
	if cfg.Recognition.Provider != (domain.RemoteProvider{Service: domain.RemoteRelay}) {
		t.Fatalf("unexpected provider: %v", cfg.Recognition.Provider)
	}
	if cfg.Recognition.RestartDelay != 250*time.Millisecond || cfg.Recognition.RestartMobileDelay != time.Second {
		t.Fatalf("unexpected restart delays: %+v", cfg.Recognition)
	}
	if cfg.Translation.Timeout != 12*time.Second || !cfg.Translation.EnablePunctuation {
		t.Fatalf("unexpected translation config: %+v", cfg.Translation)
	}
	if !reflect.DeepEqual(cfg.Audio.Formats, []string{"audio/wav", "audio/L16"}) {
		t.Fatalf("unexpected formats: %v", cfg.Audio.Formats)
	}
	if cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 0 {
		t.Fatalf("expected kafka disabled by default: %+v", cfg.Kafka)
	}
}

func TestLoadRespectsOverridesAndFallbacks(t *testing.T) {
	home := t.TempDir()
	rules := filepath.Join(home, "my.rules")

	t.Setenv("HOME", home)
	t.Setenv("LINGUALIVE_HTTP_ADDR", "0.0.0.0:9000")
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("DEEPGRAM_API_BASE", "https://example.com/v1")
	t.Setenv("DEEPGRAM_MODEL", "nova-3")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "false")
	t.Setenv("LINGUALIVE_STT_PROVIDER", "deepgram")
	t.Setenv("LINGUALIVE_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("LINGUALIVE_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("LINGUALIVE_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("LINGUALIVE_SAMPLE_RATE", "-5")
	t.Setenv("LINGUALIVE_CHANNELS", "2")
	t.Setenv("LINGUALIVE_PLATFORM", "Mobile")
	t.Setenv("LINGUALIVE_AUDIO_FORMATS", " audio/L16 , ,audio/wav")
	t.Setenv("LINGUALIVE_RULES_FILE", rules)
	t.Setenv("LINGUALIVE_RULE_ITERATION_LIMIT", "nope")
	t.Setenv("LINGUALIVE_AUDIO_CHUNK_SIZE", "12")
	t.Setenv("LINGUALIVE_STOP_GRACE_MS", "-1")
	t.Setenv("LINGUALIVE_TRANSLATION_TIMEOUT_MS", "500")
	t.Setenv("LINGUALIVE_LOCAL_ARGS", "-m  base.en --step 500")
	t.Setenv("KAFKA_ENABLED", "yes")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Service.HTTPAddr != "0.0.0.0:9000" {
		t.Fatalf("unexpected addr: %q", cfg.Service.HTTPAddr)
	}
	if cfg.Deepgram.APIKey != "test-key" || cfg.Deepgram.Model != "nova-3" || cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Recognition.Provider != (domain.RemoteProvider{Service: domain.RemoteDeepgram}) {
		t.Fatalf("unexpected provider: %v", cfg.Recognition.Provider)
	}
	if cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 2 || cfg.Audio.Platform != "mobile" {
		t.Fatalf("unexpected audio fallbacks: %+v", cfg.Audio)
	}
	if !reflect.DeepEqual(cfg.Audio.Formats, []string{"audio/L16", "audio/wav"}) {
		t.Fatalf("unexpected formats: %v", cfg.Audio.Formats)
	}
	if cfg.Rules.Path != rules || cfg.Rules.IterationLimit != 30 {
		t.Fatalf("unexpected rules config: %+v", cfg.Rules)
	}
	if cfg.Session.ChunkSize != 4096 || cfg.Session.StopGrace != 2*time.Second {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Translation.Timeout != 500*time.Millisecond {
		t.Fatalf("unexpected translation timeout: %v", cfg.Translation.Timeout)
	}
	if !reflect.DeepEqual(cfg.Local.Args, []string{"-m", "base.en", "--step", "500"}) {
		t.Fatalf("unexpected local args: %v", cfg.Local.Args)
	}
	if !cfg.Kafka.Enabled || !reflect.DeepEqual(cfg.Kafka.Brokers, []string{"k1:9092", "k2:9092"}) {
		t.Fatalf("unexpected kafka config: %+v", cfg.Kafka)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LINGUALIVE_STT_PROVIDER", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected provider error")
	}
}

func TestLoadRejectsUnknownPlatform(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LINGUALIVE_STT_PROVIDER", "")
	t.Setenv("LINGUALIVE_PLATFORM", "toaster")

	if _, err := Load(); err == nil {
		t.Fatalf("expected platform error")
	}
}
