// Package relay streams audio through the LinguaLive backend, which fronts
// Deepgram and annotates each result with a detected language.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"lingualive/internal/ports"
	"lingualive/internal/providers/deepgram"
	"lingualive/internal/providers/wsstream"
)

const livePath = "/api/v1/deepgram/ws/live-transcribe"

// Config points the relay at the backend.
type Config struct {
	BaseURL  string
	Language string
}

// Provider implements ports.TranscriptionProvider over the backend socket.
type Provider struct {
	cfg Config
}

func NewProvider(cfg Config) *Provider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	language := cfg.Language
	if language == "" {
		language = p.cfg.Language
	}
	wsURL, err := buildLiveURL(p.cfg.BaseURL, language)
	if err != nil {
		return nil, ports.Unrecoverable(err)
	}

	session, err := wsstream.Dial(ctx, wsstream.Options{
		URL:    wsURL,
		Decode: newDecoder().decode,
		Name:   "relay",
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// message is one relay frame. Result is absent on detection-only frames.
type message struct {
	Result              *deepgram.Response `json:"result"`
	DetectedLanguage    string             `json:"detected_language"`
	DetectionConfidence *float64           `json:"detection_confidence"`
	Error               string             `json:"error"`
}

// decoder remembers the last detected language for one stream. It is only
// used from the stream's read loop.
type decoder struct {
	language   string
	confidence float64
}

func newDecoder() *decoder {
	return &decoder{}
}

func (d *decoder) decode(payload []byte) ([]wsstream.Result, error) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, nil
	}
	if msg.Error != "" {
		return nil, errors.New(msg.Error)
	}

	if lang := strings.TrimSpace(msg.DetectedLanguage); lang != "" {
		d.language = lang
		d.confidence = 0
		if msg.DetectionConfidence != nil {
			d.confidence = *msg.DetectionConfidence
		}
	}
	language, confidence := d.language, d.confidence

	if msg.Result == nil {
		return nil, nil
	}
	if err := msg.Result.Err(); err != nil {
		return nil, err
	}
	result, ok := deepgram.ResultOf(*msg.Result)
	if !ok {
		return nil, nil
	}
	if language != "" {
		result.Language = language
		result.LanguageConfidence = confidence
	}
	return []wsstream.Result{result}, nil
}

func buildLiveURL(base, language string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	liveURL, err := url.Parse(base + livePath)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL: %w", err)
	}
	if language != "" {
		query := liveURL.Query()
		query.Set("language", language)
		liveURL.RawQuery = query.Encode()
	}
	return liveURL.String(), nil
}
