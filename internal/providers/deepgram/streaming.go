package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"lingualive/internal/ports"
	"lingualive/internal/providers/wsstream"
)

const defaultAPIBase = "https://api.deepgram.com/v1"

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

// Provider implements ports.TranscriptionProvider for Deepgram.
type Provider struct {
	cfg Config
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, ports.Unrecoverable(errors.New("DEEPGRAM_API_KEY is not configured"))
	}

	wsURL, err := buildListenURL(p.cfg, cfg)
	if err != nil {
		return nil, ports.Unrecoverable(err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	session, err := wsstream.Dial(ctx, wsstream.Options{
		URL:          wsURL,
		Header:       headers,
		Decode:       DecodeResponse,
		CloseMessage: []byte(`{"type":"CloseStream"}`),
		Name:         "Deepgram",
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Response is a Deepgram live or prerecorded result envelope.
type Response struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives     []Alternative `json:"alternatives"`
		DetectedLanguage string        `json:"detected_language"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives     []Alternative `json:"alternatives"`
			DetectedLanguage string        `json:"detected_language"`
		} `json:"channels"`
	} `json:"results"`
}

type Alternative struct {
	Transcript string   `json:"transcript"`
	Confidence *float64 `json:"confidence"`
}

// Err returns the provider error carried by an Error message.
func (r Response) Err() error {
	if !strings.EqualFold(r.Type, "Error") {
		return nil
	}
	message := strings.TrimSpace(firstNonEmpty(r.Message, r.Description))
	if message == "" {
		message = "deepgram returned an unknown error"
	}
	return errors.New(message)
}

// DecodeResponse maps one Deepgram message onto stream results. Error
// messages end the stream.
func DecodeResponse(payload []byte) ([]wsstream.Result, error) {
	var response Response
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, nil
	}
	if err := response.Err(); err != nil {
		return nil, err
	}

	result, ok := ResultOf(response)
	if !ok {
		return nil, nil
	}
	return []wsstream.Result{result}, nil
}

// ResultOf extracts the top alternative. Prerecorded responses (results
// envelope) are always final.
func ResultOf(response Response) (wsstream.Result, bool) {
	if len(response.Channel.Alternatives) > 0 {
		alt := response.Channel.Alternatives[0]
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			return wsstream.Result{
				Text:       text,
				Final:      response.IsFinal || response.SpeechFinal,
				Confidence: alt.Confidence,
				Language:   response.Channel.DetectedLanguage,
			}, true
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		channel := response.Results.Channels[0]
		alt := channel.Alternatives[0]
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			return wsstream.Result{
				Text:       text,
				Final:      true,
				Confidence: alt.Confidence,
				Language:   channel.DetectedLanguage,
			}, true
		}
	}
	return wsstream.Result{}, false
}

func buildListenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := providerCfg.APIBaseURL
	if base == "" {
		base = defaultAPIBase
	}
	base = strings.TrimSpace(base)

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	streamCfg = withStreamDefaults(streamCfg)
	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", fmt.Sprintf("%d", streamCfg.SampleRate))
	query.Set("channels", fmt.Sprintf("%d", streamCfg.Channels))
	query.Set("interim_results", fmt.Sprintf("%t", streamCfg.InterimResults))
	query.Set("smart_format", fmt.Sprintf("%t", providerCfg.SmartFormat))
	language := firstNonEmpty(providerCfg.Language, streamCfg.Language)
	if language != "" {
		query.Set("language", language)
	}
	if streamCfg.MaxAlternatives > 1 {
		query.Set("alternatives", fmt.Sprintf("%d", streamCfg.MaxAlternatives))
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

func withStreamDefaults(cfg ports.StreamingConfig) ports.StreamingConfig {
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
