// Package translation is the client for the remote translation, language
// detection and speech synthesis service.
package translation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lingualive/internal/domain"
	"lingualive/internal/observability/logging"
	"lingualive/internal/observability/metrics"
)

const (
	defaultTimeout = 12 * time.Second
	apiPrefix      = "/api/v1/translation"
	autoLanguage   = "auto"
	maxErrorBody   = 4096
)

// ErrServiceUnavailable matches every non-2xx answer from the service.
var ErrServiceUnavailable = errors.New("translation service unavailable")

// StatusError is a non-2xx response.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("translation %s: http %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Client talks to the translation service over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		metrics: cfg.Metrics,
		log:     logging.WithComponent("translation"),
	}
}

type translateRequest struct {
	Text              string `json:"text"`
	SourceLanguage    string `json:"source_language,omitempty"`
	TargetLanguage    string `json:"target_language"`
	AutoDetect        bool   `json:"auto_detect,omitempty"`
	EnablePunctuation bool   `json:"enable_punctuation"`
}

// Translate translates req.Text. Same-language requests are answered locally.
func (c *Client) Translate(ctx context.Context, req domain.TranslationRequest) (domain.TranslationResult, error) {
	text := strings.Join(strings.Fields(req.Text), " ")
	if text == "" {
		return domain.TranslationResult{SourceLanguage: req.SourceLanguage, TargetLanguage: req.TargetLanguage}, nil
	}
	source := req.SourceLanguage
	if source == "" {
		source = autoLanguage
	}
	if source != autoLanguage && strings.EqualFold(source, req.TargetLanguage) {
		c.metrics.RecordTranslationBypass()
		return domain.TranslationResult{
			OriginalText:   text,
			TranslatedText: text,
			SourceLanguage: source,
			TargetLanguage: req.TargetLanguage,
			Confidence:     1.0,
		}, nil
	}

	var result domain.TranslationResult
	err := c.post(ctx, "translate", translateRequest{
		Text:              req.Text,
		SourceLanguage:    source,
		TargetLanguage:    req.TargetLanguage,
		EnablePunctuation: req.EnablePunctuation,
	}, &result)
	if err != nil {
		return domain.TranslationResult{}, err
	}
	if result.OriginalText == "" {
		result.OriginalText = req.Text
	}
	return result, nil
}

// TranslateWithDetection lets the service detect the source language.
func (c *Client) TranslateWithDetection(ctx context.Context, req domain.TranslationRequest) (domain.TranslationResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return domain.TranslationResult{TargetLanguage: req.TargetLanguage}, nil
	}

	var result domain.TranslationResult
	err := c.post(ctx, "translate-with-detection", translateRequest{
		Text:              req.Text,
		TargetLanguage:    req.TargetLanguage,
		AutoDetect:        true,
		EnablePunctuation: req.EnablePunctuation,
	}, &result)
	if err != nil {
		return domain.TranslationResult{}, err
	}
	if result.OriginalText == "" {
		result.OriginalText = req.Text
	}
	if result.SourceLanguage == "" {
		result.SourceLanguage = result.DetectedLanguage
	}
	return result, nil
}

// DetectLanguage identifies the language of text.
func (c *Client) DetectLanguage(ctx context.Context, text string) (domain.Detection, error) {
	var detection domain.Detection
	if err := c.post(ctx, "detect-language", map[string]string{"text": text}, &detection); err != nil {
		return domain.Detection{}, err
	}
	return detection, nil
}

// Language is one supported language.
type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name,omitempty"`
	NativeName string `json:"native_name,omitempty"`
}

// Languages lists supported languages. Plain string arrays are accepted too.
func (c *Client) Languages(ctx context.Context) ([]Language, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "languages", http.MethodGet, apiPrefix+"/languages", nil, &raw); err != nil {
		return nil, err
	}

	var languages []Language
	if err := json.Unmarshal(raw, &languages); err == nil {
		return languages, nil
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil, fmt.Errorf("decode languages: %w", err)
	}
	languages = make([]Language, 0, len(codes))
	for _, code := range codes {
		languages = append(languages, Language{Code: code})
	}
	return languages, nil
}

// SpeechRequest asks for synthesized speech.
type SpeechRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
	VoiceName    string `json:"voice_name,omitempty"`
	Provider     string `json:"provider,omitempty"`
}

// Speech is decoded synthesized audio.
type Speech struct {
	Provider     string
	LanguageCode string
	VoiceName    string
	Format       string
	Audio        []byte
}

type speechResponse struct {
	Success      bool   `json:"success"`
	Provider     string `json:"provider"`
	LanguageCode string `json:"language_code"`
	VoiceName    string `json:"voice_name"`
	AudioData    string `json:"audio_data"`
	AudioFormat  string `json:"audio_format"`
	Error        string `json:"error"`
}

// Synthesize converts text to speech.
func (c *Client) Synthesize(ctx context.Context, req SpeechRequest) (Speech, error) {
	var resp speechResponse
	if err := c.post(ctx, "tts", req, &resp); err != nil {
		return Speech{}, err
	}
	if !resp.Success {
		return Speech{}, fmt.Errorf("tts failed: %s", firstNonEmpty(resp.Error, "unknown error"))
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioData)
	if err != nil {
		return Speech{}, fmt.Errorf("decode tts audio: %w", err)
	}
	return Speech{
		Provider:     resp.Provider,
		LanguageCode: firstNonEmpty(resp.LanguageCode, req.LanguageCode),
		VoiceName:    resp.VoiceName,
		Format:       resp.AudioFormat,
		Audio:        audio,
	}, nil
}

// Voice is one synthesis voice.
type Voice struct {
	Name                   string `json:"name"`
	LanguageCode           string `json:"language_code"`
	SSMLGender             string `json:"ssml_gender"`
	NaturalSampleRateHertz int    `json:"natural_sample_rate_hertz"`
}

// Voices lists synthesis voices for a language.
func (c *Client) Voices(ctx context.Context, languageCode string) ([]Voice, error) {
	if languageCode == "" {
		languageCode = "en-US"
	}
	var resp struct {
		Voices []Voice `json:"voices"`
	}
	path := apiPrefix + "/tts/voices/" + url.PathEscape(languageCode)
	if err := c.do(ctx, "voices", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Voices, nil
}

func (c *Client) post(ctx context.Context, operation string, payload any, out any) error {
	return c.do(ctx, operation, http.MethodPost, apiPrefix+"/"+operation, payload, out)
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", operation, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	err = c.roundTrip(req, operation, out)
	c.metrics.RecordTranslation(operation, err, errorType(err), time.Since(started).Seconds())
	if err != nil {
		c.log.Warn().Err(err).Str("operation", operation).Msg("translation request failed")
	}
	return err
}

func (c *Client) roundTrip(req *http.Request, operation string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("translation %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func errorType(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("http_%d", statusErr.StatusCode)
	default:
		return "transport"
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
