// Package batch recognizes speech by posting periodic WAV chunks to the
// backend's prerecorded transcription endpoint.
package batch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lingualive/internal/audio"
	"lingualive/internal/domain"
	"lingualive/internal/observability/logging"
	"lingualive/internal/ports"
)

const (
	transcribePath   = "/api/v1/deepgram/transcribe"
	defaultInterval  = 3 * time.Second
	defaultTimeout   = 20 * time.Second
	reliableLanguage = 0.8
	maxErrorBody     = 4096
)

// Config configures the batch recognizer.
type Config struct {
	BaseURL    string
	Interval   time.Duration
	Timeout    time.Duration
	AutoDetect bool
	HTTPClient *http.Client
}

// Provider implements ports.TranscriptionProvider by chunked uploads.
type Provider struct {
	cfg Config
	log zerolog.Logger
}

func NewProvider(cfg Config) *Provider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Provider{cfg: cfg, log: logging.WithComponent("batch-recognizer")}
}

type transcribeRequest struct {
	AudioData  string `json:"audio_data"`
	Language   string `json:"language"`
	AutoDetect bool   `json:"auto_detect"`
}

type transcribeResponse struct {
	Success             bool     `json:"success"`
	Transcript          string   `json:"transcript"`
	Confidence          *float64 `json:"confidence"`
	DetectedLanguage    string   `json:"detected_language"`
	DetectionConfidence float64  `json:"detection_confidence"`
	IsReliableDetection bool     `json:"is_reliable_detection"`
	Error               string   `json:"error"`
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &stream{
		provider:  p,
		cfg:       cfg,
		cancel:    cancel,
		events:    make(chan domain.TranscriptFragment, 16),
		closeSend: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run(runCtx)
	return s, nil
}

// transcribe posts one WAV chunk and returns the backend's answer.
func (p *Provider) transcribe(ctx context.Context, wav []byte, language string) (transcribeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(transcribeRequest{
		AudioData:  base64.StdEncoding.EncodeToString(wav),
		Language:   language,
		AutoDetect: p.cfg.AutoDetect,
	})
	if err != nil {
		return transcribeResponse{}, fmt.Errorf("encode transcribe request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+transcribePath, bytes.NewReader(payload))
	if err != nil {
		return transcribeResponse{}, fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return transcribeResponse{}, fmt.Errorf("transcribe chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("transcribe chunk: http %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return transcribeResponse{}, ports.Unrecoverable(err)
		}
		return transcribeResponse{}, err
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return transcribeResponse{}, fmt.Errorf("decode transcribe response: %w", err)
	}
	return out, nil
}

type stream struct {
	provider *Provider
	cfg      ports.StreamingConfig
	cancel   context.CancelFunc

	mu         sync.Mutex
	pcm        bytes.Buffer
	sendClosed bool
	err        error

	index int

	events    chan domain.TranscriptFragment
	closeSend chan struct{}
	done      chan struct{}

	closeSendOnce sync.Once
}

func (s *stream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}
	s.pcm.Write(chunk)
	return nil
}

func (s *stream) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.mu.Lock()
		s.sendClosed = true
		s.mu.Unlock()
		close(s.closeSend)
	})
	return nil
}

func (s *stream) Events() <-chan domain.TranscriptFragment { return s.events }

func (s *stream) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.cancel()
	return s.Wait()
}

func (s *stream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	ticker := time.NewTicker(s.provider.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.flush(ctx); err != nil {
				s.fail(ctx, err)
				return
			}
		case <-s.closeSend:
			if err := s.flush(ctx); err != nil {
				s.fail(ctx, err)
			}
			return
		}
	}
}

// flush uploads everything buffered since the last chunk.
func (s *stream) flush(ctx context.Context) error {
	s.mu.Lock()
	pcm := append([]byte(nil), s.pcm.Bytes()...)
	s.pcm.Reset()
	s.mu.Unlock()

	if len(pcm) == 0 {
		return nil
	}
	wav, err := audio.EncodeWAV(pcm, s.cfg.SampleRate, s.cfg.Channels)
	if err != nil {
		return ports.Unrecoverable(err)
	}

	resp, err := s.provider.transcribe(ctx, wav, s.cfg.Language)
	if err != nil {
		return err
	}
	if !resp.Success {
		s.provider.log.Warn().Str("error", resp.Error).Int("bytes", len(pcm)).Msg("chunk transcription failed; skipping")
		return nil
	}
	text := strings.TrimSpace(resp.Transcript)
	if text == "" {
		return nil
	}

	fragment := domain.TranscriptFragment{
		Text:        text,
		IsFinal:     true,
		ResultIndex: s.index,
		Confidence:  resp.Confidence,
	}
	if resp.IsReliableDetection || resp.DetectionConfidence > reliableLanguage {
		fragment.Language = resp.DetectedLanguage
		fragment.LanguageConfidence = resp.DetectionConfidence
	}
	s.index++

	select {
	case s.events <- fragment:
	case <-ctx.Done():
	}
	return nil
}

func (s *stream) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
