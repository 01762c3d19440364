// Package google streams audio to Google Cloud Speech-to-Text.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lingualive/internal/domain"
	"lingualive/internal/ports"
)

// Config controls the Speech client. Credentials are resolved from
// GOOGLE_APPLICATION_CREDENTIALS by the client library.
type Config struct {
	Language string
	Model    string
	Endpoint string
}

type recognizer interface {
	StreamingRecognize(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error)
	Close() error
}

type speechClient struct {
	client *speech.Client
}

func (c speechClient) StreamingRecognize(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
	return c.client.StreamingRecognize(ctx)
}

func (c speechClient) Close() error { return c.client.Close() }

// Provider implements ports.TranscriptionProvider. The client is created on
// first use.
type Provider struct {
	cfg Config

	mu        sync.Mutex
	client    recognizer
	newClient func(ctx context.Context) (recognizer, error)
}

func NewProvider(cfg Config) *Provider {
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	p := &Provider{cfg: cfg}
	p.newClient = func(ctx context.Context) (recognizer, error) {
		var opts []option.ClientOption
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		}
		client, err := speech.NewClient(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return speechClient{client: client}, nil
	}
	return p
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	rpc, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return nil, classify(fmt.Errorf("failed to open Google stream: %w", err))
	}

	if err := rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: p.streamingConfig(cfg),
		},
	}); err != nil {
		cancel()
		return nil, classify(fmt.Errorf("failed to send Google streaming config: %w", err))
	}

	s := &stream{
		rpc:    rpc,
		cancel: cancel,
		events: make(chan domain.TranscriptFragment, 64),
		done:   make(chan struct{}),
	}
	go s.recvLoop(streamCtx)
	return s, nil
}

// Close releases the Speech client.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *Provider) ensureClient(ctx context.Context) (recognizer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, ports.Unrecoverable(fmt.Errorf("failed to create Google Speech client: %w", err))
	}
	p.client = client
	return client, nil
}

func (p *Provider) streamingConfig(cfg ports.StreamingConfig) *speechpb.StreamingRecognitionConfig {
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	language := cfg.Language
	if strings.TrimSpace(language) == "" {
		language = p.cfg.Language
	}

	recognition := &speechpb.RecognitionConfig{
		Encoding:          speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:   int32(sampleRate),
		AudioChannelCount: int32(channels),
		LanguageCode:      language,
		MaxAlternatives:   int32(cfg.MaxAlternatives),
		Model:             p.cfg.Model,
	}
	return &speechpb.StreamingRecognitionConfig{
		Config:         recognition,
		InterimResults: cfg.InterimResults,
	}
}

// classify marks configuration and credential failures unrecoverable.
// Stream duration expiry is a normal end.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument:
		return ports.Unrecoverable(err)
	case codes.OutOfRange:
		return nil
	}
	return err
}

type stream struct {
	rpc    speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc

	events chan domain.TranscriptFragment
	done   chan struct{}
	index  int

	sendMu     sync.Mutex
	sendClosed bool

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func (s *stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}
	err := s.rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
	})
	if errors.Is(err, io.EOF) {
		// The real error surfaces from Recv.
		return nil
	}
	return err
}

func (s *stream) CloseSend() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true
	return s.rpc.CloseSend()
}

func (s *stream) Events() <-chan domain.TranscriptFragment { return s.events }

func (s *stream) Wait() error {
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.closeOnce.Do(s.cancel)
	return s.Wait()
}

func (s *stream) recvLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	for {
		resp, err := s.rpc.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.setErr(classify(err))
			}
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != int32(codes.OK) {
			s.setErr(classify(status.ErrorProto(st)))
			return
		}
		for _, result := range resp.GetResults() {
			alternatives := result.GetAlternatives()
			if len(alternatives) == 0 {
				continue
			}
			text := strings.TrimSpace(alternatives[0].GetTranscript())
			if text == "" {
				continue
			}
			fragment := domain.TranscriptFragment{
				Text:        text,
				IsFinal:     result.GetIsFinal(),
				ResultIndex: s.index,
				Language:    result.GetLanguageCode(),
			}
			if result.GetIsFinal() {
				fragment.Confidence = domain.Confidence(float64(alternatives[0].GetConfidence()))
				s.index++
			}
			select {
			case s.events <- fragment:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *stream) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
