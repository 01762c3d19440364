// Package local runs an on-device recognizer process that reads PCM on
// stdin and prints transcripts on stdout.
package local

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lingualive/internal/domain"
	"lingualive/internal/observability/logging"
	"lingualive/internal/ports"
)

const stopWindow = 1200 * time.Millisecond

// Config names the recognizer binary. Args may contain {rate}, {channels}
// and {language} placeholders.
type Config struct {
	Command string
	Args    []string
}

// Provider implements ports.TranscriptionProvider over a subprocess.
type Provider struct {
	cfg Config
	log zerolog.Logger
}

func NewProvider(cfg Config) *Provider {
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = "whisper-stream"
	}
	return &Provider{cfg: cfg, log: logging.WithComponent("local-recognizer")}
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	cmd := exec.CommandContext(ctx, p.cfg.Command, expandArgs(p.cfg.Args, cfg)...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, ports.Unrecoverable(fmt.Errorf("local recognizer %q unavailable: %w", p.cfg.Command, err))
		}
		return nil, fmt.Errorf("failed to start local recognizer: %w", err)
	}

	p.log.Debug().Str("command", p.cfg.Command).Int("pid", cmd.Process.Pid).Msg("local recognizer started")

	s := &process{
		cmd:     cmd,
		stdin:   stdin,
		stderr:  stderr,
		events:  make(chan domain.TranscriptFragment, 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		log:     p.log,
	}
	go s.readLoop(stdout)
	return s, nil
}

func expandArgs(args []string, cfg ports.StreamingConfig) []string {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}
	replacer := strings.NewReplacer(
		"{rate}", strconv.Itoa(rate),
		"{channels}", strconv.Itoa(channels),
		"{language}", language,
	)
	out := make([]string, 0, len(args))
	for _, arg := range args {
		out = append(out, replacer.Replace(arg))
	}
	return out
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *lockedBuffer
	log    zerolog.Logger

	events  chan domain.TranscriptFragment
	closing chan struct{}
	done    chan struct{}

	sendMu     sync.Mutex
	sendClosed bool

	stateMu  sync.Mutex
	stopping bool
	err      error

	stopOnce sync.Once
}

// line is the JSON line format. Plain-text lines are treated as final.
type line struct {
	Text       string   `json:"text"`
	Final      *bool    `json:"final"`
	Confidence *float64 `json:"confidence"`
	Language   string   `json:"language"`
}

func (s *process) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}
	if _, err := s.stdin.Write(chunk); err != nil {
		return fmt.Errorf("failed to write audio to local recognizer: %w", err)
	}
	return nil
}

func (s *process) CloseSend() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true
	return s.stdin.Close()
}

func (s *process) Events() <-chan domain.TranscriptFragment { return s.events }

func (s *process) Wait() error {
	<-s.done
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.err
}

func (s *process) Close() error {
	s.stopOnce.Do(func() {
		s.stateMu.Lock()
		s.stopping = true
		s.stateMu.Unlock()
		close(s.closing)

		_ = s.CloseSend()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(os.Interrupt)
		}
		select {
		case <-s.done:
		case <-time.After(stopWindow):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
		}
	})
	return s.Wait()
}

func (s *process) readLoop(stdout io.Reader) {
	index := 0
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fragment, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		fragment.ResultIndex = index
		if fragment.IsFinal {
			index++
		}
		select {
		case s.events <- fragment:
		case <-s.closing:
		}
	}

	waitErr := s.cmd.Wait()

	s.stateMu.Lock()
	if waitErr != nil && !s.stopping {
		output := strings.TrimSpace(s.stderr.String())
		s.err = fmt.Errorf("local recognizer exited: %v: %s", waitErr, output)
	}
	s.stateMu.Unlock()

	close(s.events)
	close(s.done)
}

func parseLine(raw string) (domain.TranscriptFragment, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.TranscriptFragment{}, false
	}

	fragment := domain.TranscriptFragment{IsFinal: true}
	var parsed line
	if strings.HasPrefix(raw, "{") && json.Unmarshal([]byte(raw), &parsed) == nil {
		fragment.Text = parsed.Text
		if parsed.Final != nil {
			fragment.IsFinal = *parsed.Final
		}
		fragment.Confidence = parsed.Confidence
		fragment.Language = parsed.Language
	} else {
		fragment.Text = raw
	}

	fragment.Text = cleanText(fragment.Text)
	if fragment.Text == "" {
		return domain.TranscriptFragment{}, false
	}
	return fragment, true
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
