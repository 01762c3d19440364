// Package wsstream runs recognizer streams over a websocket: binary PCM
// frames out, JSON results in.
package wsstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"lingualive/internal/domain"
	"lingualive/internal/ports"
)

// Result is one decoded recognizer result. The session assigns its
// ResultIndex: results share an index until a final one closes it.
type Result struct {
	Text               string
	Final              bool
	Confidence         *float64
	Language           string
	LanguageConfidence float64
}

// Decoder turns one provider message into zero or more results. A non-nil
// error ends the stream with that error.
type Decoder func(payload []byte) ([]Result, error)

// Options configures Dial.
type Options struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	Decode Decoder
	// CloseMessage is sent as a text frame after the last audio frame.
	// Nil sends a websocket close frame instead.
	CloseMessage []byte
	// Name prefixes errors, e.g. "Deepgram".
	Name string
}

// Dial opens the socket and starts the read and write loops. The stream
// is closed when ctx is done.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	if opts.Decode == nil {
		return nil, errors.New("wsstream: decoder is required")
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	name := opts.Name
	if name == "" {
		name = "recognizer"
	}

	conn, resp, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		err = fmt.Errorf("failed to connect to %s websocket: %w", name, err)
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ports.Unrecoverable(err)
		}
		return nil, err
	}

	session := &Session{
		conn:         conn,
		decode:       opts.Decode,
		closeMessage: opts.CloseMessage,
		name:         name,
		events:       make(chan domain.TranscriptFragment, 64),
		audio:        make(chan []byte, 32),
		closing:      make(chan struct{}),
		readDone:     make(chan struct{}),
		done:         make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

// Session implements ports.StreamingSession.
type Session struct {
	conn         *websocket.Conn
	decode       Decoder
	closeMessage []byte
	name         string

	events   chan domain.TranscriptFragment
	audio    chan []byte
	closing  chan struct{}
	readDone chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	index int

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *Session) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

func (s *Session) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *Session) Events() <-chan domain.TranscriptFragment {
	return s.events
}

func (s *Session) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *Session) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	if isGracefulClose(err) {
		return
	}
	select {
	case <-s.closing:
		// Local close; the read error is ours.
		return
	default:
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// isGracefulClose reports whether err, possibly wrapped, is a close frame
// the peer sends when it ends the stream on purpose.
func isGracefulClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	switch closeErr.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
		return true
	}
	return false
}

func (s *Session) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				s.finishSend()
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("failed to send audio: %w", err))
				return
			}
		case <-s.readDone:
			return
		}
	}
}

func (s *Session) finishSend() {
	var err error
	if s.closeMessage != nil {
		err = s.conn.WriteMessage(websocket.TextMessage, s.closeMessage)
	} else {
		err = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	if err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read %s event: %w", s.name, err))
			return
		}

		results, err := s.decode(payload)
		for _, result := range results {
			s.emit(result)
		}
		if err != nil {
			s.setErr(err)
			_ = s.conn.Close()
			return
		}
	}
}

func (s *Session) emit(result Result) {
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return
	}
	fragment := domain.TranscriptFragment{
		Text:               text,
		IsFinal:            result.Final,
		ResultIndex:        s.index,
		Confidence:         result.Confidence,
		Language:           result.Language,
		LanguageConfidence: result.LanguageConfidence,
	}
	if result.Final {
		s.index++
	}
	select {
	case s.events <- fragment:
	case <-s.closing:
	}
}
