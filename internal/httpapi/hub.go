package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lingualive/internal/domain"
	"lingualive/internal/observability/logging"
)

const (
	eventSession = "session"
	eventInterim = "interim"
	eventEntry   = "entry"
	eventError   = "error"
	eventLevel   = "level"

	clientBuffer = 64
	writeWait    = 5 * time.Second
)

// Event is one message pushed to websocket clients.
type Event struct {
	Type    string                     `json:"type"`
	State   domain.SessionState        `json:"state,omitempty"`
	Reason  domain.SessionStateReason  `json:"reason,omitempty"`
	Code    domain.ErrorCode           `json:"code,omitempty"`
	Message string                     `json:"message,omitempty"`
	Detail  string                     `json:"detail,omitempty"`
	Interim *domain.TranscriptFragment `json:"interim,omitempty"`
	Entry   *domain.TranscriptEntry    `json:"entry,omitempty"`
	Level   *float64                   `json:"level,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session events out to websocket clients. It implements
// ports.EventSink.
type Hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	levelMu     sync.Mutex
	levels      func(ctx context.Context) <-chan float64
	levelCancel context.CancelFunc
}

func NewHub() *Hub {
	return &Hub{
		log:     logging.WithComponent("event-hub"),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			// The control API binds to loopback by default.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetLevelSource sets the microphone level feed started with each
// recording.
func (h *Hub) SetLevelSource(levels func(ctx context.Context) <-chan float64) {
	h.levelMu.Lock()
	defer h.levelMu.Unlock()
	h.levels = levels
}

func (h *Hub) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	h.broadcast(Event{
		Type:    eventSession,
		State:   state,
		Reason:  reason,
		Message: sessionReasonMessage(reason),
	})
	if state == domain.SessionStateRecording && reason == domain.SessionReasonRecordingStarted {
		h.startLevels()
	} else if state != domain.SessionStateRecording {
		h.stopLevels()
	}
}

func (h *Hub) InterimTranscript(fragment domain.TranscriptFragment) {
	h.broadcast(Event{Type: eventInterim, Interim: &fragment})
}

func (h *Hub) EntryRecorded(entry domain.TranscriptEntry) {
	h.broadcast(Event{Type: eventEntry, Entry: &entry})
}

func (h *Hub) SessionError(code domain.ErrorCode, detail string) {
	h.broadcast(Event{
		Type:    eventError,
		Code:    code,
		Message: errorMessage(code, detail),
		Detail:  detail,
	})
}

// ClientCount reports connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Int("clients", total).Msg("event client connected")

	go h.writeLoop(c)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

// Close disconnects every client and stops level forwarding.
func (h *Hub) Close() {
	h.stopLevels()
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
	h.log.Debug().Int("clients", total).Msg("event client disconnected")
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug().Err(err).Msg("event write failed")
			return
		}
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
}

// broadcast never blocks. Slow clients miss events.
func (h *Hub) broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("type", ev.Type).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Debug().Str("type", ev.Type).Msg("event client too slow; dropping event")
		}
	}
}

func (h *Hub) startLevels() {
	h.levelMu.Lock()
	defer h.levelMu.Unlock()
	if h.levels == nil {
		return
	}
	if h.levelCancel != nil {
		h.levelCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.levelCancel = cancel
	levels := h.levels(ctx)
	go func() {
		for level := range levels {
			h.broadcast(Event{Type: eventLevel, Level: &level})
		}
	}()
}

func (h *Hub) stopLevels() {
	h.levelMu.Lock()
	defer h.levelMu.Unlock()
	if h.levelCancel != nil {
		h.levelCancel()
		h.levelCancel = nil
	}
}
