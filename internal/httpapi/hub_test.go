package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lingualive/internal/domain"
)

func TestHubBroadcastsEntries(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	conn := dialHub(t, hub)

	hub.EntryRecorded(domain.TranscriptEntry{ID: "e1", OriginalText: "Hello.", TranslatedText: "Hola."})

	ev := readEvent(t, conn)
	if ev.Type != eventEntry || ev.Entry == nil || ev.Entry.TranslatedText != "Hola." {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestHubSessionAndErrorEventsCarryMessages(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	conn := dialHub(t, hub)

	hub.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonNoTranscript)
	hub.SessionError(domain.ErrorCodePermissionDenied, "denied by user")

	session := readEvent(t, conn)
	if session.Type != eventSession || session.State != domain.SessionStateIdle || session.Message != "No speech captured" {
		t.Fatalf("unexpected session event: %+v", session)
	}
	failure := readEvent(t, conn)
	if failure.Type != eventError || failure.Code != domain.ErrorCodePermissionDenied || failure.Detail != "denied by user" {
		t.Fatalf("unexpected error event: %+v", failure)
	}
	if !strings.HasPrefix(failure.Message, "Microphone access denied") {
		t.Fatalf("unexpected error message: %q", failure.Message)
	}
}

func TestHubForwardsLevelsWhileRecording(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	stopped := make(chan struct{})
	hub.SetLevelSource(func(ctx context.Context) <-chan float64 {
		out := make(chan float64)
		go func() {
			defer close(out)
			defer close(stopped)
			select {
			case out <- 0.5:
			case <-ctx.Done():
				return
			}
			<-ctx.Done()
		}()
		return out
	})
	conn := dialHub(t, hub)

	hub.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)

	if ev := readEvent(t, conn); ev.Type != eventSession {
		t.Fatalf("expected session event first, got %+v", ev)
	}
	ev := readEvent(t, conn)
	if ev.Type != eventLevel || ev.Level == nil || *ev.Level != 0.5 {
		t.Fatalf("unexpected level event: %+v", ev)
	}

	hub.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonStopping)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected level source to be canceled")
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	conn := dialHub(t, hub)

	hub.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal closure, got %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients after close")
	}
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}
