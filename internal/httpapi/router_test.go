package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"lingualive/internal/audio"
	"lingualive/internal/domain"
	"lingualive/internal/ports"
	"lingualive/internal/transcript"
	"lingualive/internal/usecase"
)

func TestLivenessAndReadiness(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeController{})
	for path, want := range map[string]string{"/v1/liveness": "ok", "/v1/readiness": "ready"} {
		status, body := request(t, srv, http.MethodGet, path, "")
		if status != http.StatusOK || body != want {
			t.Fatalf("%s: unexpected response %d %q", path, status, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "lingualive_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := httptest.NewServer(NewRouter(&fakeController{}, nil, reg))
	t.Cleanup(srv.Close)

	status, body := request(t, srv, http.MethodGet, "/metrics", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if !strings.Contains(body, "lingualive_test_total 1") {
		t.Fatalf("expected registered counter in metrics output, got %q", body)
	}
}

func TestStartReturnsStatus(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{status: domain.Status{State: domain.SessionStateRecording, Active: true, Provider: "relay"}}
	srv := newTestServer(t, ctrl)

	status, body := request(t, srv, http.MethodPost, "/v1/session/start", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", status, body)
	}
	var got domain.Status
	decode(t, body, &got)
	if got.State != domain.SessionStateRecording || !got.Active || got.Provider != "relay" {
		t.Fatalf("unexpected status body: %+v", got)
	}
	if ctrl.calls("start") != 1 {
		t.Fatalf("expected one start call")
	}
}

func TestErrorStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		code   domain.ErrorCode
	}{
		{name: "session active", err: usecase.ErrSessionActive, status: http.StatusConflict, code: codeConflict},
		{name: "ledger active", err: fmt.Errorf("start: %w", transcript.ErrSessionActive), status: http.StatusConflict, code: codeConflict},
		{name: "permission", err: fmt.Errorf("open: %w", audio.ErrPermissionDenied), status: http.StatusServiceUnavailable, code: domain.ErrorCodePermissionDenied},
		{name: "device", err: audio.ErrDeviceUnavailable, status: http.StatusServiceUnavailable, code: domain.ErrorCodeDeviceUnavailable},
		{name: "unrecoverable", err: ports.Unrecoverable(errors.New("bad key")), status: http.StatusServiceUnavailable, code: domain.ErrorCodeTranscription},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: domain.ErrorCodeStartup},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, &fakeController{startErr: tc.err})
			status, body := request(t, srv, http.MethodPost, "/v1/session/start", "")
			if status != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, status)
			}
			var got problem
			decode(t, body, &got)
			if got.Code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, got.Code)
			}
			if got.Detail != tc.err.Error() {
				t.Fatalf("expected detail %q, got %q", tc.err.Error(), got.Detail)
			}
			if got.Message == "" {
				t.Fatalf("expected message")
			}
		})
	}
}

func TestStopReturnsResult(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{stopResult: domain.StopResult{
		Summary:    domain.Summary{SessionID: "s1", WordCount: 2, EntryCount: 1},
		Transcript: "Hello.",
		Copied:     true,
	}}
	srv := newTestServer(t, ctrl)

	status, body := request(t, srv, http.MethodPost, "/v1/session/stop", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", status, body)
	}
	var got domain.StopResult
	decode(t, body, &got)
	if got.Transcript != "Hello." || !got.Copied || got.Summary.EntryCount != 1 {
		t.Fatalf("unexpected stop result: %+v", got)
	}
}

func TestStopWithoutSessionConflicts(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeController{stopErr: usecase.ErrNoActiveSession})
	status, _ := request(t, srv, http.MethodPost, "/v1/session/stop", "")
	if status != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", status)
	}
}

func TestAbortWithoutSessionIsNoop(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{abortErr: usecase.ErrNoActiveSession}
	srv := newTestServer(t, ctrl)
	status, _ := request(t, srv, http.MethodPost, "/v1/session/abort", "")
	if status != http.StatusOK {
		t.Fatalf("expected ok, got %d", status)
	}
	if ctrl.calls("abort") != 1 {
		t.Fatalf("expected abort call")
	}
}

func TestResetCallsForceReset(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	srv := newTestServer(t, ctrl)
	status, _ := request(t, srv, http.MethodPost, "/v1/session/reset", "")
	if status != http.StatusOK {
		t.Fatalf("expected ok, got %d", status)
	}
	if ctrl.calls("reset") != 1 {
		t.Fatalf("expected force reset call")
	}
}

func TestSwitchProvider(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	srv := newTestServer(t, ctrl)

	status, body := request(t, srv, http.MethodPut, "/v1/session/provider", `{"provider":"google"}`)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", status, body)
	}
	if got := ctrl.lastProvider(); got == nil || got.String() != "google" {
		t.Fatalf("expected google provider, got %v", got)
	}

	status, _ = request(t, srv, http.MethodPut, "/v1/session/provider", `{"provider":"carrier-pigeon"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown provider, got %d", status)
	}
	status, _ = request(t, srv, http.MethodPut, "/v1/session/provider", `not json`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad request for invalid body, got %d", status)
	}
}

func TestTranscriptListsEntries(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{
		summary: domain.Summary{EntryCount: 1, WordCount: 1},
		entries: []domain.TranscriptEntry{{ID: "e1", OriginalText: "Hello.", TranslatedText: "Hola."}},
	}
	srv := newTestServer(t, ctrl)

	status, body := request(t, srv, http.MethodGet, "/v1/transcript", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	var got transcriptResponse
	decode(t, body, &got)
	if len(got.Entries) != 1 || got.Entries[0].TranslatedText != "Hola." || got.Summary.EntryCount != 1 {
		t.Fatalf("unexpected transcript body: %+v", got)
	}
}

func TestTranscriptEmptyListIsArray(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeController{})
	_, body := request(t, srv, http.MethodGet, "/v1/transcript", "")
	if !strings.Contains(body, `"entries":[]`) {
		t.Fatalf("expected empty entries array, got %s", body)
	}
}

func TestClearTranscript(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	srv := newTestServer(t, ctrl)
	status, _ := request(t, srv, http.MethodDelete, "/v1/transcript", "")
	if status != http.StatusNoContent {
		t.Fatalf("expected no content, got %d", status)
	}

	busy := newTestServer(t, &fakeController{clearErr: usecase.ErrSessionActive})
	status, _ = request(t, busy, http.MethodDelete, "/v1/transcript", "")
	if status != http.StatusConflict {
		t.Fatalf("expected conflict while recording, got %d", status)
	}
}

func TestExportSetsDownloadHeaders(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{export: transcript.Export{
		Filename:    "transcript_2026-10-14.csv",
		ContentType: "text/csv; charset=utf-8",
		Content:     []byte("Original,Translation\n"),
	}}
	srv := newTestServer(t, ctrl)

	resp, err := http.Get(srv.URL + "/v1/transcript/export?format=csv")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="transcript_2026-10-14.csv"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if got := ctrl.lastFormat(); got != "csv" {
		t.Fatalf("expected csv format, got %q", got)
	}
}

func TestExportDefaultsToText(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	srv := newTestServer(t, ctrl)
	request(t, srv, http.MethodGet, "/v1/transcript/export", "")
	if got := ctrl.lastFormat(); got != string(transcript.FormatText) {
		t.Fatalf("expected text format, got %q", got)
	}

	bad := newTestServer(t, &fakeController{exportErr: errors.New(`unsupported export format "pdf"`)})
	status, _ := request(t, bad, http.MethodGet, "/v1/transcript/export?format=pdf", "")
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", status)
	}
}

func TestRecordingDownload(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{recording: []byte("RIFFdata"), recordingFormat: "audio/wav"}
	srv := newTestServer(t, ctrl)

	resp, err := http.Get(srv.URL + "/v1/session/audio")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "audio/wav" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	missing := newTestServer(t, &fakeController{recordingErr: audio.ErrNoRecording})
	status, _ := request(t, missing, http.MethodGet, "/v1/session/audio", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", status)
	}
}

func newTestServer(t *testing.T, ctrl Controller) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(ctrl, NewHub(), prometheus.NewRegistry()))
	t.Cleanup(srv.Close)
	return srv
}

func request(t *testing.T, srv *httptest.Server, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(data)
}

func decode(t *testing.T, body string, out any) {
	t.Helper()
	if err := json.Unmarshal([]byte(body), out); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

type fakeController struct {
	mu sync.Mutex

	status          domain.Status
	summary         domain.Summary
	entries         []domain.TranscriptEntry
	stopResult      domain.StopResult
	export          transcript.Export
	recording       []byte
	recordingFormat string

	startErr     error
	stopErr      error
	abortErr     error
	clearErr     error
	exportErr    error
	recordingErr error

	counts   map[string]int
	provider domain.Provider
	format   string
}

func (f *fakeController) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[name]++
}

func (f *fakeController) calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

func (f *fakeController) lastProvider() domain.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.provider
}

func (f *fakeController) lastFormat() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

func (f *fakeController) Start(context.Context) error {
	f.record("start")
	return f.startErr
}

func (f *fakeController) Stop(context.Context) (domain.StopResult, error) {
	f.record("stop")
	return f.stopResult, f.stopErr
}

func (f *fakeController) Abort() error {
	f.record("abort")
	return f.abortErr
}

func (f *fakeController) ForceReset() { f.record("reset") }

func (f *fakeController) SwitchProvider(_ context.Context, provider domain.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provider = provider
	return nil
}

func (f *fakeController) Status() domain.Status { return f.status }

func (f *fakeController) Summary() domain.Summary { return f.summary }

func (f *fakeController) Entries() []domain.TranscriptEntry { return f.entries }

func (f *fakeController) Export(format string) (transcript.Export, error) {
	f.mu.Lock()
	f.format = format
	f.mu.Unlock()
	return f.export, f.exportErr
}

func (f *fakeController) Clear() error { return f.clearErr }

func (f *fakeController) Recording() ([]byte, string, error) {
	return f.recording, f.recordingFormat, f.recordingErr
}
