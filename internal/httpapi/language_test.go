package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"lingualive/internal/domain"
	"lingualive/internal/translation"
)

func TestLanguageRoutesRequireService(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeController{})
	status, _ := request(t, srv, http.MethodGet, "/v1/languages", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected language routes to be absent, got %d", status)
	}
}

func TestLanguagesList(t *testing.T) {
	t.Parallel()

	svc := &fakeLanguages{languages: []translation.Language{{Code: "es", Name: "Spanish", NativeName: "Español"}}}
	srv := newLanguageServer(t, svc)

	status, body := request(t, srv, http.MethodGet, "/v1/languages", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	var got []translation.Language
	decode(t, body, &got)
	if len(got) != 1 || got[0].NativeName != "Español" {
		t.Fatalf("unexpected languages: %+v", got)
	}
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	svc := &fakeLanguages{detection: domain.Detection{DetectedLanguage: "fr", Confidence: 0.97, IsReliable: true}}
	srv := newLanguageServer(t, svc)

	status, body := request(t, srv, http.MethodPost, "/v1/languages/detect", `{"text":"bonjour"}`)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", status, body)
	}
	var got domain.Detection
	decode(t, body, &got)
	if got.DetectedLanguage != "fr" || !got.IsReliable {
		t.Fatalf("unexpected detection: %+v", got)
	}
	svc.mu.Lock()
	detected := svc.detectedText
	svc.mu.Unlock()
	if detected != "bonjour" {
		t.Fatalf("expected text forwarded, got %q", detected)
	}

	status, _ = request(t, srv, http.MethodPost, "/v1/languages/detect", `{"text":"  "}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad request for blank text, got %d", status)
	}
}

func TestVoicesUsesPathLanguage(t *testing.T) {
	t.Parallel()

	svc := &fakeLanguages{voices: []translation.Voice{{Name: "es-ES-A", LanguageCode: "es-ES"}}}
	srv := newLanguageServer(t, svc)

	status, body := request(t, srv, http.MethodGet, "/v1/tts/voices/es-ES", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if !strings.Contains(body, `"voices":[{"name":"es-ES-A"`) {
		t.Fatalf("unexpected voices body: %s", body)
	}
	svc.mu.Lock()
	language := svc.voiceLanguage
	svc.mu.Unlock()
	if language != "es-ES" {
		t.Fatalf("expected es-ES, got %q", language)
	}
}

func TestSynthesizeStreamsAudio(t *testing.T) {
	t.Parallel()

	svc := &fakeLanguages{speech: translation.Speech{Format: "mp3", VoiceName: "es-ES-A", Audio: []byte("ID3audio")}}
	srv := newLanguageServer(t, svc)

	resp, err := http.Post(srv.URL+"/v1/tts", "application/json", strings.NewReader(`{"text":"Hola","language_code":"es-ES"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "audio/mpeg" || resp.Header.Get("X-Voice-Name") != "es-ES-A" {
		t.Fatalf("unexpected headers: %v", resp.Header)
	}
	if string(body) != "ID3audio" {
		t.Fatalf("unexpected audio body %q", body)
	}

	status, _ := request(t, srv, http.MethodPost, "/v1/tts", `{"text":"Hola"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad request without language_code, got %d", status)
	}
}

func TestLanguageUpstreamFailure(t *testing.T) {
	t.Parallel()

	unavailable := &translation.StatusError{Operation: "languages", StatusCode: http.StatusServiceUnavailable, Body: "down"}
	srv := newLanguageServer(t, &fakeLanguages{err: unavailable})
	status, body := request(t, srv, http.MethodGet, "/v1/languages", "")
	if status != http.StatusBadGateway {
		t.Fatalf("expected bad gateway, got %d", status)
	}
	var got problem
	decode(t, body, &got)
	if got.Code != domain.ErrorCodeTranslation {
		t.Fatalf("expected translation code, got %q", got.Code)
	}

	other := newLanguageServer(t, &fakeLanguages{err: fmt.Errorf("decode languages: boom")})
	status, _ = request(t, other, http.MethodGet, "/v1/languages", "")
	if status != http.StatusInternalServerError {
		t.Fatalf("expected internal error, got %d", status)
	}
}

func TestSpeechContentType(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"mp3":        "audio/mpeg",
		"WAV":        "audio/wav",
		"ogg_opus":   "audio/ogg",
		"":           "application/octet-stream",
		"flac":       "audio/flac",
		"audio/webm": "audio/webm",
	}
	for format, want := range cases {
		if got := speechContentType(format); got != want {
			t.Fatalf("%q: expected %q, got %q", format, want, got)
		}
	}
}

func newLanguageServer(t *testing.T, svc LanguageService) *httptest.Server {
	t.Helper()
	router := NewRouter(&fakeController{}, nil, prometheus.NewRegistry(), WithLanguageService(svc))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

type fakeLanguages struct {
	mu sync.Mutex

	languages []translation.Language
	detection domain.Detection
	voices    []translation.Voice
	speech    translation.Speech
	err       error

	detectedText  string
	voiceLanguage string
}

func (f *fakeLanguages) Languages(context.Context) ([]translation.Language, error) {
	return f.languages, f.err
}

func (f *fakeLanguages) DetectLanguage(_ context.Context, text string) (domain.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detectedText = text
	return f.detection, f.err
}

func (f *fakeLanguages) Voices(_ context.Context, languageCode string) ([]translation.Voice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voiceLanguage = languageCode
	return f.voices, f.err
}

func (f *fakeLanguages) Synthesize(context.Context, translation.SpeechRequest) (translation.Speech, error) {
	return f.speech, f.err
}
