package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"lingualive/internal/config"
	"lingualive/internal/domain"
)

func testConfig() config.Config {
	return config.Config{
		Service:     config.ServiceConfig{HTTPAddr: "127.0.0.1:0"},
		Audio:       config.AudioConfig{RecorderCommand: "ffmpeg", InputDevice: "default", InputFormat: "pulse", Platform: "desktop"},
		Recognition: config.RecognitionConfig{Provider: domain.RemoteProvider{Service: domain.RemoteRelay}},
		Translation: config.TranslationConfig{SourceLanguage: "en", TargetLanguage: "es"},
	}
}

func TestRuntimeInfo(t *testing.T) {
	t.Parallel()

	app := &App{cfg: testConfig()}
	info := app.runtimeInfo()
	if info["provider"] != "relay" || info["sourceLanguage"] != "en" || info["targetLanguage"] != "es" {
		t.Fatalf("unexpected runtime info: %+v", info)
	}
	if _, ok := info["apiKey"]; ok {
		t.Fatalf("runtime info must not expose credentials")
	}

	empty := &App{}
	if got := empty.runtimeInfo()["provider"]; got != "" {
		t.Fatalf("expected empty provider without config, got %q", got)
	}
}

func TestServeUntilCanceled(t *testing.T) {
	app, err := NewApp(testConfig())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/liveness")
	if err != nil {
		cancel()
		t.Fatalf("liveness request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		cancel()
		t.Fatalf("unexpected liveness response %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}
