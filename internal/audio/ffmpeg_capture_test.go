package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"lingualive/internal/ports"
)

func TestFFMPEGCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	capture := NewFFMPEGCapture(script)

	stream, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := stream.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := stream.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

func TestFFMPEGCaptureClassifiesPermissionDenied(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "denied.sh", "#!/usr/bin/env bash\necho 'default: Permission denied' 1>&2\nexit 1\n")
	capture := NewFFMPEGCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFFMPEGCaptureEarlyExitDefaultsToDeviceUnavailable(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	_, err := NewFFMPEGCapture(script).Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
}

func TestFFMPEGCaptureMissingBinary(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "no-such-ffmpeg")
	_, err := NewFFMPEGCapture(missing).Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable for missing binary, got %v", err)
	}
}

func TestBuildFFMPEGArgsAppliesFilters(t *testing.T) {
	t.Parallel()

	args := buildFFMPEGArgs(ports.AudioConfig{
		SampleRate:       48000,
		Channels:         2,
		InputFormat:      "alsa",
		InputDevice:      "hw:1",
		NoiseSuppression: true,
		AutoGainControl:  true,
	})
	want := []string{
		"-nostdin", "-hide_banner", "-loglevel", "warning",
		"-f", "alsa", "-i", "hw:1",
		"-af", "afftdn,dynaudnorm",
		"-ac", "2", "-ar", "48000", "-f", "s16le", "-",
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("unexpected args:\n got %v\nwant %v", args, want)
	}

	plain := buildFFMPEGArgs(ports.AudioConfig{})
	for _, arg := range plain {
		if arg == "-af" {
			t.Fatalf("unexpected filter in %v", plain)
		}
	}
	if plain[5] != "pulse" || plain[7] != "default" {
		t.Fatalf("unexpected defaults: %v", plain)
	}
}

func TestClassifyStderr(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"Operation not permitted":                ErrPermissionDenied,
		"Unknown input format: 'pulsee'":         ErrUnsupportedFormat,
		"hw:3: No such device":                   ErrDeviceUnavailable,
		"Device or resource busy":                ErrDeviceUnavailable,
		"something completely different failed": ErrDeviceUnavailable,
	}
	for output, want := range cases {
		if got := classifyStderr(output); got != want {
			t.Fatalf("classify %q: got %v want %v", output, got, want)
		}
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
