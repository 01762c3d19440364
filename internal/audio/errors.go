package audio

import (
	"errors"
	"os/exec"
	"strings"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("microphone unavailable")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrAlreadyActive     = errors.New("audio capture already active")
)

var stderrClasses = []struct {
	kind    error
	markers []string
}{
	{kind: ErrPermissionDenied, markers: []string{"permission denied", "operation not permitted", "access denied"}},
	{kind: ErrUnsupportedFormat, markers: []string{"unknown input format", "invalid data found", "invalid sample format", "not supported"}},
	{kind: ErrDeviceUnavailable, markers: []string{
		"no such file", "no such device", "device or resource busy", "input/output error",
		"connection refused", "cannot open audio device", "no such process",
	}},
}

// classifyStderr maps capture backend output to a sentinel, defaulting to
// ErrDeviceUnavailable.
func classifyStderr(output string) error {
	lower := strings.ToLower(output)
	for _, class := range stderrClasses {
		for _, marker := range class.markers {
			if strings.Contains(lower, marker) {
				return class.kind
			}
		}
	}
	return ErrDeviceUnavailable
}

// Kind returns a short label for err, for metrics and error codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrDeviceUnavailable), errors.Is(err, exec.ErrNotFound):
		return "device_unavailable"
	case errors.Is(err, ErrAlreadyActive):
		return "already_active"
	default:
		return "unknown"
	}
}
