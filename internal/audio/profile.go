package audio

import (
	"runtime"
	"strings"

	"lingualive/internal/ports"
)

// Profile selects platform capture constraints.
type Profile int

const (
	ProfileDesktop Profile = iota
	ProfileMobile
)

func (p Profile) String() string {
	if p == ProfileMobile {
		return "mobile"
	}
	return "desktop"
}

// DetectProfile resolves a configured platform ("auto", "desktop" or
// "mobile"). Auto inspects the running OS.
func DetectProfile(platform string) Profile {
	return detectProfile(platform, runtime.GOOS)
}

func detectProfile(platform, goos string) Profile {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "mobile":
		return ProfileMobile
	case "desktop":
		return ProfileDesktop
	}
	switch goos {
	case "android", "ios":
		return ProfileMobile
	default:
		return ProfileDesktop
	}
}

// Constraints applies the profile to base. Both profiles request echo
// cancellation, noise suppression and auto gain; mobile also forces 16 kHz mono.
func Constraints(profile Profile, base ports.AudioConfig) ports.AudioConfig {
	cfg := base
	cfg.EchoCancellation = true
	cfg.NoiseSuppression = true
	cfg.AutoGainControl = true
	if profile == ProfileMobile {
		cfg.SampleRate = 16000
		cfg.Channels = 1
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return cfg
}

// MaxAlternatives is the recognizer alternative count for the profile.
func MaxAlternatives(profile Profile) int {
	if profile == ProfileMobile {
		return 1
	}
	return 3
}
