package domain

import (
	"fmt"
	"strings"
)

// Provider selects the recognition backend for a session.
// It is either LocalProvider or RemoteProvider.
type Provider interface {
	isProvider()
	String() string
}

// RemoteService names a streamed or batch remote recognizer.
type RemoteService string

const (
	RemoteDeepgram RemoteService = "deepgram"
	RemoteRelay    RemoteService = "relay"
	RemoteGoogle   RemoteService = "google"
	RemoteBatch    RemoteService = "batch"
)

// LocalProvider is an on-device recognizer.
type LocalProvider struct{}

func (LocalProvider) isProvider() {}

func (LocalProvider) String() string { return "local" }

// RemoteProvider streams audio to a remote recognizer.
type RemoteProvider struct {
	Service RemoteService
}

func (RemoteProvider) isProvider() {}

func (p RemoteProvider) String() string { return string(p.Service) }

// ParseProvider maps a configuration value onto a Provider.
func ParseProvider(value string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "local", "browser", "device":
		return LocalProvider{}, nil
	case "", string(RemoteRelay):
		return RemoteProvider{Service: RemoteRelay}, nil
	case string(RemoteDeepgram):
		return RemoteProvider{Service: RemoteDeepgram}, nil
	case string(RemoteGoogle):
		return RemoteProvider{Service: RemoteGoogle}, nil
	case string(RemoteBatch):
		return RemoteProvider{Service: RemoteBatch}, nil
	default:
		return nil, fmt.Errorf("unknown speech provider %q", value)
	}
}
