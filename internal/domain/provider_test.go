package domain

import "testing"

func TestParseProvider(t *testing.T) {
	t.Parallel()

	cases := map[string]Provider{
		"":         RemoteProvider{Service: RemoteRelay},
		"relay":    RemoteProvider{Service: RemoteRelay},
		"Deepgram": RemoteProvider{Service: RemoteDeepgram},
		"google":   RemoteProvider{Service: RemoteGoogle},
		" batch ":  RemoteProvider{Service: RemoteBatch},
		"local":    LocalProvider{},
		"browser":  LocalProvider{},
	}
	for input, want := range cases {
		got, err := ParseProvider(input)
		if err != nil {
			t.Fatalf("parse %q failed: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", input, got, want)
		}
	}

	if _, err := ParseProvider("carrier-pigeon"); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestProviderString(t *testing.T) {
	t.Parallel()

	if got := (LocalProvider{}).String(); got != "local" {
		t.Fatalf("unexpected local name: %q", got)
	}
	if got := (RemoteProvider{Service: RemoteGoogle}).String(); got != "google" {
		t.Fatalf("unexpected remote name: %q", got)
	}
}
