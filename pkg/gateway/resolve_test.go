package gateway

import (
	"context"
	"os"
	"testing"
)

func TestCanonicalHostname(t *testing.T) {
	r := staticResolver{
		hosts: map[string][]string{
			"web":  {"10.0.0.5"},
			"bare": {"10.0.0.6"},
		},
		addrs: map[string][]string{
			"10.0.0.5":  {"web", "web.internal.example.com."},
			"10.0.0.6":  {"bare."},
			"127.0.0.1": {"localhost"},
		},
	}

	tests := []struct {
		name string
		host string
		want string
	}{
		{"first dotted alias wins", "web", "web.internal.example.com"},
		{"primary name without dots", "bare", "bare"},
		{"ip literal", "127.0.0.1", "localhost"},
		{"unknown host falls back", "nowhere", "nowhere"},
		{"unknown ip falls back", "192.0.2.1", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalHostname(context.Background(), r, tt.host); got != tt.want {
				t.Fatalf("CanonicalHostname(%q) = %q, want %q", tt.host, got, tt.want)
			}
		})
	}
}

func TestCanonicalHostname_WildcardUsesLocalHostname(t *testing.T) {
	local, err := os.Hostname()
	if err != nil {
		t.Skipf("os.Hostname: %v", err)
	}
	r := staticResolver{}
	for _, host := range []string{"", "0.0.0.0"} {
		if got := CanonicalHostname(context.Background(), r, host); got != local {
			t.Errorf("CanonicalHostname(%q) = %q, want %q", host, got, local)
		}
	}
}
