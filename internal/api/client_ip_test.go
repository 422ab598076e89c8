package api

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPResolverResolve(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "direct_peer_ignores_headers",
			remote:  "203.0.113.7:43210",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.5", "X-Real-IP": "198.51.100.6"},
			want:    "203.0.113.7",
		},
		{
			name:    "trusted_proxy_uses_forwarded_for",
			trusted: []string{"172.30.0.10/32"},
			remote:  "172.30.0.10:12345",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.8, 172.30.0.10"},
			want:    "198.51.100.8",
		},
		{
			name:    "spoofed_leftmost_hop_is_skipped",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.0.0.2:80",
			headers: map[string]string{"X-Forwarded-For": "1.1.1.1, 198.51.100.9, 10.0.0.5"},
			want:    "198.51.100.9",
		},
		{
			name:    "trusted_proxy_falls_back_to_real_ip",
			trusted: []string{"172.30.0.10"},
			remote:  "172.30.0.10:12345",
			headers: map[string]string{"X-Forwarded-For": "not-an-ip", "X-Real-IP": "198.51.100.10"},
			want:    "198.51.100.10",
		},
		{
			name:    "trusted_proxy_without_headers",
			trusted: []string{"172.30.0.10"},
			remote:  "172.30.0.10:12345",
			want:    "172.30.0.10",
		},
		{
			name:   "ipv6_peer",
			remote: "[2001:db8::1]:443",
			want:   "2001:db8::1",
		},
		{
			name:   "unparseable_peer",
			remote: "pipe",
			want:   "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, err := NewClientIPResolver(tt.trusted)
			if err != nil {
				t.Fatalf("NewClientIPResolver() error = %v", err)
			}
			req := httptest.NewRequest("GET", "http://localhost/test", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := resolver.Resolve(req); got != tt.want {
				t.Fatalf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewClientIPResolverRejectsGarbage(t *testing.T) {
	if _, err := NewClientIPResolver([]string{"10.0.0.0/99"}); err == nil {
		t.Fatal("NewClientIPResolver() error = nil, want error")
	}
}
