package utils

import (
	"net/http/httptest"
	"testing"
)

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{"10.0.0.0/8", " 192.168.1.10 ", "2001:db8::/32", "", "garbage"})
	if m.IsEmpty() {
		t.Fatal("IsEmpty() = true")
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"10.200.3.4", true},
		{"11.0.0.1", false},
		{"192.168.1.10", true},
		{"192.168.1.11", false},
		{"::ffff:10.0.0.1", true},
		{"2001:db8::1", true},
		{"2001:db9::1", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		if got := m.Allow(tt.ip); got != tt.want {
			t.Errorf("Allow(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}

	if !NewIPMatcher(nil).IsEmpty() {
		t.Error("NewIPMatcher(nil).IsEmpty() = false")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"remote only", "203.0.113.5:4000", nil, false, "203.0.113.5"},
		{"headers ignored", "203.0.113.5:4000", map[string]string{"X-Forwarded-For": "10.0.0.1"}, false, "203.0.113.5"},
		{"cloudflare first", "127.0.0.1:1", map[string]string{"CF-Connecting-IP": "198.51.100.1", "X-Forwarded-For": "10.0.0.1"}, true, "198.51.100.1"},
		{"left-most forwarded", "127.0.0.1:1", map[string]string{"X-Forwarded-For": " 10.0.0.1 , 127.0.0.1"}, true, "10.0.0.1"},
		{"real ip", "127.0.0.1:1", map[string]string{"X-Real-IP": "10.0.0.2"}, true, "10.0.0.2"},
		{"no headers behind proxy", "127.0.0.1:1", nil, true, "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
