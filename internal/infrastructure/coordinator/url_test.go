package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeBaseURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty falls back", "", DefaultBaseURL},
		{"localhost accepted", "http://localhost:3000", "http://localhost:3000"},
		{"loopback ipv4 accepted", "http://127.0.0.1:8080", "http://127.0.0.1:8080"},
		{"loopback ipv6 accepted", "http://[::1]:3000", "http://[::1]:3000"},
		{"https accepted", "https://localhost:3000", "https://localhost:3000"},
		{"attacker hostname rejected", "http://evil.example.com:3000", DefaultBaseURL},
		{"non loopback ip rejected", "http://10.0.0.5:3000", DefaultBaseURL},
		{"file protocol rejected", "file:///etc/passwd", DefaultBaseURL},
		{"gopher protocol rejected", "gopher://localhost:70", DefaultBaseURL},
		{"invalid port rejected", "http://localhost:99999", DefaultBaseURL},
		{"garbage rejected", "://not-a-url", DefaultBaseURL},
		{"path stripped", "http://localhost:3000/internal/admin", "http://localhost:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeBaseURL(tt.raw))
		})
	}
}
