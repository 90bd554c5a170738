package validator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateURL(t *testing.T) {
	v := New()

	tests := []struct {
		name         string
		url          string
		requireHTTPS bool
		wantErr      error
	}{
		{"https ok", "https://sync.example.com", true, nil},
		{"http allowed", "http://localhost:8080", false, nil},
		{"http rejected", "http://sync.example.com", true, ErrHTTPSRequired},
		{"empty", "", false, ErrInvalidURL},
		{"no host", "https://", false, ErrInvalidURL},
		{"bad scheme", "ftp://example.com", false, ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateURL(tt.url, tt.requireHTTPS)
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateAnalyticsURL(t *testing.T) {
	v := New()

	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://{region}.api.example.com", false},
		{"https://api.example.com", false},
		{"https://{zone}.api.example.com", true},
		{"http://{region}.api.example.com", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := v.ValidateAnalyticsURL(tt.url, true)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAnalyticsURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAnalytics) {
				t.Errorf("expected ErrInvalidAnalytics, got %v", err)
			}
		})
	}
}

func TestValidateBrokerURL(t *testing.T) {
	v := New()

	for _, ok := range []string{"tcp://broker:1883", "ssl://broker.example.com:8883", "wss://broker.example.com/mqtt"} {
		if err := v.ValidateBrokerURL(ok); err != nil {
			t.Errorf("ValidateBrokerURL(%q) unexpected error: %v", ok, err)
		}
	}
	for _, bad := range []string{"https://broker", "tcp://", "broker:1883"} {
		if err := v.ValidateBrokerURL(bad); !errors.Is(err, ErrInvalidBroker) {
			t.Errorf("ValidateBrokerURL(%q) expected ErrInvalidBroker, got %v", bad, err)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.5", true},
		{"192.168.0.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"8.8.8.8", false},
	}

	for _, tt := range tests {
		if got := isPrivateIP(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestValidateOIDCIssuerRejectsPrivateHosts(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := New().ValidateOIDCIssuer(context.Background(), server.URL)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("expected ErrConnectionFailed for loopback issuer, got %v", err)
	}
}
