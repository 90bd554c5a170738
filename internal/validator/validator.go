package validator

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrInvalidURL        = errors.New("invalid URL format")
	ErrHTTPSRequired     = errors.New("HTTPS is required")
	ErrPrivateIP         = errors.New("private IP addresses are not allowed")
	ErrTooManyRedirects  = errors.New("too many redirects")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrInvalidOIDCIssuer = errors.New("invalid OIDC issuer")
	ErrInvalidAnalytics  = errors.New("invalid analytics endpoint")
	ErrInvalidBroker     = errors.New("invalid broker URL")
)

const (
	maxRedirects   = 3
	defaultTimeout = 10 * time.Second
	minTLSVersion  = tls.VersionTLS12
	regionToken    = "{region}"
)

var brokerSchemes = map[string]bool{
	"tcp": true, "ssl": true, "tls": true, "mqtt": true, "mqtts": true, "ws": true, "wss": true,
}

// Validator provides URL and endpoint validation functionality.
type Validator struct {
	client          *http.Client
	allowPrivateIPs bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithAllowPrivateIPs allows connections to private IP addresses, for
// development setups where the identity provider runs locally.
func WithAllowPrivateIPs() Option {
	return func(v *Validator) {
		v.allowPrivateIPs = true
	}
}

// New creates a new Validator with the given options.
func New(opts ...Option) *Validator {
	v := &Validator{
		allowPrivateIPs: false,
	}

	for _, opt := range opts {
		opt(v)
	}

	v.client = v.createHTTPClient()
	return v
}

func (v *Validator) createHTTPClient() *http.Client {
	redirectCount := 0

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: minTLSVersion,
		},
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return v.dialWithIPCheck(ctx, network, addr)
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   defaultTimeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			redirectCount++
			if redirectCount > maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

func (v *Validator) dialWithIPCheck(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	// Resolve the hostname to check IP addresses
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("DNS resolution failed: %w", err)
	}

	for _, ip := range ips {
		if !v.allowPrivateIPs && isPrivateIP(ip) {
			return nil, ErrPrivateIP
		}
	}

	dialer := &net.Dialer{
		Timeout:   defaultTimeout,
		KeepAlive: 30 * time.Second,
	}
	return dialer.DialContext(ctx, network, addr)
}

// isPrivateIP checks if an IP address is private or reserved.
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}

	// Check for loopback
	if ip.IsLoopback() {
		return true
	}

	// Check for private networks
	if ip.IsPrivate() {
		return true
	}

	// Check for link-local
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	// Check for unspecified (0.0.0.0 or ::)
	if ip.IsUnspecified() {
		return true
	}

	return false
}

// ValidateURL validates a URL string.
// If requireHTTPS is true, only HTTPS URLs are accepted.
func (v *Validator) ValidateURL(rawURL string, requireHTTPS bool) error {
	if rawURL == "" {
		return ErrInvalidURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: parse error: %w", ErrInvalidURL, err)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if requireHTTPS && parsed.Scheme != "https" {
		return ErrHTTPSRequired
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}

	return nil
}

// ValidateOIDCIssuer validates an OIDC issuer URL by checking its discovery endpoint.
func (v *Validator) ValidateOIDCIssuer(ctx context.Context, issuerURL string) error {
	if err := v.ValidateURL(issuerURL, true); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOIDCIssuer, err)
	}

	// Normalize the issuer URL
	issuerURL = strings.TrimSuffix(issuerURL, "/")

	// Check the .well-known/openid-configuration endpoint
	discoveryURL := issuerURL + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrInvalidOIDCIssuer, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: discovery endpoint returned status %d", ErrInvalidOIDCIssuer, resp.StatusCode)
	}

	return nil
}

// ValidateAnalyticsURL validates the analytics base URL. A {region}
// placeholder is allowed anywhere in the URL; it is replaced per connection.
func (v *Validator) ValidateAnalyticsURL(rawURL string, requireHTTPS bool) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidAnalytics)
	}
	sample := strings.ReplaceAll(rawURL, regionToken, "eu1")
	if strings.ContainsAny(sample, "{}") {
		return fmt.Errorf("%w: unknown placeholder", ErrInvalidAnalytics)
	}
	if err := v.ValidateURL(sample, requireHTTPS); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAnalytics, err)
	}
	return nil
}

// ValidateBrokerURL validates an MQTT broker URL such as tcp://host:1883.
func (v *Validator) ValidateBrokerURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: parse error: %w", ErrInvalidBroker, err)
	}
	if !brokerSchemes[parsed.Scheme] {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBroker, parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidBroker)
	}
	return nil
}
