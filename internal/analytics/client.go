// Package analytics uploads profile and event records to the analytics
// service.
package analytics

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrAuthFailed       = errors.New("authentication failed")
	ErrUploadRejected   = errors.New("upload rejected")
	ErrInvalidResponse  = errors.New("invalid server response")
	ErrBatchTooLarge    = errors.New("batch too large")
	ErrInvalidConfig    = errors.New("invalid analytics configuration")
)

const (
	// MaxBatchSize is the most records a single upload accepts.
	MaxBatchSize   = 1000
	defaultTimeout = 30 * time.Second
	minTLSVersion  = tls.VersionTLS12
	uploadPath     = "/1/upload"
	maxBodySize    = 1 << 20
	regionToken    = "{region}"
)

// Record types.
const (
	TypeProfile = "profile"
	TypeEvent   = "event"
)

// Credentials identify an analytics account.
type Credentials struct {
	Region    string
	AccountID string
	Passcode  string
}

// Record is one uploaded profile or event.
type Record struct {
	Identity    string         `json:"identity"`
	Type        string         `json:"type"`
	TS          int64          `json:"ts,omitempty"`
	EvtName     string         `json:"evtName,omitempty"`
	EvtData     map[string]any `json:"evtData,omitempty"`
	ProfileData map[string]any `json:"profileData,omitempty"`
}

// Unprocessed describes a record the service refused.
type Unprocessed struct {
	Status string          `json:"status"`
	Code   int             `json:"code"`
	Error  string          `json:"error"`
	Record json.RawMessage `json:"record,omitempty"`
}

// UploadResponse is the parsed upload result.
type UploadResponse struct {
	Status      string        `json:"status"`
	Processed   int           `json:"processed"`
	Unprocessed []Unprocessed `json:"unprocessed,omitempty"`
	Error       string        `json:"error,omitempty"`
	Code        int           `json:"code,omitempty"`
}

// Succeeded reports whether the service accepted the batch.
func (r *UploadResponse) Succeeded() bool {
	return r != nil && r.Status == "success"
}

// Client talks to the analytics upload API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. baseURL may contain a {region} placeholder that
// is replaced per request with the credentials' region.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: minTLSVersion,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// endpoint builds the upload URL for a region.
func (c *Client) endpoint(region string) (string, error) {
	base := c.baseURL
	if strings.Contains(base, regionToken) {
		if region == "" {
			return "", fmt.Errorf("%w: region is required", ErrInvalidConfig)
		}
		base = strings.ReplaceAll(base, regionToken, url.PathEscape(strings.ToLower(region)))
	}
	u, err := url.Parse(base + uploadPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return u.String(), nil
}

// Upload sends one batch. The raw response body is returned alongside the
// parsed response whenever the service answered, including on rejection.
func (c *Client) Upload(ctx context.Context, creds Credentials, records []Record) (*UploadResponse, []byte, error) {
	if len(records) > MaxBatchSize {
		return nil, nil, fmt.Errorf("%w: %d records, max %d", ErrBatchTooLarge, len(records), MaxBatchSize)
	}
	if records == nil {
		records = []Record{}
	}

	endpoint, err := c.endpoint(creds.Region)
	if err != nil {
		return nil, nil, err
	}

	payload, err := json.Marshal(struct {
		D []Record `json:"d"`
	}{D: records})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("X-Account-Id", creds.AccountID)
	req.Header.Set("X-Passcode", creds.Passcode)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	parsed := &UploadResponse{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, parsed); err != nil {
			return nil, raw, fmt.Errorf("%w: status %d: %w", ErrInvalidResponse, resp.StatusCode, err)
		}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return parsed, raw, fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode >= 400:
		return parsed, raw, fmt.Errorf("%w: status %d: %s", ErrUploadRejected, resp.StatusCode, parsed.Error)
	case !parsed.Succeeded():
		return parsed, raw, fmt.Errorf("%w: status %q: %s", ErrUploadRejected, parsed.Status, parsed.Error)
	}
	return parsed, raw, nil
}

// ValidateCredentials uploads an empty batch and reports whether the
// service accepted the credentials.
func (c *Client) ValidateCredentials(ctx context.Context, creds Credentials) error {
	if creds.AccountID == "" || creds.Passcode == "" {
		return fmt.Errorf("%w: account id and passcode are required", ErrAuthFailed)
	}
	_, _, err := c.Upload(ctx, creds, nil)
	return err
}
