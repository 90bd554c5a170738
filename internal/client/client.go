// Package client is a typed HTTP client for the syncbridge API. It
// implements the console backends so the admin screens can run against a
// remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/macjediwizard/syncbridge/internal/activity"
	"github.com/macjediwizard/syncbridge/internal/api"
)

// Sentinel errors for common HTTP error classes. The *api.Error body stays
// reachable through errors.As.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

const maxResponseSize = 4 << 20

// Client is an HTTP client for the syncbridge server.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client. token is the server's API token.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Sync configurations

// ListSyncConfigurations returns the configurations of a connection.
func (c *Client) ListSyncConfigurations(ctx context.Context, connectionID string) ([]api.SyncConfiguration, error) {
	var resp []api.SyncConfiguration
	if err := c.do(ctx, http.MethodGet, "/api/connections/"+url.PathEscape(connectionID)+"/syncs", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetSyncConfiguration returns one configuration.
func (c *Client) GetSyncConfiguration(ctx context.Context, id string) (*api.SyncConfiguration, error) {
	var resp api.SyncConfiguration
	if err := c.do(ctx, http.MethodGet, syncPath(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateSyncConfiguration creates a configuration and returns its id.
func (c *Client) CreateSyncConfiguration(ctx context.Context, req api.SaveSyncRequest) (string, error) {
	var resp api.CreateSyncResponse
	if err := c.do(ctx, http.MethodPost, "/api/syncs", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("server returned no id")
	}
	return resp.ID, nil
}

// UpdateSyncConfiguration updates a configuration.
func (c *Client) UpdateSyncConfiguration(ctx context.Context, id string, req api.SaveSyncRequest) error {
	return c.do(ctx, http.MethodPut, syncPath(id), req, nil)
}

// DeleteSyncConfiguration deletes a configuration and its mappings.
func (c *Client) DeleteSyncConfiguration(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, syncPath(id), nil, nil)
}

// UpdateSyncStatus activates or deactivates a configuration.
func (c *Client) UpdateSyncStatus(ctx context.Context, id, status string) error {
	return c.do(ctx, http.MethodPut, syncPath(id)+"/status", api.UpdateStatusRequest{Status: status}, nil)
}

// TriggerHistoricalSync starts a backfill. It returns once the server has
// accepted the request; the run continues in the background.
func (c *Client) TriggerHistoricalSync(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, syncPath(id)+"/historical", nil, nil)
}

// Fields and mappings

// ListEntities returns the source entities a sync can read from.
func (c *Client) ListEntities(ctx context.Context) ([]string, error) {
	var resp []string
	if err := c.do(ctx, http.MethodGet, "/api/entities", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListFields returns the selectable fields of a source entity.
func (c *Client) ListFields(ctx context.Context, entity string) ([]api.FieldOption, error) {
	var resp []api.FieldOption
	if err := c.do(ctx, http.MethodGet, "/api/entities/"+url.PathEscape(entity)+"/fields", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetPicklistValues returns the allowed values of object.field.
func (c *Client) GetPicklistValues(ctx context.Context, object, field string) ([]api.PicklistValue, error) {
	var resp []api.PicklistValue
	path := "/api/picklists/" + url.PathEscape(object) + "/" + url.PathEscape(field)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetFieldMappings returns the mapping set of a configuration.
func (c *Client) GetFieldMappings(ctx context.Context, syncID string) ([]api.FieldMapping, error) {
	var resp []api.FieldMapping
	if err := c.do(ctx, http.MethodGet, syncPath(syncID)+"/mappings", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SaveFieldMappings replaces the mapping set of a configuration in one call.
func (c *Client) SaveFieldMappings(ctx context.Context, syncID string, mappings []api.FieldMapping) error {
	if mappings == nil {
		mappings = []api.FieldMapping{}
	}
	return c.do(ctx, http.MethodPut, syncPath(syncID)+"/mappings", mappings, nil)
}

// Event log

// ListEventLogs returns event log entries, newest first.
func (c *Client) ListEventLogs(ctx context.Context, q api.EventLogQuery) ([]api.EventLogEntry, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Days > 0 {
		params.Set("days", strconv.Itoa(q.Days))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/event-logs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp []api.EventLogEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetEventLog returns one entry with its response payload.
func (c *Client) GetEventLog(ctx context.Context, id string) (*api.EventLogEntry, error) {
	var resp api.EventLogEntry
	if err := c.do(ctx, http.MethodGet, "/api/event-logs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Connections

// ListConnections returns all analytics connections.
func (c *Client) ListConnections(ctx context.Context) ([]api.Connection, error) {
	var resp []api.Connection
	if err := c.do(ctx, http.MethodGet, "/api/connections", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetConnection returns one connection.
func (c *Client) GetConnection(ctx context.Context, id string) (*api.Connection, error) {
	var resp api.Connection
	if err := c.do(ctx, http.MethodGet, connectionPath(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateConnection stores a connection. The server checks the credentials first.
func (c *Client) CreateConnection(ctx context.Context, req api.SaveConnectionRequest) (*api.Connection, error) {
	var resp api.Connection
	if err := c.do(ctx, http.MethodPost, "/api/connections", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateConnection updates a connection. An empty passcode keeps the stored one.
func (c *Client) UpdateConnection(ctx context.Context, id string, req api.SaveConnectionRequest) (*api.Connection, error) {
	var resp api.Connection
	if err := c.do(ctx, http.MethodPut, connectionPath(id), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteConnection deletes a connection and its configurations.
func (c *Client) DeleteConnection(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, connectionPath(id), nil, nil)
}

// ValidateCredentials checks analytics credentials without saving them.
func (c *Client) ValidateCredentials(ctx context.Context, req api.ValidateCredentialsRequest) (*api.ValidateCredentialsResponse, error) {
	var resp api.ValidateCredentialsResponse
	if err := c.do(ctx, http.MethodPost, "/api/connections/validate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Records and activity

// PushRecords sends changed CRM records of one entity.
func (c *Client) PushRecords(ctx context.Context, req api.IngestRecordsRequest) (int, error) {
	var resp api.IngestRecordsResponse
	if err := c.do(ctx, http.MethodPost, "/api/records", req, &resp); err != nil {
		return 0, err
	}
	return resp.Accepted, nil
}

// Activity returns running and recently finished sync runs.
func (c *Client) Activity(ctx context.Context) (*activity.Snapshot, error) {
	var resp activity.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/activity", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func syncPath(id string) string {
	return "/api/syncs/" + url.PathEscape(id)
}

func connectionPath(id string) string {
	return "/api/connections/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return responseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// responseError converts an error response. A JSON error body becomes an
// *api.Error; 401 and 404 wrap their sentinels whatever the body.
func responseError(status int, body []byte) error {
	var err error
	apiErr := &api.Error{}
	if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = http.StatusText(status)
		}
		err = fmt.Errorf("HTTP %d: %s", status, text)
	} else {
		apiErr.Status = status
		err = apiErr
	}

	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}
