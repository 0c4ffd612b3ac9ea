// Package client is an HTTP client for sandboxcored's API, grounded on
// the teacher's pkg/client.Client (same doRequest/bearer-auth shape),
// rescoped to the Lifecycle Service's operations instead of the
// teacher's sandbox/file/template/worker surface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to sandboxcored's /api/v1 surface.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client against baseURL, authenticating with apiKey.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

func decodeOrError(resp *http.Response, okStatus int, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode != okStatus {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError wraps a non-2xx sandboxcored response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
}

// Info mirrors internal/types.Info, the caller-facing sandbox view.
type Info struct {
	SandboxID      string            `json:"SandboxID"`
	ProjectID      string            `json:"ProjectID"`
	TenantID       string            `json:"TenantID"`
	Status         string            `json:"Status"`
	IsHealthy      bool              `json:"IsHealthy"`
	MCPPort        *int              `json:"MCPPort"`
	DesktopPort    *int              `json:"DesktopPort"`
	TerminalPort   *int              `json:"TerminalPort"`
	EndpointURLs   map[string]string `json:"EndpointURLs"`
	CreatedAt      time.Time         `json:"CreatedAt"`
	LastAccessedAt *time.Time        `json:"LastAccessedAt"`
}

// OrphanStats mirrors internal/orphan.Stats.
type OrphanStats struct {
	Scanned          int      `json:"Scanned"`
	RemovedOrphans   int      `json:"RemovedOrphans"`
	RemovedStale     int      `json:"RemovedStale"`
	RemovedUntracked int      `json:"RemovedUntracked"`
	Errors           []string `json:"Errors"`
}

// GetOrCreateRequest mirrors the server's getOrCreateRequest.
type GetOrCreateRequest struct {
	TenantID       string            `json:"tenant_id"`
	Profile        string            `json:"profile,omitempty"`
	MemoryLimit    *string           `json:"memory_limit,omitempty"`
	CPULimit       *float64          `json:"cpu_limit,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
	DesktopEnabled *bool             `json:"desktop_enabled,omitempty"`
	Environment    map[string]string `json:"environment,omitempty"`
}

// GetOrCreate runs the get_or_create operation for projectID.
func (c *Client) GetOrCreate(ctx context.Context, projectID string, req GetOrCreateRequest) (*Info, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/v1/projects/%s/sandbox", projectID), req)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := decodeOrError(resp, http.StatusOK, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Terminate runs the terminate operation for projectID.
func (c *Client) Terminate(ctx context.Context, projectID string, purge bool) error {
	path := fmt.Sprintf("/api/v1/projects/%s/sandbox", projectID)
	if purge {
		path += "?purge=true"
	}
	resp, err := c.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return decodeOrError(resp, http.StatusNoContent, nil)
}

// ExecuteTool runs a tool against the project's sandbox.
func (c *Client) ExecuteTool(ctx context.Context, projectID, tool string, args map[string]any, timeoutSeconds int) (map[string]any, error) {
	body := map[string]any{"args": args, "timeout_seconds": timeoutSeconds}
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/v1/projects/%s/sandbox/tools/%s", projectID, tool), body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decodeOrError(resp, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HealthCheck runs the health_check operation for projectID.
func (c *Client) HealthCheck(ctx context.Context, projectID string) (bool, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/v1/projects/%s/sandbox/health", projectID), nil)
	if err != nil {
		return false, err
	}
	var out map[string]bool
	if err := decodeOrError(resp, http.StatusOK, &out); err != nil {
		return false, err
	}
	return out["healthy"], nil
}

// SyncStatus runs the sync_status operation for projectID.
func (c *Client) SyncStatus(ctx context.Context, projectID string) (*Info, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/v1/projects/%s/sandbox/sync", projectID), nil)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := decodeOrError(resp, http.StatusOK, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListByTenant runs the list_by_tenant operation.
func (c *Client) ListByTenant(ctx context.Context, tenantID, status string, limit, offset int) ([]Info, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("offset", fmt.Sprintf("%d", offset))

	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v1/tenants/%s/sandboxes?%s", tenantID, q.Encode()), nil)
	if err != nil {
		return nil, err
	}
	var infos []Info
	if err := decodeOrError(resp, http.StatusOK, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// CleanupStale runs the admin cleanup_stale operation.
func (c *Client) CleanupStale(ctx context.Context, maxIdleSeconds int, dryRun bool) ([]string, error) {
	body := map[string]any{"max_idle_seconds": maxIdleSeconds, "dry_run": dryRun}
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/admin/cleanup-stale", body)
	if err != nil {
		return nil, err
	}
	var out struct {
		SandboxIDs []string `json:"sandbox_ids"`
		DryRun     bool     `json:"dry_run"`
	}
	if err := decodeOrError(resp, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.SandboxIDs, nil
}

// OrphanSweep runs the admin orphan-sweep operation.
func (c *Client) OrphanSweep(ctx context.Context) (*OrphanStats, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/admin/orphan-sweep", nil)
	if err != nil {
		return nil, err
	}
	var stats OrphanStats
	if err := decodeOrError(resp, http.StatusOK, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
