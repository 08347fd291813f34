package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin HTTP client against a running registry Service, used by
// the coordinator and bank participants to self-register on startup.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client against the registry at baseURL (e.g.
// "http://localhost:9100").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Register announces name at address to the registry.
func (c *Client) Register(ctx context.Context, name, address string) error {
	data, err := json.Marshal(registerRequest{Name: name, Address: address})
	if err != nil {
		return fmt.Errorf("failed to encode register request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/register", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	return nil
}

// Deregister removes name from the registry. It is a no-op from the
// caller's point of view if name is already gone: a graceful-shutdown
// deregister racing an expired entry should not be treated as a failure.
func (c *Client) Deregister(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/register/"+name, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	return nil
}

// Lookup resolves name to its registered address.
func (c *Client) Lookup(ctx context.Context, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/lookup/"+name, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry unreachable: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK     bool  `json:"ok"`
		Result Entry `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("failed to parse registry response: %w", err)
	}
	if !envelope.OK {
		return "", fmt.Errorf("no such entry: %s", name)
	}
	return envelope.Result.Address, nil
}

// List returns every entry currently registered.
func (c *Client) List(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry unreachable: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK     bool    `json:"ok"`
		Result []Entry `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to parse registry response: %w", err)
	}
	return envelope.Result, nil
}
