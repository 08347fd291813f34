// Package client is the payment-gateway client: an HTTP connection to the
// coordinator plus an offline queue that lets the caller keep submitting
// transfers while the coordinator is unreachable.
package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the client's connection configuration.
type Config struct {
	// Host is the coordinator's hostname or IP address (default: "localhost")
	Host string
	// Port is the coordinator's port (default: 9000)
	Port int
	// Timeout is the HTTP request timeout (default: 10s)
	Timeout time.Duration
	// MaxIdleConns is the maximum number of idle connections (default: 10)
	MaxIdleConns int
	// MaxConnsPerHost is the maximum connections per host (default: 10)
	MaxConnsPerHost int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            9000,
		Timeout:         10 * time.Second,
		MaxIdleConns:    10,
		MaxConnsPerHost: 10,
	}
}

// Client is a connection to the coordinator's HTTP surface.
type Client struct {
	baseURL    string
	httpClient *http.Client

	token string
}

// New creates a Client against the coordinator described by config.
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 9000
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxConnsPerHost == 0 {
		config.MaxConnsPerHost = 10
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		MaxIdleConnsPerHost: config.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", config.Host, config.Port),
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// Close releases the client's idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// response mirrors the coordinator's JSON envelope.
type response struct {
	OK      bool            `json:"ok"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    int             `json:"code,omitempty"`
}

// apiError reports a coordinator-level ({ok:false}) error, keeping the error
// code string so callers can branch on it (e.g. "unauthorized").
type apiError struct {
	code    string
	message string
}

func (e *apiError) Error() string { return fmt.Sprintf("%s: %s", e.code, e.message) }

func (c *Client) doRequest(ctx context.Context, method, path, bearer string, body interface{}) (*response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if !apiResp.OK {
		return &apiResp, &apiError{code: apiResp.Error, message: apiResp.Message}
	}
	return &apiResp, nil
}

// Ping reports whether the coordinator is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/ping", "", nil)
	return err
}

// Login authenticates (bank, username, password) against the coordinator and
// caches the returned bearer token for subsequent calls.
func (c *Client) Login(ctx context.Context, bank, username, password string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/login", "", map[string]string{
		"bank":     bank,
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}
	c.token = result.Token
	return nil
}

// Authenticated reports whether Login has succeeded since the last call (or
// since construction).
func (c *Client) Authenticated() bool { return c.token != "" }

// TransferOutcome is the terminal outcome of a submitted transfer.
type TransferOutcome struct {
	TxID        string
	Committed   bool
	AbortReason string
}

// transfer submits one transfer attempt with the caller's cached token. The
// caller is responsible for reusing the same txid across retries so that
// resubmission is idempotent end-to-end.
func (c *Client) transfer(ctx context.Context, txid, dstBank, dstUser string, amount int64) (*TransferOutcome, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/transfer", c.token, map[string]interface{}{
		"txid":     txid,
		"dst_bank": dstBank,
		"dst_user": dstUser,
		"amount":   amount,
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		TxID        string `json:"txid"`
		Committed   bool   `json:"committed"`
		AbortReason string `json:"abort_reason"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse transfer response: %w", err)
	}
	return &TransferOutcome{TxID: result.TxID, Committed: result.Committed, AbortReason: result.AbortReason}, nil
}

// Balance fetches the caller's current balance.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/balance", c.token, nil)
	if err != nil {
		return 0, err
	}
	var result struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return 0, fmt.Errorf("failed to parse balance response: %w", err)
	}
	return result.Balance, nil
}

// History fetches the caller's transaction history.
func (c *Client) History(ctx context.Context) ([]json.RawMessage, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/history", c.token, nil)
	if err != nil {
		return nil, err
	}
	var result []json.RawMessage
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse history response: %w", err)
	}
	return result, nil
}

// isUnauthorized reports whether err is the coordinator's "unauthorized" error code.
func isUnauthorized(err error) bool {
	apiErr, ok := err.(*apiError)
	return ok && apiErr.code == "unauthorized"
}

// NewTxID allocates a 128-bit random transaction identifier, hex-encoded. The
// same txid is reused for every retry of one transfer so that retries are
// idempotent end-to-end.
func NewTxID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate txid: %v", err))
	}
	return hex.EncodeToString(b)
}
