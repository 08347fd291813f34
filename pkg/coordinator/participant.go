package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ParticipantClient is the coordinator's view of a single bank participant: a
// pooled HTTP client bound to that bank's base URL, exposing the 2PC
// capability set.
type ParticipantClient struct {
	bank       string
	baseURL    string
	httpClient *http.Client
}

// NewParticipantClient builds a client for bank's HTTP address baseURL
// (e.g. "https://localhost:9101"). timeout bounds each individual call; the
// coordinator layers its own Timeout2PC deadline on top via context.
func NewParticipantClient(bank, baseURL string, timeout time.Duration) *ParticipantClient {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxConnsPerHost:     10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &ParticipantClient{
		bank:    bank,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type participantResponse struct {
	OK      bool            `json:"ok"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (c *ParticipantClient) doRequest(ctx context.Context, method, path string, body interface{}) (*participantResponse, error) {
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
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBankUnavailable, c.bank, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", c.bank, err)
	}

	var parsed participantResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response from %s: %w", c.bank, err)
	}
	return &parsed, nil
}

type holdRequest struct {
	TxID     string `json:"txid"`
	Username string `json:"username"`
	Amount   int64  `json:"amount"`
}

type settleRequest struct {
	TxID             string `json:"txid"`
	Username         string `json:"username"`
	CounterpartyBank string `json:"counterparty_bank"`
	CounterpartyUser string `json:"counterparty_user"`
}

// PrepareDebit asks the participant to reserve amount against username.
func (c *ParticipantClient) PrepareDebit(ctx context.Context, username, txid string, amount int64) error {
	return c.prepare(ctx, "/prepare/debit", username, txid, amount)
}

// PrepareCredit asks the participant to record an inbound obligation.
func (c *ParticipantClient) PrepareCredit(ctx context.Context, username, txid string, amount int64) error {
	return c.prepare(ctx, "/prepare/credit", username, txid, amount)
}

func (c *ParticipantClient) prepare(ctx context.Context, path, username, txid string, amount int64) error {
	resp, err := c.doRequest(ctx, http.MethodPost, path, holdRequest{TxID: txid, Username: username, Amount: amount})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s: %s: %s", c.bank, resp.Error, resp.Message)
	}
	return nil
}

// CommitDebit tells the participant to apply a previously prepared debit.
func (c *ParticipantClient) CommitDebit(ctx context.Context, username, txid, counterpartyBank, counterpartyUser string) error {
	return c.settle(ctx, "/commit/debit", username, txid, counterpartyBank, counterpartyUser)
}

// CommitCredit tells the participant to apply a previously prepared credit.
func (c *ParticipantClient) CommitCredit(ctx context.Context, username, txid, counterpartyBank, counterpartyUser string) error {
	return c.settle(ctx, "/commit/credit", username, txid, counterpartyBank, counterpartyUser)
}

// AbortDebit tells the participant to release a prepared debit hold.
func (c *ParticipantClient) AbortDebit(ctx context.Context, username, txid string) error {
	return c.settle(ctx, "/abort/debit", username, txid, "", "")
}

// AbortCredit tells the participant to release a prepared credit hold.
func (c *ParticipantClient) AbortCredit(ctx context.Context, username, txid string) error {
	return c.settle(ctx, "/abort/credit", username, txid, "", "")
}

func (c *ParticipantClient) settle(ctx context.Context, path, username, txid, counterpartyBank, counterpartyUser string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, path, settleRequest{
		TxID:             txid,
		Username:         username,
		CounterpartyBank: counterpartyBank,
		CounterpartyUser: counterpartyUser,
	})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s: %s: %s", c.bank, resp.Error, resp.Message)
	}
	return nil
}

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Authenticate verifies username/password against the participant directly;
// the coordinator uses this during Login before minting a token.
func (c *ParticipantClient) Authenticate(ctx context.Context, username, password string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/authenticate", authenticateRequest{Username: username, Password: password})
	if err != nil {
		return err
	}
	if !resp.OK {
		return ErrAuthFailed
	}
	return nil
}

type balanceResult struct {
	Balance int64 `json:"balance"`
}

// Balance fetches username's current balance from the participant.
func (c *ParticipantClient) Balance(ctx context.Context, username string) (int64, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/balance/"+username, nil)
	if err != nil {
		return 0, err
	}
	if !resp.OK {
		return 0, fmt.Errorf("%s: %s: %s", c.bank, resp.Error, resp.Message)
	}
	var result balanceResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return 0, fmt.Errorf("failed to parse balance response: %w", err)
	}
	return result.Balance, nil
}

// History fetches username's transaction history from the participant.
func (c *ParticipantClient) History(ctx context.Context, username string) (json.RawMessage, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/history/"+username, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("%s: %s: %s", c.bank, resp.Error, resp.Message)
	}
	return resp.Result, nil
}
