// Package loadgen drives a synthetic workload against the ledger service and
// independently re-checks the overdraft invariant on every response.
package loadgen

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

// Client is a thin HTTP client for the ledger's public endpoints.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type transactionReply struct {
	Limite int64 `json:"limite"`
	Saldo  int64 `json:"saldo"`
}

type statementReply struct {
	Saldo struct {
		Total  int64 `json:"total"`
		Limite int64 `json:"limite"`
	} `json:"saldo"`
}

// Transaction posts a debit or credit and returns the status code plus, for
// 200 responses, the decoded (limite, saldo) pair.
func (c *Client) Transaction(ctx context.Context, accountID int, kind string, amount int64, description string) (int, *transactionReply, error) {
	body, err := json.Marshal(map[string]any{
		"valor":     amount,
		"tipo":      kind,
		"descricao": description,
	})
	if err != nil {
		return 0, nil, err
	}

	status, raw, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/clientes/%d/transacoes", accountID), body)
	if err != nil {
		return 0, nil, err
	}
	if status != http.StatusOK {
		return status, nil, nil
	}
	var reply transactionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return status, nil, fmt.Errorf("decode transaction response: %w", err)
	}
	return status, &reply, nil
}

// Statement fetches an account statement and returns the status code plus,
// for 200 responses, the decoded saldo block.
func (c *Client) Statement(ctx context.Context, accountID int) (int, *statementReply, error) {
	status, raw, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/clientes/%d/extrato", accountID), nil)
	if err != nil {
		return 0, nil, err
	}
	if status != http.StatusOK {
		return status, nil, nil
	}
	var reply statementReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return status, nil, fmt.Errorf("decode statement response: %w", err)
	}
	return status, &reply, nil
}

// Reset returns all provisioned accounts to their initial state. Anything
// but a 200 is a hard failure of the run.
func (c *Client) Reset(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodPost, "/reset", nil)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("reset: unexpected status %d", status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	u := *c.base
	u.Path = path

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}
