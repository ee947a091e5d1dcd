package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
)

// TransferCreator is the slice of the gateway the settlement services need.
// Services take this interface so tests can fake transfers.
type TransferCreator interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
}

// TransferRequest describes a single outbound payout.
type TransferRequest struct {
	AccountID      string            `json:"account_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"-"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Transfer is the gateway's record of a completed or in-flight payout.
type Transfer struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
}

// TransferError is a non-2xx gateway response. Retryable reports whether the
// caller may safely resubmit with the same idempotency key.
type TransferError struct {
	StatusCode int
	Body       string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("gateway transfer failed: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure is transient (rate limit or 5xx).
func (e *TransferError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CreateTransfer submits a payout to the gateway. The idempotency key makes
// resubmission after a network failure safe.
func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if req.Currency == "" {
		req.Currency = "usd"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode transfer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build transfer request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit transfer: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read transfer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransferError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	var transfer Transfer
	if err := json.Unmarshal(payload, &transfer); err != nil {
		return nil, fmt.Errorf("decode transfer response: %w", err)
	}
	return &transfer, nil
}
