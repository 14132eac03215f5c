package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/mobile-money/internal/logging"
	"github.com/shopspring/decimal"
)

// Client talks to a remote balance ledger over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type adjustPayload struct {
	Delta decimal.Decimal `json:"delta"`
}

type adjustResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

func (c *Client) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(adjustPayload{Delta: delta})
	if err != nil {
		return decimal.Zero, fmt.Errorf("AdjustBalance: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/accounts/%s/adjust", c.baseURL, accountID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, fmt.Errorf("AdjustBalance: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return decimal.Zero, fmt.Errorf("AdjustBalance: send: %w", err)
	}
	defer resp.Body.Close()

	log.Debug("ledger response received",
		"account_id", accountID,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("AdjustBalance: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out adjustResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("AdjustBalance: decode: %w", err)
	}
	return out.Balance, nil
}
