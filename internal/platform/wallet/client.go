package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quietbet/poolhouse/internal/domain"
)

// Client is the REST client for the custodial wallet service, which issues
// one-time deposit addresses and streams deposit confirmations (see Feed).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a wallet client.
//
// baseURL is the wallet API root, e.g. "https://wallet.internal:8443".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type fundingTargetRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type fundingTargetResponse struct {
	Ref       string    `json:"ref"`
	Address   string    `json:"address"`
	Currency  string    `json:"currency"`
	Amount    int64     `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueFundingTarget requests a fresh deposit address for the given amount.
func (c *Client) IssueFundingTarget(ctx context.Context, amount int64, currency string) (domain.FundingTarget, error) {
	body, err := c.doPost(ctx, "/v1/targets", fundingTargetRequest{
		Amount:   amount,
		Currency: currency,
	})
	if err != nil {
		return domain.FundingTarget{}, fmt.Errorf("wallet: issue funding target: %w", err)
	}

	var resp fundingTargetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.FundingTarget{}, fmt.Errorf("wallet: decode funding target: %w", err)
	}
	if resp.Ref == "" || resp.Address == "" {
		return domain.FundingTarget{}, fmt.Errorf("wallet: funding target missing ref or address")
	}

	return domain.FundingTarget{
		Ref:       resp.Ref,
		Address:   resp.Address,
		Currency:  resp.Currency,
		Amount:    resp.Amount,
		ExpiresAt: resp.ExpiresAt,
	}, nil
}

func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
