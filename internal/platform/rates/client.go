package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// rateCacheTTL bounds how stale a quoted rate may be. Funding targets are
// sized from this rate, so the window stays short.
const rateCacheTTL = 30 * time.Second

// Client is the REST client for the exchange-rate service. Convert always
// rounds up, so a funding target sized from its output can never come in
// under the stake it backs.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]cachedRate
}

type cachedRate struct {
	rate      *big.Rat // smallest currency units per USD cent
	fetchedAt time.Time
}

// NewClient creates a rate client.
//
// baseURL is the rate API root, e.g. "https://rates.internal:8443".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache: make(map[string]cachedRate),
	}
}

// Convert turns a USD-cent amount into smallest units of the target
// currency, rounding up.
func (c *Client) Convert(ctx context.Context, amountUSDCents int64, toCurrency string) (int64, error) {
	if amountUSDCents <= 0 {
		return 0, fmt.Errorf("rates: convert: non-positive amount %d", amountUSDCents)
	}

	rate, err := c.rateFor(ctx, toCurrency)
	if err != nil {
		return 0, err
	}

	product := new(big.Rat).Mul(rate, new(big.Rat).SetInt64(amountUSDCents))
	units := ceilRat(product)
	if !units.IsInt64() || units.Int64() <= 0 {
		return 0, fmt.Errorf("rates: convert: %d USD cents to %s out of range", amountUSDCents, toCurrency)
	}
	return units.Int64(), nil
}

func (c *Client) rateFor(ctx context.Context, currency string) (*big.Rat, error) {
	c.mu.Lock()
	if cached, ok := c.cache[currency]; ok && time.Since(cached.fetchedAt) < rateCacheTTL {
		c.mu.Unlock()
		return cached.rate, nil
	}
	c.mu.Unlock()

	rate, err := c.fetchRate(ctx, currency)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[currency] = cachedRate{rate: rate, fetchedAt: time.Now()}
	c.mu.Unlock()
	return rate, nil
}

type rateResponse struct {
	Currency string `json:"currency"`
	// UnitsPerUSDCent is a decimal string, e.g. "33.5201".
	UnitsPerUSDCent string `json:"units_per_usd_cent"`
}

func (c *Client) fetchRate(ctx context.Context, currency string) (*big.Rat, error) {
	path := fmt.Sprintf("/v1/rates/%s", url.PathEscape(currency))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("rates: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rates: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rates: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var decoded rateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("rates: decode rate: %w", err)
	}

	rate, ok := new(big.Rat).SetString(decoded.UnitsPerUSDCent)
	if !ok || rate.Sign() <= 0 {
		return nil, fmt.Errorf("rates: invalid rate %q for %s", decoded.UnitsPerUSDCent, currency)
	}
	return rate, nil
}

// ceilRat returns the smallest integer >= r.
func ceilRat(r *big.Rat) *big.Int {
	quo, rem := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}
