// Package aggregator provides an HTTP client for an off-chain DEX
// aggregator. The aggregator routes a sell amount across venues, executes
// the trade from the solver's account, and reports the realized buy amount.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/semantic-layer/agi-solver/pkg/logging"
)

// DefaultSlippage is the slippage fraction used when none is configured.
const DefaultSlippage = 0.05

// ErrAggregatorUnavailable indicates a transport-level failure reaching
// the aggregator API.
var ErrAggregatorUnavailable = errors.New("aggregator unavailable")

// SwapRequest describes one trade to route.
type SwapRequest struct {
	FromToken   common.Address
	ToToken     common.Address
	FromAmount  *big.Int
	FromAddress common.Address
}

// Config holds aggregator client configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	Slippage       float64
	RequestTimeout time.Duration
}

// Client is an HTTP client for the aggregator API.
type Client struct {
	baseURL    string
	apiKey     string
	slippage   float64
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a new aggregator client.
func NewClient(cfg *Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	slippage := cfg.Slippage
	if slippage == 0 {
		slippage = DefaultSlippage
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		slippage: slippage,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logging.GetDefault().Component("aggregator"),
	}
}

// apiError is the aggregator's JSON error envelope.
type apiError struct {
	Error       string `json:"error"`
	Description string `json:"description"`
	StatusCode  int    `json:"statusCode"`
	RequestID   string `json:"requestId"`
}

// quoteResponse is the body of a quote reply.
type quoteResponse struct {
	DstAmount string `json:"dstAmount"`
}

// swapResponse is the body of an executed swap reply.
type swapResponse struct {
	DstAmount string `json:"dstAmount"`
	TxHash    string `json:"txHash"`
}

// Quote returns the estimated buy amount for a trade without executing it.
func (c *Client) Quote(ctx context.Context, req *SwapRequest) (*big.Int, error) {
	path := fmt.Sprintf("/quote?src=%s&dst=%s&amount=%s",
		req.FromToken.Hex(), req.ToToken.Hex(), req.FromAmount.String())

	var result quoteResponse
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}

	return parseAmount(result.DstAmount)
}

// Execute routes and executes a trade, blocking until the aggregator
// reports the realized buy amount.
func (c *Client) Execute(ctx context.Context, req *SwapRequest) (*big.Int, error) {
	body := map[string]interface{}{
		"src":      req.FromToken.Hex(),
		"dst":      req.ToToken.Hex(),
		"amount":   req.FromAmount.String(),
		"from":     req.FromAddress.Hex(),
		"slippage": c.slippage,
	}

	var result swapResponse
	if err := c.post(ctx, "/swap", body, &result); err != nil {
		return nil, err
	}

	amount, err := parseAmount(result.DstAmount)
	if err != nil {
		return nil, err
	}

	c.log.Debug("Swap executed", "dst_amount", result.DstAmount, "tx", result.TxHash)

	return amount, nil
}

// get performs a GET request and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// post performs a POST request with a JSON body and decodes the response.
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAggregatorUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Description != "" {
			return fmt.Errorf("aggregator error (status %d): %s", resp.StatusCode, apiErr.Description)
		}
		return fmt.Errorf("aggregator error: status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// parseAmount parses a decimal amount string as a big integer. Amounts are
// never coerced through fixed-width or floating-point types.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("aggregator returned empty amount")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("aggregator returned malformed amount %q", s)
	}
	return n, nil
}
