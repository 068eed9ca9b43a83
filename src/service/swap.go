package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrInvalidSwapRequest wraps request validation failures
var ErrInvalidSwapRequest = errors.New("invalid swap request")

type SwapConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries uint64
}

// SwapAPIError is a non-2xx answer of the aggregator
type SwapAPIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *SwapAPIError) Error() string {
	return fmt.Sprintf("swap api %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// SwapQuoteClient talks to a 1inch style aggregator API
type SwapQuoteClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries uint64
}

func NewSwapQuoteClient(cfg SwapConfig) *SwapQuoteClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SwapQuoteClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
	}
}

// logger wraps the execution context with component info
func (c *SwapQuoteClient) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "swap").Logger()
	return &l
}

type swapTx struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value string         `json:"value"`
	Gas   uint64         `json:"gas"`
}

type swapResponse struct {
	FromTokenAmount string  `json:"fromTokenAmount"`
	ToTokenAmount   string  `json:"toTokenAmount"`
	EstimatedGas    uint64  `json:"estimatedGas"`
	Tx              *swapTx `json:"tx"`
}

// Quote returns the expected output of a swap without transaction data
func (c *SwapQuoteClient) Quote(ctx context.Context, req domain.SwapQuoteRequest) (*domain.SwapQuote, error) {
	if err := validateSwapRequest(req); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("fromTokenAddress", req.FromToken.Hex())
	params.Set("toTokenAddress", req.ToToken.Hex())
	params.Set("amount", req.Amount.String())
	if req.From != (common.Address{}) {
		params.Set("fromAddress", req.From.Hex())
	}

	var resp swapResponse
	if err := c.get(ctx, fmt.Sprintf("/%d/quote", req.ChainID), params, &resp); err != nil {
		return nil, err
	}
	return buildSwapQuote(req, &resp)
}

// BuildSwap returns a quote whose Transaction executes the swap from req.From
func (c *SwapQuoteClient) BuildSwap(ctx context.Context, req domain.SwapQuoteRequest) (*domain.SwapQuote, error) {
	if err := validateSwapRequest(req); err != nil {
		return nil, err
	}
	if req.From == (common.Address{}) {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidSwapRequest)
	}
	slippage := req.Slippage
	if slippage.IsZero() {
		slippage = decimal.NewFromInt(1)
	}
	params := url.Values{}
	params.Set("fromTokenAddress", req.FromToken.Hex())
	params.Set("toTokenAddress", req.ToToken.Hex())
	params.Set("amount", req.Amount.String())
	params.Set("fromAddress", req.From.Hex())
	params.Set("slippage", slippage.String())

	var resp swapResponse
	if err := c.get(ctx, fmt.Sprintf("/%d/swap", req.ChainID), params, &resp); err != nil {
		return nil, err
	}
	if resp.Tx == nil {
		return nil, fmt.Errorf("swap response has no transaction")
	}
	return buildSwapQuote(req, &resp)
}

func validateSwapRequest(req domain.SwapQuoteRequest) error {
	if req.ChainID <= 0 {
		return fmt.Errorf("%w: chain id %d", ErrInvalidSwapRequest, req.ChainID)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidSwapRequest)
	}
	if req.FromToken == req.ToToken {
		return fmt.Errorf("%w: tokens must differ", ErrInvalidSwapRequest)
	}
	return nil
}

func buildSwapQuote(req domain.SwapQuoteRequest, resp *swapResponse) (*domain.SwapQuote, error) {
	toAmount, err := decimal.NewFromString(resp.ToTokenAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse output amount %q: %w", resp.ToTokenAmount, err)
	}
	fromAmount := req.Amount
	if resp.FromTokenAmount != "" {
		if fromAmount, err = decimal.NewFromString(resp.FromTokenAmount); err != nil {
			return nil, fmt.Errorf("failed to parse input amount %q: %w", resp.FromTokenAmount, err)
		}
	}

	quote := &domain.SwapQuote{
		FromToken:    req.FromToken,
		ToToken:      req.ToToken,
		FromAmount:   fromAmount,
		ToAmount:     toAmount,
		PriceImpact:  fromAmount.Sub(toAmount).Div(fromAmount).Mul(decimal.NewFromInt(100)).Abs(),
		EstimatedGas: resp.EstimatedGas,
	}

	if resp.Tx != nil {
		value := new(big.Int)
		if resp.Tx.Value != "" {
			if _, ok := value.SetString(resp.Tx.Value, 10); !ok {
				return nil, fmt.Errorf("invalid swap transaction value %q", resp.Tx.Value)
			}
		}
		quote.Transaction = domain.CallRequest{
			To:    resp.Tx.To,
			Data:  resp.Tx.Data,
			Value: (*hexutil.Big)(value),
		}
		if resp.Tx.Gas > 0 {
			quote.EstimatedGas = resp.Tx.Gas
		}
	}
	return quote, nil
}

// get performs a GET with exponential backoff on transport errors and retryable statuses
func (c *SwapQuoteClient) get(ctx context.Context, path string, params url.Values, target interface{}) error {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	start := time.Now()

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			apiErr := &SwapAPIError{StatusCode: resp.StatusCode, URL: c.baseURL + path, Body: string(body)}
			if retryableStatus(resp.StatusCode) {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if err := json.Unmarshal(body, target); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode swap response: %w", err))
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond
	expBackoff.MaxInterval = 2 * time.Second
	expBackoff.Multiplier = 2.0
	expBackoff.MaxElapsedTime = 10 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(expBackoff, c.maxRetries), ctx))
	if err != nil {
		c.logger(ctx).Warn().Err(err).
			Str("path", path).
			Dur("duration", time.Since(start)).
			Msg("swap api request failed")
		return fmt.Errorf("swap request failed: %w", err)
	}

	c.logger(ctx).Debug().
		Str("path", path).
		Dur("duration", time.Since(start)).
		Msg("swap api request succeeded")
	return nil
}
