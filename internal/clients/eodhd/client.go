// Package eodhd provides a client for the EODHD API
package eodhd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/models"
)

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// flexFloat64 handles JSON values that may be either a number or a string.
// EODHD returns "NA" for tickers without real-time coverage.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "NA" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// Client implements the ProviderClient interface for EODHD.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the courtesy rate limit in requests per second
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "eodhd" }

// get performs a rate-limited GET request and classifies HTTP failures.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := models.FailureNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = models.FailureTimeout
		}
		return &models.ProviderError{Provider: c.Name(), Kind: kind, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		kind := models.FailureInvalidResponse
		switch resp.StatusCode {
		case http.StatusNotFound:
			kind = models.FailureNotFound
		case http.StatusTooManyRequests, http.StatusPaymentRequired:
			kind = models.FailureRateLimited
		}
		return &models.ProviderError{
			Provider:   c.Name(),
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &models.ProviderError{Provider: c.Name(), Kind: models.FailureInvalidResponse, Message: err.Error()}
	}

	return nil
}

// symbol builds the EODHD ticker form "CODE.EXCHANGE".
func symbol(ticker, exchange string) string {
	if exchange == "" || strings.Contains(ticker, ".") {
		return ticker
	}
	return ticker + "." + exchange
}

type quoteResponse struct {
	Code          string      `json:"code"`
	Close         flexFloat64 `json:"close"`
	PreviousClose flexFloat64 `json:"previousClose"`
	ChangeP       flexFloat64 `json:"change_p"`
	High          flexFloat64 `json:"high"`
	Low           flexFloat64 `json:"low"`
	Timestamp     int64       `json:"timestamp"`
}

// FetchQuote retrieves a delayed real-time quote.
func (c *Client) FetchQuote(ctx context.Context, ticker, exchange string) (*models.Quote, error) {
	var qr quoteResponse
	path := fmt.Sprintf("/real-time/%s", symbol(ticker, exchange))
	if err := c.get(ctx, path, nil, &qr); err != nil {
		return nil, err
	}

	if qr.Close <= 0 {
		return nil, &models.ProviderError{
			Provider: c.Name(),
			Kind:     models.FailureInvalidResponse,
			Message:  fmt.Sprintf("no price for %s", symbol(ticker, exchange)),
		}
	}

	ts := time.Now()
	if qr.Timestamp > 0 {
		ts = time.Unix(qr.Timestamp, 0)
	}

	return &models.Quote{
		Ticker:        ticker,
		Price:         float64(qr.Close),
		PreviousClose: float64(qr.PreviousClose),
		DayChangePct:  float64(qr.ChangeP),
		Timestamp:     ts,
		Source:        c.Name(),
	}, nil
}

type eodBarResponse struct {
	Date  string      `json:"date"`
	Open  flexFloat64 `json:"open"`
	High  flexFloat64 `json:"high"`
	Low   flexFloat64 `json:"low"`
	Close flexFloat64 `json:"close"`
}

// FetchHistory retrieves roughly one year of daily bars, oldest first.
func (c *Client) FetchHistory(ctx context.Context, ticker, exchange string) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("period", "d")
	params.Set("order", "a")
	params.Set("from", time.Now().AddDate(-1, 0, 0).Format("2006-01-02"))

	var raw []eodBarResponse
	path := fmt.Sprintf("/eod/%s", symbol(ticker, exchange))
	if err := c.get(ctx, path, params, &raw); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, b := range raw {
		date, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Date:  date,
			Open:  float64(b.Open),
			High:  float64(b.High),
			Low:   float64(b.Low),
			Close: float64(b.Close),
		})
	}
	return bars, nil
}

type searchResponse struct {
	Code     string `json:"Code"`
	Name     string `json:"Name"`
	Exchange string `json:"Exchange"`
	Currency string `json:"Currency"`
	Type     string `json:"Type"`
}

// SearchSymbols looks up instruments matching a free-text query.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	var raw []searchResponse
	path := fmt.Sprintf("/search/%s", url.PathEscape(query))
	if err := c.get(ctx, path, nil, &raw); err != nil {
		return nil, err
	}

	matches := make([]models.SymbolMatch, 0, len(raw))
	for _, r := range raw {
		matches = append(matches, models.SymbolMatch{
			Symbol:   r.Code,
			Name:     r.Name,
			Exchange: r.Exchange,
			Currency: r.Currency,
			Type:     r.Type,
		})
	}
	return matches, nil
}
