// Package finnhub provides a client for the Finnhub API
package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/models"
)

const (
	DefaultBaseURL   = "https://finnhub.io/api/v1"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements the ProviderClient interface for Finnhub.
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
	return func(c *Client) { c.baseURL = baseURL }
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithRateLimit sets the courtesy rate limit in requests per second
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new Finnhub client
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
func (c *Client) Name() string { return "finnhub" }

// get performs a rate-limited GET request and classifies HTTP failures.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Finnhub API request")

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
		case http.StatusTooManyRequests:
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

// FetchQuote retrieves a live quote. Finnhub returns all-zero fields for an
// unknown symbol rather than a 404.
func (c *Client) FetchQuote(ctx context.Context, ticker, exchange string) (*models.Quote, error) {
	var qr struct {
		Current       float64 `json:"c"`
		ChangePercent float64 `json:"dp"`
		PreviousClose float64 `json:"pc"`
		Timestamp     int64   `json:"t"`
	}
	params := url.Values{}
	params.Set("symbol", ticker)
	if err := c.get(ctx, "/quote", params, &qr); err != nil {
		return nil, err
	}

	if qr.Current <= 0 {
		return nil, &models.ProviderError{
			Provider: c.Name(),
			Kind:     models.FailureNotFound,
			Message:  fmt.Sprintf("no quote for %s", ticker),
		}
	}

	ts := time.Now()
	if qr.Timestamp > 0 {
		ts = time.Unix(qr.Timestamp, 0)
	}

	return &models.Quote{
		Ticker:        ticker,
		Price:         qr.Current,
		PreviousClose: qr.PreviousClose,
		DayChangePct:  qr.ChangePercent,
		Timestamp:     ts,
		Source:        c.Name(),
	}, nil
}

// FetchHistory retrieves one year of daily candles, oldest first.
func (c *Client) FetchHistory(ctx context.Context, ticker, exchange string) ([]models.Bar, error) {
	now := time.Now()
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("resolution", "D")
	params.Set("from", fmt.Sprintf("%d", now.AddDate(-1, 0, 0).Unix()))
	params.Set("to", fmt.Sprintf("%d", now.Unix()))

	var cr struct {
		Status string    `json:"s"`
		Open   []float64 `json:"o"`
		High   []float64 `json:"h"`
		Low    []float64 `json:"l"`
		Close  []float64 `json:"c"`
		Times  []int64   `json:"t"`
	}
	if err := c.get(ctx, "/stock/candle", params, &cr); err != nil {
		return nil, err
	}

	if cr.Status != "ok" || len(cr.Times) == 0 {
		return nil, &models.ProviderError{
			Provider: c.Name(),
			Kind:     models.FailureNotFound,
			Message:  fmt.Sprintf("no candles for %s", ticker),
		}
	}

	bars := make([]models.Bar, 0, len(cr.Times))
	for i := range cr.Times {
		if i >= len(cr.Open) || i >= len(cr.High) || i >= len(cr.Low) || i >= len(cr.Close) {
			break
		}
		bars = append(bars, models.Bar{
			Date:  time.Unix(cr.Times[i], 0),
			Open:  cr.Open[i],
			High:  cr.High[i],
			Low:   cr.Low[i],
			Close: cr.Close[i],
		})
	}
	return bars, nil
}

// SearchSymbols looks up instruments matching a free-text query.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	var sr struct {
		Result []struct {
			Symbol      string `json:"symbol"`
			Description string `json:"description"`
			Type        string `json:"type"`
		} `json:"result"`
	}
	params := url.Values{}
	params.Set("q", query)
	if err := c.get(ctx, "/search", params, &sr); err != nil {
		return nil, err
	}

	matches := make([]models.SymbolMatch, 0, len(sr.Result))
	for _, r := range sr.Result {
		matches = append(matches, models.SymbolMatch{
			Symbol: r.Symbol,
			Name:   r.Description,
			Type:   r.Type,
		})
	}
	return matches, nil
}
