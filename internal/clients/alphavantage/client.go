// Package alphavantage provides a client for the Alpha Vantage API
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/models"
)

const (
	DefaultBaseURL = "https://www.alphavantage.co"
	DefaultTimeout = 10 * time.Second
)

// Client implements the ProviderClient interface for Alpha Vantage.
// The free tier is heavily throttled, so the courtesy limiter defaults to
// well under one request per second.
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

// WithRequestsPerMinute sets the courtesy rate limit
func WithRequestsPerMinute(perMinute int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1)
	}
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(5.0/60), 1),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string { return "alphavantage" }

// get performs a rate-limited GET and detects Alpha Vantage's in-band
// throttle responses, which arrive as HTTP 200 with a "Note" or
// "Information" body.
func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s/query?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("function", params.Get("function")).Msg("Alpha Vantage API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := models.FailureNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = models.FailureTimeout
		}
		return nil, &models.ProviderError{Provider: c.Name(), Kind: kind, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.ProviderError{Provider: c.Name(), Kind: models.FailureNetwork, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		kind := models.FailureInvalidResponse
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = models.FailureRateLimited
		}
		return nil, &models.ProviderError{
			Provider:   c.Name(),
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	var envelope struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Note != "" || envelope.Information != "" {
			return nil, &models.ProviderError{Provider: c.Name(), Kind: models.FailureRateLimited, Message: "API call frequency exceeded"}
		}
		if envelope.ErrorMessage != "" {
			return nil, &models.ProviderError{Provider: c.Name(), Kind: models.FailureNotFound, Message: envelope.ErrorMessage}
		}
	}

	return body, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// FetchQuote retrieves a quote via the GLOBAL_QUOTE function.
// Alpha Vantage does not use exchange suffixes for US symbols.
func (c *Client) FetchQuote(ctx context.Context, ticker, exchange string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", ticker)

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var gq struct {
		GlobalQuote struct {
			Symbol        string `json:"01. symbol"`
			Price         string `json:"05. price"`
			PreviousClose string `json:"08. previous close"`
			ChangePercent string `json:"10. change percent"`
		} `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &gq); err != nil {
		return nil, &models.ProviderError{Provider: c.Name(), Kind: models.FailureInvalidResponse, Message: err.Error()}
	}

	price := parseFloat(gq.GlobalQuote.Price)
	if price <= 0 {
		// An empty Global Quote object is how Alpha Vantage reports an
		// unknown symbol.
		return nil, &models.ProviderError{
			Provider: c.Name(),
			Kind:     models.FailureNotFound,
			Message:  fmt.Sprintf("no quote for %s", ticker),
		}
	}

	changePct := 0.0
	if s := gq.GlobalQuote.ChangePercent; s != "" {
		changePct = parseFloat(s[:len(s)-1]) // strip trailing "%"
	}

	return &models.Quote{
		Ticker:        ticker,
		Price:         price,
		PreviousClose: parseFloat(gq.GlobalQuote.PreviousClose),
		DayChangePct:  changePct,
		Timestamp:     time.Now(),
		Source:        c.Name(),
	}, nil
}

// FetchHistory retrieves the compact daily series (~100 bars), oldest first.
func (c *Client) FetchHistory(ctx context.Context, ticker, exchange string) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", ticker)
	params.Set("outputsize", "compact")

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var ts struct {
		Series map[string]struct {
			Open  string `json:"1. open"`
			High  string `json:"2. high"`
			Low   string `json:"3. low"`
			Close string `json:"4. close"`
		} `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &ts); err != nil {
		return nil, &models.ProviderError{Provider: c.Name(), Kind: models.FailureInvalidResponse, Message: err.Error()}
	}
	if len(ts.Series) == 0 {
		return nil, &models.ProviderError{Provider: c.Name(), Kind: models.FailureNotFound, Message: fmt.Sprintf("no history for %s", ticker)}
	}

	bars := make([]models.Bar, 0, len(ts.Series))
	for dateStr, row := range ts.Series {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Date:  date,
			Open:  parseFloat(row.Open),
			High:  parseFloat(row.High),
			Low:   parseFloat(row.Low),
			Close: parseFloat(row.Close),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// SearchSymbols looks up instruments via the SYMBOL_SEARCH function.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]models.SymbolMatch, error) {
	params := url.Values{}
	params.Set("function", "SYMBOL_SEARCH")
	params.Set("keywords", query)

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var sr struct {
		BestMatches []struct {
			Symbol   string `json:"1. symbol"`
			Name     string `json:"2. name"`
			Type     string `json:"3. type"`
			Region   string `json:"4. region"`
			Currency string `json:"8. currency"`
		} `json:"bestMatches"`
	}
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, &models.ProviderError{Provider: c.Name(), Kind: models.FailureInvalidResponse, Message: err.Error()}
	}

	matches := make([]models.SymbolMatch, 0, len(sr.BestMatches))
	for _, m := range sr.BestMatches {
		matches = append(matches, models.SymbolMatch{
			Symbol:   m.Symbol,
			Name:     m.Name,
			Exchange: m.Region,
			Currency: m.Currency,
			Type:     m.Type,
		})
	}
	return matches, nil
}
