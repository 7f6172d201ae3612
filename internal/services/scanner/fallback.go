package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

// Fetcher fetches one instrument's data, trying providers in priority order
// until one returns a validated price. It implements the FallbackFetcher
// interface.
type Fetcher struct {
	providers []interfaces.ProviderClient // priority order
	limiter   interfaces.RateLimiter
	timeouts  map[string]time.Duration // per-attempt timeout per provider
	logger    *common.Logger
}

// NewFetcher creates a fallback fetcher over the given provider chain.
func NewFetcher(providers []interfaces.ProviderClient, limiter interfaces.RateLimiter, timeouts map[string]time.Duration, logger *common.Logger) *Fetcher {
	return &Fetcher{
		providers: providers,
		limiter:   limiter,
		timeouts:  timeouts,
		logger:    logger,
	}
}

// classify turns an attempt error into a recorded failure.
func classify(provider string, err error) models.AttemptFailure {
	var perr *models.ProviderError
	if errors.As(err, &perr) {
		return models.AttemptFailure{Provider: provider, Kind: perr.Kind, Message: perr.Message}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.AttemptFailure{Provider: provider, Kind: models.FailureTimeout, Message: err.Error()}
	}
	return models.AttemptFailure{Provider: provider, Kind: models.FailureNetwork, Message: err.Error()}
}

// summarize picks the most specific failure message across attempts.
// Not-found beats invalid-response beats timeout beats network: a provider
// positively saying "unknown ticker" is more informative than a flaky link.
func summarize(failures []models.AttemptFailure) string {
	rank := func(k models.FailureKind) int {
		switch k {
		case models.FailureNotFound:
			return 0
		case models.FailureInvalidResponse:
			return 1
		case models.FailureTimeout:
			return 2
		case models.FailureNetwork:
			return 3
		default:
			return 4
		}
	}
	if len(failures) == 0 {
		return "no providers available"
	}
	best := failures[0]
	for _, f := range failures[1:] {
		if rank(f.Kind) < rank(best.Kind) {
			best = f
		}
	}
	return fmt.Sprintf("%s: %s", best.Provider, best.Message)
}

// timeout returns the per-attempt timeout for a provider.
func (f *Fetcher) timeout(provider string) time.Duration {
	if d, ok := f.timeouts[provider]; ok && d > 0 {
		return d
	}
	return 10 * time.Second
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Fetch tries providers in order until one returns a validated price.
// With ForceProvider set only that provider is attempted: no fallback, no
// quota spent on others. A provider is never counted against quota unless
// actually called.
func (f *Fetcher) Fetch(ctx context.Context, ticker, exchange string, opts interfaces.FetchOptions) *models.FetchResult {
	result := &models.FetchResult{}

	chain := f.providers
	if opts.ForceProvider != "" {
		chain = nil
		for _, p := range f.providers {
			if p.Name() == opts.ForceProvider {
				chain = []interfaces.ProviderClient{p}
				break
			}
		}
		if chain == nil {
			result.UnavailableReason = fmt.Sprintf("provider '%s' is not configured", opts.ForceProvider)
			return result
		}
	}

	attempted := 0
	for _, provider := range chain {
		name := provider.Name()
		if opts.ForceProvider == "" && contains(opts.SkipProviders, name) {
			continue
		}

		// Pre-emptive quota check: a provider with no remaining allowance
		// is skipped without a network call and without being marked
		// unavailable for the ticker.
		if f.limiter.AvailableRequests(ctx, name) <= 0 {
			result.Failures = append(result.Failures, models.AttemptFailure{
				Provider: name,
				Kind:     models.FailureRateLimited,
				Message:  "quota exhausted",
			})
			continue
		}

		quote, err := f.fetchQuote(ctx, provider, ticker, exchange)
		attempted++
		if err != nil {
			failure := classify(name, err)
			result.Failures = append(result.Failures, failure)
			result.UnavailableProviders = append(result.UnavailableProviders, name)
			f.logger.Debug().
				Str("ticker", ticker).
				Str("provider", name).
				Str("kind", failure.Kind.String()).
				Msg("Provider attempt failed")
			continue
		}

		result.Quote = quote
		result.Provider = name
		result.Fallback = attempted > 1

		if opts.NeedsHistorical {
			// The quote call above may have spent the provider's last
			// remaining request; history needs its own allowance.
			if f.limiter.AvailableRequests(ctx, name) <= 0 {
				result.Failures = append(result.Failures, models.AttemptFailure{
					Provider: name,
					Kind:     models.FailureRateLimited,
					Message:  "quota exhausted before history fetch",
				})
			} else if history, histErr := f.fetchHistory(ctx, provider, ticker, exchange); histErr != nil {
				// Quote succeeded but history did not: a partial result.
				result.Failures = append(result.Failures, classify(name, histErr))
			} else {
				result.History = history
			}
		}
		return result
	}

	result.UnavailableReason = summarize(result.Failures)
	return result
}

// fetchQuote performs one bounded quote attempt and records the call.
func (f *Fetcher) fetchQuote(ctx context.Context, provider interfaces.ProviderClient, ticker, exchange string) (*models.Quote, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout(provider.Name()))
	defer cancel()

	quote, err := provider.FetchQuote(attemptCtx, ticker, exchange)
	if recErr := f.limiter.RecordCall(ctx, provider.Name()); recErr != nil {
		f.logger.Warn().Str("provider", provider.Name()).Err(recErr).Msg("Failed to record provider call")
	}
	if err != nil {
		return nil, err
	}
	if quote == nil || quote.Price <= 0 {
		return nil, &models.ProviderError{
			Provider: provider.Name(),
			Kind:     models.FailureInvalidResponse,
			Message:  fmt.Sprintf("no valid price for %s", ticker),
		}
	}
	return quote, nil
}

// fetchHistory performs one bounded history attempt and records the call.
func (f *Fetcher) fetchHistory(ctx context.Context, provider interfaces.ProviderClient, ticker, exchange string) ([]models.Bar, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout(provider.Name()))
	defer cancel()

	history, err := provider.FetchHistory(attemptCtx, ticker, exchange)
	if recErr := f.limiter.RecordCall(ctx, provider.Name()); recErr != nil {
		f.logger.Warn().Str("provider", provider.Name()).Err(recErr).Msg("Failed to record provider call")
	}
	return history, err
}
