// Package app wires configuration, storage, provider clients and services
// into a single application core shared by the server binary and tests.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmaxwell/limitwatch/internal/clients/alphavantage"
	"github.com/jmaxwell/limitwatch/internal/clients/eodhd"
	"github.com/jmaxwell/limitwatch/internal/clients/finnhub"
	"github.com/jmaxwell/limitwatch/internal/common"
	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
	"github.com/jmaxwell/limitwatch/internal/services/markethours"
	"github.com/jmaxwell/limitwatch/internal/services/notify"
	"github.com/jmaxwell/limitwatch/internal/services/ratelimit"
	"github.com/jmaxwell/limitwatch/internal/services/scanner"
	"github.com/jmaxwell/limitwatch/internal/services/watchlist"
	"github.com/jmaxwell/limitwatch/internal/storage"
)

// App holds all initialized services and clients. It is the shared core
// used by cmd/limitwatch-server and by integration tests.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	Providers   []interfaces.ProviderClient
	RateLimiter interfaces.RateLimiter
	MarketHours interfaces.MarketHours
	Notifier    interfaces.Notifier
	Watchlist   interfaces.Watchlist
	Scanner     interfaces.Scanner
	StartupTime time.Time

	timerCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, storage, clients and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	// Load configuration - check provided path, LIMITWATCH_CONFIG, then
	// binary dir, then fallback for development
	if configPath == "" {
		configPath = os.Getenv("LIMITWATCH_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "limitwatch.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/limitwatch.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative paths to binary directory
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	providers := buildProviders(config, logger)
	if len(providers) == 0 {
		logger.Warn().Msg("No data providers configured - scans will be unavailable")
	}

	quotas := make(map[string]models.ProviderQuota, len(providers))
	timeouts := make(map[string]time.Duration, len(providers))
	delays := make(map[string]time.Duration, len(providers))
	for _, p := range providers {
		pc := config.Providers.ByName(p.Name())
		quotas[p.Name()] = pc.Quota()
		timeouts[p.Name()] = pc.GetTimeout()
		delays[p.Name()] = pc.GetMinDelay()
	}

	tracker := ratelimit.NewTracker(quotas, storageManager.Usage(), logger)
	hours := markethours.NewService(logger)
	notifier := notify.NewService(storageManager.Notifications(), config.Scan.DailyDropPct, logger)

	var searchProvider interfaces.ProviderClient
	if len(providers) > 0 {
		searchProvider = providers[0]
	}
	watchlistService := watchlist.NewService(storageManager, searchProvider, tracker, logger)

	fetcher := scanner.NewFetcher(providers, tracker, timeouts, logger)
	executor := scanner.NewExecutor(fetcher, storageManager, notifier, watchlistService, delays, config.Scan.GetUnavailableTTL(), logger)
	queue := scanner.NewQueueManager(scanner.NewScorer(config.Weights), hours, &config.Scan, config.Weights, config.EnabledProviders())
	scanService := scanner.NewService(queue, executor, tracker, storageManager, hours, config, logger)

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		Providers:   providers,
		RateLimiter: tracker,
		MarketHours: hours,
		Notifier:    notifier,
		Watchlist:   watchlistService,
		Scanner:     scanService,
		StartupTime: startupStart,
	}

	logger.Info().
		Dur("startup", time.Since(startupStart)).
		Strs("providers", config.EnabledProviders()).
		Msg("App initialized")

	return a, nil
}

// buildProviders constructs the enabled provider clients in fallback order.
func buildProviders(config *common.Config, logger *common.Logger) []interfaces.ProviderClient {
	var providers []interfaces.ProviderClient
	for _, name := range config.EnabledProviders() {
		pc := config.Providers.ByName(name)
		switch name {
		case "eodhd":
			opts := []eodhd.ClientOption{
				eodhd.WithLogger(logger),
				eodhd.WithTimeout(pc.GetTimeout()),
			}
			if pc.BaseURL != "" {
				opts = append(opts, eodhd.WithBaseURL(pc.BaseURL))
			}
			providers = append(providers, eodhd.NewClient(pc.APIKey, opts...))
		case "alphavantage":
			opts := []alphavantage.ClientOption{
				alphavantage.WithLogger(logger),
				alphavantage.WithTimeout(pc.GetTimeout()),
			}
			if pc.BaseURL != "" {
				opts = append(opts, alphavantage.WithBaseURL(pc.BaseURL))
			}
			providers = append(providers, alphavantage.NewClient(pc.APIKey, opts...))
		case "finnhub":
			opts := []finnhub.ClientOption{
				finnhub.WithLogger(logger),
				finnhub.WithTimeout(pc.GetTimeout()),
			}
			if pc.BaseURL != "" {
				opts = append(opts, finnhub.WithBaseURL(pc.BaseURL))
			}
			providers = append(providers, finnhub.NewClient(pc.APIKey, opts...))
		}
	}
	return providers
}

// Close releases all resources held by the App.
// Shutdown order: cancel timers, close storage.
func (a *App) Close() {
	if a.timerCancel != nil {
		a.timerCancel()
		a.timerCancel = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}

// StartScanTimers launches the background auto-scan and batch-scan loops.
func (a *App) StartScanTimers() {
	ctx, cancel := context.WithCancel(context.Background())
	a.timerCancel = cancel
	go runAutoScanLoop(ctx, a.Scanner, a.Config.Scan.GetAutoInterval(), a.Logger)
	go runBatchScanLoop(ctx, a.Scanner, a.Config.Scan.GetBatchInterval(), a.Logger)
}
