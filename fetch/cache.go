package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dnldd/tradedrill/shared"
	"github.com/dnldd/tradedrill/slicer"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// TickerCacheConfig represents the ticker cache configuration.
type TickerCacheConfig struct {
	// Fetchers are the providers tickers are collected from.
	Fetchers []shared.TickerFetcher
	// RefreshInterval is the interval between ticker refreshes.
	RefreshInterval time.Duration
	// JobScheduler represents the job scheduler.
	JobScheduler *gocron.Scheduler
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *TickerCacheConfig) Validate() error {
	var errs error

	if len(cfg.Fetchers) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no ticker fetchers provided"))
	}
	if cfg.RefreshInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("refresh interval must be positive"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// TickerCache keeps the tickers served by the configured providers, keyed by symbol.
type TickerCache struct {
	cfg        *TickerCacheConfig
	tickers    map[string]shared.Ticker
	tickersMtx sync.RWMutex
	updatedOn  time.Time
}

// NewTickerCache initializes a new ticker cache.
func NewTickerCache(cfg *TickerCacheConfig) (*TickerCache, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating ticker cache config: %w", err)
	}

	return &TickerCache{
		cfg:     cfg,
		tickers: make(map[string]shared.Ticker),
	}, nil
}

// Refresh replaces the cached tickers with the ones currently served by the providers.
// The cache is left untouched if any provider fails.
func (c *TickerCache) Refresh(ctx context.Context) error {
	tickers := make(map[string]shared.Ticker)
	for _, fetcher := range c.cfg.Fetchers {
		fetched, err := fetcher.FetchTickers(ctx)
		if err != nil {
			return fmt.Errorf("refreshing tickers: %w", err)
		}

		for _, ticker := range fetched {
			tickers[ticker.Symbol] = ticker
		}
	}

	c.tickersMtx.Lock()
	c.tickers = tickers
	c.updatedOn = time.Now()
	c.tickersMtx.Unlock()

	c.cfg.Logger.Info().Msgf("ticker cache refreshed with %d tickers", len(tickers))

	return nil
}

// Find returns the cached ticker with the provided symbol.
func (c *TickerCache) Find(symbol string) (shared.Ticker, error) {
	c.tickersMtx.RLock()
	defer c.tickersMtx.RUnlock()

	if len(c.tickers) == 0 {
		return shared.Ticker{}, fmt.Errorf("%w: ticker cache is empty", shared.ErrProviderAccess)
	}

	ticker, ok := c.tickers[symbol]
	if !ok {
		return shared.Ticker{}, fmt.Errorf("%w: %s", shared.ErrTickerNotFound, symbol)
	}

	return ticker, nil
}

// Random returns a ticker picked at random from the provided symbols. Only symbols
// present in the cache are drawn from, symbols the providers do not list are skipped.
func (c *TickerCache) Random(symbols []string, rng slicer.RandomSource) (shared.Ticker, error) {
	if len(symbols) == 0 {
		return shared.Ticker{}, fmt.Errorf("%w: no symbols to pick from", shared.ErrSessionConfiguration)
	}

	c.tickersMtx.RLock()
	defer c.tickersMtx.RUnlock()

	if len(c.tickers) == 0 {
		return shared.Ticker{}, fmt.Errorf("%w: %w: ticker cache is empty",
			shared.ErrSessionConfiguration, shared.ErrProviderAccess)
	}

	cached := make([]shared.Ticker, 0, len(symbols))
	for _, symbol := range symbols {
		ticker, ok := c.tickers[symbol]
		if ok {
			cached = append(cached, ticker)
		}
	}

	if len(cached) == 0 {
		return shared.Ticker{}, fmt.Errorf("%w: %w: none of %s are listed", shared.ErrSessionConfiguration,
			shared.ErrTickerNotFound, strings.Join(symbols, ", "))
	}

	return cached[rng.IntN(len(cached))], nil
}

// UpdatedOn returns the time of the last successful refresh.
func (c *TickerCache) UpdatedOn() time.Time {
	c.tickersMtx.RLock()
	defer c.tickersMtx.RUnlock()

	return c.updatedOn
}

// Start populates the cache and schedules periodic refreshes.
func (c *TickerCache) Start(ctx context.Context) error {
	err := c.Refresh(ctx)
	if err != nil {
		return err
	}

	_, err = c.cfg.JobScheduler.Every(c.cfg.RefreshInterval).WaitForSchedule().SingletonMode().Do(func() {
		err := c.Refresh(ctx)
		if err != nil {
			c.cfg.Logger.Error().Err(err).Msg("scheduled ticker refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling ticker refresh: %w", err)
	}

	c.cfg.JobScheduler.StartAsync()

	return nil
}

// Stop halts the scheduled refreshes.
func (c *TickerCache) Stop() {
	c.cfg.JobScheduler.Stop()
}
