package fetch

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/tradedrill/shared"
	"github.com/go-co-op/gocron"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type tickerFetcherMock struct {
	tickers []shared.Ticker
	err     error
}

func (m *tickerFetcherMock) FetchTickers(ctx context.Context) ([]shared.Ticker, error) {
	return m.tickers, m.err
}

func TestTickerCacheConfigValidate(t *testing.T) {
	logger := zerolog.New(nil)
	baseCfg := &TickerCacheConfig{
		Fetchers:        []shared.TickerFetcher{&tickerFetcherMock{}},
		RefreshInterval: time.Hour,
		JobScheduler:    gocron.NewScheduler(time.UTC),
		Logger:          &logger,
	}

	tests := []struct {
		name        string
		modify      func(cfg *TickerCacheConfig)
		wantErr     bool
		errContains []string
	}{
		{
			name:   "valid config returns nil",
			modify: func(cfg *TickerCacheConfig) {},
		},
		{
			name:        "zero refresh interval",
			modify:      func(cfg *TickerCacheConfig) { cfg.RefreshInterval = 0 },
			wantErr:     true,
			errContains: []string{"refresh interval must be positive"},
		},
		{
			name: "multiple missing fields",
			modify: func(cfg *TickerCacheConfig) {
				*cfg = TickerCacheConfig{}
			},
			wantErr: true,
			errContains: []string{
				"no ticker fetchers provided",
				"refresh interval must be positive",
				"job scheduler cannot be nil",
				"logger cannot be nil",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *baseCfg
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				for _, substr := range tt.errContains {
					assert.True(t, strings.Contains(err.Error(), substr))
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTickerCache(t *testing.T) {
	stocks := &tickerFetcherMock{tickers: []shared.Ticker{
		{Kind: shared.Stock, Symbol: "AAPL"},
		{Kind: shared.Stock, Symbol: "MSFT"},
	}}
	crypto := &tickerFetcherMock{tickers: []shared.Ticker{{Kind: shared.Crypto, Symbol: "BTCUSD"}}}

	cache, err := NewTickerCache(&TickerCacheConfig{
		Fetchers:        []shared.TickerFetcher{stocks, crypto},
		RefreshInterval: time.Hour,
		JobScheduler:    gocron.NewScheduler(time.UTC),
		Logger:          &log.Logger,
	})
	assert.NoError(t, err)

	// Ensure lookups on an empty cache report provider access errors.
	_, err = cache.Find("AAPL")
	assert.True(t, errors.Is(err, shared.ErrProviderAccess))

	rng := rand.New(rand.NewPCG(1, 2))
	_, err = cache.Random([]string{"AAPL"}, rng)
	assert.True(t, errors.Is(err, shared.ErrProviderAccess))

	// Ensure the cache can be started and populated.
	ctx := context.Background()
	assert.NoError(t, cache.Start(ctx))
	defer cache.Stop()
	assert.Equal(t, 3, len(cache.tickers))
	assert.False(t, cache.UpdatedOn().IsZero())

	ticker, err := cache.Find("BTCUSD")
	assert.NoError(t, err)
	assert.Equal(t, shared.Crypto, ticker.Kind)

	_, err = cache.Find("DOGE")
	assert.True(t, errors.Is(err, shared.ErrTickerNotFound))

	// Ensure random tickers are picked from the provided shortlist.
	for range 10 {
		ticker, err := cache.Random([]string{"AAPL", "MSFT"}, rng)
		assert.NoError(t, err)
		assert.In(t, ticker.Symbol, []string{"AAPL", "MSFT"})
	}

	// Ensure shortlist symbols missing from the cache are never drawn.
	for range 50 {
		ticker, err := cache.Random([]string{"BTC", "DOGEUSD", "BTCUSD", "ETH"}, rng)
		assert.NoError(t, err)
		assert.Equal(t, "BTCUSD", ticker.Symbol)
	}

	// Ensure shortlists with no cached symbols surface as configuration errors.
	_, err = cache.Random([]string{"BTC", "DOGE"}, rng)
	assert.True(t, errors.Is(err, shared.ErrSessionConfiguration))
	assert.True(t, errors.Is(err, shared.ErrTickerNotFound))

	_, err = cache.Random(nil, rng)
	assert.True(t, errors.Is(err, shared.ErrSessionConfiguration))

	// Ensure a failed refresh leaves the cached tickers untouched.
	crypto.err = errors.New("unavailable")
	assert.Error(t, cache.Refresh(ctx))
	assert.Equal(t, 3, len(cache.tickers))
}
