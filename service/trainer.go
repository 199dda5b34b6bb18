package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/tradedrill/database"
	"github.com/dnldd/tradedrill/fetch"
	"github.com/dnldd/tradedrill/session"
	"github.com/dnldd/tradedrill/shared"
	"github.com/dnldd/tradedrill/slicer"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	// defaultRefreshInterval is the default interval between ticker cache refreshes.
	defaultRefreshInterval = time.Hour * 24
)

// TrainerConfig represents the configuration struct for the trainer service.
type TrainerConfig struct {
	// FMPAPIkey is the FMP service API Key.
	FMPAPIKey string
	// FMPBaseURL is the FMP API base url, defaults to the stable api.
	FMPBaseURL string
	// HistoricDataFilepath is the filepath to offline quotes. When set, the file replaces
	// the FMP service as the quote and ticker provider.
	HistoricDataFilepath string
	// DBEndpoint is the rqlite endpoint. Sessions are kept in memory when empty.
	DBEndpoint string
	// DBUser is the database user.
	DBUser string
	// DBPass is the database user pass.
	DBPass string
	// RefreshInterval is the interval between ticker cache refreshes.
	RefreshInterval time.Duration
	// MaxRestarts is the number of placement restarts allowed per allocation.
	MaxRestarts int
	// MaxWorkers is the maximum number of concurrent session creations.
	MaxWorkers int
	// AllocationTimeout is the deadline for placing a session's iterations.
	AllocationTimeout time.Duration
	// StockShortlist overrides the symbols classic and blitz sessions pick from.
	StockShortlist []string
	// CryptoShortlist overrides the symbols crypto sessions pick from.
	CryptoShortlist []string
}

// Validate asserts the config sane inputs.
func (cfg *TrainerConfig) Validate() error {
	var errs error

	if cfg.FMPAPIKey == "" && cfg.HistoricDataFilepath == "" {
		errs = errors.Join(errs, fmt.Errorf("either an fmp api key or a historic data filepath is required"))
	}
	if cfg.RefreshInterval < 0 {
		errs = errors.Join(errs, fmt.Errorf("refresh interval cannot be negative"))
	}
	if cfg.MaxRestarts < 0 {
		errs = errors.Join(errs, fmt.Errorf("max restarts cannot be negative"))
	}
	if cfg.MaxWorkers < 0 {
		errs = errors.Join(errs, fmt.Errorf("max workers cannot be negative"))
	}
	if cfg.AllocationTimeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("allocation timeout cannot be negative"))
	}

	return errs
}

// Trainer represents the trading decision training service.
type Trainer struct {
	cfg            *TrainerConfig
	tickerCache    *fetch.TickerCache
	sessionManager *session.Manager
	store          database.SessionStorer
	logger         *zerolog.Logger
	wg             sync.WaitGroup
}

// NewTrainer initializes a new trainer service.
func NewTrainer(ctx context.Context, cfg *TrainerConfig) (*Trainer, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating trainer config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "trainer").Logger()

	_, loc, err := shared.NewYorkTime()
	if err != nil {
		return nil, fmt.Errorf("fetching new york time: %w", err)
	}

	var quoteFetcher shared.QuoteFetcher
	var tickerFetchers []shared.TickerFetcher
	stockShortlist := cfg.StockShortlist
	cryptoShortlist := cfg.CryptoShortlist

	switch cfg.HistoricDataFilepath {
	case "":
		baseURL := cfg.FMPBaseURL
		if baseURL == "" {
			baseURL = fetch.BaseURL
		}

		fmp, err := fetch.NewFMPClient(&fetch.FMPConfig{APIKey: cfg.FMPAPIKey, BaseURL: baseURL})
		if err != nil {
			return nil, fmt.Errorf("creating fmp client: %w", err)
		}

		quoteFetcher = fmp
		tickerFetchers = []shared.TickerFetcher{fmp}

	default:
		historicDataLogger := logger.With().Str("component", "historicdata").Logger()
		historicData, err := fetch.NewHistoricData(&fetch.HistoricDataConfig{
			FilePath: cfg.HistoricDataFilepath,
			Logger:   &historicDataLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating historic data: %w", err)
		}

		// Preset sessions can only pick the loaded market.
		quoteFetcher = historicData
		tickerFetchers = []shared.TickerFetcher{historicData}
		stockShortlist = []string{historicData.FetchMarket()}
		cryptoShortlist = []string{historicData.FetchMarket()}
	}

	var store database.SessionStorer
	switch cfg.DBEndpoint {
	case "":
		store = database.NewMemoryStore()
	default:
		dbLogger := logger.With().Str("component", "database").Logger()
		store, err = database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.DBEndpoint,
			User:     cfg.DBUser,
			Pass:     cfg.DBPass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating database: %w", err)
		}
	}

	refreshInterval := cfg.RefreshInterval
	if refreshInterval == 0 {
		refreshInterval = defaultRefreshInterval
	}

	tickerCacheLogger := logger.With().Str("component", "tickercache").Logger()
	tickerCache, err := fetch.NewTickerCache(&fetch.TickerCacheConfig{
		Fetchers:        tickerFetchers,
		RefreshInterval: refreshInterval,
		JobScheduler:    gocron.NewScheduler(loc),
		Logger:          &tickerCacheLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ticker cache: %w", err)
	}

	maxRestarts := cfg.MaxRestarts
	if maxRestarts == 0 {
		maxRestarts = slicer.DefaultMaxRestarts
	}

	allocator, err := slicer.NewAllocator(&slicer.AllocatorConfig{MaxRestarts: maxRestarts})
	if err != nil {
		return nil, fmt.Errorf("creating allocator: %w", err)
	}

	sessionMgrLogger := logger.With().Str("component", "sessionmanager").Logger()
	sessionMgr, err := session.NewManager(&session.ManagerConfig{
		FetchQuotes:         quoteFetcher.FetchQuotes,
		FindTicker:          tickerCache.Find,
		RandomTicker:        tickerCache.Random,
		StockShortlist:      stockShortlist,
		CryptoShortlist:     cryptoShortlist,
		Allocator:           allocator,
		PersistSession:      store.PersistSession,
		FetchSession:        store.FetchSession,
		UpdateSessionStatus: store.UpdateSessionStatus,
		PersistDecision:     store.PersistDecision,
		FetchDecisions:      store.FetchDecisions,
		MaxWorkers:          cfg.MaxWorkers,
		AllocationTimeout:   cfg.AllocationTimeout,
		Logger:              &sessionMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}

	return &Trainer{
		cfg:            cfg,
		tickerCache:    tickerCache,
		sessionManager: sessionMgr,
		store:          store,
		logger:         &logger,
	}, nil
}

// CreateSession creates and starts a session, waiting for the outcome or the context to end.
// The symbol and options are only used by custom sessions.
func (t *Trainer) CreateSession(ctx context.Context, mode shared.Mode, symbol string, opts shared.Options) (session.CreateResult, error) {
	req := session.NewCreateRequest(mode, symbol, opts)
	t.sessionManager.SendCreateRequest(req)

	select {
	case <-ctx.Done():
		return session.CreateResult{}, ctx.Err()
	case result := <-req.Response:
		return result, result.Err
	}
}

// RecordDecision records the decision taken on the provided session iteration, waiting for
// the outcome or the context to end. The decision on the last iteration closes the session.
func (t *Trainer) RecordDecision(ctx context.Context, sessionID string, iterationNumber int, action shared.DecisionAction, timeSpent time.Duration) (session.DecisionResult, error) {
	req := session.NewDecisionRequest(sessionID, iterationNumber, action, timeSpent)
	t.sessionManager.SendDecisionRequest(req)

	select {
	case <-ctx.Done():
		return session.DecisionResult{}, ctx.Err()
	case result := <-req.Response:
		return result, result.Err
	}
}

// FetchSession returns the stored session with the provided id.
func (t *Trainer) FetchSession(ctx context.Context, sessionID string) (*session.Session, error) {
	return t.store.FetchSession(ctx, sessionID)
}

// FetchIterations returns the stored iterations of the provided session.
func (t *Trainer) FetchIterations(ctx context.Context, sessionID string) ([]database.IterationRecord, error) {
	return t.store.FetchIterations(ctx, sessionID)
}

// FetchDecisions returns the stored decisions of the provided session.
func (t *Trainer) FetchDecisions(ctx context.Context, sessionID string) ([]session.Decision, error) {
	return t.store.FetchDecisions(ctx, sessionID)
}

// Run handles the lifecycle processes of the trainer service. The ticker cache is populated
// before session requests are processed.
func (t *Trainer) Run(ctx context.Context) error {
	err := t.tickerCache.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting ticker cache: %w", err)
	}

	t.logger.Info().Msgf("ticker cache populated at %s", t.tickerCache.UpdatedOn().Format(time.DateTime))

	t.wg.Add(1)
	go func() {
		t.sessionManager.Run(ctx)
		t.wg.Done()
	}()

	<-ctx.Done()
	t.tickerCache.Stop()
	t.wg.Wait()

	t.logger.Info().Msg("trainer service stopped")

	return nil
}
