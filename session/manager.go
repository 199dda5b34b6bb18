package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dnldd/tradedrill/iteration"
	"github.com/dnldd/tradedrill/shared"
	"github.com/dnldd/tradedrill/slicer"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// defaultMaxWorkers is the default maximum number of concurrent session creations.
	defaultMaxWorkers = 8
	// defaultAllocationTimeout is the default deadline for placing a session's iterations.
	defaultAllocationTimeout = time.Second * 5
)

var (
	// ErrAllocationTimeout is returned when iterations could not be placed before the
	// allocation deadline. It is retryable.
	ErrAllocationTimeout = errors.New("iteration allocation timed out")
)

// CreateResult represents the outcome of a session creation request.
type CreateResult struct {
	Session    *Session
	Quotes     *Quotes
	Iterations []*iteration.Iteration
	Err        error
}

// CreateRequest represents a request to create and start a session.
type CreateRequest struct {
	Mode shared.Mode
	// Symbol is the ticker symbol of a custom session.
	Symbol string
	// Options are the options of a custom session.
	Options  shared.Options
	Response chan CreateResult
}

// NewCreateRequest initializes a new session creation request.
func NewCreateRequest(mode shared.Mode, symbol string, opts shared.Options) CreateRequest {
	return CreateRequest{
		Mode:     mode,
		Symbol:   symbol,
		Options:  opts,
		Response: make(chan CreateResult, 1),
	}
}

// DecisionResult represents the outcome of a decision request.
type DecisionResult struct {
	Decision *Decision
	Session  *Session
	Err      error
}

// DecisionRequest represents a request to record a decision on a session iteration.
type DecisionRequest struct {
	SessionID       string
	IterationNumber int
	Action          shared.DecisionAction
	TimeSpent       time.Duration
	Response        chan DecisionResult
}

// NewDecisionRequest initializes a new decision request.
func NewDecisionRequest(sessionID string, iterationNumber int, action shared.DecisionAction, timeSpent time.Duration) DecisionRequest {
	return DecisionRequest{
		SessionID:       sessionID,
		IterationNumber: iterationNumber,
		Action:          action,
		TimeSpent:       timeSpent,
		Response:        make(chan DecisionResult, 1),
	}
}

// ManagerConfig represents the session manager configuration.
type ManagerConfig struct {
	// FetchQuotes fetches the historical quotes of a ticker.
	FetchQuotes func(ctx context.Context, ticker shared.Ticker, timeframe shared.Timeframe) ([]shared.Candlestick, error)
	// FindTicker returns the ticker with the provided symbol.
	FindTicker func(symbol string) (shared.Ticker, error)
	// RandomTicker returns a ticker picked at random from the provided symbols.
	RandomTicker func(symbols []string, rng slicer.RandomSource) (shared.Ticker, error)
	// StockShortlist is the set of symbols classic and blitz sessions pick from.
	StockShortlist []string
	// CryptoShortlist is the set of symbols crypto sessions pick from.
	CryptoShortlist []string
	// Allocator places a session's iterations.
	Allocator *slicer.Allocator
	// NewRandomSource creates the random source used by a single session creation.
	NewRandomSource func() slicer.RandomSource
	// PersistSession stores the provided session along with its iterations, all or nothing.
	PersistSession func(ctx context.Context, session *Session, iterations []*iteration.Iteration) error
	// FetchSession returns the stored session with the provided id.
	FetchSession func(ctx context.Context, sessionID string) (*Session, error)
	// UpdateSessionStatus stores the status of the provided session.
	UpdateSessionStatus func(ctx context.Context, session *Session) error
	// PersistDecision stores the provided decision.
	PersistDecision func(ctx context.Context, decision *Decision) error
	// FetchDecisions returns the stored decisions of the provided session.
	FetchDecisions func(ctx context.Context, sessionID string) ([]Decision, error)
	// MaxWorkers is the maximum number of concurrent session creations.
	MaxWorkers int
	// AllocationTimeout is the deadline for placing a session's iterations.
	AllocationTimeout time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if cfg.FetchQuotes == nil {
		errs = errors.Join(errs, fmt.Errorf("fetch quotes function cannot be nil"))
	}
	if cfg.FindTicker == nil {
		errs = errors.Join(errs, fmt.Errorf("find ticker function cannot be nil"))
	}
	if cfg.RandomTicker == nil {
		errs = errors.Join(errs, fmt.Errorf("random ticker function cannot be nil"))
	}
	if cfg.Allocator == nil {
		errs = errors.Join(errs, fmt.Errorf("allocator cannot be nil"))
	}
	if cfg.PersistSession == nil {
		errs = errors.Join(errs, fmt.Errorf("persist session function cannot be nil"))
	}
	if cfg.FetchSession == nil {
		errs = errors.Join(errs, fmt.Errorf("fetch session function cannot be nil"))
	}
	if cfg.UpdateSessionStatus == nil {
		errs = errors.Join(errs, fmt.Errorf("update session status function cannot be nil"))
	}
	if cfg.PersistDecision == nil {
		errs = errors.Join(errs, fmt.Errorf("persist decision function cannot be nil"))
	}
	if cfg.FetchDecisions == nil {
		errs = errors.Join(errs, fmt.Errorf("fetch decisions function cannot be nil"))
	}
	if cfg.MaxWorkers < 0 {
		errs = errors.Join(errs, fmt.Errorf("max workers cannot be negative"))
	}
	if cfg.AllocationTimeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("allocation timeout cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager creates sessions, slices their quotes into iterations and records the decisions
// taken on them.
type Manager struct {
	cfg              *ManagerConfig
	createRequests   chan CreateRequest
	decisionRequests chan DecisionRequest
	workers          chan struct{}
}

// newRandomSource returns a source seeded from the runtime's random state.
func newRandomSource() slicer.RandomSource {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewManager initializes a new session manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating session manager config: %w", err)
	}

	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if cfg.AllocationTimeout == 0 {
		cfg.AllocationTimeout = defaultAllocationTimeout
	}
	if cfg.NewRandomSource == nil {
		cfg.NewRandomSource = newRandomSource
	}
	if len(cfg.StockShortlist) == 0 {
		cfg.StockShortlist = DefaultStockShortlist
	}
	if len(cfg.CryptoShortlist) == 0 {
		cfg.CryptoShortlist = DefaultCryptoShortlist
	}

	return &Manager{
		cfg:              cfg,
		createRequests:   make(chan CreateRequest, bufferSize),
		decisionRequests: make(chan DecisionRequest, bufferSize),
		workers:          make(chan struct{}, cfg.MaxWorkers),
	}, nil
}

// SendCreateRequest relays the provided session creation request for processing.
func (m *Manager) SendCreateRequest(req CreateRequest) {
	select {
	case m.createRequests <- req:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("create request channel at capacity: %d/%d",
			len(m.createRequests), bufferSize)
		req.Response <- CreateResult{Err: fmt.Errorf("session manager at capacity")}
	}
}

// SendDecisionRequest relays the provided decision request for processing.
func (m *Manager) SendDecisionRequest(req DecisionRequest) {
	select {
	case m.decisionRequests <- req:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("decision request channel at capacity: %d/%d",
			len(m.decisionRequests), bufferSize)
		req.Response <- DecisionResult{Err: fmt.Errorf("session manager at capacity")}
	}
}

// newSession creates the session described by the provided request.
func (m *Manager) newSession(req *CreateRequest, rng slicer.RandomSource) (*Session, error) {
	switch req.Mode {
	case shared.Custom:
		ticker, err := m.cfg.FindTicker(req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("finding ticker: %w", err)
		}

		return NewSession(req.Mode, ticker, req.Options)

	case shared.Classic, shared.Blitz, shared.CryptoMode:
		opts, err := Preset(req.Mode)
		if err != nil {
			return nil, err
		}

		shortlist := m.cfg.StockShortlist
		if req.Mode == shared.CryptoMode {
			shortlist = m.cfg.CryptoShortlist
		}

		ticker, err := m.cfg.RandomTicker(shortlist, rng)
		if err != nil {
			return nil, fmt.Errorf("selecting random ticker: %w", err)
		}

		return NewSession(req.Mode, ticker, opts)

	default:
		return nil, fmt.Errorf("%w: unknown mode %s", shared.ErrSessionConfiguration, req.Mode.String())
	}
}

// allocate places the session's iterations over the provided quotes within the allocation
// deadline.
func (m *Manager) allocate(ctx context.Context, session *Session, quotes *Quotes, rng slicer.RandomSource) ([]slicer.Interval, error) {
	allocCtx, cancel := context.WithTimeout(ctx, m.cfg.AllocationTimeout)
	defer cancel()

	req := slicer.Request{
		TotalLength:  len(quotes.Candles),
		Count:        session.Options.Iterations,
		WindowLength: session.Options.WindowLength(),
	}

	intervals, err := m.cfg.Allocator.Allocate(allocCtx, req, rng)
	switch {
	case errors.Is(err, slicer.ErrConfiguration):
		return nil, fmt.Errorf("%w: %w", shared.ErrInsufficientData, err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %w", ErrAllocationTimeout, err)
	case err != nil:
		return nil, err
	}

	return intervals, nil
}

// create runs the full session creation flow for the provided request.
func (m *Manager) create(ctx context.Context, req *CreateRequest) CreateResult {
	rng := m.cfg.NewRandomSource()

	session, err := m.newSession(req, rng)
	if err != nil {
		return CreateResult{Err: fmt.Errorf("creating %s session: %w", req.Mode.String(), err)}
	}

	candles, err := m.cfg.FetchQuotes(ctx, session.Ticker, session.Options.Timeframe)
	if err != nil {
		return CreateResult{Err: fmt.Errorf("fetching %s quotes for %s: %w",
			session.Options.Timeframe.String(), session.Ticker.Symbol, err)}
	}

	quotes, err := NewQuotes(&session.Options, candles)
	if err != nil {
		return CreateResult{Err: fmt.Errorf("validating quotes for %s: %w", session.Ticker.Symbol, err)}
	}

	intervals, err := m.allocate(ctx, session, quotes, rng)
	if err != nil {
		return CreateResult{Err: fmt.Errorf("allocating iterations for session %s: %w", session.ID, err)}
	}

	layout := iteration.Layout{
		BarsNumber: session.Options.BarsNumber,
		FixingBar:  session.Options.FixingBar,
		Iterations: session.Options.Iterations,
	}
	iterations, err := iteration.Build(session.ID, quotes.Candles, intervals, layout)
	if err != nil {
		return CreateResult{Err: fmt.Errorf("building iterations for session %s: %w", session.ID, err)}
	}

	// The session is stored active with its iterations, a failed store leaves nothing behind.
	err = session.Start()
	if err != nil {
		return CreateResult{Err: err}
	}

	err = m.cfg.PersistSession(ctx, session, iterations)
	if err != nil {
		return CreateResult{Err: fmt.Errorf("persisting session %s: %w", session.ID, err)}
	}

	return CreateResult{Session: session, Quotes: quotes, Iterations: iterations}
}

// handleCreateRequest processes the provided session creation request.
func (m *Manager) handleCreateRequest(ctx context.Context, req *CreateRequest) {
	result := m.create(ctx, req)
	if result.Err != nil {
		m.cfg.Logger.Error().Err(result.Err).Msgf("%s session creation failed", req.Mode.String())
	} else {
		m.cfg.Logger.Info().Msgf("started %s session %s on %s (%s) with %d iterations",
			result.Session.Mode.String(), result.Session.ID, result.Session.Ticker.Symbol,
			result.Quotes.TradingType.String(), len(result.Iterations))
	}

	req.Response <- result
}

// recordDecision records a decision on the next undecided iteration of a session and moves
// the session along, closing it after its last iteration.
func (m *Manager) recordDecision(ctx context.Context, req *DecisionRequest) DecisionResult {
	session, err := m.cfg.FetchSession(ctx, req.SessionID)
	if err != nil {
		return DecisionResult{Err: fmt.Errorf("fetching session %s: %w", req.SessionID, err)}
	}

	decisions, err := m.cfg.FetchDecisions(ctx, req.SessionID)
	if err != nil {
		return DecisionResult{Err: fmt.Errorf("fetching decisions for session %s: %w", req.SessionID, err)}
	}

	decision, err := NewDecision(session, len(decisions), req.IterationNumber, req.Action, req.TimeSpent)
	if err != nil {
		return DecisionResult{Err: err}
	}

	err = m.cfg.PersistDecision(ctx, decision)
	if err != nil {
		return DecisionResult{Err: fmt.Errorf("persisting decision for session %s: %w", session.ID, err)}
	}

	status := session.Status
	err = session.Advance(decision.IterationNumber)
	if err != nil {
		return DecisionResult{Err: err}
	}

	if session.Status != status {
		err = m.cfg.UpdateSessionStatus(ctx, session)
		if err != nil {
			return DecisionResult{Err: fmt.Errorf("updating session %s status: %w", session.ID, err)}
		}
	}

	return DecisionResult{Decision: decision, Session: session}
}

// handleDecisionRequest processes the provided decision request.
func (m *Manager) handleDecisionRequest(ctx context.Context, req *DecisionRequest) {
	result := m.recordDecision(ctx, req)
	switch {
	case result.Err != nil:
		m.cfg.Logger.Error().Err(result.Err).Msgf("recording decision on iteration %d of session %s",
			req.IterationNumber, req.SessionID)
	case result.Session.Status == shared.Closed:
		m.cfg.Logger.Info().Msgf("session %s closed after %d decisions", result.Session.ID,
			result.Session.Options.Iterations)
	}

	req.Response <- result
}

// Run manages the lifecycle processes of the session manager.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.createRequests:
			m.workers <- struct{}{}
			go func(req *CreateRequest) {
				m.handleCreateRequest(ctx, req)
				<-m.workers
			}(&req)
		case req := <-m.decisionRequests:
			// Decisions are handled in order so a session's iterations are decided sequentially.
			m.handleDecisionRequest(ctx, &req)
		}
	}
}
