package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/dnldd/tradedrill/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// DefaultStockShortlist is the set of stock symbols preset sessions pick from.
	DefaultStockShortlist = []string{"AMZN", "META", "GOOGL", "AAPL", "AMD", "XOM", "GS", "DAL",
		"NKE", "NFLX", "INTC", "TSLA", "MSFT", "PEP", "DIS"}
	// DefaultCryptoShortlist is the set of crypto symbols crypto sessions pick from, quoted
	// against the dollar as the FMP cryptocurrency list serves them.
	DefaultCryptoShortlist = []string{"BTCUSD", "BNBUSD", "ETHUSD", "DOGEUSD", "LTCUSD", "TRXUSD",
		"MATICUSD", "BCHUSD"}
)

// Preset returns the fixed options of the provided preset mode.
func Preset(mode shared.Mode) (shared.Options, error) {
	switch mode {
	case shared.Classic:
		return shared.Options{
			Timeframe:  shared.OneDay,
			BarsNumber: 70,
			TimeLimit:  time.Second * 60,
			Iterations: 5,
			Slippage:   decimal.RequireFromString("0.005"),
			FixingBar:  20,
		}, nil
	case shared.Blitz:
		return shared.Options{
			Timeframe:  shared.FiveMinute,
			BarsNumber: 30,
			TimeLimit:  time.Second * 5,
			Iterations: 10,
			Slippage:   decimal.RequireFromString("0.001"),
			FixingBar:  10,
		}, nil
	case shared.CryptoMode:
		return shared.Options{
			Timeframe:  shared.OneDay,
			BarsNumber: 50,
			TimeLimit:  time.Second * 30,
			Iterations: 10,
			Slippage:   decimal.RequireFromString("0.001"),
			FixingBar:  10,
		}, nil
	default:
		return shared.Options{}, fmt.Errorf("%w: %s mode has no preset", shared.ErrSessionConfiguration, mode.String())
	}
}

// Session represents a single training run over one ticker.
type Session struct {
	ID        string
	Mode      shared.Mode
	Ticker    shared.Ticker
	Options   shared.Options
	Status    shared.Status
	CreatedOn time.Time
}

// NewSession initializes a new session in the created state.
func NewSession(mode shared.Mode, ticker shared.Ticker, opts shared.Options) (*Session, error) {
	if ticker.Symbol == "" {
		return nil, fmt.Errorf("%w: ticker symbol cannot be an empty string", shared.ErrSessionConfiguration)
	}

	err := opts.Validate()
	if err != nil {
		return nil, err
	}

	now, _, err := shared.NewYorkTime()
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        uuid.New().String(),
		Mode:      mode,
		Ticker:    ticker,
		Options:   opts,
		Status:    shared.Created,
		CreatedOn: now,
	}, nil
}

// Start moves a created session to the active state.
func (s *Session) Start() error {
	if s.Status != shared.Created {
		return fmt.Errorf("cannot start %s session %s", s.Status.String(), s.ID)
	}

	s.Status = shared.Active
	return nil
}

// Close moves an active session to the closed state.
func (s *Session) Close() error {
	if s.Status != shared.Active {
		return fmt.Errorf("cannot close %s session %s", s.Status.String(), s.ID)
	}

	s.Status = shared.Closed
	return nil
}

// Quotes represents the historical quotes a session's iterations are sliced from.
type Quotes struct {
	Candles     []shared.Candlestick
	FirstDate   time.Time
	LastDate    time.Time
	TradingType shared.TradingType
}

// NewQuotes validates the provided candles can hold every iteration of a session with the
// provided options.
func NewQuotes(opts *shared.Options, candles []shared.Candlestick) (*Quotes, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no quotes provided", shared.ErrInsufficientData)
	}

	ascending := slices.IsSortedFunc(candles, func(a, b shared.Candlestick) int {
		return a.Date.Compare(b.Date)
	})
	if !ascending {
		return nil, fmt.Errorf("%w: quotes are not in ascending order", shared.ErrProviderInvalidData)
	}

	first := candles[0].Date
	last := candles[len(candles)-1].Date

	required := opts.TotalBarsRequired()
	if len(candles) < required {
		return nil, fmt.Errorf("%w: got %d bars, session requires %d", shared.ErrInsufficientData,
			len(candles), required)
	}

	return &Quotes{
		Candles:     candles,
		FirstDate:   first,
		LastDate:    last,
		TradingType: shared.DetermineTradingType(first, last),
	}, nil
}

// Decision represents the action a user took on a single iteration.
type Decision struct {
	ID              string
	SessionID       string
	IterationNumber int
	Action          shared.DecisionAction
	TimeSpent       time.Duration
	CreatedOn       time.Time
}

// NewDecision validates and initializes a decision on the next undecided iteration of the
// provided session. decided is the number of decisions already recorded for it.
func NewDecision(session *Session, decided int, iterationNumber int, action shared.DecisionAction, timeSpent time.Duration) (*Decision, error) {
	switch {
	case session.Status == shared.Closed:
		return nil, fmt.Errorf("%w: session %s is closed", shared.ErrWrongDecision, session.ID)
	case iterationNumber < 0 || iterationNumber >= session.Options.Iterations:
		return nil, fmt.Errorf("%w: iteration %d outside session of %d iterations",
			shared.ErrWrongDecision, iterationNumber, session.Options.Iterations)
	case iterationNumber != decided:
		return nil, fmt.Errorf("%w: expected a decision on iteration %d, got %d",
			shared.ErrWrongDecision, decided, iterationNumber)
	case action != shared.Buy && action != shared.Sell && action != shared.Skip:
		return nil, fmt.Errorf("%w: unknown action %d", shared.ErrWrongDecision, action)
	case timeSpent < 0:
		return nil, fmt.Errorf("%w: negative time spent %s", shared.ErrWrongDecision, timeSpent)
	case timeSpent > session.Options.TimeLimit:
		return nil, fmt.Errorf("%w: time spent %s exceeds the %s limit", shared.ErrWrongDecision,
			timeSpent, session.Options.TimeLimit)
	}

	now, _, err := shared.NewYorkTime()
	if err != nil {
		return nil, err
	}

	return &Decision{
		ID:              uuid.New().String(),
		SessionID:       session.ID,
		IterationNumber: iterationNumber,
		Action:          action,
		TimeSpent:       timeSpent,
		CreatedOn:       now,
	}, nil
}

// Advance moves the session along after a decision on the provided iteration: a created
// session becomes active and the last iteration closes it.
func (s *Session) Advance(iterationNumber int) error {
	if s.Status == shared.Created {
		err := s.Start()
		if err != nil {
			return err
		}
	}

	if iterationNumber == s.Options.Iterations-1 {
		return s.Close()
	}

	return nil
}
