package shared

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Mode represents a session mode.
type Mode int

const (
	Classic Mode = iota
	Blitz
	CryptoMode
	Custom
)

// String stringifies the provided mode.
func (m Mode) String() string {
	switch m {
	case Classic:
		return "classic"
	case Blitz:
		return "blitz"
	case CryptoMode:
		return "crypto"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseMode parses the provided mode string.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Classic, Blitz, CryptoMode, Custom} {
		if m.String() == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown mode %q", ErrSessionConfiguration, s)
}

// Status represents the status of a session.
type Status int

const (
	Created Status = iota
	Active
	Closed
)

// String stringifies the provided session status.
func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseStatus parses the provided session status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{Created, Active, Closed} {
		if st.String() == s {
			return st, nil
		}
	}

	return 0, fmt.Errorf("unknown session status %q", s)
}

var (
	// BarsNumbers are the allowed numbers of bars shown per iteration.
	BarsNumbers = []int{15, 30, 50, 70}
	// TimeLimits are the allowed decision time limits.
	TimeLimits = []time.Duration{time.Second * 5, time.Second * 10, time.Second * 30,
		time.Second * 60, time.Second * 120}
	// IterationCounts are the allowed numbers of iterations per session.
	IterationCounts = []int{5, 10, 15, 20}
	// FixingBars are the allowed offsets of the settlement bar after the last shown bar.
	FixingBars = []int{10, 20, 30, 40}
	// Slippages are the allowed commission imitations, as fractions of price.
	Slippages = []decimal.Decimal{decimal.Zero, decimal.RequireFromString("0.001"),
		decimal.RequireFromString("0.005"), decimal.RequireFromString("0.01")}
)

// Options represents the user chosen parameters of a session.
type Options struct {
	Timeframe  Timeframe
	BarsNumber int
	TimeLimit  time.Duration
	Iterations int
	Slippage   decimal.Decimal
	FixingBar  int
}

// Validate asserts the options are within the allowed sets.
func (o *Options) Validate() error {
	var errs error

	if !slices.Contains(Timeframes, o.Timeframe) {
		errs = errors.Join(errs, fmt.Errorf("unsupported timeframe: %d", o.Timeframe))
	}
	if !slices.Contains(BarsNumbers, o.BarsNumber) {
		errs = errors.Join(errs, fmt.Errorf("unsupported bars number: %d", o.BarsNumber))
	}
	if !slices.Contains(TimeLimits, o.TimeLimit) {
		errs = errors.Join(errs, fmt.Errorf("unsupported time limit: %s", o.TimeLimit))
	}
	if !slices.Contains(IterationCounts, o.Iterations) {
		errs = errors.Join(errs, fmt.Errorf("unsupported iterations: %d", o.Iterations))
	}
	if !slices.ContainsFunc(Slippages, o.Slippage.Equal) {
		errs = errors.Join(errs, fmt.Errorf("unsupported slippage: %s", o.Slippage))
	}
	if !slices.Contains(FixingBars, o.FixingBar) {
		errs = errors.Join(errs, fmt.Errorf("unsupported fixing bar: %d", o.FixingBar))
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrSessionConfiguration, errs)
	}

	return nil
}

// WindowLength returns the number of bars a single iteration spans, fixing bars included.
func (o *Options) WindowLength() int {
	return o.BarsNumber + o.FixingBar
}

// TotalBarsRequired returns the minimum series length that can hold every iteration.
func (o *Options) TotalBarsRequired() int {
	return o.WindowLength() * o.Iterations
}

// TradingType represents the trading style implied by the span of a quote series.
type TradingType int

const (
	Intraday TradingType = iota
	SwingTrading
	ShortInvesting
	LongInvesting
)

// String stringifies the provided trading type.
func (t TradingType) String() string {
	switch t {
	case Intraday:
		return "intraday"
	case SwingTrading:
		return "swingtrading"
	case ShortInvesting:
		return "shortinvesting"
	case LongInvesting:
		return "longinvesting"
	default:
		return "unknown"
	}
}

// DetermineTradingType classifies the span between the first and last bar of a series.
func DetermineTradingType(first time.Time, last time.Time) TradingType {
	days := int(last.Sub(first).Hours() / 24)
	switch {
	case days < 1:
		return Intraday
	case days < 30:
		return SwingTrading
	case days < 90:
		return ShortInvesting
	default:
		return LongInvesting
	}
}
