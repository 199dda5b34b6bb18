package iteration

import (
	"fmt"
	"time"

	"github.com/dnldd/tradedrill/shared"
	"github.com/dnldd/tradedrill/slicer"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Iteration represents a window of a session's quotes the user makes a single
// buy, sell or skip decision on.
type Iteration struct {
	ID         string
	SessionID  string
	Number     int
	Interval   slicer.Interval
	Candles    []shared.Candlestick
	StartDate  time.Time
	FinishDate time.Time
	// StartPrice is the open of the first shown bar.
	StartPrice decimal.Decimal
	// FinishPrice is the close of the last shown bar.
	FinishPrice decimal.Decimal
	// FixPrice is the close of the settlement bar, fixing bars after the last shown bar.
	FixPrice decimal.Decimal
}

// Layout represents the bar layout of every iteration in a session.
type Layout struct {
	// BarsNumber is the number of bars shown before the decision.
	BarsNumber int
	// FixingBar is the number of bars after the decision the settlement price is taken at.
	FixingBar int
	// Iterations is the number of iterations in the session.
	Iterations int
}

// WindowLength returns the number of bars an iteration spans.
func (l *Layout) WindowLength() int {
	return l.BarsNumber + l.FixingBar
}

// fetchPrice returns the provided price if it is a valid quote.
func fetchPrice(price decimal.Decimal, bar int, name string) (decimal.Decimal, error) {
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative %s price %s at bar %d",
			shared.ErrProviderInvalidData, name, price, bar)
	}

	return price, nil
}

// NewIteration initializes a new iteration from the provided window of candles.
func NewIteration(sessionID string, number int, interval slicer.Interval, candles []shared.Candlestick, layout Layout) (*Iteration, error) {
	if number < 0 || number >= layout.Iterations {
		return nil, fmt.Errorf("%w: iteration number %d outside session of %d iterations",
			shared.ErrSessionConfiguration, number, layout.Iterations)
	}

	if len(candles) < layout.WindowLength() {
		return nil, fmt.Errorf("%w: iteration window has %d bars, expected %d",
			shared.ErrProviderInvalidData, len(candles), layout.WindowLength())
	}

	finishBar := layout.BarsNumber - 1
	fixBar := layout.WindowLength() - 1

	start, err := fetchPrice(candles[0].Open, 0, "start")
	if err != nil {
		return nil, err
	}
	finish, err := fetchPrice(candles[finishBar].Close, finishBar, "finish")
	if err != nil {
		return nil, err
	}
	fix, err := fetchPrice(candles[fixBar].Close, fixBar, "fix")
	if err != nil {
		return nil, err
	}

	iter := &Iteration{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Number:      number,
		Interval:    interval,
		Candles:     candles,
		StartDate:   candles[0].Date,
		FinishDate:  candles[finishBar].Date,
		StartPrice:  start,
		FinishPrice: finish,
		FixPrice:    fix,
	}

	return iter, nil
}

// Build projects each interval onto the provided quotes and creates the session's
// iterations, numbered in interval order.
func Build(sessionID string, candles []shared.Candlestick, intervals []slicer.Interval, layout Layout) ([]*Iteration, error) {
	if len(intervals) != layout.Iterations {
		return nil, fmt.Errorf("%w: got %d intervals for %d iterations",
			shared.ErrSessionConfiguration, len(intervals), layout.Iterations)
	}

	iterations := make([]*Iteration, 0, len(intervals))
	for idx, interval := range intervals {
		if interval.Start < 0 || interval.End > len(candles) {
			return nil, fmt.Errorf("%w: interval [%d, %d) outside %d quotes",
				shared.ErrSessionConfiguration, interval.Start, interval.End, len(candles))
		}

		iter, err := NewIteration(sessionID, idx, interval, candles[interval.Start:interval.End], layout)
		if err != nil {
			return nil, fmt.Errorf("creating iteration %d: %w", idx, err)
		}

		iterations = append(iterations, iter)
	}

	return iterations, nil
}
