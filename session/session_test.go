package session

import (
	"errors"
	"testing"
	"time"

	"github.com/dnldd/tradedrill/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
)

// generateCandles creates n daily candles starting at the provided date.
func generateCandles(n int, start time.Time) []shared.Candlestick {
	candles := make([]shared.Candlestick, n)
	for idx := range candles {
		price := decimal.NewFromInt(int64(100 + idx%50))
		candles[idx] = shared.Candlestick{
			Open:      price,
			High:      price.Add(decimal.NewFromInt(2)),
			Low:       price.Sub(decimal.NewFromInt(2)),
			Close:     price.Add(decimal.NewFromInt(1)),
			Date:      start.AddDate(0, 0, idx),
			Timeframe: shared.OneDay,
		}
	}

	return candles
}

func TestPreset(t *testing.T) {
	// Ensure every preset is a valid set of options.
	for _, mode := range []shared.Mode{shared.Classic, shared.Blitz, shared.CryptoMode} {
		opts, err := Preset(mode)
		assert.NoError(t, err)
		assert.NoError(t, opts.Validate())
	}

	classic, err := Preset(shared.Classic)
	assert.NoError(t, err)
	assert.Equal(t, 90, classic.WindowLength())
	assert.Equal(t, 450, classic.TotalBarsRequired())

	// Ensure custom sessions have no preset.
	_, err = Preset(shared.Custom)
	assert.True(t, errors.Is(err, shared.ErrSessionConfiguration))
}

func TestSessionLifecycle(t *testing.T) {
	opts, err := Preset(shared.Blitz)
	assert.NoError(t, err)

	ticker := shared.Ticker{Kind: shared.Stock, Symbol: "AAPL"}

	// Ensure a session can be created.
	sess, err := NewSession(shared.Blitz, ticker, opts)
	assert.NoError(t, err)
	assert.NotEqual(t, "", sess.ID)
	assert.Equal(t, shared.Created, sess.Status)

	// Ensure a created session cannot be closed.
	assert.Error(t, sess.Close())

	// Ensure a session can be started once.
	assert.NoError(t, sess.Start())
	assert.Equal(t, shared.Active, sess.Status)
	assert.Error(t, sess.Start())

	// Ensure an active session can be closed.
	assert.NoError(t, sess.Close())
	assert.Equal(t, shared.Closed, sess.Status)

	// Ensure sessions without a ticker are rejected.
	_, err = NewSession(shared.Blitz, shared.Ticker{}, opts)
	assert.True(t, errors.Is(err, shared.ErrSessionConfiguration))

	// Ensure sessions with invalid options are rejected.
	opts.Iterations = 7
	_, err = NewSession(shared.Custom, ticker, opts)
	assert.True(t, errors.Is(err, shared.ErrSessionConfiguration))
}

func TestNewQuotes(t *testing.T) {
	opts, err := Preset(shared.Classic)
	assert.NoError(t, err)

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	// Ensure quotes long enough for every iteration are accepted.
	quotes, err := NewQuotes(&opts, generateCandles(500, start))
	assert.NoError(t, err)
	assert.Equal(t, 500, len(quotes.Candles))
	assert.Equal(t, shared.LongInvesting, quotes.TradingType)
	assert.True(t, quotes.FirstDate.Equal(start))

	// Ensure short quotes are rejected as insufficient data.
	_, err = NewQuotes(&opts, generateCandles(449, start))
	assert.True(t, errors.Is(err, shared.ErrInsufficientData))

	_, err = NewQuotes(&opts, nil)
	assert.True(t, errors.Is(err, shared.ErrInsufficientData))

	// Ensure descending quotes are rejected.
	candles := generateCandles(500, start)
	candles[0], candles[len(candles)-1] = candles[len(candles)-1], candles[0]
	_, err = NewQuotes(&opts, candles)
	assert.True(t, errors.Is(err, shared.ErrProviderInvalidData))

	// Ensure quotes out of order between ordered endpoints are rejected.
	candles = generateCandles(500, start)
	candles[200], candles[201] = candles[201], candles[200]
	_, err = NewQuotes(&opts, candles)
	assert.True(t, errors.Is(err, shared.ErrProviderInvalidData))
}

func TestNewDecision(t *testing.T) {
	opts, err := Preset(shared.Classic)
	assert.NoError(t, err)
	sess, err := NewSession(shared.Classic, shared.Ticker{Kind: shared.Stock, Symbol: "AAPL"}, opts)
	assert.NoError(t, err)
	assert.NoError(t, sess.Start())

	tests := []struct {
		name      string
		decided   int
		number    int
		action    shared.DecisionAction
		timeSpent time.Duration
		wantErr   bool
	}{
		{"first decision", 0, 0, shared.Buy, time.Second * 3, false},
		{"decision at the time limit", 2, 2, shared.Skip, opts.TimeLimit, false},
		{"last decision", 4, 4, shared.Sell, time.Second, false},
		{"skipped iteration", 1, 2, shared.Buy, time.Second, true},
		{"repeated iteration", 2, 1, shared.Buy, time.Second, true},
		{"iteration past the session", 5, 5, shared.Buy, time.Second, true},
		{"negative iteration", 0, -1, shared.Buy, time.Second, true},
		{"unknown action", 0, 0, shared.DecisionAction(7), time.Second, true},
		{"negative time spent", 0, 0, shared.Buy, -time.Second, true},
		{"time limit exceeded", 0, 0, shared.Buy, opts.TimeLimit + time.Millisecond, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			decision, err := NewDecision(sess, test.decided, test.number, test.action, test.timeSpent)
			if test.wantErr {
				assert.True(t, errors.Is(err, shared.ErrWrongDecision))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, sess.ID, decision.SessionID)
			assert.Equal(t, test.number, decision.IterationNumber)
			assert.Equal(t, test.action, decision.Action)
		})
	}

	// Ensure closed sessions take no decisions.
	assert.NoError(t, sess.Close())
	_, err = NewDecision(sess, 0, 0, shared.Buy, time.Second)
	assert.True(t, errors.Is(err, shared.ErrWrongDecision))
}

func TestSessionAdvance(t *testing.T) {
	opts, err := Preset(shared.Classic)
	assert.NoError(t, err)
	sess, err := NewSession(shared.Classic, shared.Ticker{Kind: shared.Stock, Symbol: "AAPL"}, opts)
	assert.NoError(t, err)

	// Ensure the first decision activates a created session.
	assert.NoError(t, sess.Advance(0))
	assert.Equal(t, shared.Active, sess.Status)

	// Ensure intermediate decisions keep the session active.
	assert.NoError(t, sess.Advance(3))
	assert.Equal(t, shared.Active, sess.Status)

	// Ensure the last decision closes the session.
	assert.NoError(t, sess.Advance(opts.Iterations-1))
	assert.Equal(t, shared.Closed, sess.Status)
	assert.Error(t, sess.Advance(opts.Iterations-1))
}
