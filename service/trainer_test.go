package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dnldd/tradedrill/session"
	"github.com/dnldd/tradedrill/shared"
	"github.com/peterldowns/testy/assert"
)

// writeHistoricData writes a historic data file holding the provided number of daily bars.
func writeHistoricData(t *testing.T, market string, bars int) string {
	t.Helper()

	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	quotes := make([]map[string]any, bars)
	for idx := range quotes {
		price := 100 + float64(idx%40)
		quotes[idx] = map[string]any{
			"date":   start.AddDate(0, 0, idx).Format(shared.DayLayout),
			"open":   price,
			"high":   price + 2,
			"low":    price - 2,
			"close":  price + 1,
			"volume": 1000 + idx,
		}
	}

	data, err := json.Marshal(map[string]any{
		"market":   market,
		"kind":     "stock",
		"exchange": "NASDAQ",
		"1day":     quotes,
	})
	assert.NoError(t, err)

	path := filepath.Join(t.TempDir(), "historicdata.json")
	assert.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

// setupFMPServer serves the FMP ticker lists and daily quotes of the listed symbols. The
// crypto list uses dollar quoted symbols the way FMP serves them.
func setupFMPServer(t *testing.T, bars int) (*httptest.Server, func() map[string]int) {
	t.Helper()

	var mtx sync.Mutex
	requested := make(map[string]int)
	listed := map[string]bool{"AAPL": true, "BTCUSD": true, "ETHUSD": true}

	mux := http.NewServeMux()
	mux.HandleFunc("/stock-list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"AAPL","companyName":"Apple Inc.","exchange":"NASDAQ"}]`))
	})
	mux.HandleFunc("/etf-list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/cryptocurrency-list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"BTCUSD","name":"Bitcoin USD","exchange":"CCC"},
			{"symbol":"ETHUSD","name":"Ethereum USD","exchange":"CCC"}]`))
	})
	mux.HandleFunc("/historical-price-eod/full", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		mtx.Lock()
		requested[symbol]++
		mtx.Unlock()

		if r.URL.Query().Get("apikey") != "apikey" || !listed[symbol] {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"Error Message":"Unknown symbol."}`))
			return
		}

		// FMP serves quotes newest first.
		start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
		quotes := make([]map[string]any, bars)
		for idx := range quotes {
			price := 30000 + float64(idx%50)*10
			quotes[bars-1-idx] = map[string]any{
				"symbol": symbol,
				"date":   start.AddDate(0, 0, idx).Format(shared.DayLayout),
				"open":   price,
				"high":   price + 50,
				"low":    price - 50,
				"close":  price + 20,
				"volume": 500 + idx,
			}
		}

		data, err := json.Marshal(quotes)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(data)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, func() map[string]int {
		mtx.Lock()
		defer mtx.Unlock()

		out := make(map[string]int, len(requested))
		for k, v := range requested {
			out[k] = v
		}
		return out
	}
}

// runTrainer runs the provided trainer until the returned cancel function is called.
func runTrainer(t *testing.T, trainer *Trainer) (context.CancelFunc, chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- trainer.Run(ctx)
	}()

	return cancel, done
}

func TestTrainerConfigValidate(t *testing.T) {
	// Ensure a quote provider is required.
	cfg := &TrainerConfig{}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "either an fmp api key or a historic data filepath is required"))

	// Ensure negative values are rejected.
	cfg = &TrainerConfig{FMPAPIKey: "key", MaxRestarts: -1, MaxWorkers: -1, RefreshInterval: -1, AllocationTimeout: -1}
	err = cfg.Validate()
	assert.Error(t, err)
	for _, want := range []string{"refresh interval", "max restarts", "max workers", "allocation timeout"} {
		assert.True(t, strings.Contains(err.Error(), want))
	}

	// Ensure valid configs pass.
	cfg = &TrainerConfig{HistoricDataFilepath: "../testdata/historicdata.json"}
	assert.NoError(t, cfg.Validate())
}

func TestTrainerCreateSession(t *testing.T) {
	path := writeHistoricData(t, "AAPL", 1000)
	trainer, err := NewTrainer(context.Background(), &TrainerConfig{HistoricDataFilepath: path})
	assert.NoError(t, err)

	cancel, done := runTrainer(t, trainer)

	ctx, ctxCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer ctxCancel()

	// Ensure a classic session is created over the loaded market.
	result, err := trainer.CreateSession(ctx, shared.Classic, "", shared.Options{})
	assert.NoError(t, err)
	assert.Equal(t, "AAPL", result.Session.Ticker.Symbol)
	assert.Equal(t, shared.Active, result.Session.Status)
	assert.Equal(t, 5, len(result.Iterations))

	// Ensure the iterations were stored.
	records, err := trainer.FetchIterations(ctx, result.Session.ID)
	assert.NoError(t, err)
	assert.Equal(t, 5, len(records))
	for idx, record := range records {
		assert.Equal(t, result.Iterations[idx].Interval, record.Interval)
	}

	// Ensure a custom session is created for a known symbol.
	opts := shared.Options{
		Timeframe:  shared.OneDay,
		BarsNumber: 30,
		TimeLimit:  time.Second * 10,
		Iterations: 10,
		Slippage:   result.Session.Options.Slippage,
		FixingBar:  10,
	}
	result, err = trainer.CreateSession(ctx, shared.Custom, "AAPL", opts)
	assert.NoError(t, err)
	assert.Equal(t, 10, len(result.Iterations))

	// Ensure unknown symbols are rejected.
	_, err = trainer.CreateSession(ctx, shared.Custom, "MSFT", opts)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrTickerNotFound))

	// Ensure the trainer can be gracefully terminated.
	cancel()
	assert.NoError(t, <-done)
}

func TestTrainerInsufficientData(t *testing.T) {
	trainer, err := NewTrainer(context.Background(), &TrainerConfig{
		HistoricDataFilepath: "../testdata/historicdata_short.json",
	})
	assert.NoError(t, err)

	cancel, done := runTrainer(t, trainer)
	defer func() {
		cancel()
		<-done
	}()

	ctx, ctxCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer ctxCancel()

	// Ensure sessions over short quote series are rejected.
	_, err = trainer.CreateSession(ctx, shared.Classic, "", shared.Options{})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInsufficientData))
}

func TestTrainerCreateSessionCancelled(t *testing.T) {
	path := writeHistoricData(t, "AAPL", 100)
	trainer, err := NewTrainer(context.Background(), &TrainerConfig{HistoricDataFilepath: path})
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Ensure callers stop waiting once their context ends.
	var result session.CreateResult
	result, err = trainer.CreateSession(ctx, shared.Classic, "", shared.Options{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, result.Session == nil)
}

func TestTrainerCryptoSessionFMP(t *testing.T) {
	srv, requested := setupFMPServer(t, 800)
	trainer, err := NewTrainer(context.Background(), &TrainerConfig{
		FMPAPIKey:  "apikey",
		FMPBaseURL: srv.URL,
	})
	assert.NoError(t, err)

	cancel, done := runTrainer(t, trainer)

	ctx, ctxCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer ctxCancel()

	// Ensure crypto presets draw only the listed symbols of the default shortlist.
	for range 20 {
		result, err := trainer.CreateSession(ctx, shared.CryptoMode, "", shared.Options{})
		assert.NoError(t, err)
		assert.In(t, result.Session.Ticker.Symbol, []string{"BTCUSD", "ETHUSD"})
		assert.Equal(t, shared.Crypto, result.Session.Ticker.Kind)
		assert.Equal(t, 10, len(result.Iterations))
	}

	// Ensure unlisted shortlist symbols were never fetched.
	for symbol := range requested() {
		assert.In(t, symbol, []string{"BTCUSD", "ETHUSD"})
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestTrainerCryptoShortlistOverride(t *testing.T) {
	srv, _ := setupFMPServer(t, 800)
	trainer, err := NewTrainer(context.Background(), &TrainerConfig{
		FMPAPIKey:       "apikey",
		FMPBaseURL:      srv.URL,
		CryptoShortlist: []string{"ETHUSD", "SOLUSD"},
	})
	assert.NoError(t, err)

	cancel, done := runTrainer(t, trainer)
	defer func() {
		cancel()
		<-done
	}()

	ctx, ctxCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer ctxCancel()

	// Ensure configured shortlists replace the defaults.
	for range 5 {
		result, err := trainer.CreateSession(ctx, shared.CryptoMode, "", shared.Options{})
		assert.NoError(t, err)
		assert.Equal(t, "ETHUSD", result.Session.Ticker.Symbol)
	}
}

func TestTrainerRecordDecision(t *testing.T) {
	trainer, err := NewTrainer(context.Background(), &TrainerConfig{
		HistoricDataFilepath: "../testdata/historicdata.json",
	})
	assert.NoError(t, err)

	cancel, done := runTrainer(t, trainer)
	defer func() {
		cancel()
		<-done
	}()

	ctx, ctxCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer ctxCancel()

	result, err := trainer.CreateSession(ctx, shared.Classic, "", shared.Options{})
	assert.NoError(t, err)
	sess := result.Session

	// Ensure decisions slower than the time limit are rejected.
	_, err = trainer.RecordDecision(ctx, sess.ID, 0, shared.Buy, sess.Options.TimeLimit+time.Millisecond)
	assert.True(t, errors.Is(err, shared.ErrWrongDecision))

	// Ensure decisions out of iteration order are rejected.
	_, err = trainer.RecordDecision(ctx, sess.ID, 2, shared.Buy, time.Second)
	assert.True(t, errors.Is(err, shared.ErrWrongDecision))

	// Ensure decisions on every iteration close the session.
	for number := range sess.Options.Iterations {
		decided, err := trainer.RecordDecision(ctx, sess.ID, number, shared.Sell, time.Second*5)
		assert.NoError(t, err)
		assert.Equal(t, number, decided.Decision.IterationNumber)
	}

	stored, err := trainer.FetchSession(ctx, sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, shared.Closed, stored.Status)

	decisions, err := trainer.FetchDecisions(ctx, sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, sess.Options.Iterations, len(decisions))

	// Ensure closed sessions take no further decisions.
	_, err = trainer.RecordDecision(ctx, sess.ID, 0, shared.Skip, time.Second)
	assert.True(t, errors.Is(err, shared.ErrWrongDecision))

	// Ensure unknown sessions are reported.
	_, err = trainer.RecordDecision(ctx, "unknown", 0, shared.Skip, time.Second)
	assert.True(t, errors.Is(err, shared.ErrSessionNotFound))
}
