package fetch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dnldd/tradedrill/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// HistoricDataConfig represents the historic data source configuration.
type HistoricDataConfig struct {
	// FilePath is the filepath to the historic market data.
	FilePath string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// HistoricData represents historic market data loaded from a file. The file holds a single
// market with its quotes keyed by timeframe:
//
//	{"market": "AAPL", "kind": "stock", "exchange": "NASDAQ", "name": "Apple Inc.", "1day": [...]}
type HistoricData struct {
	cfg     *HistoricDataConfig
	ticker  shared.Ticker
	candles map[shared.Timeframe][]shared.Candlestick
}

// Ensure the HistoricData implements the QuoteFetcher and TickerFetcher interfaces.
var _ shared.QuoteFetcher = (*HistoricData)(nil)
var _ shared.TickerFetcher = (*HistoricData)(nil)

// loadHistoricData loads the historic data bytes from the provided file path.
func loadHistoricData(filepath string) (*gjson.Result, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading historic data from file with path '%s': %w", filepath, err)
	}

	if !gjson.ValidBytes(readb) {
		return nil, fmt.Errorf("%w: historic data file '%s' is not valid json", shared.ErrProviderInvalidData, filepath)
	}

	b := gjson.ParseBytes(readb)

	return &b, nil
}

// NewHistoricData initializes a new historic data source.
func NewHistoricData(cfg *HistoricDataConfig) (*HistoricData, error) {
	b, err := loadHistoricData(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("loading historic data: %w", err)
	}

	market := b.Get("market").String()
	if market == "" {
		return nil, fmt.Errorf("%w: historic data has no market", shared.ErrProviderInvalidData)
	}

	kind := shared.Stock
	if k := b.Get("kind").String(); k != "" {
		kind, err = shared.ParseTickerKind(k)
		if err != nil {
			return nil, fmt.Errorf("parsing ticker kind: %w", err)
		}
	}

	loc, err := time.LoadLocation(shared.NewYorkLocation)
	if err != nil {
		return nil, fmt.Errorf("loading new york location: %w", err)
	}

	historicData := HistoricData{
		cfg: cfg,
		ticker: shared.Ticker{
			Kind:     kind,
			Exchange: b.Get("exchange").String(),
			Symbol:   market,
			Name:     b.Get("name").String(),
		},
		candles: make(map[shared.Timeframe][]shared.Candlestick),
	}

	for _, timeframe := range shared.Timeframes {
		data := b.Get(timeframe.String()).Array()
		if len(data) == 0 {
			continue
		}

		candles, err := shared.ParseCandlesticks(data, market, timeframe, loc)
		if err != nil {
			return nil, fmt.Errorf("parsing %s candlesticks: %w", timeframe.String(), err)
		}

		historicData.candles[timeframe] = candles
		cfg.Logger.Info().Msgf("loaded %d %s candles for %s, from %s to %s", len(candles),
			timeframe.String(), market, candles[0].Date.Format(time.RFC1123),
			candles[len(candles)-1].Date.Format(time.RFC1123))
	}

	if len(historicData.candles) == 0 {
		return nil, fmt.Errorf("%w: no candles found for %s", shared.ErrProviderInvalidData, market)
	}

	return &historicData, nil
}

// FetchQuotes returns the loaded quotes of the provided ticker.
func (h *HistoricData) FetchQuotes(ctx context.Context, ticker shared.Ticker, timeframe shared.Timeframe) ([]shared.Candlestick, error) {
	if ticker.Symbol != h.ticker.Symbol {
		return nil, fmt.Errorf("%w: %s has no historic data", shared.ErrTickerNotFound, ticker.Symbol)
	}

	candles, ok := h.candles[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: no %s historic data for %s", shared.ErrInsufficientData,
			timeframe.String(), ticker.Symbol)
	}

	return candles, nil
}

// FetchTickers returns the ticker of the loaded market.
func (h *HistoricData) FetchTickers(ctx context.Context) ([]shared.Ticker, error) {
	return []shared.Ticker{h.ticker}, nil
}

// FetchMarket returns the loaded market.
func (h *HistoricData) FetchMarket() string {
	return h.ticker.Symbol
}
