package shared

import (
	"context"
)

// QuoteFetcher defines the requirements for fetching historical quotes.
type QuoteFetcher interface {
	// FetchQuotes fetches the historical quotes of the provided ticker, sorted by date in
	// ascending order.
	FetchQuotes(ctx context.Context, ticker Ticker, timeframe Timeframe) ([]Candlestick, error)
}

// TickerFetcher defines the requirements for fetching the tradable tickers of a provider.
type TickerFetcher interface {
	// FetchTickers fetches all tickers the provider serves quotes for.
	FetchTickers(ctx context.Context) ([]Ticker, error)
}
