package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dnldd/tradedrill/shared"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the FMP stable api base url.
	BaseURL = "https://financialmodelingprep.com/stable"
)

// FMPConfig represents the configuration for the FMP client.
type FMPConfig struct {
	// APIkey is the FMP API Key.
	APIKey string
	// BaseURL is the FMP API base url.
	BaseURL string
	// Timeout is the http request timeout.
	Timeout time.Duration
}

// Validate asserts the config sane inputs.
func (cfg *FMPConfig) Validate() error {
	var errs error

	if cfg.APIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("fmp api key cannot be an empty string"))
	}
	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("fmp base url cannot be an empty string"))
	}

	return errs
}

// FMPClient represents the Financial Modeling Preparation (FMP) API client.
type FMPClient struct {
	cfg      *FMPConfig
	httpc    http.Client
	location *time.Location
}

// Ensure the FMPClient implements the QuoteFetcher and TickerFetcher interfaces.
var _ shared.QuoteFetcher = (*FMPClient)(nil)
var _ shared.TickerFetcher = (*FMPClient)(nil)

// NewFMPClient instantiates a new FMP client.
func NewFMPClient(cfg *FMPConfig) (*FMPClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating fmp config: %w", err)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second * 5
	}

	loc, err := time.LoadLocation(shared.NewYorkLocation)
	if err != nil {
		return nil, fmt.Errorf("loading new york location: %w", err)
	}

	return &FMPClient{
		cfg:      cfg,
		httpc:    http.Client{Timeout: cfg.Timeout},
		location: loc,
	}, nil
}

// formURL creates full urls including paramters for the api.
func (c *FMPClient) formURL(path string, params url.Values) string {
	params.Set("apikey", c.cfg.APIKey)

	buf := bytes.NewBuffer(make([]byte, 0, 256))
	buf.WriteString(c.cfg.BaseURL)
	buf.WriteString(path)
	buf.WriteString("?")
	buf.WriteString(params.Encode())

	return buf.String()
}

// historicalPath returns the api path serving quotes for the provided timeframe.
func historicalPath(timeframe shared.Timeframe) (string, error) {
	switch timeframe {
	case shared.OneMinute, shared.FiveMinute, shared.FifteenMinute, shared.ThirtyMinute, shared.OneHour:
		return "/historical-chart/" + timeframe.String(), nil
	case shared.OneDay:
		return "/historical-price-eod/full", nil
	default:
		return "", fmt.Errorf("unknown timeframe provided: %s", timeframe.String())
	}
}

// get fetches the json array served at the provided path.
func (c *FMPClient) get(ctx context.Context, path string, params url.Values) ([]gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(path, params), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrProviderAccess, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s responded with status %d: %s", shared.ErrProviderAccess,
			path, resp.StatusCode, gjson.GetBytes(body, "Error Message").String())
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: expected json array from %s", shared.ErrProviderInvalidData, path)
	}

	return parsed.Array(), nil
}

// FetchHistorical fetches the raw historical market data of a symbol.
func (c *FMPClient) FetchHistorical(ctx context.Context, symbol string, timeframe shared.Timeframe) ([]gjson.Result, error) {
	path, err := historicalPath(timeframe)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("symbol", symbol)

	data, err := c.get(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("fetching historical data (%s) for %s: %w", timeframe.String(), symbol, err)
	}

	return data, nil
}

// FetchQuotes fetches the historical quotes of the provided ticker.
func (c *FMPClient) FetchQuotes(ctx context.Context, ticker shared.Ticker, timeframe shared.Timeframe) ([]shared.Candlestick, error) {
	data, err := c.FetchHistorical(ctx, ticker.Symbol, timeframe)
	if err != nil {
		return nil, err
	}

	candles, err := shared.ParseCandlesticks(data, ticker.Symbol, timeframe, c.location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrProviderInvalidData, err)
	}

	return candles, nil
}

// FetchTickers fetches the stock, etf and crypto tickers served by the api.
func (c *FMPClient) FetchTickers(ctx context.Context) ([]shared.Ticker, error) {
	lists := []struct {
		path string
		kind shared.TickerKind
	}{
		{"/stock-list", shared.Stock},
		{"/etf-list", shared.ETF},
		{"/cryptocurrency-list", shared.Crypto},
	}

	var tickers []shared.Ticker
	for _, list := range lists {
		data, err := c.get(ctx, list.path, url.Values{})
		if err != nil {
			return nil, fmt.Errorf("fetching %s tickers: %w", list.kind.String(), err)
		}

		tickers = append(tickers, ParseTickers(data, list.kind)...)
	}

	return tickers, nil
}

// ParseTickers parses tickers of the provided kind from json data, skipping entries
// without a symbol.
func ParseTickers(data []gjson.Result, kind shared.TickerKind) []shared.Ticker {
	tickers := make([]shared.Ticker, 0, len(data))
	for idx := range data {
		symbol := data[idx].Get("symbol").String()
		if symbol == "" {
			continue
		}

		name := data[idx].Get("name").String()
		if name == "" {
			name = data[idx].Get("companyName").String()
		}

		tickers = append(tickers, shared.Ticker{
			Kind:     kind,
			Exchange: data[idx].Get("exchange").String(),
			Symbol:   symbol,
			Name:     name,
		})
	}

	return tickers
}
