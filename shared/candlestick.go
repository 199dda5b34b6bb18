package shared

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Candlestick represents a unit candlestick for a market.
type Candlestick struct {
	Open   decimal.Decimal
	Low    decimal.Decimal
	High   decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
	Date   time.Time

	// Metadata fields.
	Market    string
	Timeframe Timeframe
}

// parseDate parses candlestick dates, which are either full timestamps or plain dates for
// daily data.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	dt, err := time.ParseInLocation(DateLayout, value, loc)
	if err == nil {
		return dt, nil
	}

	dt, err = time.ParseInLocation(DayLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing candlestick date '%s': %w", value, err)
	}

	return dt, nil
}

// ParseCandlesticks parses candlesticks from the provided json data and returns them sorted
// by date in ascending order.
func ParseCandlesticks(data []gjson.Result, market string, timeframe Timeframe, loc *time.Location) ([]Candlestick, error) {
	candles := make([]Candlestick, 0, len(data))
	for idx := range data {
		dt, err := parseDate(data[idx].Get("date").String(), loc)
		if err != nil {
			return nil, err
		}

		var prices [4]decimal.Decimal
		for pdx, field := range []string{"open", "low", "high", "close"} {
			prices[pdx], err = decimal.NewFromString(data[idx].Get(field).String())
			if err != nil {
				return nil, fmt.Errorf("parsing candlestick %s at %s: %w", field, dt, err)
			}
		}

		candle := Candlestick{
			Open:      prices[0],
			Low:       prices[1],
			High:      prices[2],
			Close:     prices[3],
			Volume:    decimal.NewFromFloat(data[idx].Get("volume").Float()),
			Date:      dt,
			Market:    market,
			Timeframe: timeframe,
		}

		candles = append(candles, candle)
	}

	// Providers return the most recent data first.
	slices.SortFunc(candles, func(a, b Candlestick) int {
		return a.Date.Compare(b.Date)
	})

	return candles, nil
}
