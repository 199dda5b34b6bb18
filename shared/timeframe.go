package shared

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the format layout for parsing intraday dates.
	DateLayout = "2006-01-02 15:04:05"
	// DayLayout is the format layout for parsing daily dates.
	DayLayout = "2006-01-02"
	// NewYorkLocation is the location used for market timestamps.
	NewYorkLocation = "America/New_York"
)

// Timeframe represents the market data time period.
type Timeframe int

const (
	OneMinute Timeframe = iota
	FiveMinute
	FifteenMinute
	ThirtyMinute
	OneHour
	OneDay
)

// Timeframes lists every supported timeframe.
var Timeframes = []Timeframe{OneMinute, FiveMinute, FifteenMinute, ThirtyMinute, OneHour, OneDay}

// String stringifies the provided timeframe.
func (t Timeframe) String() string {
	switch t {
	case OneMinute:
		return "1min"
	case FiveMinute:
		return "5min"
	case FifteenMinute:
		return "15min"
	case ThirtyMinute:
		return "30min"
	case OneHour:
		return "1hour"
	case OneDay:
		return "1day"
	default:
		return "unknown"
	}
}

// ParseTimeframe parses the provided timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	for _, tf := range Timeframes {
		if tf.String() == s {
			return tf, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown timeframe %q", ErrSessionConfiguration, s)
}

// NewYorkTime returns the current time in new york (EST/EDT adjusted automatically).
func NewYorkTime() (time.Time, *time.Location, error) {
	loc, err := time.LoadLocation(NewYorkLocation)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("loading new york timezone: %w", err)
	}

	now := time.Now().In(loc)
	return now, loc, nil
}
