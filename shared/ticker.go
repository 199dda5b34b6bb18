package shared

import (
	"fmt"
	"strings"
)

// TickerKind represents the asset class of a ticker.
type TickerKind int

const (
	Stock TickerKind = iota
	ETF
	Crypto
)

// String stringifies the provided ticker kind.
func (k TickerKind) String() string {
	switch k {
	case Stock:
		return "stock"
	case ETF:
		return "etf"
	case Crypto:
		return "crypto"
	default:
		return "unknown"
	}
}

// ParseTickerKind parses the provided ticker kind string.
func ParseTickerKind(s string) (TickerKind, error) {
	switch strings.ToLower(s) {
	case "stock":
		return Stock, nil
	case "etf":
		return ETF, nil
	case "crypto":
		return Crypto, nil
	default:
		return 0, fmt.Errorf("%w: unknown ticker kind %q", ErrSessionConfiguration, s)
	}
}

// Ticker represents a tradable instrument.
type Ticker struct {
	Kind     TickerKind
	Exchange string
	Symbol   string
	Name     string
}
