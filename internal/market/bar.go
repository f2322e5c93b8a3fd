package market

import (
	"fmt"
	"time"
)

// Direction of a breakout or trade.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Bias is a directional lean reported by a confirmation factor.
type Bias int

const (
	BiasNone Bias = iota
	BiasLong
	BiasShort
)

func (b Bias) String() string {
	switch b {
	case BiasLong:
		return "long"
	case BiasShort:
		return "short"
	}
	return "none"
}

// Agrees reports whether the bias leans in the given direction.
func (b Bias) Agrees(d Direction) bool {
	return (b == BiasLong && d == Long) || (b == BiasShort && d == Short)
}

// Bar is one immutable OHLCV bar. Session is the trading-day key the bar
// belongs to; bars with the same key are processed under one session's
// opening range and governance counters.
type Bar struct {
	Time    time.Time `json:"time"`
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  float64   `json:"volume"`
	Session string    `json:"session"`
}

// TypicalPrice is the (H+L+C)/3 price used for VWAP accumulation.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// Range is the bar's high-low extent.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// SessionKey derives a trading-day key from a timestamp in the given
// location. Feeds that carry an explicit session column bypass this.
func SessionKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// Validate rejects malformed bars before they reach the engine: OHLC
// consistency, negative volume, and (when prev is set) non-monotonic
// timestamps. A failed bar is skipped by the caller, not fatal.
func Validate(b Bar, prev *Bar) error {
	if b.Time.IsZero() {
		return fmt.Errorf("bar has zero timestamp")
	}
	if b.High < b.Low {
		return fmt.Errorf("bar %s: high %.4f below low %.4f", b.Time.Format(time.RFC3339), b.High, b.Low)
	}
	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("bar %s: open/close outside high-low range", b.Time.Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s: negative volume %.2f", b.Time.Format(time.RFC3339), b.Volume)
	}
	if prev != nil && !b.Time.After(prev.Time) {
		return fmt.Errorf("bar %s: timestamp not after previous bar %s",
			b.Time.Format(time.RFC3339), prev.Time.Format(time.RFC3339))
	}
	return nil
}
