package factors

import (
	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/market"
)

// PriceActionStructure classifies the recent bar window as long-leaning or
// short-leaning from engulfing patterns and higher-high/higher-low (or
// lower-low/lower-high) structure. Persistent across sessions; structure
// straddling the open is real information.
type PriceActionStructure struct {
	cfg config.PriceAction

	window []market.Bar // last PivotLen bars, oldest first
}

func NewPriceActionStructure(cfg config.PriceAction) *PriceActionStructure {
	return &PriceActionStructure{cfg: cfg}
}

func (pa *PriceActionStructure) Update(b market.Bar) Reading {
	r := Reading{Factor: NamePriceAction}

	if len(pa.window) >= 1 {
		prev := pa.window[len(pa.window)-1]
		switch {
		case b.Close > prev.High && b.Open < prev.Low:
			r.Bias = market.BiasLong // bullish engulfing
		case b.Close < prev.Low && b.Open > prev.High:
			r.Bias = market.BiasShort // bearish engulfing
		}
	}

	if len(pa.window) == pa.cfg.PivotLen {
		r.Usable = true
		if r.Bias == market.BiasNone {
			r.Bias = pa.structureBias(b)
		}
		r.Value = biasValue(r.Bias)
	}

	pa.window = append(pa.window, b)
	if len(pa.window) > pa.cfg.PivotLen {
		pa.window = pa.window[1:]
	}
	return r
}

// structureBias compares the recent half of the window (including the
// current bar) against the earlier half: higher highs with higher lows lean
// long, lower lows with lower highs lean short.
func (pa *PriceActionStructure) structureBias(cur market.Bar) market.Bias {
	half := len(pa.window) / 2
	earlyHigh, earlyLow := extent(pa.window[:half])
	lateHigh, lateLow := extent(pa.window[half:])
	if cur.High > lateHigh {
		lateHigh = cur.High
	}
	if cur.Low < lateLow {
		lateLow = cur.Low
	}

	switch {
	case lateHigh > earlyHigh && lateLow > earlyLow:
		return market.BiasLong
	case lateLow < earlyLow && lateHigh < earlyHigh:
		return market.BiasShort
	}
	return market.BiasNone
}

func extent(bars []market.Bar) (high, low float64) {
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low
}

func biasValue(b market.Bias) float64 {
	switch b {
	case market.BiasLong:
		return 1
	case market.BiasShort:
		return -1
	}
	return 0
}
