package factors

import (
	"math"

	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/market"
)

// TrendStrength is the Wilder ADX estimator. Directional movement and true
// range are smoothed with the Wilder recursion
//
//	smoothed[t] = smoothed[t-1] - smoothed[t-1]/period + raw[t]
//
// seeded by the sum of the first period raws; DX is smoothed the same way
// to obtain ADX. Persistent across sessions.
type TrendStrength struct {
	cfg config.ADX
	th  config.Thresholds

	prev    market.Bar
	hasPrev bool

	n                     int     // DM/TR observations
	sumDMp, sumDMm, sumTR float64 // seed accumulators, then Wilder-smoothed sums

	dxN   int
	sumDX float64 // seed accumulator, then Wilder-smoothed sum

	plusDI, minusDI, adx float64
}

func NewTrendStrength(cfg config.ADX, th config.Thresholds) *TrendStrength {
	return &TrendStrength{cfg: cfg, th: th}
}

func (ts *TrendStrength) Update(b market.Bar) TrendReading {
	r := TrendReading{Reading: Reading{Factor: NameADX}}

	if !ts.hasPrev {
		ts.prev, ts.hasPrev = b, true
		return r
	}

	p := float64(ts.cfg.Period)
	dmPlus, dmMinus := directionalMovement(b, ts.prev)
	tr := trueRange(b, ts.prev)
	ts.prev = b

	ts.n++
	switch {
	case ts.n < ts.cfg.Period:
		ts.sumDMp += dmPlus
		ts.sumDMm += dmMinus
		ts.sumTR += tr
		return r
	case ts.n == ts.cfg.Period:
		ts.sumDMp += dmPlus
		ts.sumDMm += dmMinus
		ts.sumTR += tr
	default:
		ts.sumDMp += dmPlus - ts.sumDMp/p
		ts.sumDMm += dmMinus - ts.sumDMm/p
		ts.sumTR += tr - ts.sumTR/p
	}

	if ts.sumTR > 0 {
		ts.plusDI = 100 * ts.sumDMp / ts.sumTR
		ts.minusDI = 100 * ts.sumDMm / ts.sumTR
	} else {
		ts.plusDI, ts.minusDI = 0, 0
	}

	// DX = 0 when +DI + -DI = 0, by definition
	dx := 0.0
	if sum := ts.plusDI + ts.minusDI; sum > 0 {
		dx = 100 * math.Abs(ts.plusDI-ts.minusDI) / sum
	}

	ts.dxN++
	switch {
	case ts.dxN < ts.cfg.Period:
		ts.sumDX += dx
		return ts.fill(r, false)
	case ts.dxN == ts.cfg.Period:
		ts.sumDX += dx
	default:
		ts.sumDX += dx - ts.sumDX/p
	}
	ts.adx = ts.sumDX / p

	return ts.fill(r, true)
}

func (ts *TrendStrength) fill(r TrendReading, usable bool) TrendReading {
	r.PlusDI, r.MinusDI = ts.plusDI, ts.minusDI
	r.Value = ts.adx
	r.Usable = usable
	if !usable {
		return r
	}
	r.Strong = ts.th.AtLeast(ts.adx, ts.cfg.StrongLevel)
	r.Weak = ts.th.AtMost(ts.adx, ts.cfg.WeakLevel)
	switch {
	case ts.plusDI > ts.minusDI:
		r.Bias = market.BiasLong
	case ts.minusDI > ts.plusDI:
		r.Bias = market.BiasShort
	}
	return r
}

func directionalMovement(b, prev market.Bar) (dmPlus, dmMinus float64) {
	up := b.High - prev.High
	down := prev.Low - b.Low
	if up > down && up > 0 {
		dmPlus = up
	}
	if down > up && down > 0 {
		dmMinus = down
	}
	return dmPlus, dmMinus
}

func trueRange(b, prev market.Bar) float64 {
	tr := b.High - b.Low
	if hc := math.Abs(b.High - prev.Close); hc > tr {
		tr = hc
	}
	if lc := math.Abs(b.Low - prev.Close); lc > tr {
		tr = lc
	}
	return tr
}
