package openrange

import (
	"math"

	"github.com/orblab/orbiter/internal/market"
)

// ATR tracks Wilder-smoothed average true range. Run-scoped: it keeps
// warming across session boundaries so range validation has a usable
// volatility estimate from the second session on at the latest.
type ATR struct {
	period    int
	prevClose float64
	hasPrev   bool
	n         int
	seedSum   float64
	value     float64
}

func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Update(b market.Bar) {
	tr := b.High - b.Low
	if a.hasPrev {
		tr = math.Max(tr, math.Max(math.Abs(b.High-a.prevClose), math.Abs(b.Low-a.prevClose)))
	}
	a.prevClose = b.Close
	a.hasPrev = true

	a.n++
	switch {
	case a.n < a.period:
		a.seedSum += tr
	case a.n == a.period:
		a.seedSum += tr
		a.value = a.seedSum / float64(a.period)
	default:
		a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
	}
}

// Usable reports whether the seed window has filled.
func (a *ATR) Usable() bool { return a.n >= a.period }

// Value is the current smoothed ATR; zero until usable.
func (a *ATR) Value() float64 {
	if !a.Usable() {
		return 0
	}
	return a.value
}
