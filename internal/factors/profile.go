package factors

import (
	"github.com/orblab/orbiter/internal/market"
)

// ProfileProxy derives quartile value-area levels from the prior session's
// high/low and flags directional bias when price and the opening range sit
// on the same side of value. Session-scoped inputs are pushed in by the
// engine: prior-session extremes at each boundary, the opening range once
// finalized.
type ProfileProxy struct {
	priorHigh, priorLow float64
	hasPrior            bool

	orHigh, orLow float64
	hasRange      bool
}

func NewProfileProxy() *ProfileProxy {
	return &ProfileProxy{}
}

// SetPriorSession installs the previous session's extremes. Called by the
// engine on session-boundary detection, before any bar of the new session.
func (pp *ProfileProxy) SetPriorSession(high, low float64) {
	pp.priorHigh, pp.priorLow = high, low
	pp.hasPrior = high > low
	pp.hasRange = false
}

// SetOpeningRange installs the session's finalized range bounds.
func (pp *ProfileProxy) SetOpeningRange(high, low float64) {
	pp.orHigh, pp.orLow = high, low
	pp.hasRange = true
}

// Levels returns value-area-low, mid, and value-area-high of the prior
// session's range.
func (pp *ProfileProxy) Levels() (val, mid, vah float64, ok bool) {
	if !pp.hasPrior {
		return 0, 0, 0, false
	}
	rng := pp.priorHigh - pp.priorLow
	return pp.priorLow + 0.25*rng, pp.priorLow + 0.5*rng, pp.priorLow + 0.75*rng, true
}

func (pp *ProfileProxy) Update(b market.Bar) Reading {
	r := Reading{Factor: NameProfile}
	val, mid, vah, ok := pp.Levels()
	if !ok || !pp.hasRange {
		return r
	}
	r.Usable = true
	r.Value = b.Close - mid
	switch {
	case b.Close > mid && pp.orLow > val:
		r.Bias = market.BiasLong
	case b.Close < mid && pp.orHigh < vah:
		r.Bias = market.BiasShort
	}
	return r
}
