package factors

import (
	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/market"
)

// Engine owns the five streaming sub-estimators and produces one Snapshot
// per bar. Every estimator sees every bar, even in sessions with a rejected
// opening range, so warm-up and rolling state stay current. Disabled factors
// still compute; the scorer just never weighs them.
type Engine struct {
	relVol      *RelVolume
	priceAction *PriceActionStructure
	profile     *ProfileProxy
	vwap        *SessionVWAP
	trend       *TrendStrength
}

func NewEngine(cfg config.Config) *Engine {
	return &Engine{
		relVol:      NewRelVolume(cfg.Factors.RelVol, cfg.Thresholds),
		priceAction: NewPriceActionStructure(cfg.Factors.PriceAction),
		profile:     NewProfileProxy(),
		vwap:        NewSessionVWAP(),
		trend:       NewTrendStrength(cfg.Factors.ADX, cfg.Thresholds),
	}
}

// StartSession applies the session-boundary resets: VWAP restarts empty and
// the profile proxy gets the prior session's extremes (hasPrior false on
// the first session of a run).
func (e *Engine) StartSession(priorHigh, priorLow float64, hasPrior bool) {
	e.vwap.Reset()
	if hasPrior {
		e.profile.SetPriorSession(priorHigh, priorLow)
	} else {
		e.profile.SetPriorSession(0, 0)
	}
}

// SetOpeningRange hands the finalized range bounds to the profile proxy.
func (e *Engine) SetOpeningRange(high, low float64) {
	e.profile.SetOpeningRange(high, low)
}

// Update feeds one bar to every estimator and returns the bar's snapshot.
func (e *Engine) Update(b market.Bar) Snapshot {
	return Snapshot{
		RelVol:      e.relVol.Update(b),
		PriceAction: e.priceAction.Update(b),
		Profile:     e.profile.Update(b),
		VWAP:        e.vwap.Update(b),
		Trend:       e.trend.Update(b),
	}
}
