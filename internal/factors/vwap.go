package factors

import (
	"github.com/orblab/orbiter/internal/market"
)

// SessionVWAP accumulates price*volume from the session open. Reset to
// empty at every session boundary; unusable until a bar with positive
// volume has been seen.
type SessionVWAP struct {
	cumPV  float64
	cumVol float64
}

func NewSessionVWAP() *SessionVWAP {
	return &SessionVWAP{}
}

// Reset clears the accumulation for a new session.
func (v *SessionVWAP) Reset() {
	v.cumPV, v.cumVol = 0, 0
}

func (v *SessionVWAP) Update(b market.Bar) Reading {
	v.cumPV += b.TypicalPrice() * b.Volume
	v.cumVol += b.Volume

	r := Reading{Factor: NameVWAP}
	if v.cumVol <= 0 {
		return r
	}
	r.Usable = true
	r.Value = v.cumPV / v.cumVol
	switch {
	case b.Close > r.Value:
		r.Bias = market.BiasLong
	case b.Close < r.Value:
		r.Bias = market.BiasShort
	}
	return r
}
