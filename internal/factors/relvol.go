package factors

import (
	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/market"
)

// nearZeroVolume guards the rel-vol division; a rolling average at or below
// this is treated as no-data rather than producing an absurd ratio.
const nearZeroVolume = 1e-9

// RelVolume compares each bar's volume to the rolling average of the
// preceding lookback bars. Persistent across sessions: overnight volume
// character is part of the baseline.
type RelVolume struct {
	cfg config.RelVol
	th  config.Thresholds

	window []float64
	sum    float64
	next   int
	filled bool
}

func NewRelVolume(cfg config.RelVol, th config.Thresholds) *RelVolume {
	return &RelVolume{
		cfg:    cfg,
		th:     th,
		window: make([]float64, cfg.Lookback),
	}
}

func (rv *RelVolume) Update(b market.Bar) Reading {
	r := Reading{Factor: NameRelVol}

	if rv.filled {
		avg := rv.sum / float64(rv.cfg.Lookback)
		if avg > nearZeroVolume {
			r.Value = b.Volume / avg
			r.Usable = true
			r.Flag = rv.th.AtLeast(r.Value, rv.cfg.SpikeMult)
		}
	}

	// current bar joins the baseline for the next reading
	rv.sum += b.Volume - rv.window[rv.next]
	rv.window[rv.next] = b.Volume
	rv.next++
	if rv.next == len(rv.window) {
		rv.next = 0
		rv.filled = true
	}
	return r
}
