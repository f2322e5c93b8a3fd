package breakout

import (
	"time"

	"github.com/orblab/orbiter/internal/confluence"
	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/factors"
	"github.com/orblab/orbiter/internal/market"
	"github.com/orblab/orbiter/internal/openrange"
)

// Signal is a confirmed breakout, created here and consumed exactly once by
// the trade manager (after the governance gate admits it).
type Signal struct {
	Direction  market.Direction  `json:"direction"`
	Time       time.Time         `json:"time"`
	Entry      float64           `json:"entry"`
	Confluence confluence.Result `json:"confluence"`
}

// Attempt records one evaluated boundary cross, emitted whether or not it
// became a signal. Feeds the per-bar decision records.
type Attempt struct {
	Direction  market.Direction  `json:"direction"`
	Blocked    []string          `json:"blocked,omitempty"`
	Confluence confluence.Result `json:"confluence"`
}

// Detector checks finalized-range boundary crossings. Session-scoped: each
// direction fires at most once per session, latched on emission.
type Detector struct {
	cfg   config.Breakout
	fired map[market.Direction]bool
}

func NewDetector(cfg config.Breakout) *Detector {
	d := &Detector{cfg: cfg}
	d.ResetSession()
	return d
}

// ResetSession clears the per-direction latches.
func (d *Detector) ResetSession() {
	d.fired = map[market.Direction]bool{}
}

// Fired reports whether dir already signaled this session.
func (d *Detector) Fired(dir market.Direction) bool { return d.fired[dir] }

// Check evaluates one bar against a finalized range. eval supplies the
// bar's confluence result for a candidate direction; it is only invoked for
// directions that actually crossed. At most one signal per bar; long is
// evaluated before short on the rare bar that crosses both bounds.
func (d *Detector) Check(bar market.Bar, rng openrange.Range, snap factors.Snapshot,
	eval func(market.Direction) confluence.Result) (*Signal, []Attempt) {

	if !rng.Tradable() {
		return nil, nil
	}

	var attempts []Attempt
	for _, dir := range []market.Direction{market.Long, market.Short} {
		if d.fired[dir] {
			continue
		}
		crossed, entry := d.crossed(bar, rng, dir)
		if !crossed {
			continue
		}

		att := Attempt{Direction: dir, Confluence: eval(dir)}
		if !att.Confluence.Pass {
			att.Blocked = append(att.Blocked, "confluence")
		}
		if d.cfg.RequireStructure && !snap.PriceAction.Confirms(dir) {
			att.Blocked = append(att.Blocked, "structure")
		}
		attempts = append(attempts, att)

		if len(att.Blocked) == 0 {
			d.fired[dir] = true
			return &Signal{
				Direction:  dir,
				Time:       bar.Time,
				Entry:      entry,
				Confluence: att.Confluence,
			}, attempts
		}
	}
	return nil, attempts
}

// crossed applies the configured crossing mode. Close mode requires the
// close strictly beyond the buffered bound and fills at the close; wick
// mode models a resting stop order at the bound, touched intrabar and
// filled at the bound itself.
func (d *Detector) crossed(bar market.Bar, rng openrange.Range, dir market.Direction) (bool, float64) {
	if d.cfg.CrossMode == "wick" {
		if dir == market.Long && bar.High >= rng.LongEntry {
			return true, rng.LongEntry
		}
		if dir == market.Short && bar.Low <= rng.ShortEntry {
			return true, rng.ShortEntry
		}
		return false, 0
	}
	if dir == market.Long && bar.Close > rng.LongEntry {
		return true, bar.Close
	}
	if dir == market.Short && bar.Close < rng.ShortEntry {
		return true, bar.Close
	}
	return false, 0
}
