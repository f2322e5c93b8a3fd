package trade

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/orblab/orbiter/internal/breakout"
	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/market"
	"github.com/orblab/orbiter/internal/observ"
	"github.com/orblab/orbiter/internal/openrange"
)

// ErrNoStop means no enabled stop candidate sat on the protective side of
// the entry; the signal is skipped, not fatal.
var ErrNoStop = errors.New("no valid protective stop")

const remainingEpsilon = 1e-9

// StopInputs carries the per-signal context the stop candidates need.
type StopInputs struct {
	Range     openrange.Range
	SwingLow  float64
	SwingHigh float64
	HaveSwing bool
	ATR       float64
	ATRUsable bool
}

// Manager owns all trades of a run: it opens them from admitted signals,
// walks their stops and targets bar by bar, and accumulates closed records.
type Manager struct {
	cfg    config.Trade
	symbol string

	open   []*Trade
	closed []Trade
}

func NewManager(cfg config.Trade, symbol string) *Manager {
	return &Manager{cfg: cfg, symbol: symbol}
}

// CanOpen reports whether the concurrency cap allows another trade.
func (m *Manager) CanOpen() bool {
	return len(m.open) < m.cfg.MaxConcurrent
}

// OpenFromSignal turns an admitted signal into an Open trade: stop from the
// tightest enabled candidate, target ladder at fixed R multiples. Entry
// fill is modeled at the signal price on the signal bar.
func (m *Manager) OpenFromSignal(sig breakout.Signal, session string, in StopInputs) (Trade, error) {
	stop, err := m.chooseStop(sig, in)
	if err != nil {
		return Trade{}, err
	}

	t := &Trade{
		ID:          uuid.NewString(),
		Symbol:      m.symbol,
		Session:     session,
		Direction:   sig.Direction,
		SignalTime:  sig.Time,
		Entry:       sig.Entry,
		InitialStop: stop,
		Stop:        stop,
		Risk:        math.Abs(sig.Entry - stop),
		State:       Pending,
		Remaining:   1,
	}
	if sig.Direction == market.Long {
		t.T1 = sig.Entry + m.cfg.T1R*t.Risk
		t.T2 = sig.Entry + m.cfg.T2R*t.Risk
	} else {
		t.T1 = sig.Entry - m.cfg.T1R*t.Risk
		t.T2 = sig.Entry - m.cfg.T2R*t.Risk
	}

	// fill confirmed immediately in this simulation
	if err := t.transition(Open); err != nil {
		return Trade{}, err
	}
	t.EntryTime = sig.Time

	m.open = append(m.open, t)
	observ.OpenTrades.Inc()
	return *t, nil
}

// chooseStop picks the tightest protective stop among the enabled
// candidates without exceeding the ATR-capped maximum risk distance. For a
// long that is the highest candidate below entry; mirrored for shorts.
func (m *Manager) chooseStop(sig breakout.Signal, in StopInputs) (float64, error) {
	var candidates []float64
	for _, mode := range m.cfg.StopModes {
		switch mode {
		case "or":
			if sig.Direction == market.Long {
				candidates = append(candidates, in.Range.Low)
			} else {
				candidates = append(candidates, in.Range.High)
			}
		case "swing":
			if in.HaveSwing {
				if sig.Direction == market.Long {
					candidates = append(candidates, in.SwingLow)
				} else {
					candidates = append(candidates, in.SwingHigh)
				}
			}
		case "atr":
			if in.ATRUsable && in.ATR > 0 {
				if sig.Direction == market.Long {
					candidates = append(candidates, sig.Entry-m.cfg.ATRStopMult*in.ATR)
				} else {
					candidates = append(candidates, sig.Entry+m.cfg.ATRStopMult*in.ATR)
				}
			}
		}
	}

	best := math.NaN()
	for _, c := range candidates {
		if sig.Direction == market.Long {
			if c < sig.Entry && (math.IsNaN(best) || c > best) {
				best = c
			}
		} else {
			if c > sig.Entry && (math.IsNaN(best) || c < best) {
				best = c
			}
		}
	}
	if math.IsNaN(best) {
		return 0, fmt.Errorf("%w for %s at %.4f", ErrNoStop, sig.Direction, sig.Entry)
	}
	return best, nil
}

// UpdateBar walks every open trade through one bar: stop first (the
// conservative same-bar assumption), then the target ladder, then the
// runner trail ratchet for the next bar. Returns the trades closed on this
// bar. Any returned error is an ErrInvariant and must abort the run.
func (m *Manager) UpdateBar(bar market.Bar) ([]Trade, error) {
	var done []Trade
	remaining := m.open[:0]
	for _, t := range m.open {
		closed, err := m.step(t, bar)
		if err != nil {
			return nil, err
		}
		if closed {
			done = append(done, *t)
			observ.OpenTrades.Dec()
			observ.TradesClosed.WithLabelValues(string(t.ExitReason)).Inc()
			m.closed = append(m.closed, *t)
		} else {
			remaining = append(remaining, t)
		}
	}
	m.open = remaining
	return done, nil
}

func (m *Manager) step(t *Trade, bar market.Bar) (bool, error) {
	if t.State == Closed {
		return false, fmt.Errorf("%w: closed trade %s still in open set", ErrInvariant, t.ID)
	}

	long := t.Direction == market.Long

	// stop before targets: when both could fill inside one bar's range the
	// loss is assumed first, biasing results against the strategy
	stopHit := (long && bar.Low <= t.Stop) || (!long && bar.High >= t.Stop)
	if stopHit {
		reason := ExitStop
		if t.t2Hit {
			reason = ExitTrail
		}
		return true, m.closeRemaining(t, bar, t.Stop, reason)
	}

	if !t.t1Hit && m.targetHit(t, bar, t.T1) {
		t.t1Hit = true
		if err := m.partialFill(t, bar, t.T1, m.cfg.T1Frac, "t1"); err != nil {
			return false, err
		}
		// breakeven shift: remaining size risks nothing from here
		be := t.Entry + signed(long)*m.cfg.BreakevenOffsetR*t.Risk
		if err := t.forceStop(be); err != nil {
			return false, err
		}
	}
	if t.t1Hit && !t.t2Hit && m.targetHit(t, bar, t.T2) {
		t.t2Hit = true
		t.trailAnchor = t.T2
		if err := m.partialFill(t, bar, t.T2, m.cfg.T2Frac, "t2"); err != nil {
			return false, err
		}
		if t.Remaining <= remainingEpsilon {
			return true, m.finish(t, bar.Time, ExitTargets)
		}
	}

	// runner trail: anchor at the best favorable extreme, stop trails it by
	// a fixed R distance; takes effect from the next bar
	if t.t2Hit && t.Remaining > remainingEpsilon {
		if long && bar.High > t.trailAnchor {
			t.trailAnchor = bar.High
		} else if !long && bar.Low < t.trailAnchor {
			t.trailAnchor = bar.Low
		}
		t.ratchetStop(t.trailAnchor - signed(long)*m.cfg.RunnerTrailR*t.Risk)
	}
	return false, nil
}

func (m *Manager) targetHit(t *Trade, bar market.Bar, target float64) bool {
	if t.Direction == market.Long {
		return bar.High >= target
	}
	return bar.Low <= target
}

func (m *Manager) partialFill(t *Trade, bar market.Bar, price, frac float64, kind string) error {
	if frac > t.Remaining {
		frac = t.Remaining
	}
	if frac <= 0 {
		return nil
	}
	r := t.R(price)
	t.Fills = append(t.Fills, Fill{Time: bar.Time, Price: price, Fraction: frac, R: r, Kind: kind})
	t.RealizedR += frac * r
	t.Remaining -= frac
	return t.transition(PartiallyClosed)
}

func (m *Manager) closeRemaining(t *Trade, bar market.Bar, price float64, reason ExitReason) error {
	r := t.R(price)
	t.Fills = append(t.Fills, Fill{Time: bar.Time, Price: price, Fraction: t.Remaining, R: r, Kind: string(reason)})
	t.RealizedR += t.Remaining * r
	t.Remaining = 0
	return m.finish(t, bar.Time, reason)
}

func (m *Manager) finish(t *Trade, at time.Time, reason ExitReason) error {
	if err := t.transition(Closed); err != nil {
		return err
	}
	t.ExitTime = at
	t.ExitReason = reason
	return nil
}

// FlattenAll force-closes every open trade at the bar's close: session end,
// governance cutoff, or dataset end. Returns the closed trades.
func (m *Manager) FlattenAll(bar market.Bar, reason ExitReason) ([]Trade, error) {
	var done []Trade
	for _, t := range m.open {
		if err := m.closeRemaining(t, bar, bar.Close, reason); err != nil {
			return nil, err
		}
		done = append(done, *t)
		observ.OpenTrades.Dec()
		observ.TradesClosed.WithLabelValues(string(reason)).Inc()
		m.closed = append(m.closed, *t)
	}
	m.open = m.open[:0]
	return done, nil
}

// OpenCount is the number of currently open trades.
func (m *Manager) OpenCount() int { return len(m.open) }

// OpenSnapshots returns copies of the open trades for reporting.
func (m *Manager) OpenSnapshots() []Trade {
	out := make([]Trade, 0, len(m.open))
	for _, t := range m.open {
		out = append(out, *t)
	}
	return out
}

// Closed returns the accumulated closed-trade records.
func (m *Manager) Closed() []Trade { return m.closed }

func signed(long bool) float64 {
	if long {
		return 1
	}
	return -1
}
