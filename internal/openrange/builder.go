package openrange

import (
	"math"
	"time"

	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/market"
)

// State of an opening range. Finalized and Rejected are terminal; a range
// is never re-finalized.
type State int

const (
	Building State = iota
	Finalized
	Rejected
)

func (s State) String() string {
	switch s {
	case Finalized:
		return "finalized"
	case Rejected:
		return "rejected"
	}
	return "building"
}

// Range is the finalized (or rejected) opening range for one session.
// Immutable once the builder hands it out.
type Range struct {
	Duration    time.Duration `json:"duration"`
	High        float64       `json:"high"`
	Low         float64       `json:"low"`
	Width       float64       `json:"width"`
	LongEntry   float64       `json:"long_entry"`  // buffered upper bound
	ShortEntry  float64       `json:"short_entry"` // buffered lower bound
	State       State         `json:"-"`
	Reason      string        `json:"reason,omitempty"`
	Bars        int           `json:"bars"`
	FinalizedAt time.Time     `json:"finalized_at"`
}

// Tradable reports whether the range may produce signals this session.
func (r Range) Tradable() bool { return r.State == Finalized }

// Selector picks the opening-range duration for a new session. Run-scoped:
// it remembers the realized window width of every candidate duration across
// prior sessions and biases toward the candidate whose historical width
// best matches the target fraction of current ATR.
type Selector struct {
	cfg    config.OpeningRange
	sums   map[int]float64
	counts map[int]int
}

func NewSelector(cfg config.OpeningRange) *Selector {
	return &Selector{
		cfg:    cfg,
		sums:   map[int]float64{},
		counts: map[int]int{},
	}
}

// Choose returns the candidate duration in minutes. Without ATR or width
// history there is nothing to compare, so it falls back to the middle
// candidate.
func (s *Selector) Choose(atr float64, atrUsable bool) int {
	durations := s.cfg.Durations
	mid := durations[len(durations)/2]
	if !atrUsable || atr <= 0 {
		return mid
	}
	target := s.cfg.TargetATRFrac * atr

	best, bestDist := 0, math.Inf(1)
	for _, d := range durations {
		n := s.counts[d]
		if n == 0 {
			continue
		}
		avg := s.sums[d] / float64(n)
		if dist := math.Abs(avg - target); dist < bestDist {
			best, bestDist = d, dist
		}
	}
	if best == 0 {
		return mid
	}
	return best
}

func (s *Selector) record(minutes int, width float64) {
	s.sums[minutes] += width
	s.counts[minutes]++
}

// Builder accumulates bars inside one session's opening window. It keeps
// observing through the longest candidate window even after finalization so
// every candidate duration gets a width sample for the selector.
type Builder struct {
	cfg      config.OpeningRange
	sel      *Selector
	atrValue float64
	atrOK    bool

	anchor   time.Time // session open
	deadline time.Time // chosen window end
	chosen   int

	high, low float64
	bars      int

	pending []candidate
	rng     Range
	done    bool
}

type candidate struct {
	minutes int
	end     time.Time
}

// NewBuilder starts a session's range build. ChooseLength happens here:
// the duration is fixed at session start from prior-session width history
// and the ATR snapshot, never revised mid-window.
func NewBuilder(cfg config.OpeningRange, sel *Selector, sessionOpen time.Time, atr float64, atrUsable bool) *Builder {
	chosen := sel.Choose(atr, atrUsable)
	b := &Builder{
		cfg:      cfg,
		sel:      sel,
		atrValue: atr,
		atrOK:    atrUsable,
		anchor:   sessionOpen,
		deadline: sessionOpen.Add(time.Duration(chosen) * time.Minute),
		chosen:   chosen,
		low:      math.Inf(1),
		high:     math.Inf(-1),
	}
	for _, d := range cfg.Durations {
		b.pending = append(b.pending, candidate{minutes: d, end: sessionOpen.Add(time.Duration(d) * time.Minute)})
	}
	return b
}

// Update feeds one bar. It returns the terminal Range and true exactly once,
// on the first bar at or past the chosen window end; that bar is not part of
// the range. Bars keep feeding candidate width history after finalization.
func (b *Builder) Update(bar market.Bar) (Range, bool) {
	// pre-open prints share the session key but sit outside every window
	if bar.Time.Before(b.anchor) {
		return b.rng, false
	}

	// candidate widths are sampled the moment each window closes
	remaining := b.pending[:0]
	for _, c := range b.pending {
		if !bar.Time.Before(c.end) {
			if b.bars > 0 {
				b.sel.record(c.minutes, b.high-b.low)
			}
			continue
		}
		remaining = append(remaining, c)
	}
	b.pending = remaining

	finalizedNow := false
	if !b.done && !bar.Time.Before(b.deadline) {
		b.finalize()
		finalizedNow = true
	}

	// bars past the chosen deadline still extend the longer candidates'
	// observed extent for width history
	if bar.Time.Before(b.anchor.Add(longestWindow(b.cfg))) {
		if bar.High > b.high {
			b.high = bar.High
		}
		if bar.Low < b.low {
			b.low = bar.Low
		}
		b.bars++
	}
	return b.rng, finalizedNow
}

// Done reports whether the range reached a terminal state.
func (b *Builder) Done() bool { return b.done }

func (b *Builder) finalize() {
	b.done = true
	r := Range{
		Duration: time.Duration(b.chosen) * time.Minute,
		Bars:     b.bars,
	}
	if b.bars == 0 {
		r.State = Rejected
		r.Reason = "no bars in opening window"
		b.rng = r
		return
	}
	r.High, r.Low = b.high, b.low
	r.Width = b.high - b.low

	if b.atrOK && b.atrValue > 0 {
		if r.Width < b.cfg.MinWidthATR*b.atrValue {
			r.State = Rejected
			r.Reason = "range too narrow vs atr"
			b.rng = r
			return
		}
		if r.Width > b.cfg.MaxWidthATR*b.atrValue {
			r.State = Rejected
			r.Reason = "range too wide vs atr"
			b.rng = r
			return
		}
	}

	bufLong, bufShort := b.buffers(r.Width)
	r.LongEntry = r.High + bufLong
	r.ShortEntry = r.Low - bufShort
	r.State = Finalized
	r.FinalizedAt = b.deadline
	b.rng = r
}

func (b *Builder) buffers(width float64) (long, short float64) {
	switch b.cfg.Buffer.Mode {
	case "asymmetric":
		return b.cfg.Buffer.LongFrac * width, b.cfg.Buffer.ShortFrac * width
	default:
		buf := b.cfg.Buffer.Frac * width
		return buf, buf
	}
}

// Snapshot returns the current range state (Building until finalized).
func (b *Builder) Snapshot() Range { return b.rng }

func longestWindow(cfg config.OpeningRange) time.Duration {
	return time.Duration(cfg.Durations[len(cfg.Durations)-1]) * time.Minute
}
