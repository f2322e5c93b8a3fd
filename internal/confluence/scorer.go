package confluence

import (
	"sort"

	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/factors"
	"github.com/orblab/orbiter/internal/market"
)

// Result is the scorer's verdict for one bar and one candidate direction.
// Immutable; the signal that a breakout carries references the result that
// authorized it.
type Result struct {
	Direction market.Direction `json:"direction"`
	Score     float64          `json:"score"`    // [0,1]
	Required  float64          `json:"required"` // threshold actually applied
	Pass      bool             `json:"pass"`
	WeakTrend bool             `json:"weak_trend"`
	Flags     map[string]bool  `json:"flags"` // per enabled factor
}

// Scorer combines factor readings into a weighted pass/fail. Stateless
// beyond configuration: the score for bar t is a pure function of bar t's
// snapshot.
type Scorer struct {
	weights     map[string]float64
	names       []string
	totalWeight float64
	base        float64
	weak        float64
	adxEnabled  bool
	th          config.Thresholds
}

func NewScorer(cfg config.Config) *Scorer {
	weights := cfg.EnabledFactors()
	s := &Scorer{
		weights:    weights,
		base:       cfg.Confluence.BaseRequired,
		weak:       cfg.Confluence.WeakTrendRequired,
		adxEnabled: cfg.Factors.ADX.Enabled,
		th:         cfg.Thresholds,
	}
	for name, w := range weights {
		s.names = append(s.names, name)
		s.totalWeight += w
	}
	sort.Strings(s.names)
	return s
}

// Evaluate scores the snapshot for a breakout in dir. Every enabled factor
// stays in the denominator; an unusable reading contributes false, never a
// silent pass. The required threshold is the weak-trend one when the
// trend-strength factor is enabled, warmed up, and reporting weak trend.
func (s *Scorer) Evaluate(snap factors.Snapshot, dir market.Direction) Result {
	res := Result{
		Direction: dir,
		Required:  s.base,
		Flags:     make(map[string]bool, len(s.names)),
	}

	if s.adxEnabled && snap.Trend.Usable && snap.Trend.Weak {
		res.WeakTrend = true
		res.Required = s.weak
	}

	var sum float64
	for _, name := range s.names {
		reading, ok := snap.ByName(name)
		if !ok {
			continue
		}
		flag := reading.Confirms(dir)
		res.Flags[name] = flag
		if flag {
			sum += s.weights[name]
		}
	}
	if s.totalWeight > 0 {
		res.Score = sum / s.totalWeight
	}
	res.Pass = s.th.AtLeast(res.Score, res.Required)
	return res
}
