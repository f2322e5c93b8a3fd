package governance

import (
	"time"

	"github.com/orblab/orbiter/internal/config"
)

// Rejection reasons reported by Admit and recorded on lockout.
const (
	ReasonSignalCap    = "signal_cap"
	ReasonLossStreak   = "loss_streak"
	ReasonDailyLossCap = "daily_loss_cap"
	ReasonCutoff       = "cutoff"
	ReasonLockout      = "lockout"
)

// State is the gate's counters for discipline reporting. Snapshot value;
// session-scoped except the loss streak when carry_loss_streak is set.
type State struct {
	Session           string  `json:"session"`
	SignalsToday      int     `json:"signals_today"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	DailyR            float64 `json:"daily_r"`
	LockedOut         bool    `json:"locked_out"`
	LockoutReason     string  `json:"lockout_reason,omitempty"`
	CutoffReached     bool    `json:"cutoff_reached"`
}

// Gate is the pure admission check run between the breakout detector and
// the trade manager. Once locked out for a reason it stays closed for the
// rest of the session regardless of later confluence.
type Gate struct {
	cfg       config.Governance
	cutoffMin int
	minuteOf  func(time.Time) int
	state     State
}

func NewGate(cfg config.Config) *Gate {
	return &Gate{
		cfg:       cfg.Governance,
		cutoffMin: cfg.CutoffMinute(),
		minuteOf:  cfg.MinuteOfDay,
	}
}

// ResetSession clears the daily counters. The consecutive-loss streak
// carries across sessions only when configured to; a carried streak at the
// threshold re-locks the new session immediately.
func (g *Gate) ResetSession(session string) {
	losses := 0
	if g.cfg.CarryLossStreak {
		losses = g.state.ConsecutiveLosses
	}
	g.state = State{Session: session, ConsecutiveLosses: losses}
	if g.cfg.MaxConsecutiveLosses > 0 && losses >= g.cfg.MaxConsecutiveLosses {
		g.lock(ReasonLossStreak)
	}
}

// Admit decides whether a candidate signal at time t may reach the trade
// manager. A false return reports the blocking reason. Caps set to zero are
// disabled.
func (g *Gate) Admit(t time.Time) (bool, string) {
	if g.state.LockedOut {
		reason := g.state.LockoutReason
		if reason == "" {
			reason = ReasonLockout
		}
		return false, reason
	}
	if g.PastCutoff(t) {
		g.state.CutoffReached = true
		return false, ReasonCutoff
	}
	if g.cfg.MaxSignalsPerDay > 0 && g.state.SignalsToday >= g.cfg.MaxSignalsPerDay {
		return false, ReasonSignalCap
	}
	return true, ""
}

// RecordSignal counts an admitted signal against the daily cap.
func (g *Gate) RecordSignal() {
	g.state.SignalsToday++
}

// RecordTradeClose folds a closed trade's realized R into the discipline
// counters and trips the loss-streak or daily-loss lockouts when crossed.
// A scratch (exactly 0R) neither extends nor resets the streak.
func (g *Gate) RecordTradeClose(realizedR float64) {
	g.state.DailyR += realizedR
	switch {
	case realizedR < 0:
		g.state.ConsecutiveLosses++
	case realizedR > 0:
		g.state.ConsecutiveLosses = 0
	}

	if g.cfg.MaxConsecutiveLosses > 0 && g.state.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses {
		g.lock(ReasonLossStreak)
	}
	if g.cfg.DailyLossCapR > 0 && g.state.DailyR <= -g.cfg.DailyLossCapR {
		g.lock(ReasonDailyLossCap)
	}
}

// PastCutoff reports whether t is past the configured entry cutoff.
func (g *Gate) PastCutoff(t time.Time) bool {
	return g.cutoffMin >= 0 && g.minuteOf(t) >= g.cutoffMin
}

func (g *Gate) lock(reason string) {
	if g.state.LockedOut {
		return
	}
	g.state.LockedOut = true
	g.state.LockoutReason = reason
}

// Snapshot returns the current counters as an immutable value.
func (g *Gate) Snapshot() State { return g.state }
