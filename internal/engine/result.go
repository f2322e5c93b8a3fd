package engine

import (
	"time"

	"github.com/orblab/orbiter/internal/breakout"
	"github.com/orblab/orbiter/internal/confluence"
	"github.com/orblab/orbiter/internal/governance"
	"github.com/orblab/orbiter/internal/openrange"
	"github.com/orblab/orbiter/internal/trade"
)

// Decision stages recorded by the event loop.
const (
	StageBarSkipped       = "bar_skipped"
	StageRangeFinalized   = "or_finalized"
	StageRangeRejected    = "or_rejected"
	StageBreakoutAttempt  = "breakout_attempt"
	StageSignal           = "signal"
	StageGovernanceReject = "governance_reject"
	StageEntrySkipped     = "entry_skipped"
	StageTradeOpen        = "trade_open"
	StageTradeClose       = "trade_close"
)

// Decision is one record in the engine's audit stream: what happened on a
// bar and why. Plain immutable value for external report/attribution
// consumers.
type Decision struct {
	Time      time.Time          `json:"time"`
	Session   string             `json:"session"`
	Stage     string             `json:"stage"`
	Direction string             `json:"direction,omitempty"`
	Blocked   []string           `json:"blocked,omitempty"`
	Note      string             `json:"note,omitempty"`
	Score     *confluence.Result `json:"confluence,omitempty"`
	Range     *openrange.Range   `json:"range,omitempty"`
	Trade     *trade.Trade       `json:"trade,omitempty"`
}

// RunResult aggregates everything a single backtest run produced.
type RunResult struct {
	RunID         string              `json:"run_id"`
	Symbol        string              `json:"symbol"`
	Sessions      int                 `json:"sessions"`
	BarsProcessed int                 `json:"bars_processed"`
	BarsSkipped   int                 `json:"bars_skipped"`
	Trades        []trade.Trade       `json:"trades"`
	Decisions     []Decision          `json:"decisions"`
	Governance    []governance.State  `json:"governance"`
	TotalR        float64             `json:"total_r"`
	Wins          int                 `json:"wins"`
	Losses        int                 `json:"losses"`
	Scratches     int                 `json:"scratches"`
	Elapsed       time.Duration       `json:"elapsed"`
}

func (r *RunResult) addTrade(t trade.Trade) {
	r.Trades = append(r.Trades, t)
	r.TotalR += t.RealizedR
	switch {
	case t.RealizedR > 0:
		r.Wins++
	case t.RealizedR < 0:
		r.Losses++
	default:
		r.Scratches++
	}
}

// attemptDecision converts a breakout attempt into its audit record.
func attemptDecision(t time.Time, session string, att breakout.Attempt) Decision {
	res := att.Confluence
	stage := StageBreakoutAttempt
	if len(att.Blocked) == 0 {
		stage = StageSignal
	}
	return Decision{
		Time:      t,
		Session:   session,
		Stage:     stage,
		Direction: att.Direction.String(),
		Blocked:   att.Blocked,
		Score:     &res,
	}
}
