package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orblab/orbiter/internal/breakout"
	"github.com/orblab/orbiter/internal/confluence"
	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/factors"
	"github.com/orblab/orbiter/internal/governance"
	"github.com/orblab/orbiter/internal/market"
	"github.com/orblab/orbiter/internal/observ"
	"github.com/orblab/orbiter/internal/openrange"
	"github.com/orblab/orbiter/internal/trade"
)

// Engine replays a bar stream through the breakout simulation. One Engine
// value serves one Run at a time; independent runs use independent Engines.
type Engine struct {
	cfg config.Config
	log zerolog.Logger
}

func New(cfg config.Config) (*Engine, error) {
	if cfg.Location() == nil {
		return nil, fmt.Errorf("config not finished: call config.Load or Finish first")
	}
	return &Engine{
		cfg: cfg,
		log: observ.Logger().With().Str("component", "engine").Str("symbol", cfg.Symbol).Logger(),
	}, nil
}

// runState is everything a single replay owns. Session-scoped pieces are
// reset in startSession; the rest persists across sessions within the run.
type runState struct {
	atr    *openrange.ATR
	sel    *openrange.Selector
	fac    *factors.Engine
	scorer *confluence.Scorer
	det    *breakout.Detector
	gate   *governance.Gate
	mgr    *trade.Manager

	builder *openrange.Builder
	rng     openrange.Range
	rngDone bool

	session      string
	sessionHigh  float64
	sessionLow   float64
	prevHigh     float64
	prevLow      float64
	havePrev     bool
	flattenedCut bool

	swing []market.Bar // last SwingLookback accepted bars

	prev    *market.Bar
	lastBar market.Bar
}

// Run consumes bars in strict order and returns the run's records. Bad bars
// are skipped; ErrInvariant from the trade manager aborts; ctx cancellation
// aborts between bars.
func (e *Engine) Run(ctx context.Context, bars []market.Bar) (*RunResult, error) {
	started := time.Now()
	res := &RunResult{RunID: uuid.NewString(), Symbol: e.cfg.Symbol}
	log := e.log.With().Str("run_id", res.RunID).Logger()

	st := &runState{
		atr:    openrange.NewATR(e.cfg.OpeningRange.ATRPeriod),
		sel:    openrange.NewSelector(e.cfg.OpeningRange),
		fac:    factors.NewEngine(e.cfg),
		scorer: confluence.NewScorer(e.cfg),
		det:    breakout.NewDetector(e.cfg.Breakout),
		gate:   governance.NewGate(e.cfg),
		mgr:    trade.NewManager(e.cfg.Trade, e.cfg.Symbol),
	}

	for i := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := bars[i]

		if err := market.Validate(bar, st.prev); err != nil {
			res.BarsSkipped++
			observ.BarsSkipped.WithLabelValues("anomaly").Inc()
			res.Decisions = append(res.Decisions, Decision{
				Time: bar.Time, Session: bar.Session, Stage: StageBarSkipped, Note: err.Error(),
			})
			log.Warn().Err(err).Msg("bar skipped")
			continue
		}

		if bar.Session != st.session {
			if err := e.endSession(st, res); err != nil {
				return nil, err
			}
			e.startSession(st, res, bar)
		}

		if err := e.processBar(st, res, bar); err != nil {
			return nil, err
		}

		b := bar
		st.prev = &b
		st.lastBar = bar
		res.BarsProcessed++
		observ.BarsProcessed.Inc()
	}

	// every trade reaches a terminal state by dataset end
	if st.mgr.OpenCount() > 0 {
		if err := e.flatten(st, res, st.lastBar, trade.ExitDatasetEnd); err != nil {
			return nil, err
		}
	}
	if st.session != "" {
		res.Governance = append(res.Governance, st.gate.Snapshot())
	}

	res.Elapsed = time.Since(started)
	observ.RunSeconds.Observe(res.Elapsed.Seconds())
	log.Info().
		Int("bars", res.BarsProcessed).
		Int("skipped", res.BarsSkipped).
		Int("sessions", res.Sessions).
		Int("trades", len(res.Trades)).
		Float64("total_r", res.TotalR).
		Msg("run complete")
	return res, nil
}

func (e *Engine) endSession(st *runState, res *RunResult) error {
	if st.session == "" {
		return nil
	}
	if st.mgr.OpenCount() > 0 {
		if err := e.flatten(st, res, st.lastBar, trade.ExitSessionEnd); err != nil {
			return err
		}
	}
	res.Governance = append(res.Governance, st.gate.Snapshot())
	if st.sessionHigh > st.sessionLow {
		st.prevHigh, st.prevLow, st.havePrev = st.sessionHigh, st.sessionLow, true
	}
	return nil
}

func (e *Engine) startSession(st *runState, res *RunResult, bar market.Bar) {
	st.session = bar.Session
	st.sessionHigh = math.Inf(-1)
	st.sessionLow = math.Inf(1)
	st.flattenedCut = false
	st.rng = openrange.Range{}
	st.rngDone = false

	st.gate.ResetSession(bar.Session)
	st.det.ResetSession()
	st.fac.StartSession(st.prevHigh, st.prevLow, st.havePrev)
	st.builder = openrange.NewBuilder(e.cfg.OpeningRange, st.sel, e.sessionOpen(bar.Time), st.atr.Value(), st.atr.Usable())
	res.Sessions++
}

// sessionOpen anchors the opening window at the configured open time on the
// bar's trading date.
func (e *Engine) sessionOpen(t time.Time) time.Time {
	lt := t.In(e.cfg.Location())
	midnight := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, e.cfg.Location())
	return midnight.Add(time.Duration(e.cfg.OpenMinute()) * time.Minute)
}

func (e *Engine) processBar(st *runState, res *RunResult, bar market.Bar) error {
	if bar.High > st.sessionHigh {
		st.sessionHigh = bar.High
	}
	if bar.Low < st.sessionLow {
		st.sessionLow = bar.Low
	}

	// opening range first: finalization must precede breakout checks on the
	// same bar, and the builder keeps sampling candidate widths afterwards
	rng, finalizedNow := st.builder.Update(bar)
	if finalizedNow {
		st.rng = rng
		st.rngDone = true
		observ.RangesFinalized.WithLabelValues(rng.State.String()).Inc()
		r := rng
		stage := StageRangeFinalized
		if !rng.Tradable() {
			stage = StageRangeRejected
		} else {
			st.fac.SetOpeningRange(rng.High, rng.Low)
		}
		res.Decisions = append(res.Decisions, Decision{
			Time: bar.Time, Session: st.session, Stage: stage, Note: rng.Reason, Range: &r,
		})
	}

	snap := st.fac.Update(bar)
	st.atr.Update(bar)

	// exits strictly before entries: a bar may close an old trade and still
	// be considered for a new one, never the other way around
	closed, err := st.mgr.UpdateBar(bar)
	if err != nil {
		return err
	}
	for i := range closed {
		e.recordClose(st, res, closed[i])
	}

	if st.gate.PastCutoff(bar.Time) && !st.flattenedCut {
		st.flattenedCut = true
		if st.mgr.OpenCount() > 0 {
			if err := e.flatten(st, res, bar, trade.ExitCutoff); err != nil {
				return err
			}
		}
	}

	if st.rngDone && st.rng.Tradable() && st.mgr.CanOpen() {
		if err := e.considerEntry(st, res, bar, snap); err != nil {
			return err
		}
	}

	st.swing = append(st.swing, bar)
	if len(st.swing) > e.cfg.Trade.SwingLookback {
		st.swing = st.swing[1:]
	}
	return nil
}

func (e *Engine) considerEntry(st *runState, res *RunResult, bar market.Bar, snap factors.Snapshot) error {
	sig, attempts := st.det.Check(bar, st.rng, snap, func(dir market.Direction) confluence.Result {
		r := st.scorer.Evaluate(snap, dir)
		observ.ConfluenceScore.Observe(r.Score)
		return r
	})
	for _, att := range attempts {
		res.Decisions = append(res.Decisions, attemptDecision(bar.Time, st.session, att))
	}
	if sig == nil {
		return nil
	}

	if ok, reason := st.gate.Admit(sig.Time); !ok {
		observ.GovernanceRejections.WithLabelValues(reason).Inc()
		res.Decisions = append(res.Decisions, Decision{
			Time: bar.Time, Session: st.session, Stage: StageGovernanceReject,
			Direction: sig.Direction.String(), Blocked: []string{reason},
		})
		return nil
	}
	st.gate.RecordSignal()
	observ.SignalsEmitted.WithLabelValues(sig.Direction.String()).Inc()

	swingLow, swingHigh, haveSwing := swingExtent(st.swing)
	opened, err := st.mgr.OpenFromSignal(*sig, st.session, trade.StopInputs{
		Range:     st.rng,
		SwingLow:  swingLow,
		SwingHigh: swingHigh,
		HaveSwing: haveSwing,
		ATR:       st.atr.Value(),
		ATRUsable: st.atr.Usable(),
	})
	if err != nil {
		if errors.Is(err, trade.ErrNoStop) {
			res.Decisions = append(res.Decisions, Decision{
				Time: bar.Time, Session: st.session, Stage: StageEntrySkipped,
				Direction: sig.Direction.String(), Note: err.Error(),
			})
			return nil
		}
		return err
	}
	t := opened
	res.Decisions = append(res.Decisions, Decision{
		Time: bar.Time, Session: st.session, Stage: StageTradeOpen,
		Direction: sig.Direction.String(), Trade: &t,
	})
	return nil
}

func (e *Engine) flatten(st *runState, res *RunResult, bar market.Bar, reason trade.ExitReason) error {
	closed, err := st.mgr.FlattenAll(bar, reason)
	if err != nil {
		return err
	}
	for i := range closed {
		e.recordClose(st, res, closed[i])
	}
	return nil
}

func (e *Engine) recordClose(st *runState, res *RunResult, t trade.Trade) {
	st.gate.RecordTradeClose(t.RealizedR)
	res.addTrade(t)
	tc := t
	res.Decisions = append(res.Decisions, Decision{
		Time: t.ExitTime, Session: st.session, Stage: StageTradeClose,
		Direction: t.Direction.String(), Note: string(t.ExitReason), Trade: &tc,
	})
}

func swingExtent(bars []market.Bar) (low, high float64, ok bool) {
	if len(bars) == 0 {
		return 0, 0, false
	}
	low, high = bars[0].Low, bars[0].High
	for _, b := range bars[1:] {
		if b.Low < low {
			low = b.Low
		}
		if b.High > high {
			high = b.High
		}
	}
	return low, high, true
}
