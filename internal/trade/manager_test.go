package trade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orblab/orbiter/internal/breakout"
	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/market"
	"github.com/orblab/orbiter/internal/openrange"
)

func tradeConfig(mutate func(*config.Trade)) config.Trade {
	cfg := config.Trade{
		StopModes:        []string{"or", "swing", "atr"},
		ATRStopMult:      1.5,
		SwingLookback:    10,
		T1R:              1.0,
		T2R:              2.0,
		T1Frac:           0.5,
		T2Frac:           0.25,
		RunnerTrailR:     1.0,
		BreakevenOffsetR: 0,
		MaxConcurrent:    1,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func longSignal(entry float64) breakout.Signal {
	return breakout.Signal{
		Direction: market.Long,
		Time:      time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		Entry:     entry,
	}
}

func stopInputs() StopInputs {
	return StopInputs{
		Range:     openrange.Range{High: 101, Low: 99, State: openrange.Finalized},
		SwingLow:  99.5,
		SwingHigh: 101.5,
		HaveSwing: true,
		ATR:       2,
		ATRUsable: true,
	}
}

func tradeBar(min int, high, low, close float64) market.Bar {
	return market.Bar{
		Time: time.Date(2024, 3, 4, 10, min, 0, 0, time.UTC),
		Open: close, High: high, Low: low, Close: close, Volume: 100,
	}
}

func TestManager_ChoosesTightestProtectiveStop(t *testing.T) {
	// candidates for a long at 102: OR low 99, swing low 99.5, ATR 102-3=99.
	// tightest protective is the highest below entry, the swing.
	m := NewManager(tradeConfig(nil), "ES")
	tr, err := m.OpenFromSignal(longSignal(102), "2024-03-04", stopInputs())
	require.NoError(t, err)

	assert.InDelta(t, 99.5, tr.Stop, 1e-12)
	assert.InDelta(t, 2.5, tr.Risk, 1e-12)
	assert.InDelta(t, 104.5, tr.T1, 1e-12)
	assert.InDelta(t, 107.0, tr.T2, 1e-12)
	assert.Equal(t, Open, tr.State)
	assert.InDelta(t, 1.0, tr.Remaining, 1e-12)
}

func TestManager_ShortStopMirrors(t *testing.T) {
	m := NewManager(tradeConfig(nil), "ES")
	sig := longSignal(98)
	sig.Direction = market.Short

	tr, err := m.OpenFromSignal(sig, "2024-03-04", stopInputs())
	require.NoError(t, err)
	// candidates above entry 98: OR high 101, swing high 101.5, ATR 98+3=101
	assert.InDelta(t, 101.0, tr.Stop, 1e-12, "tightest is the lowest above entry")
	assert.InDelta(t, 95.0, tr.T1, 1e-12)
}

func TestManager_NoProtectiveCandidateSkipsSignal(t *testing.T) {
	m := NewManager(tradeConfig(func(c *config.Trade) {
		c.StopModes = []string{"swing"}
	}), "ES")

	in := stopInputs()
	in.HaveSwing = false
	_, err := m.OpenFromSignal(longSignal(102), "2024-03-04", in)
	require.ErrorIs(t, err, ErrNoStop)
	assert.Zero(t, m.OpenCount(), "a skipped signal must not leak a trade")

	// a swing low above the long entry is not protective either
	in = stopInputs()
	in.SwingLow = 103
	_, err = m.OpenFromSignal(longSignal(102), "2024-03-04", in)
	assert.ErrorIs(t, err, ErrNoStop)
}

func TestManager_ConcurrencyCap(t *testing.T) {
	m := NewManager(tradeConfig(nil), "ES")
	require.True(t, m.CanOpen())
	_, err := m.OpenFromSignal(longSignal(102), "2024-03-04", stopInputs())
	require.NoError(t, err)
	assert.False(t, m.CanOpen())
}

func TestManager_StopOut(t *testing.T) {
	m := NewManager(tradeConfig(nil), "ES")
	_, err := m.OpenFromSignal(longSignal(102), "2024-03-04", stopInputs())
	require.NoError(t, err)

	done, err := m.UpdateBar(tradeBar(1, 102.5, 99.0, 99.2)) // trades through 99.5
	require.NoError(t, err)
	require.Len(t, done, 1)

	tr := done[0]
	assert.Equal(t, Closed, tr.State)
	assert.Equal(t, ExitStop, tr.ExitReason)
	assert.InDelta(t, -1.0, tr.RealizedR, 1e-12, "a full stop-out realizes -1R")
	assert.Zero(t, m.OpenCount())
}

func TestManager_SameBarStopBeforeTarget(t *testing.T) {
	m := NewManager(tradeConfig(nil), "ES")
	_, err := m.OpenFromSignal(longSignal(102), "2024-03-04", stopInputs())
	require.NoError(t, err)

	// one wide bar spans both the stop (99.5) and T1 (104.5)
	done, err := m.UpdateBar(tradeBar(1, 105.0, 99.0, 104.0))
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, ExitStop, done[0].ExitReason, "the loss is assumed first")
	assert.InDelta(t, -1.0, done[0].RealizedR, 1e-12)
}

func TestManager_BreakevenAfterT1(t *testing.T) {
	m := NewManager(tradeConfig(nil), "ES")
	_, err := m.OpenFromSignal(longSignal(102), "2024-03-04", stopInputs())
	require.NoError(t, err)

	// T1 at 104.5 fills half, stop moves to entry
	done, err := m.UpdateBar(tradeBar(1, 104.6, 102.0, 104.2))
	require.NoError(t, err)
	assert.Empty(t, done)
	snap := m.OpenSnapshots()[0]
	assert.Equal(t, PartiallyClosed, snap.State)
	assert.InDelta(t, 0.5, snap.Remaining, 1e-12)
	assert.InDelta(t, 102.0, snap.Stop, 1e-12, "stop ratchets to breakeven after the first target")
	assert.InDelta(t, 0.5, snap.RealizedR, 1e-12)

	// retrace to entry stops the remainder at 0R: the trade nets +0.5R
	done, err = m.UpdateBar(tradeBar(2, 103.0, 101.8, 101.9))
	require.NoError(t, err)
	require.Len(t, done, 1)
	tr := done[0]
	assert.Equal(t, ExitStop, tr.ExitReason)
	assert.InDelta(t, 0.5, tr.RealizedR, 1e-12, "the T1 partial is kept, the runner exits flat")
}

func TestManager_BreakevenOffset(t *testing.T) {
	m := NewManager(tradeConfig(func(c *config.Trade) {
		c.BreakevenOffsetR = 0.1
	}), "ES")
	_, err := m.OpenFromSignal(longSignal(102), "2024-03-04", stopInputs())
	require.NoError(t, err)

	_, err = m.UpdateBar(tradeBar(1, 104.6, 102.5, 104.2))
	require.NoError(t, err)
	snap := m.OpenSnapshots()[0]
	assert.InDelta(t, 102.25, snap.Stop, 1e-12, "entry plus 0.1R of 2.5 risk")
}

func TestManager_TargetLadderAndRunnerTrail(t *testing.T) {
	m := NewManager(tradeConfig(nil), "ES")
	_, err := m.OpenFromSignal(longSignal(102), "2024-03-04", stopInputs())
	require.NoError(t, err)
	// risk 2.5: T1 104.5, T2 107.0

	_, err = m.UpdateBar(tradeBar(1, 104.6, 102.0, 104.4)) // T1
	require.NoError(t, err)
	done, err := m.UpdateBar(tradeBar(2, 107.2, 104.0, 107.0)) // T2
	require.NoError(t, err)
	assert.Empty(t, done, "a runner fraction stays on")

	snap := m.OpenSnapshots()[0]
	assert.InDelta(t, 0.25, snap.Remaining, 1e-12)
	assert.InDelta(t, 0.5*1.0+0.25*2.0, snap.RealizedR, 1e-12)
	// anchor is the bar high 107.2, trail one risk unit behind
	assert.InDelta(t, 107.2-2.5, snap.Stop, 1e-12)

	// a push higher drags the trail up
	_, err = m.UpdateBar(tradeBar(3, 109.0, 106.0, 108.5))
	require.NoError(t, err)
	snap = m.OpenSnapshots()[0]
	assert.InDelta(t, 109.0-2.5, snap.Stop, 1e-12)

	// a pullback never loosens it
	_, err = m.UpdateBar(tradeBar(4, 108.0, 107.0, 107.5))
	require.NoError(t, err)
	snap = m.OpenSnapshots()[0]
	assert.InDelta(t, 106.5, snap.Stop, 1e-12)

	// trail hit closes the runner with the trail reason
	done, err = m.UpdateBar(tradeBar(5, 107.0, 106.0, 106.2))
	require.NoError(t, err)
	require.Len(t, done, 1)
	tr := done[0]
	assert.Equal(t, ExitTrail, tr.ExitReason)
	assert.InDelta(t, 0.5+0.5+0.25*tr.R(106.5), tr.RealizedR, 1e-12)
	assert.Greater(t, tr.RealizedR, 1.0)
}

func TestManager_FullCloseAtTargetsWhenNoRunner(t *testing.T) {
	m := NewManager(tradeConfig(func(c *config.Trade) {
		c.T1Frac = 0.5
		c.T2Frac = 0.5
	}), "ES")
	_, err := m.OpenFromSignal(longSignal(102), "2024-03-04", stopInputs())
	require.NoError(t, err)

	_, err = m.UpdateBar(tradeBar(1, 104.6, 102.0, 104.4))
	require.NoError(t, err)
	done, err := m.UpdateBar(tradeBar(2, 107.2, 104.0, 107.0))
	require.NoError(t, err)
	require.Len(t, done, 1)
	tr := done[0]
	assert.Equal(t, ExitTargets, tr.ExitReason)
	assert.InDelta(t, 0.5*1.0+0.5*2.0, tr.RealizedR, 1e-12)
	assert.Zero(t, tr.Remaining)
}

func TestManager_FlattenAll(t *testing.T) {
	m := NewManager(tradeConfig(nil), "ES")
	_, err := m.OpenFromSignal(longSignal(102), "2024-03-04", stopInputs())
	require.NoError(t, err)

	done, err := m.FlattenAll(tradeBar(30, 103.5, 103.0, 103.25), ExitSessionEnd)
	require.NoError(t, err)
	require.Len(t, done, 1)
	tr := done[0]
	assert.Equal(t, Closed, tr.State)
	assert.Equal(t, ExitSessionEnd, tr.ExitReason)
	assert.InDelta(t, (103.25-102.0)/2.5, tr.RealizedR, 1e-12, "flatten fills at the close")
	assert.Zero(t, m.OpenCount())
	assert.Len(t, m.Closed(), 1)
}

func TestTrade_LifecycleMonotonic(t *testing.T) {
	tr := &Trade{ID: "x", Direction: market.Long, State: PartiallyClosed}
	err := tr.transition(Open)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariant)

	require.NoError(t, tr.transition(Closed))
	err = tr.transition(PartiallyClosed)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestTrade_StopNeverLoosens(t *testing.T) {
	tr := &Trade{ID: "x", Direction: market.Long, Entry: 102, Stop: 100, Risk: 2}

	tr.ratchetStop(99)
	assert.InDelta(t, 100.0, tr.Stop, 1e-12, "ratchet ignores unfavorable candidates")
	tr.ratchetStop(101)
	assert.InDelta(t, 101.0, tr.Stop, 1e-12)

	err := tr.forceStop(100.5)
	require.ErrorIs(t, err, ErrInvariant)
	assert.InDelta(t, 101.0, tr.Stop, 1e-12, "a rejected force leaves the stop untouched")
}
