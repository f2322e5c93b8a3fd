package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orblab/orbiter/internal/config"
)

func gateConfig(t *testing.T, mutate func(*config.Config)) config.Config {
	t.Helper()
	cfg := config.Config{Symbol: "ES", Timezone: "UTC"}
	cfg.Factors.VWAP.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Finish())
	return cfg
}

func at(hour, min int) time.Time {
	return time.Date(2024, 3, 4, hour, min, 0, 0, time.UTC)
}

func TestGate_SignalCap(t *testing.T) {
	gate := NewGate(gateConfig(t, func(c *config.Config) {
		c.Governance.MaxSignalsPerDay = 2
	}))
	gate.ResetSession("2024-03-04")

	for i := 0; i < 2; i++ {
		ok, _ := gate.Admit(at(10, 0))
		require.True(t, ok, "signal %d under the cap", i+1)
		gate.RecordSignal()
	}

	ok, reason := gate.Admit(at(10, 5))
	assert.False(t, ok)
	assert.Equal(t, ReasonSignalCap, reason)

	gate.ResetSession("2024-03-05")
	ok, _ = gate.Admit(at(10, 0))
	assert.True(t, ok, "the cap is daily")
}

func TestGate_ZeroCapsDisabled(t *testing.T) {
	gate := NewGate(gateConfig(t, func(c *config.Config) {
		c.Governance.MaxSignalsPerDay = 0
		c.Governance.MaxConsecutiveLosses = 0
		c.Governance.DailyLossCapR = 0
		c.Governance.EntryCutoff = "none"
	}))
	gate.ResetSession("2024-03-04")

	for i := 0; i < 50; i++ {
		gate.RecordSignal()
		gate.RecordTradeClose(-1)
	}
	ok, _ := gate.Admit(at(15, 59))
	assert.True(t, ok, "zero caps and an empty cutoff disable every check")
}

func TestGate_LossStreakLockout(t *testing.T) {
	gate := NewGate(gateConfig(t, func(c *config.Config) {
		c.Governance.MaxConsecutiveLosses = 3
	}))
	gate.ResetSession("2024-03-04")

	gate.RecordTradeClose(-1)
	gate.RecordTradeClose(-0.5)
	gate.RecordTradeClose(0) // scratch leaves the streak alone
	ok, _ := gate.Admit(at(10, 0))
	require.True(t, ok)

	gate.RecordTradeClose(-0.8)
	ok, reason := gate.Admit(at(10, 5))
	assert.False(t, ok)
	assert.Equal(t, ReasonLossStreak, reason)
	assert.True(t, gate.Snapshot().LockedOut)

	// sticky for the rest of the session
	ok, _ = gate.Admit(at(14, 0))
	assert.False(t, ok)
}

func TestGate_WinResetsStreak(t *testing.T) {
	gate := NewGate(gateConfig(t, func(c *config.Config) {
		c.Governance.MaxConsecutiveLosses = 2
		c.Governance.DailyLossCapR = 0
	}))
	gate.ResetSession("2024-03-04")

	gate.RecordTradeClose(-1)
	gate.RecordTradeClose(1.5)
	gate.RecordTradeClose(-1)
	ok, _ := gate.Admit(at(10, 0))
	assert.True(t, ok, "the win in between broke the streak")
	assert.Equal(t, 1, gate.Snapshot().ConsecutiveLosses)
}

func TestGate_DailyLossCap(t *testing.T) {
	gate := NewGate(gateConfig(t, func(c *config.Config) {
		c.Governance.MaxConsecutiveLosses = 0
		c.Governance.DailyLossCapR = 2.0
	}))
	gate.ResetSession("2024-03-04")

	gate.RecordTradeClose(-1)
	gate.RecordTradeClose(0.5)
	ok, _ := gate.Admit(at(10, 0))
	require.True(t, ok)

	gate.RecordTradeClose(-1.5) // daily R now -2.0, at the cap
	ok, reason := gate.Admit(at(10, 5))
	assert.False(t, ok)
	assert.Equal(t, ReasonDailyLossCap, reason)

	gate.ResetSession("2024-03-05")
	ok, _ = gate.Admit(at(10, 0))
	assert.True(t, ok, "daily R resets with the session")
}

func TestGate_CutoffIsStickyForTheDay(t *testing.T) {
	gate := NewGate(gateConfig(t, func(c *config.Config) {
		c.Governance.EntryCutoff = "15:00"
	}))
	gate.ResetSession("2024-03-04")

	ok, _ := gate.Admit(at(14, 59))
	require.True(t, ok)
	assert.False(t, gate.PastCutoff(at(14, 59)))

	ok, reason := gate.Admit(at(15, 0))
	assert.False(t, ok, "the cutoff minute itself is blocked")
	assert.Equal(t, ReasonCutoff, reason)
	assert.True(t, gate.Snapshot().CutoffReached)
	assert.True(t, gate.PastCutoff(at(15, 30)))

	gate.ResetSession("2024-03-05")
	assert.False(t, gate.Snapshot().CutoffReached)
}

func TestGate_CarryLossStreakAcrossSessions(t *testing.T) {
	gate := NewGate(gateConfig(t, func(c *config.Config) {
		c.Governance.MaxConsecutiveLosses = 3
		c.Governance.CarryLossStreak = true
		c.Governance.DailyLossCapR = 0
	}))
	gate.ResetSession("2024-03-04")
	gate.RecordTradeClose(-1)
	gate.RecordTradeClose(-1)

	gate.ResetSession("2024-03-05")
	assert.Equal(t, 2, gate.Snapshot().ConsecutiveLosses, "streak carries when configured")

	gate.RecordTradeClose(-1)
	ok, reason := gate.Admit(at(10, 0))
	assert.False(t, ok)
	assert.Equal(t, ReasonLossStreak, reason)

	// a carried streak at the threshold re-locks the next session too
	gate.ResetSession("2024-03-06")
	ok, reason = gate.Admit(at(10, 0))
	assert.False(t, ok)
	assert.Equal(t, ReasonLossStreak, reason)
}

func TestGate_NoCarryByDefault(t *testing.T) {
	gate := NewGate(gateConfig(t, nil))
	gate.ResetSession("2024-03-04")
	gate.RecordTradeClose(-1)
	gate.RecordTradeClose(-1)

	gate.ResetSession("2024-03-05")
	assert.Zero(t, gate.Snapshot().ConsecutiveLosses)
}
