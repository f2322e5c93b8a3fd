package factors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orblab/orbiter/internal/config"
	"github.com/orblab/orbiter/internal/market"
)

func trendBar(i int, base float64) market.Bar {
	p := base + float64(i)
	return market.Bar{
		Time: time.Date(2024, 3, 4, 9, 30+i, 0, 0, time.UTC),
		Open: p, High: p + 1, Low: p - 0.5, Close: p + 0.8, Volume: 100,
	}
}

func adxConfig(period int) config.ADX {
	return config.ADX{Enabled: true, Period: period, StrongLevel: 25, WeakLevel: 18, Weight: 1}
}

func TestTrendStrength_WarmupAndBounds(t *testing.T) {
	ts := NewTrendStrength(adxConfig(3), config.Thresholds{})

	// first bar has no prior; then period DM/TR seeds; then period DX seeds
	var usableAt int
	for i := 0; i < 12; i++ {
		r := ts.Update(trendBar(i, 100))
		assert.GreaterOrEqual(t, r.Value, 0.0)
		assert.LessOrEqual(t, r.Value, 100.0)
		if r.Usable && usableAt == 0 {
			usableAt = i
		}
	}
	require.NotZero(t, usableAt, "ADX must warm up eventually")
	assert.Equal(t, 5, usableAt, "period DM/TR seeds plus period DX seeds after the first bar")
}

func TestTrendStrength_UptrendLeansLongAndStrong(t *testing.T) {
	ts := NewTrendStrength(adxConfig(3), config.Thresholds{})
	var r TrendReading
	for i := 0; i < 20; i++ {
		r = ts.Update(trendBar(i, 100))
	}
	require.True(t, r.Usable)
	assert.Equal(t, market.BiasLong, r.Bias)
	assert.Greater(t, r.PlusDI, r.MinusDI)
	assert.True(t, r.Strong, "a persistent one-way trend drives ADX above 25")
	assert.False(t, r.Weak)
	assert.True(t, r.Confirms(market.Long))
	assert.False(t, r.Confirms(market.Short))
}

func TestTrendStrength_FlatInputDefinesDXZero(t *testing.T) {
	ts := NewTrendStrength(adxConfig(3), config.Thresholds{})
	flat := market.Bar{Open: 100, High: 100, Low: 100, Close: 100, Volume: 100}

	var r TrendReading
	for i := 0; i < 15; i++ {
		flat.Time = time.Date(2024, 3, 4, 9, 30+i, 0, 0, time.UTC)
		r = ts.Update(flat)
		assert.False(t, r.Value != r.Value, "ADX must never be NaN")
	}
	require.True(t, r.Usable)
	assert.Zero(t, r.Value, "+DI + -DI = 0 defines DX = 0, smoothing to ADX = 0")
	assert.True(t, r.Weak)
	assert.Equal(t, market.BiasNone, r.Bias)
}
