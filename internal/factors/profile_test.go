package factors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orblab/orbiter/internal/market"
)

func TestProfileProxy_QuartileLevels(t *testing.T) {
	pp := NewProfileProxy()
	pp.SetPriorSession(110, 100)

	val, mid, vah, ok := pp.Levels()
	require.True(t, ok)
	assert.InDelta(t, 102.5, val, 1e-12)
	assert.InDelta(t, 105.0, mid, 1e-12)
	assert.InDelta(t, 107.5, vah, 1e-12)
}

func TestProfileProxy_LongBias(t *testing.T) {
	pp := NewProfileProxy()
	pp.SetPriorSession(110, 100)
	pp.SetOpeningRange(104, 103)

	// close 106 > mid 105 and OR low 103 > val 102.5
	r := pp.Update(market.Bar{Close: 106, High: 106.5, Low: 105.5})
	require.True(t, r.Usable)
	assert.Equal(t, market.BiasLong, r.Bias)
	assert.True(t, r.Confirms(market.Long))
	assert.False(t, r.Confirms(market.Short))
}

func TestProfileProxy_ShortBias(t *testing.T) {
	pp := NewProfileProxy()
	pp.SetPriorSession(110, 100)
	pp.SetOpeningRange(106, 105) // OR high 106 < vah 107.5

	r := pp.Update(market.Bar{Close: 104, High: 104.5, Low: 103.5})
	require.True(t, r.Usable)
	assert.Equal(t, market.BiasShort, r.Bias)
}

func TestProfileProxy_UnusableWithoutInputs(t *testing.T) {
	pp := NewProfileProxy()
	r := pp.Update(market.Bar{Close: 106})
	assert.False(t, r.Usable, "no prior session")

	pp.SetPriorSession(110, 100)
	r = pp.Update(market.Bar{Close: 106})
	assert.False(t, r.Usable, "no finalized opening range yet")

	pp.SetOpeningRange(104, 103)
	r = pp.Update(market.Bar{Close: 106})
	assert.True(t, r.Usable)
}

func TestProfileProxy_RangeClearsAtNewSession(t *testing.T) {
	pp := NewProfileProxy()
	pp.SetPriorSession(110, 100)
	pp.SetOpeningRange(104, 103)
	require.True(t, pp.Update(market.Bar{Close: 106}).Usable)

	pp.SetPriorSession(112, 101)
	r := pp.Update(market.Bar{Close: 106})
	assert.False(t, r.Usable, "last session's opening range must not carry over")
}
