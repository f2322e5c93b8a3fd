package factors

import "github.com/orblab/orbiter/internal/market"

// Factor names as they appear in config weight maps and decision records.
const (
	NameRelVol      = "rel_vol"
	NamePriceAction = "price_action"
	NameProfile     = "profile"
	NameVWAP        = "vwap"
	NameADX         = "adx"
)

// Reading is one factor's output for one bar. Immutable; recomputed every
// bar, never revised. Until a factor's warm-up is satisfied Usable is false
// and the reading never confirms anything.
type Reading struct {
	Factor string  `json:"factor"`
	Value  float64 `json:"value"`
	Usable bool    `json:"usable"`

	// Bias is set by directional factors (price action, profile, VWAP,
	// ADX DI tilt); Flag by direction-neutral ones (volume spike).
	Bias market.Bias `json:"bias"`
	Flag bool        `json:"flag"`
}

// Confirms reports whether this reading counts toward confluence for a
// breakout in dir. Unusable readings never confirm.
func (r Reading) Confirms(dir market.Direction) bool {
	if !r.Usable {
		return false
	}
	if r.Bias != market.BiasNone || isDirectional(r.Factor) {
		return r.Bias.Agrees(dir)
	}
	return r.Flag
}

func isDirectional(name string) bool {
	switch name {
	case NamePriceAction, NameProfile, NameVWAP, NameADX:
		return true
	}
	return false
}

// TrendReading extends the plain reading with the ADX vector and the
// strong/weak regime flags the scorer keys its required threshold on.
type TrendReading struct {
	Reading
	PlusDI  float64 `json:"plus_di"`
	MinusDI float64 `json:"minus_di"`
	Strong  bool    `json:"strong"`
	Weak    bool    `json:"weak"`
}

// Snapshot bundles all five readings for one bar. Passed forward by value;
// downstream components never reach back into factor state.
type Snapshot struct {
	RelVol      Reading      `json:"rel_vol"`
	PriceAction Reading      `json:"price_action"`
	Profile     Reading      `json:"profile"`
	VWAP        Reading      `json:"vwap"`
	Trend       TrendReading `json:"trend"`
}

// ByName returns the generic reading for a configured factor name.
func (s Snapshot) ByName(name string) (Reading, bool) {
	switch name {
	case NameRelVol:
		return s.RelVol, true
	case NamePriceAction:
		return s.PriceAction, true
	case NameProfile:
		return s.Profile, true
	case NameVWAP:
		return s.VWAP, true
	case NameADX:
		return s.Trend.Reading, true
	}
	return Reading{}, false
}
