package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the immutable run configuration. It is constructed once via
// Load (or built in code and passed through Finish) and fully validated
// before the first bar is processed; the engine never re-checks it.
type Config struct {
	Symbol   string `yaml:"symbol" validate:"required"`
	Timezone string `yaml:"timezone" default:"America/New_York"`

	Session      Session      `yaml:"session"`
	OpeningRange OpeningRange `yaml:"opening_range"`
	Factors      Factors      `yaml:"factors"`
	Confluence   Confluence   `yaml:"confluence"`
	Breakout     Breakout     `yaml:"breakout"`
	Governance   Governance   `yaml:"governance"`
	Trade        Trade        `yaml:"trade"`
	Thresholds   Thresholds   `yaml:"thresholds"`
	Log          Log          `yaml:"log"`

	loc *time.Location
}

type Session struct {
	Open  string `yaml:"open" default:"09:30"`
	Close string `yaml:"close" default:"16:00"`

	openMin, closeMin int
}

type OpeningRange struct {
	// Candidate window lengths in minutes, shortest first.
	Durations     []int   `yaml:"durations" validate:"min=1,dive,gt=0"`
	TargetATRFrac float64 `yaml:"target_atr_frac" default:"0.35" validate:"gt=0"`
	MinWidthATR   float64 `yaml:"min_width_atr" default:"0.2" validate:"gte=0"`
	MaxWidthATR   float64 `yaml:"max_width_atr" default:"1.5" validate:"gt=0"`
	ATRPeriod     int     `yaml:"atr_period" default:"14" validate:"gt=1"`
	Buffer        Buffer  `yaml:"buffer"`
}

type Buffer struct {
	Mode string `yaml:"mode" default:"symmetric" validate:"oneof=symmetric asymmetric"`
	// Fractions of the finalized range width added beyond the raw bounds.
	Frac      float64 `yaml:"frac" default:"0.1" validate:"gte=0"`
	LongFrac  float64 `yaml:"long_frac" validate:"gte=0"`
	ShortFrac float64 `yaml:"short_frac" validate:"gte=0"`
}

type Factors struct {
	RelVol      RelVol      `yaml:"rel_vol"`
	PriceAction PriceAction `yaml:"price_action"`
	Profile     Profile     `yaml:"profile"`
	VWAP        VWAP        `yaml:"vwap"`
	ADX         ADX         `yaml:"adx"`
}

type RelVol struct {
	Enabled   bool    `yaml:"enabled"`
	Lookback  int     `yaml:"lookback" default:"20" validate:"gt=0"`
	SpikeMult float64 `yaml:"spike_mult" default:"2.0" validate:"gt=0"`
	Weight    float64 `yaml:"weight" default:"1.0"`
}

type PriceAction struct {
	Enabled  bool    `yaml:"enabled"`
	PivotLen int     `yaml:"pivot_len" default:"6" validate:"gt=1"`
	Weight   float64 `yaml:"weight" default:"1.0"`
}

type Profile struct {
	Enabled bool    `yaml:"enabled"`
	Weight  float64 `yaml:"weight" default:"1.0"`
}

type VWAP struct {
	Enabled bool    `yaml:"enabled"`
	Weight  float64 `yaml:"weight" default:"1.0"`
}

type ADX struct {
	Enabled     bool    `yaml:"enabled"`
	Period      int     `yaml:"period" default:"14" validate:"gt=1"`
	StrongLevel float64 `yaml:"strong_level" default:"25" validate:"gte=0,lte=100"`
	WeakLevel   float64 `yaml:"weak_level" default:"18" validate:"gte=0,lte=100"`
	Weight      float64 `yaml:"weight" default:"1.0"`
}

type Confluence struct {
	BaseRequired      float64 `yaml:"base_required" default:"0.6" validate:"gte=0,lte=1"`
	WeakTrendRequired float64 `yaml:"weak_trend_required" default:"0.75" validate:"gte=0,lte=1"`
}

type Breakout struct {
	// close: signal on a close beyond the buffered bound.
	// wick: signal on an intrabar high/low touch of the bound.
	CrossMode        string `yaml:"cross_mode" default:"close" validate:"oneof=close wick"`
	RequireStructure bool   `yaml:"require_structure"`
}

type Governance struct {
	MaxSignalsPerDay     int     `yaml:"max_signals_per_day" default:"3" validate:"gte=0"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" default:"3" validate:"gte=0"`
	DailyLossCapR        float64 `yaml:"daily_loss_cap_r" default:"2.0" validate:"gte=0"`
	// EntryCutoff blocks new signals and force-flattens open trades past
	// this time of day ("HH:MM" in the run timezone). "none" disables it;
	// leaving it unset takes the default.
	EntryCutoff     string `yaml:"entry_cutoff" default:"15:00"`
	CarryLossStreak bool   `yaml:"carry_loss_streak"`

	cutoffMin int
}

type Trade struct {
	StopModes        []string `yaml:"stop_modes" validate:"min=1,dive,oneof=or swing atr"`
	ATRStopMult      float64  `yaml:"atr_stop_mult" default:"1.5" validate:"gt=0"`
	SwingLookback    int      `yaml:"swing_lookback" default:"10" validate:"gt=0"`
	T1R              float64  `yaml:"t1_r" default:"1.0" validate:"gt=0"`
	T2R              float64  `yaml:"t2_r" default:"2.0" validate:"gt=0"`
	T1Frac           float64  `yaml:"t1_frac" default:"0.5" validate:"gt=0,lte=1"`
	T2Frac           float64  `yaml:"t2_frac" default:"0.25" validate:"gte=0,lte=1"`
	RunnerTrailR     float64  `yaml:"runner_trail_r" default:"1.0" validate:"gt=0"`
	BreakevenOffsetR float64  `yaml:"breakeven_offset_r" default:"0" validate:"gte=0"`
	MaxConcurrent    int      `yaml:"max_concurrent" default:"1" validate:"gte=1"`
}

// Thresholds fixes the comparison convention wherever a reading meets a
// configured cutoff (spike mult, score pass, ADX strong/weak). The default
// is inclusive (>= / <=); Strict selects > / <.
type Thresholds struct {
	Strict bool `yaml:"strict"`
}

// AtLeast reports x meeting a lower cutoff under the configured convention.
func (t Thresholds) AtLeast(x, cutoff float64) bool {
	if t.Strict {
		return x > cutoff
	}
	return x >= cutoff
}

// AtMost reports x meeting an upper cutoff under the configured convention.
func (t Thresholds) AtMost(x, cutoff float64) bool {
	if t.Strict {
		return x < cutoff
	}
	return x <= cutoff
}

type Log struct {
	Level string `yaml:"level" default:"info"`
}

var validate = validator.New()

// Load reads, defaults, and validates a run configuration. Any problem is
// reported here; a Config that Load returns without error starts the run.
func Load(path string) (Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Finish(); err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Finish applies defaults and validates a Config built in code (sweep
// drivers construct configs directly). Must be called before the config
// reaches the engine.
func (c *Config) Finish() error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	if len(c.OpeningRange.Durations) == 0 {
		c.OpeningRange.Durations = []int{5, 15, 30}
	}
	if len(c.Trade.StopModes) == 0 {
		c.Trade.StopModes = []string{"or", "swing", "atr"}
	}
	if c.Breakout.RequireStructure && !c.Factors.PriceAction.Enabled {
		return fmt.Errorf("breakout.require_structure needs factors.price_action enabled")
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.finishDerived()
}

func (c *Config) finishDerived() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	c.loc = loc

	if c.Session.openMin, err = parseClock(c.Session.Open); err != nil {
		return fmt.Errorf("session.open: %w", err)
	}
	if c.Session.closeMin, err = parseClock(c.Session.Close); err != nil {
		return fmt.Errorf("session.close: %w", err)
	}
	if c.Session.openMin >= c.Session.closeMin {
		return fmt.Errorf("session.open %s not before session.close %s", c.Session.Open, c.Session.Close)
	}

	c.Governance.cutoffMin = -1
	if c.Governance.EntryCutoff != "" && c.Governance.EntryCutoff != "none" {
		if c.Governance.cutoffMin, err = parseClock(c.Governance.EntryCutoff); err != nil {
			return fmt.Errorf("governance.entry_cutoff: %w", err)
		}
		if c.Governance.cutoffMin <= c.Session.openMin || c.Governance.cutoffMin > c.Session.closeMin {
			return fmt.Errorf("governance.entry_cutoff %s outside session", c.Governance.EntryCutoff)
		}
	}

	prev := 0
	for _, d := range c.OpeningRange.Durations {
		if d <= prev {
			return fmt.Errorf("opening_range.durations must be strictly increasing, got %v", c.OpeningRange.Durations)
		}
		prev = d
	}
	longest := c.OpeningRange.Durations[len(c.OpeningRange.Durations)-1]
	if c.Session.openMin+longest > c.Session.closeMin {
		return fmt.Errorf("longest opening-range duration %dm does not fit the session", longest)
	}
	if c.OpeningRange.MinWidthATR >= c.OpeningRange.MaxWidthATR {
		return fmt.Errorf("opening_range.min_width_atr %.2f must be below max_width_atr %.2f",
			c.OpeningRange.MinWidthATR, c.OpeningRange.MaxWidthATR)
	}

	if c.Confluence.WeakTrendRequired < c.Confluence.BaseRequired {
		return fmt.Errorf("confluence.weak_trend_required %.2f below base_required %.2f",
			c.Confluence.WeakTrendRequired, c.Confluence.BaseRequired)
	}

	if c.Trade.T2R <= c.Trade.T1R {
		return fmt.Errorf("trade.t2_r %.2f must exceed t1_r %.2f", c.Trade.T2R, c.Trade.T1R)
	}
	if c.Trade.T1Frac+c.Trade.T2Frac > 1 {
		return fmt.Errorf("trade.t1_frac + t2_frac = %.2f exceeds 1.0", c.Trade.T1Frac+c.Trade.T2Frac)
	}

	enabled := c.EnabledFactors()
	if len(enabled) == 0 {
		return fmt.Errorf("no factors enabled")
	}
	for name, w := range enabled {
		if w <= 0 {
			return fmt.Errorf("factor %s enabled with non-positive weight %.2f", name, w)
		}
	}
	return nil
}

// EnabledFactors returns the configured factor -> weight map. Only enabled
// factors appear; this set fixes the scorer's denominator.
func (c Config) EnabledFactors() map[string]float64 {
	m := map[string]float64{}
	if c.Factors.RelVol.Enabled {
		m["rel_vol"] = c.Factors.RelVol.Weight
	}
	if c.Factors.PriceAction.Enabled {
		m["price_action"] = c.Factors.PriceAction.Weight
	}
	if c.Factors.Profile.Enabled {
		m["profile"] = c.Factors.Profile.Weight
	}
	if c.Factors.VWAP.Enabled {
		m["vwap"] = c.Factors.VWAP.Weight
	}
	if c.Factors.ADX.Enabled {
		m["adx"] = c.Factors.ADX.Weight
	}
	return m
}

// Location is the run timezone, resolved at validation time.
func (c Config) Location() *time.Location { return c.loc }

// OpenMinute and CloseMinute are the session bounds as minutes past
// midnight in the run timezone.
func (c Config) OpenMinute() int  { return c.Session.openMin }
func (c Config) CloseMinute() int { return c.Session.closeMin }

// CutoffMinute is the governance entry cutoff, or -1 when disabled.
func (c Config) CutoffMinute() int { return c.Governance.cutoffMin }

// MinuteOfDay maps a bar timestamp to minutes past midnight in the run
// timezone.
func (c Config) MinuteOfDay(t time.Time) int {
	lt := t.In(c.loc)
	return lt.Hour()*60 + lt.Minute()
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}
