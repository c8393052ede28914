package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

// Option disambiguates multiple strategies sharing the same unit pair,
// e.g. full cost vs. cash-back both map watt to pound sterling.
// OptionDefault means "no disambiguation needed".
type Option string

const (
	OptionDefault      Option = ""
	OptionWattHourCost Option = "watt_hour_cost"
	OptionFullCost     Option = "full_cost"
	OptionCashBackTOU  Option = "cash_back_tou"
	OptionCashBackFlat Option = "cash_back_flat"
	OptionPushed       Option = "pushed"
	OptionDouble       Option = "double"
	OptionHeld         Option = "held"
	OptionAny          Option = "any"
)

// Key uniquely identifies a registered aggregation strategy.
type Key struct {
	Source unit.Unit
	Target unit.Unit
	Option Option
}

// Join names the extra entity a rule needs resolved per resource per bucket.
type Join int

const (
	JoinNone Join = iota
	JoinBilling
	JoinCashBackTOU
	JoinCashBackFlat
)

// ConvertContext carries the per-sample inputs the engine resolves before
// calling a rule's converter.
type ConvertContext struct {
	// SampleInterval is the duration one sample stands for: the resource's
	// detailed resolution when reading the detailed tier, the long-term
	// resolution otherwise. Zero for event-driven samples.
	SampleInterval time.Duration

	// Rate returns the applicable tariff unit rate (currency per kWh) at t.
	// Set only when the rule declares a tariff join; errors mark the
	// enclosing bucket as no-data rather than failing the whole query.
	Rate func(t time.Time) (decimal.Decimal, error)
}

// ConvertFunc is the per-sample pre-converter applied before time reduction.
type ConvertFunc func(cc ConvertContext, s unit.Sample) (decimal.Decimal, error)

// PreQueryFunc computes a fixed additive charge for the whole query window,
// from the standing daily/monthly charges of the joined billing tariff.
// Used by the full-cost option to pro-rate standing charges into the result.
type PreQueryFunc func(from, to time.Time, dailyCharge, monthlyCharge decimal.Decimal) decimal.Decimal

// FinalizeFunc maps a reduced bucket value into the target unit. Converters
// that would otherwise divide per sample stay exact (watt seconds instead of
// watt hours) and defer the lossy division here, so it runs once per
// reduction instead of once per sample.
type FinalizeFunc func(v decimal.Decimal) decimal.Decimal

// Rule is one registered aggregation strategy: a per-sample converter, a
// per-time-bucket reducer, a per-resource-group reducer, and optional joins.
// Rules are registered once at process start and never mutated.
type Rule struct {
	Key         Key
	Convert     ConvertFunc
	TimeReduce  Reducer
	GroupReduce Reducer
	Finalize    FinalizeFunc // optional, nil means identity
	Join        Join
	PreQuery    PreQueryFunc
}

// Finish applies the rule's finalizer, if any, to a reduced value.
func (r Rule) Finish(v decimal.Decimal) decimal.Decimal {
	if r.Finalize == nil {
		return v
	}
	return r.Finalize(v)
}
