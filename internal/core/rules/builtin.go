package rules

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

var (
	thousand       = decimal.NewFromInt(1000)
	secondsPerHour = decimal.NewFromInt(3600)
	hoursPerDay    = decimal.NewFromInt(24)
	// Standing monthly charges are pro-rated on a fixed 30-day billing month.
	daysPerBillingMonth = decimal.NewFromInt(30)

	wattSecondsPerWattHour     = secondsPerHour
	wattSecondsPerKilowattHour = decimal.NewFromInt(3_600_000)
)

// identity passes the sample value through unchanged.
func identity(_ ConvertContext, s unit.Sample) (decimal.Decimal, error) {
	return s.Value, nil
}

// toKilo divides an instantaneous watt reading by 1000.
func toKilo(_ ConvertContext, s unit.Sample) (decimal.Decimal, error) {
	return s.Value.Div(thousand), nil
}

// intervalHours converts a sample interval to fractional hours.
func intervalHours(interval time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(interval / time.Second)).Div(secondsPerHour)
}

// toWattSeconds converts instantaneous watts into the exact energy the
// sample stands for, in watt seconds: watts x interval. Multiplication by
// whole seconds is exact; the lossy division into (kilo)watt hours happens
// once per reduction in the rule's finalizer, so summing many samples does
// not accumulate per-sample truncation.
func toWattSeconds(cc ConvertContext, s unit.Sample) (decimal.Decimal, error) {
	if cc.SampleInterval <= 0 {
		return decimal.Zero, fmt.Errorf("energy conversion requires a fixed sample interval")
	}
	return s.Value.Mul(decimal.NewFromInt(int64(cc.SampleInterval / time.Second))), nil
}

// toCostWattSeconds converts watts to watt seconds times the tariff unit
// rate applicable at the sample time. The rate varies per instant, so it
// multiplies per sample; the per-kWh scaling is deferred to the finalizer.
func toCostWattSeconds(cc ConvertContext, s unit.Sample) (decimal.Decimal, error) {
	ws, err := toWattSeconds(cc, s)
	if err != nil {
		return decimal.Zero, err
	}
	if cc.Rate == nil {
		return decimal.Zero, fmt.Errorf("cost conversion requires a tariff join")
	}
	rate, err := cc.Rate(s.Time)
	if err != nil {
		return decimal.Zero, err
	}
	return ws.Mul(rate), nil
}

// divideBy returns a finalizer performing the single lossy division.
func divideBy(d decimal.Decimal) FinalizeFunc {
	return func(v decimal.Decimal) decimal.Decimal { return v.Div(d) }
}

// standingCharges pro-rates fixed daily and monthly charges over the window.
func standingCharges(from, to time.Time, daily, monthly decimal.Decimal) decimal.Decimal {
	if !to.After(from) {
		return decimal.Zero
	}
	days := intervalHours(to.Sub(from)).Div(hoursPerDay)
	extra := daily.Mul(days)
	extra = extra.Add(monthly.Mul(days.Div(daysPerBillingMonth)))
	return extra
}

// stateMatch maps a discrete state sample to 1 when it equals code, else 0.
// Time-summing these counts occurrences of that state.
func stateMatch(code int64) ConvertFunc {
	want := decimal.NewFromInt(code)
	return func(_ ConvertContext, s unit.Sample) (decimal.Decimal, error) {
		if s.Value.Equal(want) {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	}
}

// anyEvent counts every delivered state sample as one occurrence.
func anyEvent(_ ConvertContext, s unit.Sample) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

// Builtin returns the registry populated with the full conversion table for
// the known domain. Registration order carries no meaning; duplicate triples
// abort construction.
func Builtin() (*Registry, error) {
	r := NewRegistry()

	table := []Rule{
		// Instantaneous power: average within a bucket, sum across resources.
		{Key: Key{unit.Watt, unit.Watt, OptionDefault}, Convert: identity, TimeReduce: Avg, GroupReduce: Sum},
		{Key: Key{unit.Watt, unit.Kilowatt, OptionDefault}, Convert: toKilo, TimeReduce: Avg, GroupReduce: Sum},

		// Energy: exact watt-second conversion, sums on both axes, one
		// division into the target unit per reduction.
		{Key: Key{unit.Watt, unit.WattHour, OptionDefault}, Convert: toWattSeconds, TimeReduce: Sum, GroupReduce: Sum, Finalize: divideBy(wattSecondsPerWattHour)},
		{Key: Key{unit.Watt, unit.KilowattHour, OptionDefault}, Convert: toWattSeconds, TimeReduce: Sum, GroupReduce: Sum, Finalize: divideBy(wattSecondsPerKilowattHour)},

		// Cost overlays: energy conversion times the joined tariff rate.
		{Key: Key{unit.Watt, unit.PoundSterling, OptionWattHourCost}, Convert: toCostWattSeconds, TimeReduce: Sum, GroupReduce: Sum, Finalize: divideBy(wattSecondsPerKilowattHour), Join: JoinBilling},
		{Key: Key{unit.Watt, unit.PoundSterling, OptionFullCost}, Convert: toCostWattSeconds, TimeReduce: Sum, GroupReduce: Sum, Finalize: divideBy(wattSecondsPerKilowattHour), Join: JoinBilling, PreQuery: standingCharges},

		// Cash-back overlays: sum then clamp at zero per bucket.
		{Key: Key{unit.Watt, unit.PoundSterling, OptionCashBackTOU}, Convert: toCostWattSeconds, TimeReduce: SumClamp, GroupReduce: Sum, Finalize: divideBy(wattSecondsPerKilowattHour), Join: JoinCashBackTOU},
		{Key: Key{unit.Watt, unit.PoundSterling, OptionCashBackFlat}, Convert: toCostWattSeconds, TimeReduce: SumClamp, GroupReduce: Sum, Finalize: divideBy(wattSecondsPerKilowattHour), Join: JoinCashBackFlat},

		// Pass-through measurements: averaged on both axes.
		{Key: Key{unit.Celsius, unit.Celsius, OptionDefault}, Convert: identity, TimeReduce: Avg, GroupReduce: Avg},
		{Key: Key{unit.Unknown, unit.Unknown, OptionDefault}, Convert: identity, TimeReduce: Avg, GroupReduce: Avg},

		// Discrete events: map to 0/1 then count by summation.
		{Key: Key{unit.ButtonState, unit.EventsCount, OptionDefault}, Convert: anyEvent, TimeReduce: Sum, GroupReduce: Sum},
		{Key: Key{unit.ButtonState, unit.EventsCount, OptionAny}, Convert: anyEvent, TimeReduce: Sum, GroupReduce: Sum},
		{Key: Key{unit.ButtonState, unit.EventsCount, OptionPushed}, Convert: stateMatch(unit.ButtonPushed), TimeReduce: Sum, GroupReduce: Sum},
		{Key: Key{unit.ButtonState, unit.EventsCount, OptionDouble}, Convert: stateMatch(unit.ButtonDouble), TimeReduce: Sum, GroupReduce: Sum},
		{Key: Key{unit.ButtonState, unit.EventsCount, OptionHeld}, Convert: stateMatch(unit.ButtonHeld), TimeReduce: Sum, GroupReduce: Sum},
		{Key: Key{unit.MotionState, unit.EventsCount, OptionDefault}, Convert: stateMatch(unit.MotionActive), TimeReduce: Sum, GroupReduce: Sum},
		{Key: Key{unit.ContactState, unit.EventsCount, OptionDefault}, Convert: stateMatch(unit.ContactOpen), TimeReduce: Sum, GroupReduce: Sum},
	}

	for _, rule := range table {
		if err := r.Register(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RequiredKeys lists the triples the system claims to support. Main verifies
// the builtin registry against this at startup.
func RequiredKeys() []Key {
	return []Key{
		{unit.Watt, unit.Watt, OptionDefault},
		{unit.Watt, unit.Kilowatt, OptionDefault},
		{unit.Watt, unit.WattHour, OptionDefault},
		{unit.Watt, unit.KilowattHour, OptionDefault},
		{unit.Watt, unit.PoundSterling, OptionWattHourCost},
		{unit.Watt, unit.PoundSterling, OptionFullCost},
		{unit.Watt, unit.PoundSterling, OptionCashBackTOU},
		{unit.Watt, unit.PoundSterling, OptionCashBackFlat},
		{unit.Celsius, unit.Celsius, OptionDefault},
		{unit.Unknown, unit.Unknown, OptionDefault},
		{unit.ButtonState, unit.EventsCount, OptionDefault},
		{unit.ButtonState, unit.EventsCount, OptionAny},
		{unit.ButtonState, unit.EventsCount, OptionPushed},
		{unit.ButtonState, unit.EventsCount, OptionDouble},
		{unit.ButtonState, unit.EventsCount, OptionHeld},
		{unit.MotionState, unit.EventsCount, OptionDefault},
		{unit.ContactState, unit.EventsCount, OptionDefault},
	}
}
