package cashback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	coreerrors "github.com/gridpulse-lab/gridpulse/internal/core/errors"
	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
	"github.com/gridpulse-lab/gridpulse/internal/engine"
	"github.com/gridpulse-lab/gridpulse/internal/tariff"
)

// ErrScoreExists reports a compute request for a (location, day) that is
// already computed, without the recalculate flag. A logical conflict, not a
// failure.
var ErrScoreExists = errors.New("cash-back score already computed")

// Score is one resolved daily output, persisted per (location, day).
type Score struct {
	LocationID uuid.UUID       `json:"location_id"`
	Day        time.Time       `json:"day"` // local calendar day, stored at UTC midnight
	Value      decimal.Decimal `json:"value"`
	ComputedAt time.Time       `json:"computed_at"`
}

// ScoreStore persists daily scores. Insert and Upsert are atomic: either no
// row exists or exactly one fully computed row exists.
type ScoreStore interface {
	// Insert fails with ErrScoreExists when a row for (location, day) exists.
	Insert(ctx context.Context, s Score) error
	// Upsert overwrites any existing row. Used by explicit recalculation.
	Upsert(ctx context.Context, s Score) error
	Get(ctx context.Context, locationID uuid.UUID, day time.Time) (Score, bool, error)
}

// EnergyQuerier is the slice of the aggregation engine the calculator
// consumes. The calculator is itself an engine client issuing narrower
// queries, never reading stores directly.
type EnergyQuerier interface {
	AggregateToOne(ctx context.Context, req engine.Request) (decimal.Decimal, error)
}

// ResourceLister resolves the metered resources of a location.
type ResourceLister interface {
	ListByLocation(ctx context.Context, locationID uuid.UUID) ([]*resource.Resource, error)
}

// LocationResolver maps a location to its timezone for day localization.
type LocationResolver interface {
	Timezone(ctx context.Context, locationID uuid.UUID) (*time.Location, error)
}

// UTCLocations is a LocationResolver that treats every location as UTC.
type UTCLocations struct{}

func (UTCLocations) Timezone(context.Context, uuid.UUID) (*time.Location, error) {
	return time.UTC, nil
}

// band is a disjoint time-of-use band of the local day, as half-open
// minute-of-day ranges.
type band struct {
	name   string
	ranges [][2]int
}

// The three consumption bands. Together they cover the whole day.
var bands = []band{
	{name: "low", ranges: [][2]int{{0, 7 * 60}, {23 * 60, 24 * 60}}},
	{name: "standard", ranges: [][2]int{{7 * 60, 16 * 60}, {19 * 60, 23 * 60}}},
	{name: "peak", ranges: [][2]int{{16 * 60, 19 * 60}}},
}

// Constants parametrize the score for one day type.
type Constants struct {
	// AvgConsumption is the reference daily consumption in kWh.
	AvgConsumption decimal.Decimal
	// Adjustment is the additive day-type correction.
	Adjustment decimal.Decimal
}

// Rates are the per-band unit rates and the flat baseline rate, currency
// per kWh.
type Rates struct {
	Low      decimal.Decimal
	Standard decimal.Decimal
	Peak     decimal.Decimal
	Flat     decimal.Decimal
}

// DefaultRates mirror a typical domestic time-of-use schedule.
func DefaultRates() Rates {
	return Rates{
		Low:      decimal.NewFromFloat(0.12),
		Standard: decimal.NewFromFloat(0.28),
		Peak:     decimal.NewFromFloat(0.42),
		Flat:     decimal.NewFromFloat(0.30),
	}
}

// DefaultSchoolDay and DefaultHomeDay are the stock day-type constants.
func DefaultSchoolDay() Constants {
	return Constants{AvgConsumption: decimal.NewFromFloat(8.5), Adjustment: decimal.NewFromFloat(0.10)}
}

func DefaultHomeDay() Constants {
	return Constants{AvgConsumption: decimal.NewFromFloat(11.0), Adjustment: decimal.NewFromFloat(0.25)}
}

// Calculator computes and persists daily cash-back scores.
type Calculator struct {
	engine    EnergyQuerier
	resources ResourceLister
	locations LocationResolver
	calendar  tariff.LearningCalendar
	store     ScoreStore

	rates     Rates
	schoolDay Constants
	homeDay   Constants
	now       func() time.Time
}

// NewCalculator wires a calculator with default rates and constants.
func NewCalculator(
	eng EnergyQuerier,
	resources ResourceLister,
	locations LocationResolver,
	calendar tariff.LearningCalendar,
	store ScoreStore,
) *Calculator {
	return &Calculator{
		engine:    eng,
		resources: resources,
		locations: locations,
		calendar:  calendar,
		store:     store,
		rates:     DefaultRates(),
		schoolDay: DefaultSchoolDay(),
		homeDay:   DefaultHomeDay(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithRates overrides the band rates. Test and configuration hook.
func (c *Calculator) WithRates(r Rates) *Calculator { c.rates = r; return c }

// WithClock overrides the time source. Test hook.
func (c *Calculator) WithClock(now func() time.Time) *Calculator { c.now = now; return c }

// Compute resolves the score for one (location, local calendar day) and
// persists it. Without recalc, an already-computed day returns
// ErrScoreExists and the original value is left unchanged.
func (c *Calculator) Compute(ctx context.Context, locationID uuid.UUID, day time.Time, recalc bool) (Score, error) {
	dayKey := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	if !recalc {
		if existing, found, err := c.store.Get(ctx, locationID, dayKey); err != nil {
			return Score{}, fmt.Errorf("read existing score: %w", err)
		} else if found {
			return existing, fmt.Errorf("%w: %s %s", ErrScoreExists, locationID, dayKey.Format("2006-01-02"))
		}
	}

	value, err := c.score(ctx, locationID, day)
	if err != nil {
		return Score{}, err
	}

	score := Score{
		LocationID: locationID,
		Day:        dayKey,
		Value:      value.Round(unit.ValuePrecision),
		ComputedAt: c.now(),
	}

	if recalc {
		err = c.store.Upsert(ctx, score)
	} else {
		err = c.store.Insert(ctx, score)
	}
	if err != nil {
		if errors.Is(err, ErrScoreExists) {
			// A concurrent compute won the race; keep its value.
			existing, found, getErr := c.store.Get(ctx, locationID, dayKey)
			if getErr == nil && found {
				return existing, fmt.Errorf("%w: %s %s", ErrScoreExists, locationID, dayKey.Format("2006-01-02"))
			}
		}
		return Score{}, fmt.Errorf("persist score: %w", err)
	}

	slog.Info("[CashBack] Computed score",
		"location_id", locationID,
		"day", dayKey.Format("2006-01-02"),
		"value", score.Value,
		"recalculated", recalc,
	)
	return score, nil
}

// score runs the day's aggregation queries and blends the band mix.
func (c *Calculator) score(ctx context.Context, locationID uuid.UUID, day time.Time) (decimal.Decimal, error) {
	tz, err := c.locations.Timezone(ctx, locationID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resolve timezone: %w", err)
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, tz)
	dayEnd := dayStart.AddDate(0, 0, 1)

	school, err := c.calendar.IsSchoolDay(dayStart)
	if err != nil {
		return decimal.Zero, fmt.Errorf("learning calendar: %w", err)
	}
	consts := c.homeDay
	if school {
		consts = c.schoolDay
	}

	meters, err := c.meters(ctx, locationID)
	if err != nil {
		return decimal.Zero, err
	}
	if len(meters) == 0 {
		return decimal.Zero, nil
	}

	total, err := c.energy(ctx, meters, dayStart, dayEnd)
	if err != nil {
		return decimal.Zero, err
	}
	if total.IsZero() {
		return decimal.Zero, nil
	}

	// Weight each band's share of the reference consumption by its rate.
	weighted := decimal.Zero
	for _, b := range bands {
		bandEnergy := decimal.Zero
		for _, r := range b.ranges {
			from := dayStart.Add(time.Duration(r[0]) * time.Minute)
			to := dayStart.Add(time.Duration(r[1]) * time.Minute)
			e, err := c.energy(ctx, meters, from, to)
			if err != nil {
				return decimal.Zero, err
			}
			bandEnergy = bandEnergy.Add(e)
		}
		fraction := bandEnergy.Div(total)
		weighted = weighted.Add(fraction.Mul(consts.AvgConsumption).Mul(c.rate(b.name)))
	}

	baseline := consts.AvgConsumption.Mul(c.rates.Flat)
	score := baseline.Sub(weighted).Add(consts.Adjustment)
	if score.IsNegative() {
		return decimal.Zero, nil
	}
	return score, nil
}

// energy aggregates kWh over a window; no data counts as zero consumption.
func (c *Calculator) energy(ctx context.Context, meters []*resource.Resource, from, to time.Time) (decimal.Decimal, error) {
	v, err := c.engine.AggregateToOne(ctx, engine.Request{
		Resources: meters,
		Unit:      unit.KilowattHour,
		From:      from,
		To:        to,
	})
	if err != nil {
		if errors.Is(err, coreerrors.ErrDataNotAvailable) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return v, nil
}

func (c *Calculator) rate(bandName string) decimal.Decimal {
	switch bandName {
	case "low":
		return c.rates.Low
	case "peak":
		return c.rates.Peak
	default:
		return c.rates.Standard
	}
}

// meters filters the location's resources down to watt-metered energy kinds.
func (c *Calculator) meters(ctx context.Context, locationID uuid.UUID) ([]*resource.Resource, error) {
	all, err := c.resources.ListByLocation(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("list location resources: %w", err)
	}
	var meters []*resource.Resource
	for _, r := range all {
		if r.Unit != unit.Watt {
			continue
		}
		switch r.Kind {
		case resource.KindEnergyMeter, resource.KindThirdPartyEnergyMeter:
			meters = append(meters, r)
		}
	}
	return meters, nil
}
