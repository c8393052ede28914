package engine

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/gridpulse-lab/gridpulse/internal/core/errors"
	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/rules"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
	"github.com/gridpulse-lab/gridpulse/internal/tariff"
)

// memStore is an in-memory SampleStore for engine tests.
type memStore struct {
	samples map[storage.Tier]map[uuid.UUID][]unit.Sample
}

func newMemStore() *memStore {
	return &memStore{samples: map[storage.Tier]map[uuid.UUID][]unit.Sample{
		storage.TierDetailed: {},
		storage.TierLongTerm: {},
	}}
}

func (m *memStore) Insert(_ context.Context, tier storage.Tier, s unit.Sample) error {
	for _, existing := range m.samples[tier][s.ResourceID] {
		if existing.Time.Equal(s.Time) {
			return storage.ErrDuplicate
		}
	}
	m.samples[tier][s.ResourceID] = append(m.samples[tier][s.ResourceID], s)
	sort.Slice(m.samples[tier][s.ResourceID], func(i, j int) bool {
		return m.samples[tier][s.ResourceID][i].Time.Before(m.samples[tier][s.ResourceID][j].Time)
	})
	return nil
}

func (m *memStore) Range(_ context.Context, tier storage.Tier, id uuid.UUID, from, to time.Time) ([]unit.Sample, error) {
	var out []unit.Sample
	for _, s := range m.samples[tier][id] {
		if !s.Time.Before(from) && s.Time.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Latest(_ context.Context, tier storage.Tier, id uuid.UUID, cutoff time.Time) (unit.Sample, bool, error) {
	rows := m.samples[tier][id]
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].Time.Before(cutoff) {
			return rows[i], true, nil
		}
	}
	return unit.Sample{}, false, nil
}

func (m *memStore) DeleteDetailedBefore(_ context.Context, id uuid.UUID, cutoff time.Time) (int64, error) {
	var kept []unit.Sample
	var deleted int64
	for _, s := range m.samples[storage.TierDetailed][id] {
		if s.Time.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	m.samples[storage.TierDetailed][id] = kept
	return deleted, nil
}

// memTariffs is a static tariff.Store.
type memTariffs struct {
	tariffs []tariff.Tariff
}

func (m *memTariffs) ApplicableTariffs(_ context.Context, _ resource.Kind, kind tariff.Kind, _, _ time.Time) ([]tariff.Tariff, error) {
	var out []tariff.Tariff
	for _, t := range m.tariffs {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out, nil
}

func resPtr(r unit.Resolution) *unit.Resolution { return &r }

var t0 = time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

func testMeter() *resource.Resource {
	return &resource.Resource{
		ID:                 uuid.New(),
		Kind:               resource.KindEnergyMeter,
		Unit:               unit.Watt,
		SupportedMethods:   []resource.CollectionMethod{resource.Pull},
		PreferredMethod:    resource.Pull,
		DetailedResolution: resPtr(unit.TwentySeconds),
		LongTermResolution: unit.HalfHour,
	}
}

func testEngine(t *testing.T, store storage.SampleStore, tariffs tariff.Store, opts ...Option) *Engine {
	t.Helper()
	reg, err := rules.Builtin()
	require.NoError(t, err)
	if tariffs == nil {
		tariffs = &memTariffs{}
	}
	opts = append([]Option{WithClock(func() time.Time { return t0.Add(time.Hour) })}, opts...)
	return New(store, reg, tariffs, opts...)
}

func seed(t *testing.T, store *memStore, id uuid.UUID, tier storage.Tier, at time.Time, watts int64) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(),
		tier, unit.NewSample(id, at, decimal.NewFromInt(watts))))
}

func TestSeriesWattPassThrough(t *testing.T) {
	store := newMemStore()
	meter := testMeter()
	meter.DetailedResolution = resPtr(unit.TenSeconds)

	seed(t, store, meter.ID, storage.TierDetailed, t0, 10)
	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(10*time.Second), 20)
	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(20*time.Second), 30)

	e := testEngine(t, store, nil)
	points, err := e.Series(context.Background(), Request{
		Resources:  []*resource.Resource{meter},
		Unit:       unit.Watt,
		From:       t0,
		To:         t0.Add(30 * time.Second),
		Resolution: unit.TenSeconds,
	})
	require.NoError(t, err)

	// Exactly three buckets carrying the raw readings.
	require.Len(t, points, 3)
	for i, want := range []int64{10, 20, 30} {
		require.False(t, points[i].NoData)
		require.True(t, points[i].Value.Equal(decimal.NewFromInt(want)), "bucket %d: got %s", i, points[i].Value)
	}
}

func TestSeriesEmitsNoDataBuckets(t *testing.T) {
	store := newMemStore()
	meter := testMeter()

	seed(t, store, meter.ID, storage.TierDetailed, t0, 100)
	// Gap at t0+20s, then data again.
	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(40*time.Second), 100)

	e := testEngine(t, store, nil)
	points, err := e.Series(context.Background(), Request{
		Resources:  []*resource.Resource{meter},
		Unit:       unit.Watt,
		From:       t0,
		To:         t0.Add(time.Minute),
		Resolution: unit.TwentySeconds,
	})
	require.NoError(t, err)
	require.Len(t, points, 3)
	require.False(t, points[0].NoData)
	require.True(t, points[1].NoData, "gap bucket must be explicit no-data, not zero")
	require.False(t, points[2].NoData)
}

func TestSeriesChronologicalAndDeterministic(t *testing.T) {
	store := newMemStore()
	meter := testMeter()
	for i := 0; i < 6; i++ {
		seed(t, store, meter.ID, storage.TierDetailed, t0.Add(time.Duration(i)*20*time.Second), int64(10*i))
	}

	e := testEngine(t, store, nil)
	req := Request{
		Resources:  []*resource.Resource{meter},
		Unit:       unit.Watt,
		From:       t0,
		To:         t0.Add(2 * time.Minute),
		Resolution: unit.TwentySeconds,
	}

	first, err := e.Series(context.Background(), req)
	require.NoError(t, err)
	second, err := e.Series(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		require.True(t, first[i].Start.After(first[i-1].Start))
	}
}

func TestAggregateToOneWattHours(t *testing.T) {
	store := newMemStore()
	meter := testMeter()
	meter.DetailedResolution = resPtr(unit.TenSeconds)

	seed(t, store, meter.ID, storage.TierDetailed, t0, 10)
	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(10*time.Second), 20)
	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(20*time.Second), 30)

	e := testEngine(t, store, nil)
	got, err := e.AggregateToOne(context.Background(), Request{
		Resources: []*resource.Resource{meter},
		Unit:      unit.WattHour,
		From:      t0,
		To:        t0.Add(30 * time.Second),
	})
	require.NoError(t, err)

	// (10+20+30) x (10s / 3600s) Wh.
	want := decimal.NewFromInt(60).Mul(decimal.NewFromInt(10)).Div(decimal.NewFromInt(3600))
	require.True(t, got.Equal(want), "got %s want %s", got, want)
}

func TestWattHourSumIndependentOfBucketCount(t *testing.T) {
	store := newMemStore()
	meter := testMeter()

	// Constant 120 W for one hour at 20 s resolution.
	for i := 0; i < 180; i++ {
		seed(t, store, meter.ID, storage.TierDetailed, t0.Add(time.Duration(i)*20*time.Second), 120)
	}

	e := testEngine(t, store, nil)

	scalar, err := e.AggregateToOne(context.Background(), Request{
		Resources: []*resource.Resource{meter},
		Unit:      unit.WattHour,
		From:      t0,
		To:        t0.Add(time.Hour),
	})
	require.NoError(t, err)

	series, err := e.Series(context.Background(), Request{
		Resources:  []*resource.Resource{meter},
		Unit:       unit.WattHour,
		From:       t0,
		To:         t0.Add(time.Hour),
		Resolution: unit.FiveMinutes,
	})
	require.NoError(t, err)

	summed := decimal.Zero
	for _, p := range series {
		require.False(t, p.NoData)
		summed = summed.Add(p.Value)
	}

	require.True(t, scalar.Equal(summed), "scalar %s != bucketed sum %s", scalar, summed)
	require.True(t, scalar.Equal(decimal.NewFromInt(120)), "constant 120 W over 1 h is 120 Wh, got %s", scalar)
}

func TestAggregateToOneEmptyWindowVsZeroSamples(t *testing.T) {
	store := newMemStore()
	meter := testMeter()
	e := testEngine(t, store, nil)

	req := Request{
		Resources: []*resource.Resource{meter},
		Unit:      unit.Watt,
		From:      t0,
		To:        t0.Add(time.Minute),
	}

	_, err := e.AggregateToOne(context.Background(), req)
	require.ErrorIs(t, err, coreerrors.ErrDataNotAvailable)

	seed(t, store, meter.ID, storage.TierDetailed, t0, 0)
	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(20*time.Second), 0)

	got, err := e.AggregateToOne(context.Background(), req)
	require.NoError(t, err)
	require.True(t, got.IsZero(), "all-zero samples reduce to 0.0, not no-data")
}

func TestAggregateButtonEvents(t *testing.T) {
	store := newMemStore()
	button := &resource.Resource{
		ID:                 uuid.New(),
		Kind:               resource.KindThirdPartySensor,
		Unit:               unit.ButtonState,
		SupportedMethods:   []resource.CollectionMethod{resource.Push},
		PreferredMethod:    resource.Push,
		LongTermResolution: unit.Day,
	}

	day := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
	for i, code := range []int64{unit.ButtonPushed, unit.ButtonPushed, unit.ButtonHeld} {
		seed(t, store, button.ID, storage.TierLongTerm, day.Add(time.Duration(i)*time.Hour), code)
	}

	e := testEngine(t, store, nil)
	req := Request{
		Resources: []*resource.Resource{button},
		Unit:      unit.EventsCount,
		From:      day,
		To:        day.AddDate(0, 0, 1),
	}

	req.Option = rules.OptionPushed
	got, err := e.AggregateToOne(context.Background(), req)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(2)))

	req.Option = rules.OptionAny
	got, err = e.AggregateToOne(context.Background(), req)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(3)))
}

func TestGroupReduceSumsAcrossMeters(t *testing.T) {
	store := newMemStore()
	a, b := testMeter(), testMeter()

	seed(t, store, a.ID, storage.TierDetailed, t0, 100)
	seed(t, store, b.ID, storage.TierDetailed, t0, 250)

	e := testEngine(t, store, nil)
	got, err := e.AggregateToOne(context.Background(), Request{
		Resources: []*resource.Resource{a, b},
		Unit:      unit.Watt,
		From:      t0,
		To:        t0.Add(20 * time.Second),
	})
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(350)))
}

func TestUnsupportedConversionPropagates(t *testing.T) {
	store := newMemStore()
	meter := testMeter()
	seed(t, store, meter.ID, storage.TierDetailed, t0, 100)

	e := testEngine(t, store, nil)
	_, err := e.AggregateToOne(context.Background(), Request{
		Resources: []*resource.Resource{meter},
		Unit:      unit.Celsius,
		From:      t0,
		To:        t0.Add(time.Minute),
	})
	require.ErrorIs(t, err, coreerrors.ErrUnsupportedConversion)
}

func TestSeriesRejectsOversizedWindow(t *testing.T) {
	e := testEngine(t, newMemStore(), nil, WithMaxBuckets(10))

	_, err := e.Series(context.Background(), Request{
		Resources:  []*resource.Resource{testMeter()},
		Unit:       unit.Watt,
		From:       t0,
		To:         t0.Add(24 * time.Hour),
		Resolution: unit.Second,
	})
	require.ErrorIs(t, err, coreerrors.ErrTimeRangeTooLarge)
}

func TestAggregateToOneRejectsOversizedWindow(t *testing.T) {
	e := testEngine(t, newMemStore(), nil, WithMaxBuckets(10))

	_, err := e.AggregateToOne(context.Background(), Request{
		Resources: []*resource.Resource{testMeter()},
		Unit:      unit.WattHour,
		From:      t0,
		To:        t0.Add(24 * time.Hour),
	})
	require.ErrorIs(t, err, coreerrors.ErrTimeRangeTooLarge)
}

func TestTierSelectionDegradesWholeQuery(t *testing.T) {
	store := newMemStore()
	meter := testMeter()
	retention := 4 * 24 * time.Hour
	meter.DetailedLiveTime = &retention

	now := t0.Add(time.Hour)
	old := now.Add(-6 * 24 * time.Hour)

	// Long-term has the old data; detailed has only fresh data.
	seed(t, store, meter.ID, storage.TierLongTerm, unit.BucketFor(old, unit.HalfHour), 500)
	seed(t, store, meter.ID, storage.TierDetailed, t0, 100)

	e := testEngine(t, store, nil)

	// A window starting before the retention horizon reads long-term only,
	// even for its recent portion.
	tier := e.tierFor(meter, old, unit.HalfHour)
	require.Equal(t, storage.TierLongTerm, tier)

	// A fully recent fine-grained window reads detailed.
	tier = e.tierFor(meter, t0, unit.TwentySeconds)
	require.Equal(t, storage.TierDetailed, tier)

	// Coarse resolution prefers long-term even within the horizon.
	tier = e.tierFor(meter, t0, unit.Day)
	require.Equal(t, storage.TierLongTerm, tier)
}

func TestLiveValue(t *testing.T) {
	store := newMemStore()
	meter := testMeter()

	e := testEngine(t, store, nil)
	_, err := e.LiveValue(context.Background(), []*resource.Resource{meter}, unit.Watt)
	require.ErrorIs(t, err, coreerrors.ErrDataNotAvailable)

	// Stale sample outside the freshness window still reports no data.
	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(-2*time.Hour), 999)
	_, err = e.LiveValue(context.Background(), []*resource.Resource{meter}, unit.Watt)
	require.ErrorIs(t, err, coreerrors.ErrDataNotAvailable)

	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(time.Hour-time.Minute), 420)
	got, err := e.LiveValue(context.Background(), []*resource.Resource{meter}, unit.Watt)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(420)))
}

func TestStateQuery(t *testing.T) {
	store := newMemStore()
	button := &resource.Resource{
		ID:                 uuid.New(),
		Kind:               resource.KindThirdPartySensor,
		Unit:               unit.ButtonState,
		SupportedMethods:   []resource.CollectionMethod{resource.Push},
		PreferredMethod:    resource.Push,
		LongTermResolution: unit.Day,
	}
	// Push resources have no detailed tier; their events land in long-term.
	seed(t, store, button.ID, storage.TierLongTerm, t0.Add(time.Hour-time.Minute), unit.ButtonHeld)

	e := testEngine(t, store, nil)
	readings, err := e.State(context.Background(), []*resource.Resource{button}, unit.ButtonState)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	require.Equal(t, "held", readings[0].State)
	require.Equal(t, int(unit.ButtonHeld), readings[0].Code)

	_, err = e.State(context.Background(), []*resource.Resource{button}, unit.Watt)
	require.ErrorIs(t, err, coreerrors.ErrUnsupportedConversion)
}

func TestTariffCostAggregation(t *testing.T) {
	store := newMemStore()
	meter := testMeter()
	meter.DetailedResolution = resPtr(unit.HalfHour)

	// 2 kW for two half-hour samples = 2 kWh.
	seed(t, store, meter.ID, storage.TierDetailed, t0, 2000)
	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(30*time.Minute), 2000)

	tariffs := &memTariffs{tariffs: []tariff.Tariff{{
		ID:        uuid.New(),
		Kind:      tariff.KindBilling,
		ValidFrom: t0.AddDate(-1, 0, 0),
		UnitRate:  decimal.NewFromFloat(0.25),
	}}}

	e := testEngine(t, store, tariffs)
	got, err := e.AggregateToOne(context.Background(), Request{
		Resources: []*resource.Resource{meter},
		Unit:      unit.PoundSterling,
		Option:    rules.OptionWattHourCost,
		From:      t0,
		To:        t0.Add(time.Hour),
	})
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromFloat(0.50)), "2 kWh at 0.25/kWh, got %s", got)
}

func TestTariffGapPoisonsOnlyAffectedBucket(t *testing.T) {
	store := newMemStore()
	meter := testMeter()
	meter.DetailedResolution = resPtr(unit.HalfHour)
	meter.LongTermResolution = unit.Day

	seed(t, store, meter.ID, storage.TierDetailed, t0, 2000)                  // covered by tariff
	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(time.Hour), 2000)   // not covered
	seed(t, store, meter.ID, storage.TierDetailed, t0.Add(2*time.Hour), 2000) // covered again

	// Tariff covers 10:00-11:00 and 12:00-13:00 UTC only.
	tariffs := &memTariffs{tariffs: []tariff.Tariff{
		{ID: uuid.New(), Kind: tariff.KindBilling, ValidFrom: t0.AddDate(-1, 0, 0), StartMinute: 10 * 60, EndMinute: 11 * 60, UnitRate: decimal.NewFromFloat(0.10)},
		{ID: uuid.New(), Kind: tariff.KindBilling, ValidFrom: t0.AddDate(-1, 0, 0), StartMinute: 12 * 60, EndMinute: 13 * 60, UnitRate: decimal.NewFromFloat(0.10)},
	}}

	e := testEngine(t, store, tariffs)
	points, err := e.Series(context.Background(), Request{
		Resources:  []*resource.Resource{meter},
		Unit:       unit.PoundSterling,
		Option:     rules.OptionWattHourCost,
		From:       t0,
		To:         t0.Add(3 * time.Hour),
		Resolution: unit.Hour,
	})
	require.NoError(t, err)
	require.Len(t, points, 3)
	require.False(t, points[0].NoData)
	require.True(t, points[1].NoData, "uncovered bucket is no-data, not an error")
	require.False(t, points[2].NoData)
}
