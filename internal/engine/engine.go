package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	coreerrors "github.com/gridpulse-lab/gridpulse/internal/core/errors"
	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/rules"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
	"github.com/gridpulse-lab/gridpulse/internal/tariff"
)

const (
	// DefaultFreshness bounds how old a sample may be and still count as "live".
	DefaultFreshness = 5 * time.Minute

	// DefaultMaxBuckets caps series size; larger windows are rejected up
	// front rather than cancelled mid-flight.
	DefaultMaxBuckets = 50000
)

// Engine composes stored samples into requested outputs: live values, state
// snapshots, time series and scalars. All reads are pure queries; tier
// selection and rule dispatch happen per resource, once per request.
type Engine struct {
	samples    storage.SampleStore
	registry   *rules.Registry
	tariffs    tariff.Store
	freshness  time.Duration
	maxBuckets int
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithFreshness overrides the live-value freshness window.
func WithFreshness(d time.Duration) Option {
	return func(e *Engine) { e.freshness = d }
}

// WithMaxBuckets overrides the series size cap.
func WithMaxBuckets(n int) Option {
	return func(e *Engine) { e.maxBuckets = n }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine over the given stores and rule registry.
func New(samples storage.SampleStore, registry *rules.Registry, tariffs tariff.Store, opts ...Option) *Engine {
	e := &Engine{
		samples:    samples,
		registry:   registry,
		tariffs:    tariffs,
		freshness:  DefaultFreshness,
		maxBuckets: DefaultMaxBuckets,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request parametrizes series and scalar queries.
type Request struct {
	Resources  []*resource.Resource
	Unit       unit.Unit
	Option     rules.Option
	From       time.Time
	To         time.Time
	Resolution unit.Resolution // series only
}

// Point is one series bucket. NoData distinguishes "no samples in this
// bucket" from a computed zero; no-data buckets are emitted, never dropped.
type Point struct {
	Start  time.Time       `json:"start"`
	End    time.Time       `json:"end"`
	Value  decimal.Decimal `json:"value"`
	NoData bool            `json:"no_data"`
}

// StateReading is one decoded discrete-state snapshot.
type StateReading struct {
	ResourceID uuid.UUID `json:"resource_id"`
	State      string    `json:"state"`
	Code       int       `json:"code"`
	Time       time.Time `json:"time"`
}

// LiveValue returns the most recent sample per resource within the freshness
// window, converted and resource-reduced. ErrDataNotAvailable when no
// resource has a fresh sample.
func (e *Engine) LiveValue(ctx context.Context, resources []*resource.Resource, target unit.Unit) (decimal.Decimal, error) {
	cutoff := e.now().Add(-e.freshness)

	var (
		values      []decimal.Decimal
		groupReduce rules.Reducer
	)
	for _, r := range resources {
		rule, err := e.registry.Lookup(r.Unit, target, rules.OptionDefault)
		if err != nil {
			return decimal.Zero, err
		}
		groupReduce = rule.GroupReduce

		s, found, err := e.samples.Latest(ctx, e.tierFor(r, cutoff, ""), r.ID, cutoff)
		if err != nil {
			return decimal.Zero, fmt.Errorf("live value for %s: %w", r.ID, err)
		}
		if !found {
			continue
		}

		v, err := rule.Convert(rules.ConvertContext{SampleInterval: r.SampleInterval()}, s)
		if err != nil {
			return decimal.Zero, err
		}
		values = append(values, rule.Finish(v))
	}

	if len(values) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no fresh samples", coreerrors.ErrDataNotAvailable)
	}
	return groupReduce.Reduce(values), nil
}

// State returns the latest raw decoded state per discrete-unit resource
// within the freshness window. No numeric reduction happens here.
func (e *Engine) State(ctx context.Context, resources []*resource.Resource, target unit.Unit) ([]StateReading, error) {
	if !target.Discrete() {
		return nil, fmt.Errorf("%w: %s is not a discrete state unit", coreerrors.ErrUnsupportedConversion, target)
	}
	cutoff := e.now().Add(-e.freshness)

	var readings []StateReading
	for _, r := range resources {
		if r.Unit != target {
			return nil, fmt.Errorf("%w: resource %s stores %s, not %s",
				coreerrors.ErrUnsupportedConversion, r.ID, r.Unit, target)
		}

		s, found, err := e.samples.Latest(ctx, e.tierFor(r, cutoff, ""), r.ID, cutoff)
		if err != nil {
			return nil, fmt.Errorf("state for %s: %w", r.ID, err)
		}
		if !found {
			continue
		}

		code := int(s.Value.IntPart())
		readings = append(readings, StateReading{
			ResourceID: r.ID,
			State:      unit.DecodeState(target, code),
			Code:       code,
			Time:       s.Time,
		})
	}

	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: no fresh state samples", coreerrors.ErrDataNotAvailable)
	}
	return readings, nil
}

// tierFor decides which historical tier serves a resource for the window.
//
// Policy (deliberately whole-window, never mixed per bucket): use long-term
// when the resource has no detailed tier, when any part of the window is
// older than the detailed retention horizon, or when the requested bucket
// resolution is at least as coarse as the resource's long-term resolution.
func (e *Engine) tierFor(r *resource.Resource, from time.Time, res unit.Resolution) storage.Tier {
	if r.DetailedResolution == nil {
		return storage.TierLongTerm
	}
	if r.DetailedLiveTime != nil && from.Before(e.now().Add(-*r.DetailedLiveTime)) {
		return storage.TierLongTerm
	}
	if res != "" && res.Duration() >= r.LongTermResolution.Duration() {
		return storage.TierLongTerm
	}
	return storage.TierDetailed
}

// sampleInterval is the duration one sample stands for in the chosen tier.
func sampleInterval(r *resource.Resource, tier storage.Tier) time.Duration {
	if tier == storage.TierLongTerm {
		return r.LongTermResolution.Duration()
	}
	return r.SampleInterval()
}

// tariffKindFor maps a rule join to the tariff kind it resolves.
func tariffKindFor(j rules.Join) (tariff.Kind, bool) {
	switch j {
	case rules.JoinBilling:
		return tariff.KindBilling, true
	case rules.JoinCashBackTOU:
		return tariff.KindCashBackTOU, true
	case rules.JoinCashBackFlat:
		return tariff.KindCashBackFlat, true
	}
	return "", false
}

// isTariffDataError reports whether err is a per-bucket data problem
// (missing or ambiguous tariff) rather than a configuration error.
func isTariffDataError(err error) bool {
	return errors.Is(err, tariff.ErrNoTariff) || errors.Is(err, tariff.ErrAmbiguousTariff)
}
