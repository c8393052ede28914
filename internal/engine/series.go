package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	coreerrors "github.com/gridpulse-lab/gridpulse/internal/core/errors"
	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/rules"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
	"github.com/gridpulse-lab/gridpulse/internal/tariff"
)

// resourcePlan is the per-resource execution plan resolved once per query:
// the rule, the chosen tier, the sample interval and the tariff join.
type resourcePlan struct {
	res      *resource.Resource
	rule     rules.Rule
	tier     storage.Tier
	cc       rules.ConvertContext
	daily    decimal.Decimal
	monthly  decimal.Decimal
	hasJoin  bool
	joinOkay bool // false when no tariff data could be resolved at all
}

func (e *Engine) plan(ctx context.Context, req Request, r *resource.Resource) (*resourcePlan, error) {
	rule, err := e.registry.Lookup(r.Unit, req.Unit, req.Option)
	if err != nil {
		return nil, err
	}

	tier := e.tierFor(r, req.From, req.Resolution)
	p := &resourcePlan{
		res:  r,
		rule: rule,
		tier: tier,
		cc:   rules.ConvertContext{SampleInterval: sampleInterval(r, tier)},
	}

	kind, needsJoin := tariffKindFor(rule.Join)
	if !needsJoin {
		return p, nil
	}
	p.hasJoin = true

	tariffs, err := e.tariffs.ApplicableTariffs(ctx, r.Kind, kind, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("tariff join for %s: %w", r.ID, err)
	}

	rk := r.Kind
	p.cc.Rate = func(t time.Time) (decimal.Decimal, error) {
		matched, err := tariff.Resolve(tariffs, rk, t)
		if err != nil {
			return decimal.Zero, err
		}
		return matched.UnitRate, nil
	}

	// Standing charges for the full-cost pre-query come from the tariff
	// resolved at the window start; a resolution failure only suppresses
	// the fixed-charge component.
	if rule.PreQuery != nil {
		if matched, err := tariff.Resolve(tariffs, rk, req.From); err == nil {
			p.daily = matched.DailyCharge
			p.monthly = matched.MonthlyCharge
			p.joinOkay = true
		}
	} else {
		p.joinOkay = true
	}
	return p, nil
}

// bucketResult is one resource's reduction for one bucket.
type bucketResult struct {
	value   decimal.Decimal
	hasData bool
}

// reduceResource buckets a resource's samples, converts each and applies the
// time reducer. A tariff data error poisons only the affected bucket, which
// then reports no data.
func (e *Engine) reduceResource(
	ctx context.Context,
	p *resourcePlan,
	from, to time.Time,
	res unit.Resolution,
) (map[time.Time]bucketResult, int, error) {
	samples, err := e.samples.Range(ctx, p.tier, p.res.ID, from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("range %s tier for %s: %w", p.tier, p.res.ID, err)
	}

	converted := make(map[time.Time][]decimal.Decimal)
	poisoned := make(map[time.Time]bool)

	for _, s := range samples {
		bucket := bucketStart(s.Time, from, res)
		if poisoned[bucket] {
			continue
		}
		v, err := p.rule.Convert(p.cc, s)
		if err != nil {
			if isTariffDataError(err) {
				poisoned[bucket] = true
				delete(converted, bucket)
				continue
			}
			return nil, 0, err
		}
		converted[bucket] = append(converted[bucket], v)
	}

	out := make(map[time.Time]bucketResult, len(converted))
	for bucket, values := range converted {
		value := p.rule.Finish(p.rule.TimeReduce.Reduce(values))
		if p.rule.PreQuery != nil && p.joinOkay {
			end := bucketEnd(bucket, from, to, res)
			value = value.Add(p.rule.PreQuery(maxTime(bucket, from), end, p.daily, p.monthly))
		}
		out[bucket] = bucketResult{value: value, hasData: true}
	}
	return out, len(samples), nil
}

// bucketStart assigns a sample to its bucket. An empty resolution means the
// whole window is a single bucket anchored at from.
func bucketStart(t, from time.Time, res unit.Resolution) time.Time {
	if res == "" {
		return from
	}
	return unit.BucketFor(t, res)
}

func bucketEnd(bucket, from, to time.Time, res unit.Resolution) time.Time {
	if res == "" {
		return to
	}
	return unit.Next(bucket, res)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// Series buckets the time axis into resolution-sized intervals and applies
// convert, time-reduce and group-reduce per bucket. Buckets with no data are
// emitted with NoData set so callers can tell "zero" from "no data". Output
// is chronological and deterministic for a fixed store state.
func (e *Engine) Series(ctx context.Context, req Request) ([]Point, error) {
	if req.Resolution == "" {
		return nil, fmt.Errorf("%w: series requires a time resolution", coreerrors.ErrUnsupportedTimeResolution)
	}
	if !req.To.After(req.From) {
		return nil, fmt.Errorf("series window [%s, %s) is empty", req.From, req.To)
	}
	if n := estimateBuckets(req.From, req.To, req.Resolution); n > e.maxBuckets {
		return nil, fmt.Errorf("%w: %d buckets exceeds limit %d", coreerrors.ErrTimeRangeTooLarge, n, e.maxBuckets)
	}

	perBucket := make(map[time.Time][]decimal.Decimal)
	var groupReduce rules.Reducer

	for _, r := range req.Resources {
		p, err := e.plan(ctx, req, r)
		if err != nil {
			return nil, err
		}
		groupReduce = p.rule.GroupReduce

		results, _, err := e.reduceResource(ctx, p, req.From, req.To, req.Resolution)
		if err != nil {
			return nil, err
		}
		for bucket, br := range results {
			perBucket[bucket] = append(perBucket[bucket], br.value)
		}
	}

	var points []Point
	for start := unit.BucketFor(req.From, req.Resolution); start.Before(req.To); start = unit.Next(start, req.Resolution) {
		end := unit.Next(start, req.Resolution)
		values, ok := perBucket[start]
		if !ok {
			points = append(points, Point{Start: start, End: end, Value: decimal.Zero, NoData: true})
			continue
		}
		points = append(points, Point{Start: start, End: end, Value: groupReduce.Reduce(values)})
	}
	return points, nil
}

// AggregateToOne collapses the whole window into a single scalar using the
// same converters and reducers, with the window as one bucket. A window with
// zero samples across all resources returns ErrDataNotAvailable, distinct
// from a window of exact-zero samples, which returns 0.
func (e *Engine) AggregateToOne(ctx context.Context, req Request) (decimal.Decimal, error) {
	if !req.To.After(req.From) {
		return decimal.Zero, fmt.Errorf("aggregate window [%s, %s) is empty", req.From, req.To)
	}
	// The scalar path reads every sample in the window into memory, so the
	// same size cap applies as for series, measured in hour buckets.
	if n := estimateBuckets(req.From, req.To, unit.Hour); n > e.maxBuckets {
		return decimal.Zero, fmt.Errorf("%w: window spans %d hours, limit %d", coreerrors.ErrTimeRangeTooLarge, n, e.maxBuckets)
	}

	var (
		values      []decimal.Decimal
		sampleCount int
		groupReduce rules.Reducer
	)
	for _, r := range req.Resources {
		p, err := e.plan(ctx, Request{
			Resources: req.Resources,
			Unit:      req.Unit,
			Option:    req.Option,
			From:      req.From,
			To:        req.To,
		}, r)
		if err != nil {
			return decimal.Zero, err
		}
		groupReduce = p.rule.GroupReduce

		results, n, err := e.reduceResource(ctx, p, req.From, req.To, "")
		if err != nil {
			return decimal.Zero, err
		}
		sampleCount += n
		if br, ok := results[req.From]; ok && br.hasData {
			values = append(values, br.value)
		}
	}

	if len(values) == 0 {
		if sampleCount == 0 {
			return decimal.Zero, fmt.Errorf("%w: no samples in window", coreerrors.ErrDataNotAvailable)
		}
		// Samples existed but every bucket was poisoned by tariff data errors.
		return decimal.Zero, fmt.Errorf("%w: no resolvable tariff for any sample", coreerrors.ErrDataNotAvailable)
	}
	return groupReduce.Reduce(values), nil
}

// estimateBuckets bounds the series size before execution. Calendar
// resolutions are estimated from date arithmetic, the rest from durations.
func estimateBuckets(from, to time.Time, res unit.Resolution) int {
	switch res {
	case unit.Year:
		return to.Year() - from.Year() + 1
	case unit.Month:
		return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month()) + 1
	default:
		return int(to.Sub(from)/res.Duration()) + 1
	}
}
