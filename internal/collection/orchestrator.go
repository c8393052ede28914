package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/rules"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

const defaultCollectConcurrency = 8

// Orchestrator drives the collection lifecycle: fetching pull resources,
// migrating detailed rows into the long-term tier and pruning expired
// detailed rows. Each operation is stateless and independently schedulable.
type Orchestrator struct {
	resources storage.ResourceStore
	samples   storage.SampleStore
	providers ProviderRegistry
	registry  *rules.Registry
	cache     *ResultCache
	retry     RetryPolicy

	offlineDelay time.Duration
	concurrency  int
	now          func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOfflineDelay sets the grace period added to a resource's native
// interval before it is reported offline.
func WithOfflineDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.offlineDelay = d }
}

// WithConcurrency bounds the CollectAll fan-out.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an Orchestrator. The cache and retry policy are owned
// explicitly here, not hidden in decorators or globals.
func New(
	resources storage.ResourceStore,
	samples storage.SampleStore,
	providers ProviderRegistry,
	registry *rules.Registry,
	cache *ResultCache,
	retry RetryPolicy,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		resources:    resources,
		samples:      samples,
		providers:    providers,
		registry:     registry,
		cache:        cache,
		retry:        retry,
		offlineDelay: time.Minute,
		concurrency:  defaultCollectConcurrency,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CollectOne fetches and persists a new value for a pull resource. Push
// resources are a no-op; their data arrives through the inbound write
// path. Within one resource, calls are serialized and collapsed through
// the result cache, and duplicate (resource, time) writes are discarded.
func (o *Orchestrator) CollectOne(ctx context.Context, r *resource.Resource) error {
	if r.PreferredMethod == resource.Push {
		return nil
	}

	lock := o.cache.lockFor(r.ID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := o.cache.Get(r.ID); ok {
		// A near-simultaneous collect already fetched; nothing to do.
		return nil
	}

	conn, err := o.providers.For(r.Kind)
	if err != nil {
		return err
	}

	var fetched unit.Sample
	err = o.retry.Do(ctx, func() error {
		var ferr error
		fetched, ferr = conn.FetchCurrentValue(ctx, MeterIdentity{ResourceID: r.ID})
		return ferr
	})
	if err != nil {
		return fmt.Errorf("collect %s: %w", r.ID, err)
	}

	o.cache.Put(r.ID, fetched)

	sample := unit.NewSample(r.ID, fetched.Time, fetched.Value)
	if err := o.samples.Insert(ctx, storage.TierDetailed, sample); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// The provider has no newer reading yet. Still a successful
			// collect: advance the watermark so the resource does not stay
			// due and re-fetch the same value every sweep.
			r.LastDetailedWrite = &sample.Time
			if werr := o.resources.UpdateWatermarks(ctx, r); werr != nil {
				return fmt.Errorf("update watermarks for %s: %w", r.ID, werr)
			}
			slog.Debug("[Collector] Duplicate sample discarded",
				"resource_id", r.ID, "time", sample.Time)
			return nil
		}
		return fmt.Errorf("persist sample for %s: %w", r.ID, err)
	}

	r.LastDetailedWrite = &sample.Time
	if err := o.resources.UpdateWatermarks(ctx, r); err != nil {
		return fmt.Errorf("update watermarks for %s: %w", r.ID, err)
	}

	slog.Debug("[Collector] Collected",
		"resource_id", r.ID, "time", sample.Time, "value", sample.Value)
	return nil
}

// CollectAll runs CollectOne concurrently for every due pull resource.
// Per-resource failures are logged and do not stop the sweep.
func (o *Orchestrator) CollectAll(ctx context.Context) error {
	all, err := o.resources.List(ctx)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, r := range all {
		if r.PreferredMethod != resource.Pull || !o.due(r) {
			continue
		}
		r := r
		g.Go(func() error {
			if err := o.CollectOne(ctx, r); err != nil {
				slog.Warn("[Collector] Collect failed",
					"resource_id", r.ID, "kind", r.Kind, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// due reports whether a pull resource's native interval has elapsed since
// its last detailed write.
func (o *Orchestrator) due(r *resource.Resource) bool {
	if r.DetailedResolution == nil {
		return false
	}
	if r.LastDetailedWrite == nil {
		return true
	}
	return o.now().Sub(*r.LastDetailedWrite) >= r.DetailedResolution.Duration()
}

// MigrateToLongTerm aggregates unmigrated detailed rows into long-term
// buckets at the resource's long-term resolution, using the registered
// same-unit rule's time reducer. Re-running over the same data is
// idempotent: the (resource, time) uniqueness constraint discards the
// duplicate bucket writes.
func (o *Orchestrator) MigrateToLongTerm(ctx context.Context, r *resource.Resource) error {
	rule, err := o.registry.Lookup(r.Unit, r.Unit, rules.OptionDefault)
	if err != nil {
		// Discrete event units have no same-unit reduction; their detailed
		// rows are retained as-is.
		slog.Debug("[Migrator] No same-unit rule, skipping",
			"resource_id", r.ID, "unit", r.Unit)
		return nil
	}

	from := time.Time{}
	if r.MigratedThrough != nil {
		from = *r.MigratedThrough
	}
	// Only complete long-term buckets migrate.
	horizon := unit.BucketFor(o.now(), r.LongTermResolution)
	if !horizon.After(from) {
		return nil
	}

	rows, err := o.samples.Range(ctx, storage.TierDetailed, r.ID, from, horizon)
	if err != nil {
		return fmt.Errorf("migrate %s: read detailed rows: %w", r.ID, err)
	}
	if len(rows) == 0 {
		r.MigratedThrough = &horizon
		return o.resources.UpdateWatermarks(ctx, r)
	}

	buckets := make(map[time.Time][]unit.Sample)
	for _, s := range rows {
		b := unit.BucketFor(s.Time, r.LongTermResolution)
		buckets[b] = append(buckets[b], s)
	}

	var migrated int
	for bucket, group := range buckets {
		values := make([]decimal.Decimal, 0, len(group))
		for _, s := range group {
			values = append(values, s.Value)
		}
		reduced := rule.TimeReduce.Reduce(values)

		out := unit.NewSample(r.ID, bucket, reduced)
		if err := o.samples.Insert(ctx, storage.TierLongTerm, out); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				continue
			}
			return fmt.Errorf("migrate %s: write bucket %s: %w", r.ID, bucket, err)
		}
		migrated++
		if r.LastLongTermWrite == nil || bucket.After(*r.LastLongTermWrite) {
			b := bucket
			r.LastLongTermWrite = &b
		}
	}

	r.MigratedThrough = &horizon
	if err := o.resources.UpdateWatermarks(ctx, r); err != nil {
		return fmt.Errorf("migrate %s: update watermarks: %w", r.ID, err)
	}

	slog.Info("[Migrator] Migrated detailed rows",
		"resource_id", r.ID,
		"rows", len(rows),
		"buckets_written", migrated,
		"through", horizon,
	)
	return nil
}

// PruneExpired deletes detailed rows older than each resource's retention.
// Resources with nil (infinite) retention are skipped.
func (o *Orchestrator) PruneExpired(ctx context.Context) error {
	all, err := o.resources.List(ctx)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}

	now := o.now()
	for _, r := range all {
		if r.DetailedLiveTime == nil {
			continue
		}
		cutoff := now.Add(-*r.DetailedLiveTime)
		deleted, err := o.samples.DeleteDetailedBefore(ctx, r.ID, cutoff)
		if err != nil {
			return fmt.Errorf("prune %s: %w", r.ID, err)
		}
		if deleted > 0 {
			slog.Info("[Pruner] Removed expired detailed rows",
				"resource_id", r.ID, "deleted", deleted, "cutoff", cutoff)
		}
	}
	return nil
}

// Offline reports the connectivity state of a resource.
//
// Batch-delivered resources are judged by the long-term tier itself: the
// whole previous calendar day must hold at least one row, regardless of how
// recent the newest row is. Everyone else gets the cadence check.
func (o *Orchestrator) Offline(ctx context.Context, r *resource.Resource) (bool, error) {
	if r.BatchDelivered() {
		dayStart := unit.BucketFor(o.now(), unit.Day)
		rows, err := o.samples.Range(ctx, storage.TierLongTerm, r.ID, dayStart.AddDate(0, 0, -1), dayStart)
		if err != nil {
			return false, fmt.Errorf("offline check for %s: %w", r.ID, err)
		}
		return len(rows) == 0, nil
	}
	return r.Offline(o.now(), o.offlineDelay), nil
}
