package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gridpulse-lab/gridpulse/internal/cashback"
	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
)

// Collector is the collection orchestration surface the scheduler drives.
type Collector interface {
	CollectAll(ctx context.Context) error
	MigrateToLongTerm(ctx context.Context, r *resource.Resource) error
	PruneExpired(ctx context.Context) error
}

// ScoreComputer computes one location's daily cash-back score.
type ScoreComputer interface {
	Compute(ctx context.Context, locationID uuid.UUID, day time.Time, recalculate bool) (cashback.Score, error)
}

// Intervals configures the periodic jobs.
type Intervals struct {
	Collect time.Duration
	Migrate time.Duration
	Prune   time.Duration
}

// Scheduler runs the periodic collection lifecycle and the daily
// cash-back computation. Each loop is independent; one failing tick is
// logged and the loop continues.
type Scheduler struct {
	collector Collector
	resources storage.ResourceStore
	scores    ScoreComputer

	intervals     Intervals
	computeHour   int
	computeMinute int

	now func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCashBack enables the daily score computation at HH:MM UTC.
func WithCashBack(scores ScoreComputer, hour, minute int) Option {
	return func(s *Scheduler) {
		s.scores = scores
		s.computeHour = hour
		s.computeMinute = minute
	}
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(collector Collector, resources storage.ResourceStore, intervals Intervals, opts ...Option) *Scheduler {
	s := &Scheduler{
		collector: collector,
		resources: resources,
		intervals: intervals,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs all loops until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	slog.Info("[Scheduler] Starting",
		"collect_interval", s.intervals.Collect,
		"migrate_interval", s.intervals.Migrate,
		"prune_interval", s.intervals.Prune,
		"cashback_enabled", s.scores != nil,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.collectLoop(ctx) })
	g.Go(func() error { return s.migrateLoop(ctx) })
	g.Go(func() error { return s.pruneLoop(ctx) })
	if s.scores != nil {
		g.Go(func() error { return s.cashBackLoop(ctx) })
	}
	return g.Wait()
}

func (s *Scheduler) collectLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.intervals.Collect)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.collector.CollectAll(ctx); err != nil {
				slog.Error("[Scheduler] Collection sweep failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("[Scheduler] Collect loop stopping (context cancelled)")
			return nil
		}
	}
}

func (s *Scheduler) migrateLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.intervals.Migrate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.migrateAll(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Migrate loop stopping (context cancelled)")

			// Final pass so a shutdown never strands complete buckets.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.migrateAll(shutdownCtx)
			return nil
		}
	}
}

func (s *Scheduler) migrateAll(ctx context.Context) {
	all, err := s.resources.List(ctx)
	if err != nil {
		slog.Error("[Scheduler] Migration sweep failed to list resources", "error", err)
		return
	}
	for _, r := range all {
		if err := s.collector.MigrateToLongTerm(ctx, r); err != nil {
			slog.Error("[Scheduler] Migration failed", "resource_id", r.ID, "error", err)
		}
	}
}

func (s *Scheduler) pruneLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.intervals.Prune)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.collector.PruneExpired(ctx); err != nil {
				slog.Error("[Scheduler] Prune sweep failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("[Scheduler] Prune loop stopping (context cancelled)")
			return nil
		}
	}
}

// cashBackLoop fires once a day at the configured time and scores the
// previous day for every known location.
func (s *Scheduler) cashBackLoop(ctx context.Context) error {
	for {
		next := s.nextComputeTime(s.now())
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-timer.C:
			s.computeScores(ctx, next)
		case <-ctx.Done():
			timer.Stop()
			slog.Info("[Scheduler] Cash-back loop stopping (context cancelled)")
			return nil
		}
	}
}

// nextComputeTime returns the next daily trigger strictly after now.
func (s *Scheduler) nextComputeTime(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.computeHour, s.computeMinute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) computeScores(ctx context.Context, trigger time.Time) {
	all, err := s.resources.List(ctx)
	if err != nil {
		slog.Error("[Scheduler] Score sweep failed to list resources", "error", err)
		return
	}

	day := trigger.UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)

	seen := make(map[uuid.UUID]struct{})
	for _, r := range all {
		if _, ok := seen[r.LocationID]; ok {
			continue
		}
		seen[r.LocationID] = struct{}{}

		if _, err := s.scores.Compute(ctx, r.LocationID, day, false); err != nil {
			if errors.Is(err, cashback.ErrScoreExists) {
				continue
			}
			slog.Error("[Scheduler] Score computation failed",
				"location_id", r.LocationID, "day", day, "error", err)
		}
	}
	slog.Info("[Scheduler] Daily score sweep complete", "day", day, "locations", len(seen))
}
