package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridpulse-lab/gridpulse/internal/cashback"
	"github.com/gridpulse-lab/gridpulse/internal/collection"
	corecfg "github.com/gridpulse-lab/gridpulse/internal/core/config"
	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/rules"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage/postgres"
	"github.com/gridpulse-lab/gridpulse/internal/engine"
	"github.com/gridpulse-lab/gridpulse/internal/ingest"
	"github.com/gridpulse-lab/gridpulse/internal/migrations"
	"github.com/gridpulse-lab/gridpulse/internal/query"
	"github.com/gridpulse-lab/gridpulse/internal/scheduler"
	"github.com/gridpulse-lab/gridpulse/internal/server"
	"github.com/gridpulse-lab/gridpulse/internal/tariff"
)

func main() {
	configPath := flag.String("config", "gridpulse.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage (PostgreSQL)
	sampleStore, err := postgres.NewSampleAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer sampleStore.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(sampleStore.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	resourceStore := postgres.NewResourceAdapter(sampleStore.DB())
	tariffStore := postgres.NewTariffAdapter(sampleStore.DB())
	scoreStore := postgres.NewScoreAdapter(sampleStore.DB())

	// 3. Build the rule registry and verify the conversion table is complete.
	registry, err := rules.Builtin()
	if err != nil {
		slog.Error("Failed to build rule registry", "error", err)
		os.Exit(1)
	}
	if err := registry.Verify(rules.RequiredKeys()); err != nil {
		slog.Error("Rule registry self-check failed", "error", err)
		os.Exit(1)
	}

	// 4. Initialize the Aggregation Engine
	freshness, err := cfg.Engine.FreshnessDuration()
	if err != nil {
		slog.Error("Invalid engine config", "error", err)
		os.Exit(1)
	}
	eng := engine.New(sampleStore, registry, tariffStore,
		engine.WithFreshness(freshness),
		engine.WithMaxBuckets(cfg.Engine.MaxBuckets),
	)

	// 5. Initialize Collection (simulated provider until real ones land)
	cacheTTL, err := cfg.Collection.CacheTTLDuration()
	if err != nil {
		slog.Error("Invalid collection config", "error", err)
		os.Exit(1)
	}
	offlineDelay, err := cfg.Collection.OfflineDelayDuration()
	if err != nil {
		slog.Error("Invalid collection config", "error", err)
		os.Exit(1)
	}

	simulated := collection.NewSimulatedProvider(400)
	providers := collection.ProviderRegistry{
		resource.KindEnergyMeter:           simulated,
		resource.KindThirdPartyEnergyMeter: simulated,
		resource.KindThirdPartySensor:      simulated,
		resource.KindWeatherProbe:          simulated,
	}

	orchestrator := collection.New(
		resourceStore,
		sampleStore,
		providers,
		registry,
		collection.NewResultCache(cacheTTL),
		collection.DefaultRetryPolicy(),
		collection.WithOfflineDelay(offlineDelay),
		collection.WithConcurrency(cfg.Collection.Concurrency),
	)

	// 6. Initialize the Cash-Back Calculator
	calendar, err := tariff.LoadFileCalendar(cfg.CashBack.CalendarPath)
	if err != nil {
		slog.Error("Failed to load school calendar", "path", cfg.CashBack.CalendarPath, "error", err)
		os.Exit(1)
	}
	calculator := cashback.NewCalculator(eng, resourceStore, cashback.UTCLocations{}, calendar, scoreStore)

	// 7. Initialize the write and read services
	ingestSvc := ingest.NewService(sampleStore, resourceStore, cfg.Server.MaxBodySizeMB)
	querySvc := query.NewService(eng, resourceStore, registry)

	// 8. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), sampleStore.DB(), cfg.Server.Mode)
	ingestSvc.RegisterRoutes(srv.Engine)
	querySvc.RegisterRoutes(srv.Engine)

	// 9. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Collection.Enabled {
		intervals, err := schedulerIntervals(cfg.Scheduler)
		if err != nil {
			slog.Error("Invalid scheduler config", "error", err)
			os.Exit(1)
		}

		opts := []scheduler.Option{}
		if cfg.CashBack.Enabled {
			computeAt, err := time.Parse("15:04", cfg.CashBack.ComputeAt)
			if err != nil {
				slog.Error("Invalid cashback.compute_at", "value", cfg.CashBack.ComputeAt, "error", err)
				os.Exit(1)
			}
			opts = append(opts, scheduler.WithCashBack(calculator, computeAt.Hour(), computeAt.Minute()))
		}

		sched := scheduler.New(orchestrator, resourceStore, intervals, opts...)
		go func() {
			if err := sched.Start(ctx); err != nil {
				slog.Error("Scheduler stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Collection scheduler disabled by config")
	}

	if cfg.Broker.Enabled {
		consumer, err := ingest.NewConsumer(ingest.ConsumerConfig{
			Brokers: cfg.Broker.Brokers,
			Topic:   cfg.Broker.Topic,
			GroupID: cfg.Broker.GroupID,
		}, ingestSvc)
		if err != nil {
			slog.Error("Failed to initialize broker consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Broker consumer stopped with error", "error", err)
			}
		}()
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func schedulerIntervals(cfg corecfg.SchedulerConfig) (scheduler.Intervals, error) {
	collect, err := time.ParseDuration(cfg.CollectInterval)
	if err != nil {
		return scheduler.Intervals{}, fmt.Errorf("invalid scheduler.collect_interval: %w", err)
	}
	migrate, err := time.ParseDuration(cfg.MigrateInterval)
	if err != nil {
		return scheduler.Intervals{}, fmt.Errorf("invalid scheduler.migrate_interval: %w", err)
	}
	prune, err := time.ParseDuration(cfg.PruneInterval)
	if err != nil {
		return scheduler.Intervals{}, fmt.Errorf("invalid scheduler.prune_interval: %w", err)
	}
	return scheduler.Intervals{Collect: collect, Migrate: migrate, Prune: prune}, nil
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
