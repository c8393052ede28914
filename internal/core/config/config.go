package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Collection CollectionConfig `koanf:"collection"`
	Engine     EngineConfig     `koanf:"engine"`
	Broker     BrokerConfig     `koanf:"broker"`
	CashBack   CashBackConfig   `koanf:"cashback"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type CollectionConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Concurrency  int    `koanf:"concurrency"`
	CacheTTL     string `koanf:"cache_ttl"`
	OfflineDelay string `koanf:"offline_delay"`
}

type EngineConfig struct {
	Freshness  string `koanf:"freshness"`
	MaxBuckets int    `koanf:"max_buckets"`
}

type BrokerConfig struct {
	Enabled bool     `koanf:"enabled"`
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	GroupID string   `koanf:"group_id"`
}

type CashBackConfig struct {
	Enabled      bool   `koanf:"enabled"`
	CalendarPath string `koanf:"calendar_path"`
	ComputeAt    string `koanf:"compute_at"` // HH:MM, daily trigger for yesterday's scores
}

type SchedulerConfig struct {
	CollectInterval string `koanf:"collect_interval"`
	MigrateInterval string `koanf:"migrate_interval"`
	PruneInterval   string `koanf:"prune_interval"`
}

func parsePositiveDuration(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", name)
	}
	return d, nil
}

// CacheTTLDuration returns the parsed collection cache TTL.
func (c CollectionConfig) CacheTTLDuration() (time.Duration, error) {
	return parsePositiveDuration("collection.cache_ttl", c.CacheTTL)
}

// OfflineDelayDuration returns the parsed offline grace period.
func (c CollectionConfig) OfflineDelayDuration() (time.Duration, error) {
	return parsePositiveDuration("collection.offline_delay", c.OfflineDelay)
}

// FreshnessDuration returns the parsed live-value freshness window.
func (c EngineConfig) FreshnessDuration() (time.Duration, error) {
	return parsePositiveDuration("engine.freshness", c.Freshness)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if c.Collection.Concurrency <= 0 {
		return fmt.Errorf("collection.concurrency must be > 0")
	}
	if _, err := c.Collection.CacheTTLDuration(); err != nil {
		return err
	}
	if _, err := c.Collection.OfflineDelayDuration(); err != nil {
		return err
	}

	if _, err := c.Engine.FreshnessDuration(); err != nil {
		return err
	}
	if c.Engine.MaxBuckets <= 0 {
		return fmt.Errorf("engine.max_buckets must be > 0")
	}

	if c.Broker.Enabled {
		if len(c.Broker.Brokers) == 0 {
			return fmt.Errorf("broker.brokers is required when broker.enabled")
		}
		if strings.TrimSpace(c.Broker.Topic) == "" {
			return fmt.Errorf("broker.topic is required when broker.enabled")
		}
		if strings.TrimSpace(c.Broker.GroupID) == "" {
			return fmt.Errorf("broker.group_id is required when broker.enabled")
		}
	}

	if c.CashBack.Enabled {
		if _, err := time.Parse("15:04", c.CashBack.ComputeAt); err != nil {
			return fmt.Errorf("invalid cashback.compute_at %q (must be HH:MM): %w", c.CashBack.ComputeAt, err)
		}
	}

	for name, raw := range map[string]string{
		"scheduler.collect_interval": c.Scheduler.CollectInterval,
		"scheduler.migrate_interval": c.Scheduler.MigrateInterval,
		"scheduler.prune_interval":   c.Scheduler.PruneInterval,
	} {
		if _, err := parsePositiveDuration(name, raw); err != nil {
			return err
		}
	}

	return nil
}

// Load parses config from defaults, then file, then env, and validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                8080,
		"server.host":                "0.0.0.0",
		"server.max_body_size_mb":    1,
		"server.mode":                "release",
		"database.type":              "postgres",
		"database.dsn":               "",
		"database.max_open_conns":    25,
		"database.max_idle_conns":    25,
		"database.auto_migrate":      true,
		"collection.enabled":         true,
		"collection.concurrency":     8,
		"collection.cache_ttl":       "500ms",
		"collection.offline_delay":   "1m",
		"engine.freshness":           "5m",
		"engine.max_buckets":         50000,
		"broker.enabled":             false,
		"broker.brokers":             []string{},
		"broker.topic":               "resource-values",
		"broker.group_id":            "gridpulse-ingest",
		"cashback.enabled":           true,
		"cashback.calendar_path":     "./config/school_calendar.yaml",
		"cashback.compute_at":        "01:30",
		"scheduler.collect_interval": "10s",
		"scheduler.migrate_interval": "30m",
		"scheduler.prune_interval":   "1h",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("GRIDPULSE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GRIDPULSE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
