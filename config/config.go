package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Application
	App AppConfig `mapstructure:"app"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

type AppConfig struct {
	Port          int    `mapstructure:"port"`
	CanonicalHost string `mapstructure:"canonical_host"`

	// Click pipeline knobs.
	DedupWindow      string `mapstructure:"dedup_window"`
	ReconcileWorkers int    `mapstructure:"reconcile_workers"`
	QueueSize        int    `mapstructure:"queue_size"`
	SweepInterval    string `mapstructure:"sweep_interval"`
	SweepBatchSize   int    `mapstructure:"sweep_batch_size"`
	RetentionDays    int    `mapstructure:"retention_days"`
	LookupTimeout    string `mapstructure:"lookup_timeout"`
}

// DedupWindowDuration returns the repeat-visitor suppression window.
func (c AppConfig) DedupWindowDuration() time.Duration {
	return parseDuration(c.DedupWindow, 5*time.Minute)
}

// SweepIntervalDuration returns how often the full reconciliation sweep runs.
func (c AppConfig) SweepIntervalDuration() time.Duration {
	return parseDuration(c.SweepInterval, 5*time.Minute)
}

// LookupTimeoutDuration bounds a single policy lookup.
func (c AppConfig) LookupTimeoutDuration() time.Duration {
	return parseDuration(c.LookupTimeout, 250*time.Millisecond)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`

	// Pool tuning (pgx).
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Port           int    `mapstructure:"port"`
	Retention      string `mapstructure:"retention"`
	ScrapeInterval string `mapstructure:"scrape_interval"`
	Target         string `mapstructure:"target"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.dedup_window", "5m")
	v.SetDefault("app.reconcile_workers", 4)
	v.SetDefault("app.queue_size", 1024)
	v.SetDefault("app.sweep_interval", "5m")
	v.SetDefault("app.sweep_batch_size", 200)
	v.SetDefault("app.retention_days", 90)
	v.SetDefault("app.lookup_timeout", "250ms")
}

func bindEnvVars(v *viper.Viper) {
	// Application
	v.BindEnv("app.port", "APP_PORT")
	v.BindEnv("app.canonical_host", "APP_CANONICAL_HOST")
	v.BindEnv("app.dedup_window", "APP_DEDUP_WINDOW")
	v.BindEnv("app.reconcile_workers", "APP_RECONCILE_WORKERS")
	v.BindEnv("app.sweep_interval", "APP_SWEEP_INTERVAL")
	v.BindEnv("app.retention_days", "APP_RETENTION_DAYS")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
	v.BindEnv("prometheus.retention", "PROM_RETENTION")
	v.BindEnv("prometheus.scrape_interval", "PROM_SCRAPE_INTERVAL")
	v.BindEnv("prometheus.target", "PROM_TARGET")
}
