package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds runtime configuration values for the analytics service and importer.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseDriver      string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	NATSSubject         string
	MetricsCacheTTL     time.Duration
	MetricsWorkers      int
	CompletionTimeCap   time.Duration
	PrecomputeOnStart   bool
	RecomputeRateLimit  int
	RecomputeRateWindow time.Duration
	ImportBatchSize     int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ANALYTICS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Course Analytics API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("nats.subject", "metrics.recomputed")
	v.SetDefault("metrics.cache_ttl", "30m")
	v.SetDefault("metrics.workers", 4)
	v.SetDefault("metrics.completion_time_cap", "1h")
	v.SetDefault("metrics.precompute_on_start", true)
	v.SetDefault("recompute.rate_limit", 5)
	v.SetDefault("recompute.rate_window", "1m")
	v.SetDefault("import.batch_size", 1000)

	cacheTTL, err := parseDuration(v, "metrics.cache_ttl", "30m")
	if err != nil {
		return Config{}, err
	}
	timeCap, err := parseDuration(v, "metrics.completion_time_cap", "1h")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "recompute.rate_window", "1m")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		NATSSubject:         v.GetString("nats.subject"),
		MetricsCacheTTL:     cacheTTL,
		MetricsWorkers:      v.GetInt("metrics.workers"),
		CompletionTimeCap:   timeCap,
		PrecomputeOnStart:   v.GetBool("metrics.precompute_on_start"),
		RecomputeRateLimit:  v.GetInt("recompute.rate_limit"),
		RecomputeRateWindow: rateWindow,
		ImportBatchSize:     v.GetInt("import.batch_size"),
	}

	if cfg.DatabaseDriver != DriverPostgres && cfg.DatabaseDriver != DriverSQLite {
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.MetricsWorkers <= 0 {
		cfg.MetricsWorkers = 4
	}
	if cfg.RecomputeRateLimit <= 0 {
		cfg.RecomputeRateLimit = 5
	}
	if cfg.ImportBatchSize <= 0 {
		cfg.ImportBatchSize = 1000
	}
	if cfg.NATSSubject == "" {
		cfg.NATSSubject = "metrics.recomputed"
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key, fallback string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		raw = fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return value, nil
}
