// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Report limiter backends
const (
	LimiterStore = "store"
	LimiterNone  = "none"
	LimiterBolt  = "bolt"
	LimiterRedis = "redis"
)

// Config holds every setting the server reads at startup
type Config struct {
	Port string

	DBDriver    string
	DBPath      string
	DatabaseURL string

	JWTSecret   string
	JWTAudience string

	// BootstrapAdmins is the path of the JSON file listing founding admins
	BootstrapAdmins string

	Limiter      string
	LimiterPath  string
	RedisURL     string
	ReportLimit  int
	ReportWindow time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
	TrustProxy     bool

	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64

	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	SMTPFrom   string
	AdminEmail string

	LogLevel        string
	LogFormat       string
	MetricsInterval time.Duration
}

// Load reads the configuration. A .env file in the working directory is
// loaded first when present; variables already set take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	cfg := &Config{
		Port:            env("PORT", "18920"),
		DBDriver:        strings.ToLower(env("AGORA_DB_DRIVER", DriverSQLite)),
		DBPath:          env("AGORA_DB_PATH", "agora.db"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		JWTSecret:       os.Getenv("AGORA_JWT_SECRET"),
		JWTAudience:     os.Getenv("AGORA_JWT_AUDIENCE"),
		BootstrapAdmins: os.Getenv("AGORA_BOOTSTRAP_ADMINS"),
		Limiter:         strings.ToLower(env("AGORA_LIMITER", LimiterStore)),
		LimiterPath:     env("AGORA_LIMITER_PATH", "agora-limits.db"),
		RedisURL:        os.Getenv("REDIS_URL"),
		OTelEnabled:     os.Getenv("OTEL_ENABLED") == "true",
		TrustProxy:      os.Getenv("AGORA_TRUST_PROXY") == "true",
		OTelEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPUser:        os.Getenv("SMTP_USER"),
		SMTPPass:        os.Getenv("SMTP_PASS"),
		SMTPFrom:        env("SMTP_FROM", "noreply@agora.local"),
		AdminEmail:      os.Getenv("AGORA_ADMIN_EMAIL"),
		LogLevel:        env("LOG_LEVEL", "info"),
		LogFormat:       env("LOG_FORMAT", "console"),
	}
	cfg.ReportLimit = intVar(&errs, "AGORA_REPORT_LIMIT", 10)
	cfg.ReportWindow = durationVar(&errs, "AGORA_REPORT_WINDOW", time.Hour)
	cfg.RateLimitRPS = floatVar(&errs, "AGORA_RATE_LIMIT_RPS", 10)
	cfg.RateLimitBurst = intVar(&errs, "AGORA_RATE_LIMIT_BURST", 20)
	cfg.MetricsInterval = durationVar(&errs, "METRICS_INTERVAL", time.Minute)
	cfg.SMTPPort = intVar(&errs, "SMTP_PORT", 587)
	cfg.OTelSampleRatio = floatVar(&errs, "OTEL_SAMPLE_RATIO", 1)

	errs = append(errs, cfg.validate()...)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Debug().
		Str("driver", cfg.DBDriver).
		Str("limiter", cfg.Limiter).
		Msg("config: loaded")
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("AGORA_DB_DRIVER: unknown driver %q", c.DBDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("AGORA_JWT_SECRET is required"))
	}
	switch c.Limiter {
	case LimiterStore, LimiterNone, LimiterBolt:
	case LimiterRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis limiter"))
		}
	default:
		errs = append(errs, fmt.Errorf("AGORA_LIMITER: unknown limiter %q", c.Limiter))
	}
	if c.ReportLimit <= 0 {
		errs = append(errs, errors.New("AGORA_REPORT_LIMIT must be positive"))
	}
	if c.ReportWindow <= 0 {
		errs = append(errs, errors.New("AGORA_REPORT_WINDOW must be positive"))
	}
	if c.MetricsInterval <= 0 {
		errs = append(errs, errors.New("METRICS_INTERVAL must be positive"))
	}
	return errs
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intVar(errs *[]error, key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func floatVar(errs *[]error, key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func durationVar(errs *[]error, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
