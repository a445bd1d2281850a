// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"

	CatalogFile  = "file"
	CatalogMySQL = "mysql"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // APP_ENV (dev, test, prod)
	Port string // APP_PORT

	StoreBackend string // STORE_BACKEND: memory, mysql or redis

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	Redis RedisConfig

	RabbitMQURL string // RABBITMQ_URL; empty disables event publishing
	AuditLogDir string // AUDIT_LOG_DIR for the audit consumer

	JWTSecret string

	HoldTTL         time.Duration // HOLD_TTL
	HoldMaxTTL      time.Duration // HOLD_MAX_TTL
	SweepInterval   time.Duration // SWEEP_INTERVAL, at most HOLD_TTL/2
	BookingMaxSeats int           // BOOKING_MAX_SEATS

	PaymentCheckoutURL    string
	PaymentCallbackSecret string

	CatalogSource   string // CATALOG_SOURCE: file or mysql
	CatalogFile     string // CATALOG_FILE
	CatalogCacheTTL time.Duration

	LogLevel  string
	LogFormat string

	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// UsesMySQL reports whether any component needs the database.  Bookings
// and conflicts live in MySQL whenever the seat store is not in memory.
func (c Config) UsesMySQL() bool {
	return c.StoreBackend != BackendMemory || c.CatalogSource == CatalogMySQL
}

// Load reads configuration values from environment variables.  Required
// variables are enforced by must(); database settings are required unless
// both the seat store and the catalog stay in process.
func Load() (Config, error) {
	cfg := Config{
		Env:                   envStr("APP_ENV", "dev"),
		Port:                  envStr("APP_PORT", "8080"),
		StoreBackend:          envStr("STORE_BACKEND", BackendMemory),
		DBPass:                envStr("DB_PASS", ""),
		DBPort:                envStr("DB_PORT", "3306"),
		Redis:                 LoadRedisConfig(),
		RabbitMQURL:           envStr("RABBITMQ_URL", ""),
		AuditLogDir:           envStr("AUDIT_LOG_DIR", "logs"),
		HoldTTL:               envDur("HOLD_TTL", 10*time.Minute),
		HoldMaxTTL:            envDur("HOLD_MAX_TTL", 30*time.Minute),
		SweepInterval:         envDur("SWEEP_INTERVAL", 30*time.Second),
		BookingMaxSeats:       envInt("BOOKING_MAX_SEATS", 10),
		PaymentCheckoutURL:    envStr("PAYMENT_CHECKOUT_URL", "http://localhost:8081/checkout"),
		PaymentCallbackSecret: envStr("PAYMENT_CALLBACK_SECRET", ""),
		CatalogSource:         envStr("CATALOG_SOURCE", CatalogFile),
		CatalogFile:           envStr("CATALOG_FILE", "catalog.json"),
		CatalogCacheTTL:       envDur("CATALOG_CACHE_TTL", 5*time.Minute),
		LogLevel:              envStr("LOG_LEVEL", "info"),
		LogFormat:             envStr("LOG_FORMAT", "json"),
		RateLimit:             LoadRateLimitConfig(),
		Cache:                 LoadCacheConfig(),
	}

	var errs []error
	var err error
	if cfg.JWTSecret, err = must("JWT_SECRET"); err != nil {
		errs = append(errs, err)
	}
	if cfg.PaymentCallbackSecret == "" {
		errs = append(errs, errors.New("missing required env var: PAYMENT_CALLBACK_SECRET"))
	}
	switch cfg.StoreBackend {
	case BackendMemory, BackendMySQL, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend))
	}
	switch cfg.CatalogSource {
	case CatalogFile, CatalogMySQL:
	default:
		errs = append(errs, fmt.Errorf("invalid CATALOG_SOURCE %q", cfg.CatalogSource))
	}
	if cfg.UsesMySQL() {
		for key, dst := range map[string]*string{"DB_USER": &cfg.DBUser, "DB_HOST": &cfg.DBHost, "DB_NAME": &cfg.DBName} {
			if *dst, err = must(key); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if cfg.HoldTTL <= 0 {
		errs = append(errs, fmt.Errorf("HOLD_TTL must be positive, got %s", cfg.HoldTTL))
	}
	if cfg.HoldMaxTTL < cfg.HoldTTL {
		cfg.HoldMaxTTL = cfg.HoldTTL
	}
	if limit := cfg.HoldTTL / 2; cfg.SweepInterval <= 0 || cfg.SweepInterval > limit {
		cfg.SweepInterval = limit
	}
	if cfg.BookingMaxSeats < 1 {
		cfg.BookingMaxSeats = 1
	}
	return cfg, errors.Join(errs...)
}
