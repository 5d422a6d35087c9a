package config

import (
	"fmt"
	"net/url"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:",squash"`
	Database  DatabaseConfig  `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Logging   LoggingConfig   `mapstructure:",squash"`
	Auth      AuthConfig      `mapstructure:",squash"`
	Business  BusinessConfig  `mapstructure:",squash"`
	Health    HealthConfig    `mapstructure:",squash"`
}

type ServerConfig struct {
	Port         string `mapstructure:"SERVER_PORT"`
	Host         string `mapstructure:"SERVER_HOST"`
	Env          string `mapstructure:"ENV"`
	ReadTimeout  string `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout string `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"STORAGE_DRIVER"`
	URL             string `mapstructure:"DATABASE_URL"`
	Host            string `mapstructure:"DATABASE_HOST"`
	Port            string `mapstructure:"DATABASE_PORT"`
	Name            string `mapstructure:"DATABASE_NAME"`
	User            string `mapstructure:"DATABASE_USER"`
	Password        string `mapstructure:"DATABASE_PASSWORD"`
	SSLMode         string `mapstructure:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime string `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	Enabled        bool   `mapstructure:"REDIS_ENABLED"`
	Host           string `mapstructure:"REDIS_HOST"`
	Port           string `mapstructure:"REDIS_PORT"`
	Password       string `mapstructure:"REDIS_PASSWORD"`
	DB             int    `mapstructure:"REDIS_DB"`
	CacheTTL       string `mapstructure:"REDIS_CACHE_TTL"`
	IdempotencyTTL string `mapstructure:"IDEMPOTENCY_TTL"`
}

type SchedulerConfig struct {
	ReconcileSpec string `mapstructure:"SCHEDULER_RECONCILE_SPEC"`
	DueReportSpec string `mapstructure:"SCHEDULER_DUE_REPORT_SPEC"`
	DueWindowDays int    `mapstructure:"SCHEDULER_DUE_WINDOW_DAYS"`
	Timezone      string `mapstructure:"SCHEDULER_TIMEZONE"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
	File   string `mapstructure:"LOG_FILE"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"JWT_SECRET"`
}

type BusinessConfig struct {
	Currency        string `mapstructure:"CURRENCY"`
	StartingBalance string `mapstructure:"WALLET_STARTING_BALANCE"`
	MinDeposit      string `mapstructure:"MIN_DEPOSIT"`
	MaxDeposit      string `mapstructure:"MAX_DEPOSIT"`
	MinLoanAmount   string `mapstructure:"MIN_LOAN_AMOUNT"`
	MaxLoanAmount   string `mapstructure:"MAX_LOAN_AMOUNT"`
	MinInterestRate string `mapstructure:"MIN_INTEREST_RATE"`
	MaxInterestRate string `mapstructure:"MAX_INTEREST_RATE"`
	RequireKYC      bool   `mapstructure:"REQUIRE_KYC"`
	MaxRetries      int    `mapstructure:"CONFLICT_MAX_RETRIES"`
	RetryBackoff    string `mapstructure:"CONFLICT_RETRY_BACKOFF"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":                "8080",
	"SERVER_HOST":                "0.0.0.0",
	"ENV":                        "development",
	"SERVER_READ_TIMEOUT":        "15s",
	"SERVER_WRITE_TIMEOUT":       "15s",
	"STORAGE_DRIVER":             StorageDriverPostgres,
	"DATABASE_URL":               "",
	"DATABASE_HOST":              "localhost",
	"DATABASE_PORT":              "5432",
	"DATABASE_NAME":              "lending_engine",
	"DATABASE_USER":              "postgres",
	"DATABASE_PASSWORD":          "postgres",
	"DATABASE_SSLMODE":           "disable",
	"DATABASE_MAX_OPEN_CONNS":    25,
	"DATABASE_MAX_IDLE_CONNS":    5,
	"DATABASE_CONN_MAX_LIFETIME": "30m",
	"REDIS_ENABLED":              true,
	"REDIS_HOST":                 "localhost",
	"REDIS_PORT":                 "6379",
	"REDIS_PASSWORD":             "",
	"REDIS_DB":                   0,
	"REDIS_CACHE_TTL":            "30s",
	"IDEMPOTENCY_TTL":            "5m",
	"SCHEDULER_RECONCILE_SPEC":   "0 0 * * * *",
	"SCHEDULER_DUE_REPORT_SPEC":  "0 0 8 * * *",
	"SCHEDULER_DUE_WINDOW_DAYS":  3,
	"SCHEDULER_TIMEZONE":         "Africa/Kigali",
	"LOG_LEVEL":                  "info",
	"LOG_FORMAT":                 "json",
	"LOG_FILE":                   "",
	"JWT_SECRET":                 "",
	"CURRENCY":                   "RWF",
	"WALLET_STARTING_BALANCE":    "10000.00",
	"MIN_DEPOSIT":                "100",
	"MAX_DEPOSIT":                "1000000",
	"MIN_LOAN_AMOUNT":            "1000",
	"MAX_LOAN_AMOUNT":            "10000000",
	"MIN_INTEREST_RATE":          "1",
	"MAX_INTEREST_RATE":          "20",
	"REQUIRE_KYC":                true,
	"CONFLICT_MAX_RETRIES":       3,
	"CONFLICT_RETRY_BACKOFF":     "20ms",
	"HEALTH_CHECK_TIMEOUT":       "5s",
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Read from environment variables
	v.AutomaticEnv()

	// Try to read from .env file (optional)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Database.Driver {
	case StorageDriverPostgres:
		if c.Database.URL == "" && c.Database.Host == "" {
			return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q", StorageDriverPostgres, StorageDriverMemory)
	}

	if c.Business.Currency == "" || len(c.Business.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3-letter code")
	}

	if c.Business.MaxRetries < 0 {
		return fmt.Errorf("CONFLICT_MAX_RETRIES must not be negative")
	}

	decimals := map[string]string{
		"WALLET_STARTING_BALANCE": c.Business.StartingBalance,
		"MIN_DEPOSIT":             c.Business.MinDeposit,
		"MAX_DEPOSIT":             c.Business.MaxDeposit,
		"MIN_LOAN_AMOUNT":         c.Business.MinLoanAmount,
		"MAX_LOAN_AMOUNT":         c.Business.MaxLoanAmount,
		"MIN_INTEREST_RATE":       c.Business.MinInterestRate,
		"MAX_INTEREST_RATE":       c.Business.MaxInterestRate,
	}
	for key, raw := range decimals {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%s must be a valid decimal: %w", key, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	if c.MinDeposit().GreaterThan(c.MaxDeposit()) {
		return fmt.Errorf("MIN_DEPOSIT must not exceed MAX_DEPOSIT")
	}
	if c.MinLoanAmount().GreaterThan(c.MaxLoanAmount()) {
		return fmt.Errorf("MIN_LOAN_AMOUNT must not exceed MAX_LOAN_AMOUNT")
	}
	if c.MinInterestRate().GreaterThan(c.MaxInterestRate()) {
		return fmt.Errorf("MIN_INTEREST_RATE must not exceed MAX_INTEREST_RATE")
	}

	durations := map[string]string{
		"SERVER_READ_TIMEOUT":        c.Server.ReadTimeout,
		"SERVER_WRITE_TIMEOUT":       c.Server.WriteTimeout,
		"DATABASE_CONN_MAX_LIFETIME": c.Database.ConnMaxLifetime,
		"REDIS_CACHE_TTL":            c.Redis.CacheTTL,
		"IDEMPOTENCY_TTL":            c.Redis.IdempotencyTTL,
		"CONFLICT_RETRY_BACKOFF":     c.Business.RetryBackoff,
		"HEALTH_CHECK_TIMEOUT":       c.Health.Timeout,
	}
	for key, raw := range durations {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid location: %w", err)
	}

	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// DSN returns the Postgres connection string, preferring DATABASE_URL when set
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// RedisAddr returns host:port for the Redis client
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

func (c *Config) StartingBalance() decimal.Decimal { return mustDecimal(c.Business.StartingBalance) }
func (c *Config) MinDeposit() decimal.Decimal      { return mustDecimal(c.Business.MinDeposit) }
func (c *Config) MaxDeposit() decimal.Decimal      { return mustDecimal(c.Business.MaxDeposit) }
func (c *Config) MinLoanAmount() decimal.Decimal   { return mustDecimal(c.Business.MinLoanAmount) }
func (c *Config) MaxLoanAmount() decimal.Decimal   { return mustDecimal(c.Business.MaxLoanAmount) }
func (c *Config) MinInterestRate() decimal.Decimal { return mustDecimal(c.Business.MinInterestRate) }
func (c *Config) MaxInterestRate() decimal.Decimal { return mustDecimal(c.Business.MaxInterestRate) }

func (c *Config) ReadTimeout() time.Duration     { return mustDuration(c.Server.ReadTimeout) }
func (c *Config) WriteTimeout() time.Duration    { return mustDuration(c.Server.WriteTimeout) }
func (c *Config) ConnMaxLifetime() time.Duration { return mustDuration(c.Database.ConnMaxLifetime) }
func (c *Config) CacheTTL() time.Duration        { return mustDuration(c.Redis.CacheTTL) }
func (c *Config) IdempotencyTTL() time.Duration  { return mustDuration(c.Redis.IdempotencyTTL) }
func (c *Config) RetryBackoff() time.Duration    { return mustDuration(c.Business.RetryBackoff) }

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	return mustDuration(c.Health.Timeout)
}

// Location returns the scheduler timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func mustDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Default returns a validated configuration built only from defaults, suitable for tests.
func Default() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}
