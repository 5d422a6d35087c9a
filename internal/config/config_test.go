package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, StorageDriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "RWF", cfg.Business.Currency)
	assert.True(t, cfg.StartingBalance().Equal(decimal.RequireFromString("10000")))
	assert.True(t, cfg.MinDeposit().Equal(decimal.NewFromInt(100)))
	assert.True(t, cfg.MaxLoanAmount().Equal(decimal.NewFromInt(10000000)))
	assert.True(t, cfg.Business.RequireKYC)
	assert.Equal(t, 3, cfg.Business.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.RetryBackoff())
	assert.Equal(t, 30*time.Second, cfg.CacheTTL())
	assert.Equal(t, 5*time.Minute, cfg.IdempotencyTTL())
	assert.Equal(t, 5*time.Second, cfg.GetHealthTimeout())
	assert.Equal(t, "Africa/Kigali", cfg.Location().String())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("REQUIRE_KYC", "false")
	t.Setenv("WALLET_STARTING_BALANCE", "0")
	t.Setenv("CONFLICT_MAX_RETRIES", "5")
	t.Setenv("SCHEDULER_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageDriverMemory, cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Business.RequireKYC)
	assert.True(t, cfg.StartingBalance().IsZero())
	assert.Equal(t, 5, cfg.Business.MaxRetries)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mongo" }, wantErr: "STORAGE_DRIVER"},
		{name: "memory needs no host", mutate: func(c *Config) {
			c.Database.Driver = StorageDriverMemory
			c.Database.Host = ""
		}},
		{name: "postgres needs a host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: "DATABASE_URL or DATABASE_HOST"},
		{name: "currency code", mutate: func(c *Config) { c.Business.Currency = "RW" }, wantErr: "CURRENCY"},
		{name: "negative retries", mutate: func(c *Config) { c.Business.MaxRetries = -1 }, wantErr: "CONFLICT_MAX_RETRIES"},
		{name: "malformed decimal", mutate: func(c *Config) { c.Business.MinDeposit = "ten" }, wantErr: "MIN_DEPOSIT"},
		{name: "negative decimal", mutate: func(c *Config) { c.Business.StartingBalance = "-1" }, wantErr: "WALLET_STARTING_BALANCE"},
		{name: "deposit range inverted", mutate: func(c *Config) { c.Business.MinDeposit = "2000000" }, wantErr: "MIN_DEPOSIT must not exceed"},
		{name: "loan range inverted", mutate: func(c *Config) { c.Business.MinLoanAmount = "20000000" }, wantErr: "MIN_LOAN_AMOUNT"},
		{name: "rate range inverted", mutate: func(c *Config) { c.Business.MinInterestRate = "25" }, wantErr: "MIN_INTEREST_RATE"},
		{name: "bad duration", mutate: func(c *Config) { c.Redis.CacheTTL = "soon" }, wantErr: "REDIS_CACHE_TTL"},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, wantErr: "SCHEDULER_TIMEZONE"},
		{name: "production needs secret", mutate: func(c *Config) { c.Server.Env = "production" }, wantErr: "JWT_SECRET"},
		{name: "production with secret", mutate: func(c *Config) {
			c.Server.Env = "production"
			c.Auth.JWTSecret = "s3cret"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", Name: "lending", User: "app", Password: "p@ss", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/lending?sslmode=disable", d.DSN())

	d.URL = "postgres://override"
	assert.Equal(t, "postgres://override", d.DSN())
}
