package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/segyhp/lending-engine/internal/cache"
	"github.com/segyhp/lending-engine/internal/config"
	"github.com/segyhp/lending-engine/internal/repository"
	"github.com/segyhp/lending-engine/internal/repository/memory"
	"github.com/segyhp/lending-engine/internal/service"
)

// App owns the storage connections and the engine built on them.
// DB is nil with the memory driver and Redis is nil when disabled.
type App struct {
	Config *config.Config
	DB     *sqlx.DB
	Redis  *redis.Client
	Engine *service.Engine
}

// New opens the configured store and cache and wires the engine.
func New(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	deps := service.Dependencies{
		Clock:   service.SystemClock{},
		Options: service.OptionsFromConfig(cfg),
	}

	switch cfg.Database.Driver {
	case config.StorageDriverMemory:
		store := memory.NewStore()
		deps.UoW = store
		deps.Audit = store
		deps.KYC = store
		log.Warn().Msg("Using in-memory store, data is lost on restart")
	default:
		db, err := initDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("initialize database: %w", err)
		}
		a.DB = db
		deps.UoW = repository.NewSQLUnitOfWork(db)
		deps.Audit = repository.NewAuditRepository(db)
		deps.KYC = repository.NewKYCRepository(db)
	}

	rdb, err := cache.OpenRedis(cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize redis: %w", err)
	}
	if rdb != nil {
		a.Redis = rdb
		deps.Cache = cache.NewLoanCache(rdb, cfg.CacheTTL())
	}

	a.Engine = service.NewEngine(deps)
	return a, nil
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	log.Info().
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.Name).
		Msg("Connected to Postgres")
	return db, nil
}

// Close releases the connections; safe to call on a partially built App.
func (a *App) Close() {
	cache.CloseRedis(a.Redis)
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
			return
		}
		log.Info().Msg("Database connection closed")
	}
}
