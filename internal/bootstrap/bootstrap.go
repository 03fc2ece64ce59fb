// Package bootstrap wires the store, Redis, the event publisher and the
// appointment service from configuration. Every binary starts here.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/api"
	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/events"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
	"github.com/hackgods/doctor-appointment-scheduling/internal/slotcache"
)

// App holds the opened dependencies. Exactly one of PgPool and SQLDB is set.
type App struct {
	Config    config.Config
	PgPool    *pgxpool.Pool
	SQLDB     *sql.DB
	Redis     *redis.Client // nil when REDIS_ADDR is empty
	Publisher events.Publisher
	Service   *appointment.Service
	SlotCache *slotcache.Cache // nil when Redis or the cache TTL is off
	Checks    []api.DependencyCheck

	log zerolog.Logger
}

// Open connects to the configured store, applies migrations and builds the
// service. On error everything opened so far is closed.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (app *App, err error) {
	app = &App{Config: cfg, log: log}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	var (
		repo     appointment.Repository
		provider availability.Provider
	)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, cfg.PostgresMaxConn)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		app.PgPool = pool
		if err := db.MigratePostgres(connectCtx, pool); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		repo = appointment.NewPgRepository(pool)
		provider = availability.NewPgProvider(pool)
		app.Checks = append(app.Checks, api.PostgresCheck(pool))
		log.Info().Msg("connected to Postgres")
	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(connectCtx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
		app.SQLDB = sqlDB
		if err := db.MigrateSQLite(connectCtx, sqlDB); err != nil {
			return nil, fmt.Errorf("sqlite migrations: %w", err)
		}
		repo = appointment.NewSQLiteRepository(sqlDB)
		provider = availability.NewSQLiteProvider(sqlDB)
		app.Checks = append(app.Checks, api.SQLiteCheck(sqlDB))
		log.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	var locker redisclient.Locker
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(connectCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		app.Redis = rdb
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		app.Checks = append(app.Checks, api.RedisCheck(rdb))
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	} else {
		locker = redisclient.NewLocalLocker(cfg.LockTTL)
		log.Warn().Msg("REDIS_ADDR not set, slot locks are process-local")
	}

	if cfg.AMQPURL != "" {
		pub, err := events.NewRabbitMQPublisher(cfg.AMQPURL, log)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq connection: %w", err)
		}
		app.Publisher = pub
		log.Info().Msg("connected to RabbitMQ")
	} else {
		app.Publisher = events.NewNoopPublisher(log)
	}

	app.Service = appointment.NewService(repo, provider, locker, app.Publisher, cfg, log)

	if app.Redis != nil && cfg.SlotCacheTTL > 0 {
		app.SlotCache = slotcache.New(app.Redis, app.Service, cfg.SlotCacheTTL, log)
		app.Service.WithSlotInvalidator(app.SlotCache)
	}

	return app, nil
}

// Close releases everything Open acquired. Safe on a partially opened App.
func (a *App) Close() {
	if a == nil {
		return
	}
	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.SQLDB != nil {
		errs = append(errs, a.SQLDB.Close())
	}
	if a.PgPool != nil {
		a.PgPool.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Error().Err(err).Msg("error closing dependencies")
	}
}
