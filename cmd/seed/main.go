package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("dev", "info", "seed")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(cfg.Env, cfg.LogLevel, "seed")
	log.Info().Str("store", cfg.StoreDriver).Msg("seed starting")

	doctors := getInt("SEED_DOCTORS", 100)
	patients := getInt("SEED_PATIENTS", 9000)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store seedStore
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConn)
		if err != nil {
			log.Fatal().Err(err).Msg("connect postgres")
		}
		defer pool.Close()
		if err := db.MigratePostgres(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("migrate postgres")
		}
		store = &pgSeedStore{pool: pool}
	default:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("open sqlite")
		}
		defer sqlDB.Close()
		if err := db.MigrateSQLite(ctx, sqlDB); err != nil {
			log.Fatal().Err(err).Msg("migrate sqlite")
		}
		store = &sqliteSeedStore{db: sqlDB, now: time.Now}
	}

	// 0 picks a random seed.
	faker := gofakeit.New(uint64(getInt("SEED_RANDOM", 0)))
	today := calendar.DateOf(time.Now().In(cfg.Location))

	err = seed(context.Background(), store, faker, today, doctors, patients, func(kind string, done, total int) {
		log.Info().Str("kind", kind).Int("done", done).Int("total", total).Msg("seeded batch")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}

	log.Info().Int("doctors", doctors).Int("patients", patients).Msg("seed complete")
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
