package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/identity"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logging"
)

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("dev", "info", "simulate")
		bootLog.Fatal().Err(err).Msg("failed to load base config")
	}
	log := logging.New(baseCfg.Env, baseCfg.LogLevel, "simulate")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dataPool, err := loadDataPool(ctx, baseCfg, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("doctors", len(dataPool.Doctors)).Int("patients", len(dataPool.Patients)).Msg("loaded data pool")

	sim := NewSimulator(cfg, dataPool, identity.NewTokens([]byte(baseCfg.JWTSecret), baseCfg.JWTIssuer), log)

	var race *RaceResult
	if cfg.RaceContenders > 1 {
		race, err = sim.RaceRound(ctx)
		if err != nil {
			log.Error().Err(err).Msg("race round skipped")
		}
	}

	sim.Run()
	sim.PrintReport(race)

	if race != nil && !race.OK() {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.4),
		ConfirmRatio:   getFloat("SIM_CONFIRM_RATIO", 0.2),
		CancelRatio:    getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit:    getInt("SIM_DOCTOR_LIMIT", 100),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 4000),
		RaceContenders: getInt("SIM_RACE_CONTENDERS", 20),
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	if cfg.DoctorLimit <= 0 || cfg.PatientLimit <= 0 {
		return errors.New("SIM_DOCTOR_LIMIT and SIM_PATIENT_LIMIT must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, base config.Config, cfg SimConfig) (*DataPool, error) {
	var (
		dataPool = &DataPool{}
		err      error
	)

	switch base.StoreDriver {
	case config.DriverPostgres:
		var pool *pgxpool.Pool
		pool, err = db.ConnectPostgres(ctx, base.PostgresDSN, 2)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		if dataPool.Doctors, err = pgIDs(ctx, pool, `SELECT id FROM doctors ORDER BY id LIMIT $1`, cfg.DoctorLimit); err != nil {
			return nil, fmt.Errorf("load doctors: %w", err)
		}
		if dataPool.Patients, err = pgIDs(ctx, pool, `SELECT id FROM patients ORDER BY id LIMIT $1`, cfg.PatientLimit); err != nil {
			return nil, fmt.Errorf("load patients: %w", err)
		}
	default:
		var sqlDB *sql.DB
		sqlDB, err = db.OpenSQLite(ctx, base.SQLitePath)
		if err != nil {
			return nil, err
		}
		defer sqlDB.Close()
		if dataPool.Doctors, err = sqliteIDs(ctx, sqlDB, `SELECT id FROM doctors ORDER BY id LIMIT ?`, cfg.DoctorLimit); err != nil {
			return nil, fmt.Errorf("load doctors: %w", err)
		}
		if dataPool.Patients, err = sqliteIDs(ctx, sqlDB, `SELECT id FROM patients ORDER BY id LIMIT ?`, cfg.PatientLimit); err != nil {
			return nil, fmt.Errorf("load patients: %w", err)
		}
	}

	if len(dataPool.Doctors) == 0 {
		return nil, errors.New("no doctors loaded")
	}
	if len(dataPool.Patients) == 0 {
		return nil, errors.New("no patients loaded")
	}

	return dataPool, nil
}

func pgIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func sqliteIDs(ctx context.Context, sqlDB *sql.DB, query string, limit int) ([]uuid.UUID, error) {
	rows, err := sqlDB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("stored id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
