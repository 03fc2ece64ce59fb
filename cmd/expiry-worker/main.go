package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/bootstrap"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("dev", "info", "expiry-worker")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel, "expiry-worker")
	log.Info().
		Str("env", cfg.Env).
		Str("schedule", cfg.WorkerSchedule).
		Dur("pending_ttl", cfg.AppointmentTTL).
		Msg("expiry-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Open(rootCtx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer app.Close()

	// Run once at startup
	runOnce(rootCtx, app.Service, log)

	// SkipIfStillRunning keeps runs from overlapping when a pass is slow.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.WorkerSchedule, func() { runOnce(rootCtx, app.Service, log) }); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.WorkerSchedule).Msg("invalid WORKER_SCHEDULE")
	}
	c.Start()

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, stopping expiry worker")

	// Wait for an in-flight run to finish.
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, svc *appointment.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	expired, err := svc.ExpirePendingAppointments(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("expiry run error")
		return
	}
	log.Info().
		Int("expired", expired).
		Dur("took", time.Since(start)).
		Msg("expiry run complete")
}
