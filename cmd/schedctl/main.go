package main

import (
	"os"

	"github.com/hackgods/doctor-appointment-scheduling/internal/cli"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("dev", "info", "schedctl")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	cli.Execute(&cli.App{
		Config: cfg,
		// Command output owns stdout.
		Log: logging.NewWithWriter(os.Stderr, cfg.Env, cfg.LogLevel, "schedctl"),
	})
}
