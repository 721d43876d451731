package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "github.com/caresignal/triage-platform/internal/config"
	distressworker "github.com/caresignal/triage-platform/internal/worker/distress"
	"github.com/caresignal/triage-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting distress worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := distressworker.Run(ctx, cfg, logger); err != nil {
		logger.Error("distress worker exited", "error", err)
		os.Exit(1)
	}
}
