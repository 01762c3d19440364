package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"lingualive/internal/config"
	"lingualive/internal/observability/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("lingualive failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Service.LogLevel,
		Format: cfg.Service.LogFormat,
	})

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}
