package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"xrpl-lp-bot/internal/app"
	"xrpl-lp-bot/internal/config"
	"xrpl-lp-bot/internal/logging"
	"xrpl-lp-bot/internal/risk"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.String("path", *configPath))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	log.Info("app initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Strategy.ShutdownGrace)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}

	switch {
	case runErr == nil, errors.Is(runErr, context.Canceled):
	case errors.Is(runErr, risk.ErrEmergencyShutdown):
		log.Error("trading halted by emergency shutdown")
		os.Exit(2)
	default:
		log.Error("app terminated", zap.Error(runErr))
		os.Exit(1)
	}
}
