package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agentmux/internal/adapter/gateway"
	"agentmux/internal/adapter/runner"
	"agentmux/internal/infra/config"
	"agentmux/internal/infra/logger"
	"agentmux/internal/infra/tracer"
	"agentmux/internal/usecase/multiplex"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := "config.yaml"
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--config" && i+1 < len(os.Args) {
			cfgPath = os.Args[i+1]
			i++
		}
	}

	var cfg *config.Config
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	registry, err := runner.Build(cfg.Runners, log)
	if err != nil {
		return fmt.Errorf("runners: %w", err)
	}
	dispatcher := multiplex.New(registry, log)

	srv := gateway.NewServer(registry, dispatcher, cfg.Gateway, log)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	log.Info("gateway stopped")
	return nil
}
