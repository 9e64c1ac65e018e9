package main

import (
	"fmt"
	"os"

	"agentmux/internal/adapter/mcpserver"
	"agentmux/internal/adapter/runner"
	"agentmux/internal/infra/config"
	"agentmux/internal/infra/logger"
	"agentmux/internal/usecase/multiplex"
)

const version = "0.1.0"

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

	// MCP clients own stdout; logs must go to stderr or a file.
	if cfg.Logger.Output == "" || cfg.Logger.Output == "stdout" {
		cfg.Logger.Output = "stderr"
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	registry, err := runner.Build(cfg.Runners, log)
	if err != nil {
		return fmt.Errorf("runners: %w", err)
	}
	dispatcher := multiplex.New(registry, log)

	log.Info("mcp server starting", "providers", registry.Names())
	return mcpserver.New(version, registry, dispatcher, log).Serve()
}
