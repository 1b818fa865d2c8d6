// parasite-coordinator runs an in-memory coordinator for local development.
// Nothing it stores survives a restart.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/parasite-protocol/agent/internal/config"
	"github.com/parasite-protocol/agent/internal/coordinator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    string
		listenAddr    string
		requireAPIKey bool
	)

	flagSet := pflag.NewFlagSet("parasite-coordinator", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (default: $PARASITE_CONFIG)")
	flagSet.StringVar(&listenAddr, "listen", "", "listen address (default from config, 127.0.0.1:8000)")
	flagSet.BoolVar(&requireAPIKey, "require-api-key", false, "reject proposals and decisions without a valid X-API-Key")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if flagSet.Changed("require-api-key") {
		cfg.RequireAPIKey = requireAPIKey
	}

	logger, err := config.NewLogger(cfg, "coordinator")
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	logger.Info("starting parasite-coordinator",
		"version", config.Version,
		"build_time", config.BuildTime,
		"require_api_key", cfg.RequireAPIKey,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := coordinator.New(cfg.ListenAddr, coordinator.NewRegistry(), cfg.RequireAPIKey, logger)
	if err := server.Run(ctx); err != nil {
		return err
	}

	logger.Info("coordinator stopped cleanly")
	return nil
}
