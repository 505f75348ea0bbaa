// Command studiobot runs a single-symbol market-making or trend-following
// engine against the Studio trading API. It loads configuration, validates
// it, sets up signal handling and runs until interrupted or halted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/studiobot/internal/app"
	"github.com/alanyoungcy/studiobot/internal/config"
	"github.com/alanyoungcy/studiobot/internal/domain"
)

const defaultConfigPath = "config.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	mode := flag.String("mode", "", "strategy: maker or taker (overrides config)")
	symbol := flag.String("symbol", "", "symbol to trade (overrides config)")
	trigger := flag.String("trigger", "", "taker trigger symbol (overrides config)")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// The default path is optional; an explicit one must exist.
	path := *configPath
	if !flagSet("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	config.Overrides{Mode: *mode, Symbol: *symbol, TriggerSymbol: *trigger}.Apply(cfg)

	// Set log level from config.
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("studiobot starting",
		slog.String("mode", cfg.Mode),
		slog.String("symbol", cfg.Engine.Symbol),
		slog.String("config", path),
	)

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = application.Run(ctx)
	application.Close()

	var halt *domain.HaltError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("studiobot stopped")
	case errors.As(err, &halt):
		logger.Error("engine halted", slog.String("error", halt.Error()))
		os.Exit(1)
	default:
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
