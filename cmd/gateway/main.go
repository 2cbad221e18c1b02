package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/logging"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/pkg/config"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/pkg/gateway"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := flag.StringP("config", "c", config.DefaultPath, "path to the YAML config file")
	port := flag.IntP("port", "p", 0, "listen port (overrides server.port)")
	logLevel := flag.String("log-level", "", "log level (overrides logging.level)")
	flag.Parse()

	// The logger is built before the gateway so config loading is logged too.
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, logCloser, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	gw, err := gateway.New(
		gateway.WithLogger(logger),
		gateway.WithFileConfig(*configPath),
		gateway.WithPort(*port),
	)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping gateway")
	case serveErr = <-gw.Errors():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return serveErr
}
