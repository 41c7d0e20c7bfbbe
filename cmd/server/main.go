package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Tyrowin/presencehub/internal/server"
)

func main() {
	var (
		configPath     = pflag.String("config", "", "optional YAML configuration file")
		port           = pflag.String("port", "", "listen address, e.g. :3000")
		allowedOrigins = pflag.String("allowed-origins", "", "comma-separated WebSocket origins, * allows all")
		defaultCodec   = pflag.String("default-codec", "", "frame codec when the client names none (json, cbor)")
		logLevel       = pflag.String("log-level", "info", "log level (debug, info, warn, error)")
		logFormat      = pflag.String("log-format", "console", "log format (console, json)")
	)
	pflag.Parse()

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging flags: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	cfg := server.DefaultConfig()
	if *configPath != "" {
		if err := server.LoadConfigFile(*configPath, &cfg); err != nil {
			logger.Fatal("failed to load configuration", zap.Error(err))
		}
	}
	server.ApplyEnv(&cfg)
	if pflag.CommandLine.Changed("port") {
		cfg.Port = *port
	}
	if pflag.CommandLine.Changed("allowed-origins") {
		cfg.AllowedOrigins = strings.Split(*allowedOrigins, ",")
	}
	if pflag.CommandLine.Changed("default-codec") {
		cfg.DefaultCodec = *defaultCodec
	}

	srv := server.New(cfg, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		if err := srv.Shutdown(context.Background()); err != nil {
			os.Exit(1)
		}
	}
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel
	return cfg.Build()
}
