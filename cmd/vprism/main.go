// Command vprism wires a default Client from config and runs its health
// checker until interrupted. It exposes no HTTP surface — §1's Non-goals
// place transport/API gateway concerns out of scope for this module; an
// embedding application is expected to call package vprism directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wxxb789/vprism"
	"github.com/wxxb789/vprism/config"
)

func main() {
	fs := flag.NewFlagSet("vprism", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(os.Args[1:])

	loader := config.NewLoader().WithEnvPrefix("VPRISM")
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	client, err := vprism.New(vprism.WithConfig(*cfg), vprism.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to build vprism client", zap.Error(err))
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("vprism client ready", zap.String("database_driver", cfg.Database.Driver))
	client.StartHealthChecker(ctx)
	logger.Info("vprism shutting down")
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
