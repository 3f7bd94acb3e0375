package main

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"command-changelog/config"
)

// newLogger собирает корневой логгер по LOG_LEVEL и LOG_FORMAT.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var logConfig zap.Config
	switch cfg.Format {
	case "", "json":
		logConfig = zap.NewProductionConfig()
	case "console":
		logConfig = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)

	return logConfig.Build()
}
