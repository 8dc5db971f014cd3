package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func (c LogConfig) level() (zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger: JSON for production, a colored console encoder for development
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = level

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("kiosk"), nil
}
