package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Dev mode switches to the human-readable console encoder.
func New(level string, dev bool) (*zap.Logger, error) {
	cfg, err := Config(level, dev)
	if err != nil {
		return nil, err
	}
	return cfg.Build()
}

// Config is the zap configuration New builds from. An empty level means info.
func Config(level string, dev bool) (zap.Config, error) {
	lvl := zapcore.InfoLevel
	if s := strings.TrimSpace(level); s != "" {
		parsed, err := zapcore.ParseLevel(s)
		if err != nil {
			return zap.Config{}, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg, nil
}
