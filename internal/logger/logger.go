package logger

import "go.uber.org/zap"

// Log is used across services and workers, it is no-op until Initialize is called
var Log = zap.NewNop()

// Initialize creates logger with log level and sets it as Log
func Initialize(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	Log = zl
	return zl, nil
}
