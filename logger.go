package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the console logger shared by all commands. Verbose runs
// log everything at debug level; otherwise only entries at or above floor are
// written.
func newLogger(verbose bool, floor zapcore.Level) (*zap.Logger, error) {
	level := floor
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          "console",
		EncoderConfig:     zap.NewDevelopmentEncoderConfig(),
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}
