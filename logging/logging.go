// Package logging provides structured logging for the engine using
// go.uber.org/zap.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

var (
	defaultLogger     *zap.Logger
	defaultLoggerOnce sync.Once
	defaultLoggerMu   sync.Mutex
)

// Default returns the process-wide logger, lazily initialized at info level
// with console output.
func Default() *zap.Logger {
	defaultLoggerOnce.Do(func() {
		defaultLoggerMu.Lock()
		defer defaultLoggerMu.Unlock()
		if defaultLogger != nil {
			return
		}
		l, err := New(Config{Level: "info", Format: "console", OutputPath: "stderr"})
		if err != nil {
			l = zap.NewNop()
		}
		defaultLogger = l
	})
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *zap.Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

// New builds a logger from the given configuration.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	zapCfg := zap.Config{
		Level:         zap.NewAtomicLevelAt(level),
		Encoding:      encoding(cfg.Format),
		EncoderConfig: encoderConfig,
		OutputPaths:   []string{outputPath(cfg.OutputPath)},
		ErrorOutputPaths: []string{
			"stderr",
		},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func encoding(format string) string {
	switch format {
	case "console", "text":
		return "console"
	default:
		return "json"
	}
}

func outputPath(p string) string {
	if p == "" {
		return "stderr"
	}
	return p
}
