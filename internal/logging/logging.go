// Package logging builds the server's zap logger from configuration.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the "log" section of the configuration file.
type Config struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json or console
	ToStdout   bool   `mapstructure:"to_stdout"`
	ToStderr   bool   `mapstructure:"to_stderr"`
	ToFile     bool   `mapstructure:"to_file"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size"`    // megabytes before rotation
	MaxAge     int    `mapstructure:"max_age"`     // days
	MaxBackups int    `mapstructure:"max_backups"` // rotated files kept
	Compress   bool   `mapstructure:"compress"`
}

// Defaults returns the logging configuration used when none is given.
func Defaults() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		ToStderr:   true,
		MaxSizeMB:  100,
		MaxAge:     28,
		MaxBackups: 3,
	}
}

// New returns a logger writing to every output enabled in cfg. With no
// output enabled it writes to stderr.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
	}

	encoder, err := newEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	if cfg.ToStdout {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level))
	}
	if cfg.ToStderr {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level))
	}
	if cfg.ToFile {
		if cfg.File == "" {
			return nil, fmt.Errorf("logging: to_file set without file")
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator(cfg)), level))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	switch format {
	case "", "json":
		return zapcore.NewJSONEncoder(ec), nil
	case "console":
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(ec), nil
	}
	return nil, fmt.Errorf("logging: unknown format %q", format)
}

func rotator(cfg Config) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}
