package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger is the process-wide logger set by Init
var logger *zap.Logger

// New builds a logger with the given level and format. json selects the
// production encoder, anything else a console encoder.
func New(level, format string) (*zap.Logger, error) {
	var config zap.Config

	if format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.Encoding = "console"
		config.DisableStacktrace = true
	}

	zapLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "msg"
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	// progress bars own stdout
	config.OutputPaths = []string{"stderr"}

	built, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return built, nil
}

// Init initializes the process-wide logger
func Init(level, format string) error {
	built, err := New(level, format)
	if err != nil {
		return err
	}
	logger = built
	zap.ReplaceGlobals(built)
	return nil
}

// parseLevel converts string log level to zapcore.Level
func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// Sync flushes any buffered log entries
func Sync() error {
	if logger != nil {
		err := logger.Sync()
		// stderr cannot be synced on some platforms
		if pathErr, ok := err.(*os.PathError); ok && pathErr.Path == "/dev/stderr" {
			return nil
		}
		return err
	}
	return nil
}

// Get returns the process-wide logger, or a no-op logger before Init
func Get() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
