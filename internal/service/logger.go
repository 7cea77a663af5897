package service

import (
	"log"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. Until InitLogger runs it discards everything.
// Usage: service.Logger.Info("Push stream connected", zap.String("url", url))
var Logger = zap.NewNop()

// InitLogger initializes the production zap logger at the given level.
func InitLogger(level string) {
	config := zap.NewProductionConfig()

	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"
	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	// Dashboard output goes to stdout, logs stay on stderr.
	config.OutputPaths = []string{"stderr"}

	var err error
	Logger, err = config.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
