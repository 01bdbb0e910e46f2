// Package logging builds the zap loggers used by the command line tool.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "SECURE_CHANNEL_LOG_LEVEL"

// New returns a development style logger with capitalized, colored levels.
func New(level string) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	config.DisableStacktrace = true

	return config.Build()
}

// ParseLevel maps a level name to a zap level. Unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// LevelFromEnv returns the level set in EnvLevel, or fallback.
func LevelFromEnv(fallback string) string {
	level := strings.TrimSpace(os.Getenv(EnvLevel))
	if level == "" {
		level = fallback
	}
	return strings.ToLower(level)
}
