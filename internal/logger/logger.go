// Package logger builds the process logger and carries request-scoped loggers in contexts.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates the jobfed logger for an environment: JSON in prod, colored
// console elsewhere. Output goes to stderr so `jobfed search` owns stdout.
// A non-empty level (debug, info, warn, error) overrides the environment default.
func NewLogger(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker", "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l.Named("jobfed"), nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Field keys shared by every component so one search can be followed across log lines.
const (
	KeySearchID  = "search_id"
	KeyRequester = "requester"
	KeySource    = "source"
	KeyWave      = "wave"
)

// SearchID tags a line with the search run id.
func SearchID(id string) zap.Field { return zap.String(KeySearchID, id) }

// Requester tags a line with the requester id.
func Requester(id string) zap.Field { return zap.String(KeyRequester, id) }

// Source tags a line with a source id.
func Source(id string) zap.Field { return zap.String(KeySource, id) }

// Wave tags a line with the progressive wave number.
func Wave(n int) zap.Field { return zap.Int(KeyWave, n) }
