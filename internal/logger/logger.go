// Package logger builds the process-wide zap logger and provides helpers for
// structured inference fields and log-safe truncation of prompt material.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the shared logger. Console encoding is for interactive runs,
// json for scheduled ones. Debug enables per-node walk logging, which gets
// noisy on large backlogs.
func New(json bool, debug bool) (*zap.Logger, error) {
	encoding := "console"
	if json {
		encoding = "json"
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            level,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:   "msg",
			LevelKey:     "level",
			TimeKey:      "time",
			CallerKey:    "caller",
			EncodeLevel:  zapcore.LowercaseLevelEncoder,
			EncodeTime:   zapcore.ISO8601TimeEncoder,
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}

	return cfg.Build()
}

// TruncateForLog shortens the provided string to the given rune limit,
// appending an ellipsis when truncated. Prompt and response previews go
// through it so debug logs stay readable.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
