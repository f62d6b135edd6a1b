// Package logger builds the zap logger for docqa and carries it through contexts.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kailas-cloud/docqa/internal/version"
)

// NewLogger creates a zap logger for the given environment.
// prod writes JSON with service/version fields, local/dev/docker write console output.
// Both go to stderr so CLI output on stdout stays machine-readable.
// level (if non-empty) overrides the default: debug, info, warn, error.
func NewLogger(env, level string) (*zap.Logger, error) {
	var (
		cfg  zap.Config
		opts = []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	)
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		opts = append(opts, zap.Fields(
			zap.String("service", "docqa"),
			zap.String("version", version.Version),
		))
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := cfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
