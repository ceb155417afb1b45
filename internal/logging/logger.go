// Package logging builds the zap loggers used across the replicator.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Can be one of:
//   - Prod
//   - Dev
//   - Staging
type Environment int

const (
	_ Environment = iota
	Prod
	Dev
	Staging
)

// String returns the environment name accepted by ParseEnvironment.
func (e Environment) String() string {
	switch e {
	case Prod:
		return "prod"
	case Dev:
		return "dev"
	case Staging:
		return "staging"
	default:
		return "unknown"
	}
}

// ParseEnvironment resolves an environment name. The empty string means Prod.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(s) {
	case "", "prod", "production":
		return Prod, nil
	case "dev", "development":
		return Dev, nil
	case "staging":
		return Staging, nil
	default:
		return 0, fmt.Errorf("unknown log environment %q", s)
	}
}

// New creates a JSON logger for prod and staging at info level, and a
// console logger at debug level for dev.
func New(env Environment) (*zap.Logger, error) {
	var cfg zap.Config

	switch env {
	case Dev:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case Prod, Staging:
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	default:
		return nil, fmt.Errorf("unknown log environment %d", env)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.With(zap.String("env", env.String())), nil
}
