// Package logging builds the structured zap logger every component of the
// saga core takes through its constructor.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment controls the baseline logger profile.
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentDevelopment Environment = "development"
	EnvironmentLocal       Environment = "local"
)

// Config contains the logger initialization inputs.
type Config struct {
	Environment Environment

	// Level overrides the environment's default log level when set.
	Level string

	// ServiceName is stamped on every entry as the service field.
	ServiceName string
}

func (config Config) validate() error {
	switch config.Environment {
	case EnvironmentProduction, EnvironmentDevelopment, EnvironmentLocal:
		return nil
	default:
		return fmt.Errorf("invalid environment %q", config.Environment)
	}
}

// New creates a structured logger and returns it with a runtime-adjustable
// level handle.
func New(config Config) (*zap.Logger, zap.AtomicLevel, error) {
	if err := config.validate(); err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("invalid logging config: %w", err)
	}

	baseConfig := configFor(config.Environment)

	level, err := resolveLevel(config, baseConfig.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	baseConfig.Level = level
	baseConfig.DisableStacktrace = true

	logger, err := baseConfig.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("building logger: %w", err)
	}

	if config.ServiceName != "" {
		logger = logger.With(zap.String("service", config.ServiceName))
	}

	return logger, level, nil
}

func configFor(environment Environment) zap.Config {
	if environment == EnvironmentProduction {
		return zap.NewProductionConfig()
	}

	config := zap.NewDevelopmentConfig()
	if environment == EnvironmentLocal {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return config
}

func resolveLevel(config Config, fallback zap.AtomicLevel) (zap.AtomicLevel, error) {
	if strings.TrimSpace(config.Level) == "" {
		return fallback, nil
	}

	var parsed zapcore.Level
	if err := parsed.Set(strings.TrimSpace(config.Level)); err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid level %q: %w", config.Level, err)
	}

	return zap.NewAtomicLevelAt(parsed), nil
}
