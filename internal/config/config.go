package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"gotrial/domain/trial"
	"gotrial/internal/errors"
)

// Config represents the complete runtime configuration of the simulator
type Config struct {
	Logging     LoggingConfig
	Posterior   PosteriorConfig
	Calibration CalibrationConfig
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// PosteriorConfig holds posterior sampling settings
type PosteriorConfig struct {
	NumSamples int
	SamplesSet bool   // TRIAL_POSTERIOR_SAMPLES was present
	BaseSeed   *int64 // nil means ambient randomness
}

// ApplyTo overrides a design's sample count and base seed with the values
// given in the environment. Unset variables leave the design untouched.
func (p PosteriorConfig) ApplyTo(design *trial.Configuration) {
	if p.SamplesSet {
		design.NumSamples = p.NumSamples
	}
	if p.BaseSeed != nil {
		seed := *p.BaseSeed
		design.BaseSeed = &seed
	}
}

// CalibrationConfig holds Monte Carlo calibration settings
type CalibrationConfig struct {
	Workers     int
	Simulations int
	Confidence  float64
	Timeout     time.Duration // zero disables the deadline
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Logging: LoggingConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "INFO"),
		},
	}

	posteriorConfig, err := loadPosteriorConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load posterior configuration")
	}
	config.Posterior = *posteriorConfig

	config.Calibration = *loadCalibrationConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadPosteriorConfig() (*PosteriorConfig, error) {
	cfg := &PosteriorConfig{
		NumSamples: getEnvIntOrDefault("TRIAL_POSTERIOR_SAMPLES", 1000),
		SamplesSet: os.Getenv("TRIAL_POSTERIOR_SAMPLES") != "",
	}

	if value := os.Getenv("TRIAL_BASE_SEED"); value != "" {
		seed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, errors.ConfigInvalid("TRIAL_BASE_SEED must be an integer")
		}
		cfg.BaseSeed = &seed
	}

	return cfg, nil
}

func loadCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{
		Workers:     getEnvIntOrDefault("CALIBRATION_WORKERS", runtime.NumCPU()),
		Simulations: getEnvIntOrDefault("CALIBRATION_SIMULATIONS", 1000),
		Confidence:  getEnvFloatOrDefault("CALIBRATION_CONFIDENCE", 0.95),
		Timeout:     getEnvDurationOrDefault("CALIBRATION_TIMEOUT", 0),
	}
}

func validateConfig(config *Config) error {
	if config.Posterior.NumSamples < 10 {
		return errors.ConfigInvalid("TRIAL_POSTERIOR_SAMPLES must be at least 10")
	}
	if config.Calibration.Workers < 1 {
		return errors.ConfigInvalid("CALIBRATION_WORKERS must be positive")
	}
	if config.Calibration.Simulations < 1 {
		return errors.ConfigInvalid("CALIBRATION_SIMULATIONS must be positive")
	}
	if config.Calibration.Confidence <= 0 || config.Calibration.Confidence >= 1 {
		return errors.ConfigInvalid("CALIBRATION_CONFIDENCE must be in (0,1)")
	}
	if config.Calibration.Timeout < 0 {
		return errors.ConfigInvalid("CALIBRATION_TIMEOUT cannot be negative")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
