package container

import (
	"fmt"

	"gotrial/adapters/rng"
	"gotrial/app"
	"gotrial/internal"
	"gotrial/internal/config"
	"gotrial/internal/posterior"
	"gotrial/internal/sampler"
	"gotrial/ports"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Adapters
	RNG     ports.RNGPort
	Sampler ports.OutcomeSampler

	// Core
	Engine *posterior.Engine
	Runner *app.TrialRunner

	// Services
	Calibration *app.CalibrationService
}

// New wires the simulator from a loaded configuration
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	logger := internal.NewLogger(internal.ParseLogLevel(cfg.Logging.Level))

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		RNG:     rng.NewPCGAdapter(),
		Sampler: sampler.NewCopulaSampler(),
		Engine:  posterior.NewEngine(),
	}
	c.Runner = app.NewTrialRunner(c.Sampler, c.RNG, c.Engine, logger)
	c.Calibration = app.NewCalibrationService(c.Runner, cfg.Calibration, logger)

	logger.Debug("container ready: %d posterior samples, %d calibration workers",
		cfg.Posterior.NumSamples, cfg.Calibration.Workers)
	return c, nil
}
