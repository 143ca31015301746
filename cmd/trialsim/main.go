package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gotrial/app"
	"gotrial/domain/calibration"
	"gotrial/domain/trial"
	"gotrial/internal/config"
	"gotrial/internal/container"
	apperrors "gotrial/internal/errors"
	"gotrial/internal/posterior"
	"gotrial/internal/scenarios"
)

func main() {
	// .env is optional; the environment wins when both are set
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "trialsim",
		Short:         "Bayesian adaptive dose-finding trial simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newSimulateCmd(),
		newCalibrateCmd(),
		newOCCmd(),
		newScenariosCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] %v\n", apperrors.GetCode(err), err)
		os.Exit(1)
	}
}

// setup loads configuration and resolves the design and scenario presets
func setup(cmd *cobra.Command, designName, scenarioName string, samples int) (*container.Container, *trial.Configuration, *trial.Scenario, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := container.New(cfg)
	if err != nil {
		return nil, nil, nil, apperrors.Wrap(err, "failed to initialize")
	}

	design, err := scenarios.LoadDesign(designName)
	if err != nil {
		return nil, nil, nil, apperrors.WithCode(apperrors.CodeInvalidInput, apperrors.Wrapf(err, "design %q", designName))
	}
	scenario, err := scenarios.LoadScenario(scenarioName)
	if err != nil {
		return nil, nil, nil, apperrors.WithCode(apperrors.CodeInvalidInput, apperrors.Wrapf(err, "scenario %q", scenarioName))
	}

	cfg.Posterior.ApplyTo(design)
	if cmd.Flags().Changed("samples") {
		design.NumSamples = samples
	}
	return c, design, scenario, nil
}

func newSimulateCmd() *cobra.Command {
	var designName, scenarioName string
	var seed int64
	var samples int
	var draws bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one simulated trial",
		Long: `Run one trial of a preset design under a preset scenario and print the
full result as JSON.

Example: trialsim simulate --scenario monotone --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, design, scenario, err := setup(cmd, designName, scenarioName, samples)
			if err != nil {
				return err
			}

			var seedPtr *int64
			if cmd.Flags().Changed("seed") {
				seedPtr = &seed
			}
			res, err := c.Runner.Simulate(design, scenario, seedPtr)
			if err != nil {
				return err
			}
			if !draws && res.FinalPosterior != nil {
				compact := posterior.Compact(*res.FinalPosterior)
				res.FinalPosterior = &compact
			}
			return printJSON(res)
		},
	}

	cmd.Flags().StringVar(&designName, "design", "default", "Design preset")
	cmd.Flags().StringVar(&scenarioName, "scenario", "flat", "Scenario preset")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Base seed (default: TRIAL_BASE_SEED or ambient)")
	cmd.Flags().IntVar(&samples, "samples", 0, "Posterior draws per analysis (default: TRIAL_POSTERIOR_SAMPLES, else the preset)")
	cmd.Flags().BoolVar(&draws, "draws", false, "Include posterior draws in the output")

	return cmd
}

func newCalibrateCmd() *cobra.Command {
	var designName, scenarioName, kind, parameter, selection string
	var candidates []float64
	var target float64
	var sims, samples int
	var seed int64

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Search a credibility cutoff that meets a target error rate",
		Long: `Evaluate each candidate cutoff by repeated simulation and select the most
stringent one whose false-positive rate (or early-termination rate, for futility)
meets the target.

Example: trialsim calibrate --scenario flat --kind false-positive --parameter poc \
  --candidates 0.5,0.6,0.7,0.8,0.9 --target 0.1 --sims 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, design, scenario, err := setup(cmd, designName, scenarioName, samples)
			if err != nil {
				return err
			}
			k, err := calibration.ParseKind(kind)
			if err != nil {
				return apperrors.InvalidInput(err.Error())
			}
			p, err := calibration.ParseParameter(parameter)
			if err != nil {
				return apperrors.InvalidInput(err.Error())
			}
			sel, err := calibration.ParseSelection(selection)
			if err != nil {
				return apperrors.InvalidInput(err.Error())
			}

			ctx := cmd.Context()
			if timeout := c.Config.Calibration.Timeout; timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			res, err := c.Calibration.Calibrate(ctx, app.CalibrationRequest{
				Kind:        k,
				Parameter:   p,
				Selection:   sel,
				Candidates:  candidates,
				Target:      target,
				Simulations: sims,
				BaseSeed:    seed,
				Config:      design,
				Scenario:    scenario,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}

	cmd.Flags().StringVar(&designName, "design", "default", "Design preset")
	cmd.Flags().StringVar(&scenarioName, "scenario", "flat", "Scenario preset")
	cmd.Flags().StringVar(&kind, "kind", "false-positive", "Calibration kind: false-positive or futility")
	cmd.Flags().StringVar(&parameter, "parameter", "poc", "Cutoff to vary: poc, safety, efficacy, activity")
	cmd.Flags().StringVar(&selection, "select", "conservative", "Selection rule: conservative (most stringent qualifier) or closest (rate nearest the target)")
	cmd.Flags().Float64SliceVar(&candidates, "candidates", []float64{0.5, 0.6, 0.7, 0.8, 0.9}, "Candidate cutoffs")
	cmd.Flags().Float64Var(&target, "target", 0.1, "Target rate")
	cmd.Flags().IntVar(&sims, "sims", 0, "Simulations per candidate (default: CALIBRATION_SIMULATIONS)")
	cmd.Flags().IntVar(&samples, "samples", 0, "Posterior draws per analysis (default: TRIAL_POSTERIOR_SAMPLES, else the preset)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Base seed of the simulation family")

	return cmd
}

func newOCCmd() *cobra.Command {
	var designName, scenarioName string
	var trials, samples int
	var seed int64

	cmd := &cobra.Command{
		Use:   "oc",
		Short: "Estimate operating characteristics of a design",
		Long: `Simulate a design repeatedly under one scenario and report selection
frequencies, early-termination rate and sample size.

Example: trialsim oc --scenario monotone --trials 200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, design, scenario, err := setup(cmd, designName, scenarioName, samples)
			if err != nil {
				return err
			}
			res, err := c.Calibration.OperatingCharacteristics(cmd.Context(), app.OperatingCharacteristicsRequest{
				Config:   design,
				Scenario: scenario,
				Trials:   trials,
				BaseSeed: seed,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}

	cmd.Flags().StringVar(&designName, "design", "default", "Design preset")
	cmd.Flags().StringVar(&scenarioName, "scenario", "monotone", "Scenario preset")
	cmd.Flags().IntVar(&trials, "trials", 0, "Number of trials (default: CALIBRATION_SIMULATIONS)")
	cmd.Flags().IntVar(&samples, "samples", 0, "Posterior draws per analysis (default: TRIAL_POSTERIOR_SAMPLES, else the preset)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Base seed of the simulation family")

	return cmd
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the embedded design and scenario presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := scenarios.Catalog()
			if err != nil {
				return err
			}
			return printJSON(infos)
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
