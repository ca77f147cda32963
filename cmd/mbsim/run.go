package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/mbsim/internal/analysis"
	"github.com/san-kum/mbsim/internal/config"
	"github.com/san-kum/mbsim/internal/experiment"
	"github.com/san-kum/mbsim/internal/sim"
	"github.com/san-kum/mbsim/internal/store"
	"github.com/san-kum/mbsim/internal/tui"
)

func setup(cmd *cobra.Command, model string) (*config.Config, *experiment.Experiment, error) {
	cfg, err := resolveConfig(cmd, model)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	exp := experiment.New(cfg, logger)
	if err := exp.Setup(); err != nil {
		return nil, nil, err
	}
	return cfg, exp, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, exp, err := setup(cmd, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("running %s simulation...\n", cfg.Model)
	start := time.Now()
	result, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	st := store.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(store.RunMetadata{
		Model:          cfg.Model,
		Seed:           cfg.Seed,
		Dt:             cfg.Dt,
		Duration:       cfg.Duration,
		Integrator:     cfg.Integrator,
		Adaptive:       cfg.Adaptive,
		UseEulerAngles: cfg.UseEulerAngles,
		Params:         exp.Model().Params,
	}, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	printResult(result)
	return nil
}

func printResult(result *sim.Result) {
	fmt.Printf("steps: %d", result.StepsTaken)
	if result.RejectedSteps > 0 {
		fmt.Printf(" (%d rejected)", result.RejectedSteps)
	}
	fmt.Println()
	fmt.Printf("energy drift: %.3e\n", result.EnergyDrift)
	if result.ProjectionFailures > 0 {
		fmt.Printf("projection failures: %d\n", result.ProjectionFailures)
	}
	for _, err := range result.Errors {
		fmt.Printf("error: %v\n", err)
	}
	if len(result.Metrics) == 0 {
		return
	}
	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6g\n", name, result.Metrics[name])
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, exp, err := setup(cmd, args[0])
	if err != nil {
		return err
	}
	r := tui.NewLiveRenderer(cfg.Model, exp.Model().System, frameRate)
	r.SetRealtime(true)
	exp.Simulator().AddObserver(r)

	r.Start()
	result, err := exp.Run(cmd.Context())
	r.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if result != nil {
		fmt.Println()
		printResult(result)
	}
	return nil
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, exp, err := setup(cmd, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("running %d perturbed %s simulations (spread %g)...\n", cfg.Ensemble.Runs, cfg.Model, cfg.Ensemble.Spread)
	start := time.Now()
	results, err := exp.RunEnsemble(cmd.Context())
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "some runs failed: %v\n", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTEPS\tENERGY DRIFT\tPROJ FAILS\tFINAL q0")
	var drifts []float64
	for i, r := range results {
		if r == nil {
			fmt.Fprintf(w, "%d\t-\t-\t-\t-\n", i)
			continue
		}
		q0 := math.NaN()
		if n := len(r.Q); n > 0 && len(r.Q[n-1]) > 0 {
			q0 = r.Q[n-1][0]
		}
		fmt.Fprintf(w, "%d\t%d\t%.3e\t%d\t%.4f\n", i, r.StepsTaken, r.EnergyDrift, r.ProjectionFailures, q0)
		drifts = append(drifts, r.EnergyDrift)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(drifts) > 1 {
		mean, std := stat.MeanStdDev(drifts, nil)
		fmt.Printf("\nenergy drift: mean %.3e  std %.3e\n", mean, std)
	}
	fmt.Printf("elapsed: %v\n", elapsed)
	return nil
}

func benchModel(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("benchmarking %s over %.1fs\n\n", base.Model, base.Duration)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATOR\tDT\tSTEPS\tTIME\tSTEPS/SEC\tENERGY DRIFT")
	registry := experiment.NewRegistry()
	for _, name := range registry.ListIntegrators() {
		for _, step := range []float64{base.Dt, base.Dt / 10} {
			cfg := base.Clone()
			cfg.Integrator = name
			cfg.Dt = step
			exp := experiment.New(cfg, nil)
			if err := exp.Setup(); err != nil {
				return err
			}
			start := time.Now()
			result, err := exp.Run(cmd.Context())
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			fmt.Fprintf(w, "%s\t%.4g\t%d\t%v\t%.0f\t%.3e\n", name, step, result.StepsTaken,
				elapsed.Round(time.Microsecond), float64(result.StepsTaken)/elapsed.Seconds(), result.EnergyDrift)
		}
	}
	return w.Flush()
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATOR\tSTEPS\tENERGY DRIFT\tCONSTRAINT DRIFT\tPROJ FAILS\tTIME")
	for _, name := range args[1:] {
		cfg := base.Clone()
		cfg.Integrator = name
		if err := cfg.Validate(); err != nil {
			return err
		}
		exp := experiment.New(cfg, nil)
		if err := exp.Setup(); err != nil {
			return err
		}
		start := time.Now()
		result, err := exp.Run(cmd.Context())
		if err != nil {
			return errors.Wrap(err, name)
		}
		fmt.Fprintf(w, "%s\t%d\t%.3e\t%.3e\t%d\t%v\n", name, result.StepsTaken, result.EnergyDrift,
			result.Metrics["constraint_drift"], result.ProjectionFailures, time.Since(start).Round(time.Microsecond))
	}
	return w.Flush()
}

func lyapunov(cmd *cobra.Command, args []string) error {
	cfg, exp, err := setup(cmd, args[0])
	if err != nil {
		return err
	}
	m := exp.Model()
	lambda, err := analysis.LyapunovExponent(m.System, exp.Simulator().Integrator(), m.NewState(), cfg.Dt, cfg.Duration, 1e-8)
	if err != nil {
		return err
	}
	fmt.Printf("largest lyapunov exponent: %.4f 1/s\n", lambda)
	if lambda > 0.1 {
		fmt.Println("motion looks chaotic")
	} else {
		fmt.Println("motion looks regular")
	}
	return nil
}
