package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/mbsim/internal/config"
	"github.com/san-kum/mbsim/internal/logging"
	"github.com/san-kum/mbsim/internal/tui"
)

var (
	dataDir string
	debug   bool

	dt            float64
	duration      float64
	integrator    string
	tolerance     float64
	constraintTol float64
	targetTol     float64
	noProject     bool
	adaptive      bool
	euler         bool
	seed          int64
	params        map[string]string
	configFile    string
	preset        string

	runs    int
	spread  float64
	workers int

	frameRate int
	coord     int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "mbsim",
		Short:        "articulated rigid-body simulation lab",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.RunInteractive()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".mbsim", "data directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a simulation and store it",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "run a simulation drawn live in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [model]",
		Short: "run perturbed copies of a simulation in parallel",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnsemble,
	}
	ensembleCmd.Flags().IntVar(&runs, "runs", config.DefaultRuns, "number of runs")
	ensembleCmd.Flags().Float64Var(&spread, "spread", config.DefaultSpread, "std dev of the q perturbation")
	ensembleCmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (0 = GOMAXPROCS)")

	benchCmd := &cobra.Command{
		Use:   "bench [model]",
		Short: "benchmark every integrator on a model",
		Args:  cobra.ExactArgs(1),
		RunE:  benchModel,
	}
	compareCmd := &cobra.Command{
		Use:   "compare [model] [integrator...]",
		Short: "compare integrators on the same model",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareIntegrators,
	}
	lyapunovCmd := &cobra.Command{
		Use:   "lyapunov [model]",
		Short: "estimate the largest Lyapunov exponent",
		Args:  cobra.ExactArgs(1),
		RunE:  lyapunov,
	}
	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "grid search run settings or model parameters for the lowest metric",
		Args:  cobra.ExactArgs(1),
		RunE:  sweepModel,
	}
	sweepCmd.Flags().StringArrayVar(&grid, "grid", nil, "name=v1,v2,... (repeatable)")
	sweepCmd.Flags().StringVar(&metric, "metric", "energy_drift", "metric to minimize")
	traceCmd := &cobra.Command{
		Use:   "trace [model]",
		Short: "write the path of a body's mass center as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  traceModel,
	}
	traceCmd.Flags().IntVar(&traceBody, "body", -1, "body index (-1 = last)")
	traceCmd.Flags().StringVarP(&traceOut, "out", "o", "trace.svg", "output file")
	for _, c := range []*cobra.Command{runCmd, liveCmd, ensembleCmd, benchCmd, compareCmd, lyapunovCmd, sweepCmd, traceCmd} {
		addRunFlags(c)
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models and their parameters",
		RunE:  listModels,
	}
	inspectCmd := &cobra.Command{
		Use:   "inspect [model]",
		Short: "show a model's topology and initial state",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectModel,
	}
	inspectCmd.Flags().StringToStringVar(&params, "param", nil, "model parameter name=value")
	inspectCmd.Flags().BoolVar(&euler, "euler", false, "use Euler angles for ball and free joints")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}
	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run's coordinates",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase portrait of one coordinate against its speed",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&coord, "coord", 0, "coordinate index")
	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().IntVar(&coord, "coord", 0, "coordinate index")
	exportCmd := &cobra.Command{
		Use:   "export [run_id] [json|csv]",
		Short: "export a stored run to stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  exportRun,
	}

	rootCmd.AddCommand(runCmd, liveCmd, ensembleCmd, benchCmd, compareCmd, lyapunovCmd, sweepCmd, traceCmd,
		modelsCmd, inspectCmd, presetsCmd, listCmd, plotCmd, phaseCmd, analyzeCmd, exportCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	f.Float64Var(&duration, "time", config.DefaultDuration, "duration")
	f.StringVar(&integrator, "integrator", "rk4", "integrator")
	f.Float64Var(&tolerance, "tol", config.DefaultTolerance, "adaptive error tolerance")
	f.Float64Var(&constraintTol, "constraint-tol", 1e-8, "constraint projection tolerance")
	f.Float64Var(&targetTol, "target-tol", 1e-10, "constraint projection target")
	f.BoolVar(&noProject, "no-project", false, "disable constraint projection")
	f.BoolVar(&adaptive, "adaptive", false, "adaptive step size")
	f.BoolVar(&euler, "euler", false, "use Euler angles for ball and free joints")
	f.Int64Var(&seed, "seed", 0, "random seed")
	f.StringToStringVar(&params, "param", nil, "model parameter name=value")
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "use preset configuration")
}

// resolveConfig layers the run configuration: defaults, then the preset,
// then the config file, then any flag the user set explicitly.
func resolveConfig(cmd *cobra.Command, model string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		p := config.GetPreset(model, preset)
		if p == nil {
			return nil, errors.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		cfg = p
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load config")
		}
		for k, v := range cfg.Params {
			if _, ok := loaded.Params[k]; !ok {
				if loaded.Params == nil {
					loaded.Params = map[string]float64{}
				}
				loaded.Params[k] = v
			}
		}
		cfg = loaded
	}
	cfg.Model = model

	f := cmd.Flags()
	if f.Changed("dt") {
		cfg.Dt = dt
	}
	if f.Changed("time") {
		cfg.Duration = duration
	}
	if f.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if f.Changed("tol") {
		cfg.Tolerance = tolerance
	}
	if f.Changed("constraint-tol") {
		cfg.Projection.ConstraintTol = constraintTol
	}
	if f.Changed("target-tol") {
		cfg.Projection.TargetTol = targetTol
	}
	if f.Changed("no-project") {
		cfg.Projection.Disabled = noProject
	}
	if f.Changed("adaptive") {
		cfg.Adaptive = adaptive
	}
	if f.Changed("euler") {
		cfg.UseEulerAngles = euler
	}
	if f.Changed("seed") {
		cfg.Seed = seed
	}
	if f.Lookup("runs") != nil {
		if f.Changed("runs") || cfg.Ensemble.Runs == 0 {
			cfg.Ensemble.Runs = runs
		}
		if f.Changed("spread") {
			cfg.Ensemble.Spread = spread
		}
		if f.Changed("workers") {
			cfg.Ensemble.Workers = workers
		}
	}
	overrides, err := parseParams(params)
	if err != nil {
		return nil, err
	}
	for k, v := range overrides {
		if cfg.Params == nil {
			cfg.Params = map[string]float64{}
		}
		cfg.Params[k] = v
	}
	return cfg, cfg.Validate()
}

func parseParams(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "param %s", k)
		}
		out[k] = x
	}
	return out, nil
}

func newLogger() (*zap.SugaredLogger, error) {
	return logging.NewLogger("mbsim", debug)
}
